package build

// Set via -ldflags '-X bidvault/build.Version=... -X bidvault/build.Date=...'.
var (
	Version = "dev"
	Date    = "unknown"
)
