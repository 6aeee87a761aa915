package migrations

import (
	"embed"
	"io/fs"

	"github.com/jackc/tern/migrate"
)

//go:embed *.sql
var sqlFiles embed.FS

// FS serves the embedded schema migrations to the tern migrator.
var FS migrate.MigratorFS = schemaFS{sqlFiles}

type schemaFS struct{ fsys fs.FS }

func (s schemaFS) ReadDir(dirname string) ([]fs.FileInfo, error) {
	entries, err := fs.ReadDir(s.fsys, dirname)
	if err != nil {
		return nil, err
	}

	infos := make([]fs.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}

	return infos, nil
}

func (s schemaFS) ReadFile(filename string) ([]byte, error) {
	return fs.ReadFile(s.fsys, filename)
}

func (s schemaFS) Glob(pattern string) ([]string, error) {
	return fs.Glob(s.fsys, pattern)
}
