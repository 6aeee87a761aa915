package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"bidvault/api"
	"bidvault/build"
	"bidvault/debug"
	"bidvault/escrow"
	"bidvault/ledger"
	"bidvault/metrics"
	"bidvault/store"
	"bidvault/store/memstore"
	"bidvault/store/pgstore"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v3"
)

const program = "bidvault"

func main() {
	err := exe(context.Background(), os.Stdout, os.Stderr, os.Args[1:])
	switch {
	case err == nil:
		os.Exit(0)
	case errors.Is(err, flag.ErrHelp):
		os.Exit(0)
	case isSignalError(err):
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(0)
	case err != nil:
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func exe(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	fs := flag.NewFlagSet(program, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		apiAddr              = fs.String("api-addr", ":4415", "public API HTTP server address")
		debugAddr            = fs.String("debug-addr", ":4416", "private debug HTTP server address")
		storeConnStr         = fs.String("store-conn-str", "mem://store", "store connection string")
		storeCleanupInterval = fs.Duration("store-cleanup-interval", time.Minute, "how often to clean up the store")
		settlementRetention  = fs.Duration("settlement-retention", 30*24*time.Hour, "how long to keep settlement history")
		storeMetricsInterval = fs.Duration("store-metrics-interval", 10*time.Second, "how often to update store metrics")
		admins               = flagStringSet(fs, "admin", "initial admin address, used only if the escrow is uninitialized (optional, repeatable)")
		bech32Prefix         = fs.String("bech32-prefix", "", "if set, require bech32 account addresses with this prefix")
		addressCacheSize     = fs.Int("address-cache-size", 4096, "how many validated addresses to remember")
		minimumBidPolicy     = fs.String("minimum-bid-policy", escrow.MinimumPerPayment.String(), "apply the minimum bid to each payment or to the bidder's total (payment, total)")
		version              = fs.Bool("version", false, "print version information and exit")
		logLevel             = fs.String("log-level", "info", "debug, info, warn, error")
		_                    = fs.String("config", "", "config file")
	)
	if err := ff.Parse(fs, args,
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("BIDVAULT"),
	); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	if *version {
		fmt.Fprintf(stdout, "%s version %s date %s\n", program, build.Version, build.Date)
		return nil
	}

	policy, err := escrow.ParseMinimumBidPolicy(*minimumBidPolicy)
	if err != nil {
		return fmt.Errorf("minimum bid policy: %w", err)
	}

	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(stderr)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = level.NewFilter(logger, level.Allow(level.ParseDefault(*logLevel, level.InfoValue())))
	}

	level.Info(logger).Log("program", program, "build_version", build.Version, "build_date", build.Date)

	var l ledger.Ledger
	{
		base, err := newLedger(*bech32Prefix)
		if err != nil {
			return fmt.Errorf("create ledger: %w", err)
		}
		l = ledger.WithAddressCache(base, *addressCacheSize)
	}

	level.Debug(logger).Log("msg", "creating store")

	var (
		st        store.Store
		storeKind string
	)
	{
		switch {
		case strings.HasPrefix(*storeConnStr, "postgres"):
			level.Info(logger).Log("store", "postgres")
			s, err := pgstore.NewStore(ctx, *storeConnStr, log.With(logger, "module", "store"))
			if err != nil {
				return fmt.Errorf("create Postgres store: %w", err)
			}
			defer func() {
				level.Debug(logger).Log("msg", "closing Postgres store")
				if err := s.Close(); err != nil {
					level.Error(logger).Log("msg", "close Postgres store failed", "err", err)
				}
			}()
			st, storeKind = s, "postgres"

		default:
			level.Warn(logger).Log("store", "in-memory")
			st, storeKind = memstore.NewStore(), "memory"
		}
	}

	metrics.InstanceInfo.WithLabelValues(l.Network(), storeKind, policy.String()).Set(1)

	service := escrow.NewCoreService(l, st,
		escrow.WithLogger(log.With(logger, "module", "escrow")),
		escrow.WithMinimumBidPolicy(policy),
	)

	if err := bootstrapAdmins(ctx, service, admins.Get(), logger); err != nil {
		return fmt.Errorf("bootstrap admins: %w", err)
	}

	var g run.Group

	{
		logger := log.With(logger, "module", "api")
		apiHandler := api.NewHandler(service, logger)
		server := &http.Server{Handler: apiHandler, Addr: *apiAddr}
		g.Add(func() error {
			level.Info(logger).Log("api_addr", *apiAddr)
			return server.ListenAndServe()
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			server.Shutdown(ctx)
		})
	}

	{
		logger := log.With(logger, "module", "debug")
		debugHandler := debug.NewHandler(logger)
		server := &http.Server{Handler: debugHandler, Addr: *debugAddr}
		g.Add(func() error {
			level.Info(logger).Log("debug_addr", *debugAddr)
			return server.ListenAndServe()
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			server.Shutdown(ctx)
		})
	}

	{
		logger := log.With(logger, "module", "store_cleanup")
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			level.Info(logger).Log("interval", *storeCleanupInterval, "retention", *settlementRetention)
			return tick(ctx, *storeCleanupInterval, func(ctx context.Context) {
				if err := st.Cleanup(ctx, *settlementRetention); err != nil {
					level.Error(logger).Log("error", err)
				}
			})
		}, func(error) {
			cancel()
		})
	}

	{
		logger := log.With(logger, "module", "store_metrics")
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			level.Info(logger).Log("interval", *storeMetricsInterval)
			return tick(ctx, *storeMetricsInterval, func(ctx context.Context) {
				if err := store.UpdateMetrics(ctx, st); err != nil {
					level.Error(logger).Log("error", err)
				}
			})
		}, func(error) {
			cancel()
		})
	}

	{
		g.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))
	}

	level.Debug(logger).Log("msg", "running")

	return g.Run()
}

func newLedger(bech32Prefix string) (ledger.Ledger, error) {
	if bech32Prefix == "" {
		return ledger.PlainLedger{}, nil
	}
	return ledger.NewBech32Ledger(bech32Prefix)
}

// bootstrapAdmins initializes the escrow with the configured admins. An
// escrow that's already initialized keeps its existing admin set.
func bootstrapAdmins(ctx context.Context, service escrow.Service, admins []string, logger log.Logger) error {
	if len(admins) == 0 {
		if _, err := service.Info(ctx); errors.Is(err, escrow.ErrConfigurationMissing) {
			level.Warn(logger).Log("msg", "escrow is uninitialized, waiting for an initialize request")
		}
		return nil
	}

	_, err := service.Initialize(ctx, admins)
	switch {
	case err == nil:
		level.Info(logger).Log("msg", "initialized escrow", "admins", strings.Join(admins, ", "))
		return nil
	case errors.Is(err, escrow.ErrAlreadyInitialized):
		level.Info(logger).Log("msg", "escrow already initialized, ignoring admin flags")
		return nil
	default:
		return err
	}
}

func tick(ctx context.Context, interval time.Duration, f func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func isSignalError(err error) bool {
	var (
		sigErrVal run.SignalError
		sigErrPtr *run.SignalError
	)
	return errors.As(err, &sigErrVal) || errors.As(err, &sigErrPtr)
}

//
//
//

type stringSet struct{ values []string }

var _ flag.Value = (*stringSet)(nil)

func flagStringSet(fs *flag.FlagSet, name string, usage string) *stringSet {
	ss := &stringSet{}
	fs.Var(ss, name, usage)
	return ss
}

func (ss *stringSet) Set(value string) error {
	for _, v := range ss.values {
		if value == v {
			return nil
		}
	}
	ss.values = append(ss.values, value)
	return nil
}

func (ss *stringSet) String() string {
	switch len(ss.values) {
	case 0:
		return "<empty>"
	default:
		return strings.Join(ss.values, ", ")
	}
}

func (ss *stringSet) Get() []string {
	return ss.values
}
