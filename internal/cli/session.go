package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/redrec/internal/config"
	"github.com/roach88/redrec/internal/harness"
	"github.com/roach88/redrec/internal/kv"
	"github.com/roach88/redrec/internal/kv/memory"
	"github.com/roach88/redrec/internal/kv/redis"
	"github.com/roach88/redrec/internal/kv/sqlite"
	"github.com/roach88/redrec/internal/record"
)

// session is the state shared by the record commands of one invocation:
// resolved config, logger, open store and optional metrics.
type session struct {
	opts     *RootOptions
	cfg      *config.Config
	logger   *slog.Logger
	store    kv.Store
	registry *prometheus.Registry
	metrics  *record.Metrics
	out      *OutputFormatter
	colls    []*record.Collection
}

// openSession loads configuration (.env, YAML, REDREC_* overrides) and
// opens the configured store.
func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	lookup := opts.lookupEnv
	if lookup == nil {
		if err := config.LoadEnvFile(opts.EnvFile); err != nil {
			return nil, WrapExitError(ExitCommandError, "config", "load env file", err)
		}
		lookup = os.LookupEnv
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "config", "load config", err)
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, WrapExitError(ExitCommandError, "config", "environment", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "config", "validate config", err)
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg, opts.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "config", "logger", err)
	}

	s := &session{
		opts:   opts,
		cfg:    cfg,
		logger: logger,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}

	if opts.Metrics {
		s.registry = prometheus.NewRegistry()
		s.metrics = record.NewMetrics()
		if err := s.metrics.Register(s.registry); err != nil {
			return nil, WrapExitError(ExitCommandError, "error", "register metrics", err)
		}
	}

	store, err := openStore(cmd.Context(), cfg.Store)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, harness.ErrorKindUnavailable,
			fmt.Sprintf("open %s store", cfg.Store.Driver), err)
	}
	s.store = store
	logger.Debug("store opened", "driver", cfg.Store.Driver)
	return s, nil
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(w io.Writer, cfg *config.Config, verbose bool) (*slog.Logger, error) {
	level := slog.LevelDebug
	if !verbose {
		lvl, err := cfg.LogLevel()
		if err != nil {
			return nil, err
		}
		level = lvl
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
}

func openStore(ctx context.Context, sc config.StoreConfig) (kv.Store, error) {
	switch sc.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		store, err := sqlite.Open(sc.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverRedis:
		store := redis.New(redis.Options{
			Addr:         sc.Addr,
			Username:     sc.Username,
			Password:     sc.Password,
			DB:           sc.DB,
			DialTimeout:  sc.DialTimeout,
			ReadTimeout:  sc.ReadTimeout,
			WriteTimeout: sc.WriteTimeout,
			PoolSize:     sc.PoolSize,
		})
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown driver %q", sc.Driver)
}

// collection returns the named configured collection. mode overrides the
// configured write mode when not nil.
func (s *session) collection(name string, mode *record.WriteMode) (*record.Collection, error) {
	def, ok := s.cfg.Collections[name]
	if !ok {
		return nil, NewExitError(ExitCommandError, "config",
			fmt.Sprintf("unknown collection %q (configured: %v)", name, s.cfg.CollectionNames()))
	}
	wm, err := s.cfg.Mode()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "config", "write mode", err)
	}
	if mode != nil {
		wm = *mode
	}

	c, err := record.New(record.Config{
		Name:        name,
		Store:       s.store,
		PrimaryKeys: def.PrimaryKeys,
		LookupKeys:  def.LookupKeys,
		WriteMode:   wm,
		Clock:       s.opts.clock,
		IDs:         s.opts.ids,
		Logger:      s.logger,
		Metrics:     s.metrics,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "config", "collection", err)
	}
	s.colls = append(s.colls, c)
	return c, nil
}

// Close waits for async writes, dumps metrics when requested and closes
// the store.
func (s *session) Close(ctx context.Context) error {
	var errs []error
	for _, c := range s.colls {
		if err := c.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", c.Name(), err))
		}
	}
	if s.registry != nil {
		if err := dumpMetrics(s.out.GetErrWriter(), s.registry); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

// dumpMetrics writes every gathered family in the Prometheus text format.
func dumpMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// withSession opens a session, runs fn and closes the session. A close
// failure is reported only when fn succeeded.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(s *session) error) error {
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	runErr := fn(s)
	closeErr := s.Close(context.WithoutCancel(cmd.Context()))
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return WrapExitError(ExitCommandError, "error", "close", closeErr)
	}
	return nil
}

// recordError maps a collection error to an exit error.
func recordError(message string, err error) error {
	return WrapExitError(ExitCommandError, harness.ErrorKind(err), message, err)
}
