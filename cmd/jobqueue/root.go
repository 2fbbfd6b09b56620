package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/xraph/jobqueue"
	audithook "github.com/xraph/jobqueue/audit_hook"
	"github.com/xraph/jobqueue/engine"
	"github.com/xraph/jobqueue/principal"
	"github.com/xraph/jobqueue/store"
	"github.com/xraph/jobqueue/store/memory"
	"github.com/xraph/jobqueue/store/postgres"
	"github.com/xraph/jobqueue/store/redis"
	"github.com/xraph/jobqueue/store/sqlite"
)

// app carries what every subcommand needs. It is built in
// PersistentPreRunE and torn down in PersistentPostRunE.
type app struct {
	cfg    config
	logger *slog.Logger
	store  store.Store
	eng    *engine.Engine
	rdb    *goredis.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var storeFlag, dsnFlag string

	root := &cobra.Command{
		Use:           "jobqueue",
		Short:         "Run and administer a background job queue",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("store") {
				cfg.Store = storeFlag
			}
			if cmd.Flags().Changed("dsn") {
				cfg.DSN = dsnFlag
			}
			return a.open(cmd.Context(), cmd, cfg)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&storeFlag, "store", "", "store backend: sqlite, postgres, redis, memory (env JOBQUEUE_STORE)")
	root.PersistentFlags().StringVar(&dsnFlag, "dsn", "", "sqlite or postgres connection string (env JOBQUEUE_DSN)")

	root.AddCommand(
		newMigrateCmd(a),
		newEnqueueCmd(a),
		newRunCmd(a),
		newListCmd(a),
		newSweepCmd(a),
		newCronCmd(a),
		newWorkerCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) open(ctx context.Context, cmd *cobra.Command, cfg config) error {
	logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.store = st

	if cfg.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return fmt.Errorf("%w: %w", jobqueue.ErrMigrationFailed, err)
		}
	}

	d, err := jobqueue.New(
		jobqueue.WithStore(st),
		jobqueue.WithConfig(cfg.dispatcherConfig()),
		jobqueue.WithLogger(logger),
	)
	if err != nil {
		_ = st.Close()
		return err
	}

	engOpts := []engine.Option{engine.WithPrincipals(directory(cfg.Principals))}
	if cfg.Audit {
		engOpts = append(engOpts, engine.WithExtension(
			audithook.New(audithook.NewLogRecorder(logger), audithook.WithLogger(logger)),
		))
	}
	eng, err := engine.Build(d, engOpts...)
	if err != nil {
		_ = st.Close()
		return err
	}
	a.eng = eng
	return nil
}

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	switch strings.ToLower(a.cfg.Store) {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.Open(a.cfg.DSN, sqlite.WithLogger(a.logger))
	case "postgres":
		return postgres.New(ctx, a.cfg.DSN, postgres.WithLogger(a.logger))
	case "redis":
		a.rdb = goredis.NewClient(&goredis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		return redis.New(a.rdb, redis.WithLogger(a.logger)), nil
	default:
		return nil, fmt.Errorf("unknown store %q", a.cfg.Store)
	}
}

// close stops the engine, which closes the store, then releases the Redis
// client when one was opened.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.eng != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.dispatcherConfig().ShutdownTimeout)
		defer cancel()
		errs = append(errs, a.eng.Stop(stopCtx))
		a.eng = nil
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
		a.rdb = nil
	}
	return errors.Join(errs...)
}

// directory builds the principal directory from "id" and "id!" entries.
func directory(entries []string) *principal.Directory {
	d := principal.NewDirectory()
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		admin := strings.HasSuffix(e, "!")
		pid := strings.TrimSuffix(e, "!")
		d.Add(&principal.Principal{ID: pid, Name: pid, Admin: admin})
	}
	return d
}
