package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/xraph/jobqueue"
)

// config is loaded from the environment.
type config struct {
	Store         string `env:"JOBQUEUE_STORE" envDefault:"sqlite"`
	DSN           string `env:"JOBQUEUE_DSN" envDefault:"file:jobqueue.db?_busy_timeout=5000&_journal_mode=WAL"`
	RedisAddr     string `env:"JOBQUEUE_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"JOBQUEUE_REDIS_PASSWORD"`
	RedisDB       int    `env:"JOBQUEUE_REDIS_DB" envDefault:"0"`
	AutoMigrate   bool   `env:"JOBQUEUE_AUTO_MIGRATE" envDefault:"true"`

	HTTPAddr string `env:"JOBQUEUE_HTTP_ADDR" envDefault:":8080"`

	Client            string        `env:"JOBQUEUE_CLIENT"`
	Concurrency       int           `env:"JOBQUEUE_CONCURRENCY" envDefault:"4"`
	PollInterval      time.Duration `env:"JOBQUEUE_POLL_INTERVAL" envDefault:"1s"`
	ShutdownTimeout   time.Duration `env:"JOBQUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	ExecutionTimeout  time.Duration `env:"JOBQUEUE_EXECUTION_TIMEOUT" envDefault:"0s"`
	HeartbeatInterval time.Duration `env:"JOBQUEUE_HEARTBEAT_INTERVAL" envDefault:"30s"`
	StaleJobThreshold time.Duration `env:"JOBQUEUE_STALE_JOB_THRESHOLD" envDefault:"5m"`
	SoftDeleteAfter   time.Duration `env:"JOBQUEUE_SOFT_DELETE_AFTER" envDefault:"240h"`
	PurgeAfter        time.Duration `env:"JOBQUEUE_PURGE_AFTER" envDefault:"2400h"`

	// Principals lists the identities function targets may run as. Each
	// entry is an ID; a trailing "!" marks it as an administrator.
	Principals []string `env:"JOBQUEUE_PRINCIPALS" envSeparator:"," envDefault:"system!"`

	// Audit logs every job and cron lifecycle event as an audit record.
	Audit bool `env:"JOBQUEUE_AUDIT" envDefault:"false"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// dispatcherConfig maps the CLI settings onto jobqueue.Config.
func (c config) dispatcherConfig() jobqueue.Config {
	dc := jobqueue.DefaultConfig()
	dc.Client = c.Client
	if c.Concurrency > 0 {
		dc.Concurrency = c.Concurrency
	}
	if c.PollInterval > 0 {
		dc.PollInterval = c.PollInterval
	}
	if c.ShutdownTimeout > 0 {
		dc.ShutdownTimeout = c.ShutdownTimeout
	}
	dc.ExecutionTimeout = c.ExecutionTimeout
	dc.HeartbeatInterval = c.HeartbeatInterval
	dc.StaleJobThreshold = c.StaleJobThreshold
	dc.SoftDeleteAfter = c.SoftDeleteAfter
	dc.PurgeAfter = c.PurgeAfter
	return dc
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", format)
	}
}
