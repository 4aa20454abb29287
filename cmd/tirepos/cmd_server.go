package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tirepos/internal/config"
	"tirepos/internal/http/handlers"
	"tirepos/internal/http/server"
	applog "tirepos/internal/log"
	"tirepos/internal/obs"
	"tirepos/internal/repos"
)

// serveCmd runs the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closeLog, err := setup()
		if err != nil {
			return err
		}
		defer closeLog()

		db, err := repos.OpenDB(cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		if cfg.SeedDemo {
			if err := repos.Seed(cmd.Context(), db, logger); err != nil {
				return err
			}
		}

		var rdb *redis.Client
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("parse REDIS_URL: %w", err)
			}
			rdb = redis.NewClient(opt)
			defer rdb.Close()
			if err := rdb.Ping(cmd.Context()).Err(); err != nil {
				logger.Warn().Err(err).Msg("redis unreachable; idempotency guard will answer 503 until it recovers")
			}
		}

		metrics := obs.NewMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer)
		app := server.New(server.Options{
			Deps:           handlers.NewDeps(db, cfg, metrics, logger),
			Redis:          rdb,
			IdempotencyTTL: cfg.IdempotencyTTL,
			RatePerMinute:  cfg.RatePerMinute,
			Gatherer:       prometheus.DefaultGatherer,
			AccessLog:      os.Stdout,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", cfg.HTTPAddr()).Bool("idempotency", rdb != nil).Msg("http listening")
			errCh <- app.Listen(cfg.HTTPAddr())
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			return app.ShutdownWithTimeout(10 * time.Second)
		}
	},
}

// migrateCmd applies the schema and exits.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closeLog, err := setup()
		if err != nil {
			return err
		}
		defer closeLog()
		return withDB(cfg, func(db *sqlx.DB) error {
			logger.Info().Str("driver", db.DriverName()).Msg("schema up to date")
			return nil
		})
	},
}

// seedCmd inserts demo categories and products.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo catalog data (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closeLog, err := setup()
		if err != nil {
			return err
		}
		defer closeLog()
		return withDB(cfg, func(db *sqlx.DB) error {
			return repos.Seed(cmd.Context(), db, logger)
		})
	},
}

func setup() (config.Config, zerolog.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), func() {}, err
	}

	var extra []io.Writer
	closeLog := func() {}
	// Optional file logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[warn] could not open log file %s: %v\n", cfg.LogFile, err)
		} else {
			extra = append(extra, f)
			closeLog = func() { _ = f.Close() }
		}
	}
	logger := applog.New(cfg.LogFormat, cfg.LogLevel, extra...)
	applog.SetLogger(logger)
	return cfg, logger, closeLog, nil
}

func withDB(cfg config.Config, fn func(*sqlx.DB) error) error {
	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
