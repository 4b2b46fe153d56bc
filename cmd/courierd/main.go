// Command courierd runs the webhook delivery engine with its admin API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/umrahops/courier"
	"github.com/umrahops/courier/api"
	"github.com/umrahops/courier/observability"
	"github.com/umrahops/courier/store"
	"github.com/umrahops/courier/store/bunstore"
	"github.com/umrahops/courier/store/memory"
	courierredis "github.com/umrahops/courier/store/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("courierd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	st, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	metrics, err := observability.NewMetrics(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	c, err := courier.New(
		courier.WithStore(st),
		courier.WithLogger(logger),
		courier.WithConcurrency(cfg.Delivery.Concurrency),
		courier.WithPollInterval(cfg.Delivery.PollInterval),
		courier.WithBatchSize(cfg.Delivery.BatchSize),
		courier.WithRequestTimeout(cfg.Delivery.RequestTimeout),
		courier.WithMaxAttempts(cfg.Delivery.MaxAttempts),
		courier.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		courier.WithMetrics(metrics),
		courier.WithTracer(observability.NewTracer()),
	)
	if err != nil {
		return fmt.Errorf("init courier: %w", err)
	}

	if err := c.Catalog().RegisterDefaults(ctx); err != nil {
		return fmt.Errorf("register default event types: %w", err)
	}

	c.Start(ctx)
	defer c.Stop(context.Background())

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewHandler(c, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin API listening", "addr", addr, "backend", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(cfg loggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func openStore(cfg storeConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil

	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return courierredis.New(rdb), nil

	case "postgres":
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, err
		}
		return bunstore.New(bun.NewDB(sqldb, pgdialect.New())), nil

	case "sqlite":
		sqldb, err := sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, err
		}
		return bunstore.New(bun.NewDB(sqldb, sqlitedialect.New())), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
