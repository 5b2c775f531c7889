package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/appointment-admin-console/internal/api"
	"github.com/hackgods/appointment-admin-console/internal/appointment"
	"github.com/hackgods/appointment-admin-console/internal/bootstrap"
	"github.com/hackgods/appointment-admin-console/internal/config"
	"github.com/hackgods/appointment-admin-console/internal/logging"
	"github.com/hackgods/appointment-admin-console/internal/notify"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("source", cfg.Source),
		zap.Duration("conflict_window", cfg.ConflictWindow))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Open(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("backend connection error", zap.Error(err))
	}
	defer deps.Close()

	feed := notify.NewFeed(200)
	svc := appointment.NewService(
		deps.Repo,
		deps.ReminderGate(cfg.ReminderCooldown),
		notify.Multi(notify.NewLogNotifier(logger), feed),
		logger,
		cfg,
	)

	// Warm the snapshot; a failure here is retried on the first request.
	if _, err := svc.Load(rootCtx, appointment.FilterAll); err != nil {
		logger.Warn("initial appointment load failed", zap.Error(err))
	}

	routerCfg := api.RouterConfig{
		Service:     svc,
		Feed:        feed,
		PgPool:      deps.PgPool,
		Redis:       deps.Redis,
		Logger:      logger,
		Env:         cfg.Env,
		Version:     version,
		RateLimit:   cfg.RateLimit,
		CORSOrigins: cfg.CORSOrigins,
	}
	if store := deps.ReportStore(cfg.ReportTTL); store != nil {
		routerCfg.Reports = store
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
