package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskhub/internal/auth"
	"taskhub/internal/config"
	"taskhub/internal/email"
	"taskhub/internal/reminder"
	"taskhub/internal/server"
	"taskhub/internal/storage/sqlite"
	"taskhub/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	store, err := sqlite.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("unable to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	if err := token.EnsureKeys(cfg.PrivateKeyPath, cfg.PublicKeyPath); err != nil {
		logger.Error("unable to prepare signing keys", slog.String("error", err.Error()))
		os.Exit(1)
	}
	private, public, err := token.LoadKeys(cfg.PrivateKeyPath, cfg.PublicKeyPath)
	if err != nil {
		logger.Error("unable to load signing keys", slog.String("error", err.Error()))
		os.Exit(1)
	}
	issuer, err := token.NewIssuer(private, public, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		logger.Error("unable to build token issuer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	authSvc := auth.New(store, issuer, logger)
	if err := authSvc.EnsureAdmin(context.Background(), cfg.AdminEmail, cfg.AdminPassword); err != nil {
		logger.Error("unable to bootstrap admin account", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sender, err := email.New(cfg.EmailBackend, logger)
	if err != nil {
		logger.Error("unable to configure email backend", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := server.New(store, authSvc, issuer, logger, cfg.Debug)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Engine(),
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	worker := reminder.New(store, sender, logger, cfg.ReminderInterval, cfg.ReminderWindow)
	go worker.Run(workerCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
