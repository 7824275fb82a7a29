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

	"account-gateway/internal/config"
	"account-gateway/internal/logging"
	"account-gateway/internal/server"

	"go.uber.org/zap"
)

// Servidor de exemplo: a API fica atrás do rate limit por conta sem proxy.
// GET /{endpoint} com Authorization: Bearer <token>.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "example-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stack, err := server.NewStack(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = stack.Close() }()
	stack.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.NewAPIRouter(stack, cfg.ProcessingDelay),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("example server listening",
		zap.String("addr", cfg.ListenAddr),
		zap.Bool("rate_enabled", cfg.Rate.Enabled),
		zap.Stringer("tiers", cfg.Rate.Tiers),
		zap.Duration("processing_delay", cfg.ProcessingDelay),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
