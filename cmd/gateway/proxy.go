package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"account-gateway/internal/config"
	"account-gateway/internal/logging"
	"account-gateway/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newProxyCmd() *cobra.Command {
	var listen, upstream string

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the reverse proxy in front of UPSTREAM_URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.ListenAddr = listen
			}
			if upstream != "" {
				cfg.UpstreamURL = upstream
			}
			return runProxy(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides LISTEN_ADDR)")
	cmd.Flags().StringVar(&upstream, "upstream", "", "upstream URL (overrides UPSTREAM_URL)")
	return cmd
}

func runProxy(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	target, err := cfg.Upstream()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stack, err := server.NewStack(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = stack.Close() }()
	stack.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.NewProxyRouter(stack, target),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("gateway listening",
		zap.String("addr", cfg.ListenAddr),
		zap.Stringer("upstream", target),
	)
	log.Info("rate",
		zap.Bool("enabled", cfg.Rate.Enabled),
		zap.Stringer("tiers", cfg.Rate.Tiers),
		zap.Int("max_rps", cfg.Rate.MaxRPS),
		zap.String("key_header", cfg.Rate.KeyHeader),
		zap.Int("shards", cfg.Rate.Shards),
		zap.Int("max_keys", cfg.Rate.MaxKeys),
	)
	log.Info("rate-stats",
		zap.Bool("enabled", cfg.Stats.Enabled),
		zap.String("redis_addr", cfg.Stats.RedisAddr),
		zap.String("bucket", cfg.Stats.Bucket),
		zap.Duration("ttl", cfg.Stats.TTL),
		zap.Bool("track_keys", cfg.Stats.TrackKeys),
	)
	log.Info("guards",
		zap.Float64("ingress_rps", cfg.Ingress.RPS),
		zap.Int("ingress_burst", cfg.Ingress.Burst),
		zap.Int("concurrency_max", cfg.Concurrency.Max),
		zap.Duration("concurrency_timeout", cfg.Concurrency.Timeout),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
