// Package server monta o stack HTTP compartilhado pelos binários: engine de
// rate limit, stats, guards de ingresso/concorrência e roteadores chi.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"account-gateway/internal/config"
	"account-gateway/middleware/ratelimit"
	"account-gateway/middleware/ratelimit/application"
	"account-gateway/middleware/ratelimit/domain"
	"account-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stack agrupa os componentes de rate limit com ciclo de vida explícito:
// crie com NewStack, chame Start para o janitor e Close no shutdown.
type Stack struct {
	cfg   config.Config
	log   *zap.Logger
	clock func() time.Time

	Engine   *application.Engine
	Store    *infra.Store
	Stats    domain.StatsStore
	Memory   *infra.MemoryStatsStore
	Ingress  *infra.IngressLimiter
	Pool     *infra.ChanPool
	Registry *prometheus.Registry

	closers []func() error
}

type StackOption func(*Stack)

// WithClock troca a fonte de tempo do engine e do janitor (testes).
func WithClock(now func() time.Time) StackOption {
	return func(s *Stack) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithRedisClient injeta o client de stats em vez de criar um a partir da config.
func WithRedisClient(rdb redis.Cmdable) StackOption {
	return func(s *Stack) {
		s.Stats = infra.NewRedisStatsStore(rdb, RedisStatsOptions(s.cfg.Stats)...)
	}
}

func NewStack(ctx context.Context, cfg config.Config, log *zap.Logger, opts ...StackOption) (*Stack, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Stack{cfg: cfg, log: log, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Metrics.Enabled {
		s.Registry = prometheus.NewRegistry()
		s.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	var stats infra.MultiStatsStore
	if s.Stats != nil {
		stats = append(stats, s.Stats)
	} else if cfg.Stats.Enabled && cfg.Stats.InMemory() {
		s.Memory = infra.NewMemoryStatsStore()
		stats = append(stats, s.Memory)
	} else if cfg.Stats.Enabled {
		rdb, err := NewRedisClient(ctx, cfg.Stats)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.closers = append(s.closers, rdb.Close)
		stats = append(stats, infra.NewRedisStatsStore(rdb, RedisStatsOptions(cfg.Stats)...))
	}
	if s.Registry != nil {
		stats = append(stats, infra.NewPrometheusStatsStore(s.Registry))
	}
	if len(stats) > 0 {
		s.Stats = stats
	}

	if cfg.Rate.Enabled {
		policy, err := cfg.Policy()
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Store = infra.NewStore(
			infra.WithShards(cfg.Rate.Shards),
			infra.WithMaxKeys(cfg.Rate.MaxKeys),
			infra.WithIdleTTL(policy.Retention),
			infra.WithCleanupEvery(cfg.Rate.JanitorEvery),
			infra.WithClock(s.clock),
			infra.WithLogger(log.Named("store")),
		)
		s.Engine, err = application.NewEngine(s.Store, policy)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.closers = append(s.closers, s.Engine.Close)
		if s.Registry != nil {
			infra.ObserveStore(s.Registry, s.Store)
		}
	}

	if cfg.Ingress.RPS > 0 {
		s.Ingress = infra.NewIngressLimiter(cfg.Ingress.RPS, cfg.Ingress.Burst)
	}
	if cfg.Concurrency.Max > 0 {
		s.Pool = infra.NewChanPool(cfg.Concurrency.Max)
		if s.Registry != nil {
			infra.ObservePool(s.Registry, s.Pool)
		}
	}
	return s, nil
}

// NewRedisClient conecta no Redis de stats e valida com um PING.
func NewRedisClient(ctx context.Context, c config.StatsConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis stats ping: %w", err)
	}
	return rdb, nil
}

// RedisStatsOptions traduz RATE_STATS_* para as opções do RedisStatsStore.
func RedisStatsOptions(c config.StatsConfig) []infra.RedisStatsOption {
	return []infra.RedisStatsOption{
		infra.WithStatsPrefix(c.Prefix),
		infra.WithStatsTTL(c.TTL),
		infra.WithStatsBucket(c.Bucket),
		infra.WithStatsTrackKeys(c.TrackKeys),
		infra.WithStatsMaxThrottled(c.MaxThrottled),
	}
}

// Start inicia o janitor do store até ctx encerrar.
func (s *Stack) Start(ctx context.Context) {
	if s.Store != nil {
		s.Store.StartJanitor(ctx)
	}
}

// Middlewares devolve, do mais externo para o mais interno: ingresso,
// rate limit por conta e concorrência.
func (s *Stack) Middlewares(endpointFn ratelimit.EndpointFunc) []func(http.Handler) http.Handler {
	var credFn ratelimit.CredentialFunc
	if s.cfg.Rate.KeyHeader != "" {
		credFn = ratelimit.HeaderCredential(s.cfg.Rate.KeyHeader)
	}

	var ingress domain.Limiter
	if s.Ingress != nil {
		ingress = s.Ingress
	}
	var engine ratelimit.Evaluator
	if s.Engine != nil {
		engine = s.Engine
	}
	var pool domain.SlotPool
	if s.Pool != nil {
		pool = s.Pool
	}

	return []func(http.Handler) http.Handler{
		ratelimit.IngressMiddleware(ratelimit.IngressOptions{Limiter: ingress}),
		ratelimit.Middleware(ratelimit.Options{
			Engine:       engine,
			Stats:        s.Stats,
			CredentialFn: credFn,
			EndpointFn:   endpointFn,
			Clock:        s.clock,
			Logger:       s.log.Named("ratelimit"),
		}),
		ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Pool:           pool,
			AcquireTimeout: s.cfg.Concurrency.Timeout,
		}),
	}
}

func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
