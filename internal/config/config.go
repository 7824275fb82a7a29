// Package config carrega a configuração dos binários a partir de variáveis de
// ambiente (com .env opcional) e, se indicado, de um arquivo YAML de política.
//
// A configuração é fixa no startup; não há recarga em runtime.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"account-gateway/middleware/ratelimit/domain"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	UpstreamURL string `env:"UPSTREAM_URL"`
	// ProcessingDelay simula latência do handler depois da admissão.
	ProcessingDelay time.Duration `env:"PROCESSING_DELAY" envDefault:"0s"`

	Rate        RateConfig
	Ingress     IngressConfig
	Concurrency ConcurrencyConfig
	Stats       StatsConfig
	Metrics     MetricsConfig
	Log         LogConfig
}

type RateConfig struct {
	Enabled      bool          `env:"RATE_ENABLED" envDefault:"true"`
	Tiers        domain.Tiers  `env:"RATE_TIERS" envDefault:"5:10:60,10:30:300"`
	MaxRPS       int           `env:"RATE_MAX_RPS" envDefault:"1000"`
	Retention    time.Duration `env:"RATE_RETENTION" envDefault:"10m"`
	PolicyLabel  string        `env:"RATE_POLICY_LABEL" envDefault:"account-policy"`
	Rules        string        `env:"RATE_RULES" envDefault:"Account"`
	KeyHeader    string        `env:"RATE_KEY_HEADER"` // vazio = Authorization: Bearer
	Shards       int           `env:"RATE_SHARDS" envDefault:"64"`
	MaxKeys      int           `env:"RATE_MAX_KEYS" envDefault:"100000"`
	JanitorEvery time.Duration `env:"RATE_JANITOR_EVERY" envDefault:"1m"`
	PolicyFile   string        `env:"POLICY_FILE"`
}

type IngressConfig struct {
	RPS   float64 `env:"INGRESS_RPS" envDefault:"0"`
	Burst int     `env:"INGRESS_BURST" envDefault:"0"`
}

type ConcurrencyConfig struct {
	Max     int           `env:"CONCURRENCY_MAX" envDefault:"100"`
	Timeout time.Duration `env:"CONCURRENCY_TIMEOUT" envDefault:"0s"`
}

// StatsConfig liga as estatísticas de decisão. Sem RATE_STATS_REDIS_ADDR, os
// contadores ficam em memória e são servidos em RATE_STATS_PATH.
type StatsConfig struct {
	Enabled       bool          `env:"RATE_STATS_ENABLED" envDefault:"false"`
	Path          string        `env:"RATE_STATS_PATH" envDefault:"/stats"`
	RedisAddr     string        `env:"RATE_STATS_REDIS_ADDR"`
	RedisPassword string        `env:"RATE_STATS_REDIS_PASSWORD"`
	RedisDB       int           `env:"RATE_STATS_REDIS_DB" envDefault:"0"`
	Prefix        string        `env:"RATE_STATS_PREFIX" envDefault:"ratelimit:stats"`
	TTL           time.Duration `env:"RATE_STATS_TTL" envDefault:"24h"`
	Bucket        string        `env:"RATE_STATS_BUCKET" envDefault:"minute"`
	TrackKeys     bool          `env:"RATE_STATS_TRACK_KEYS" envDefault:"false"`
	MaxThrottled  int           `env:"RATE_STATS_MAX_THROTTLED" envDefault:"1000"`
}

// InMemory informa se as estatísticas ficam no processo (sem Redis).
func (c StatsConfig) InMemory() bool {
	return strings.TrimSpace(c.RedisAddr) == ""
}

type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"METRICS_PATH" envDefault:"/metrics"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load lê .env (se existir) e depois o ambiente do processo.
func Load() (Config, error) {
	// .env é opcional; variáveis já definidas no ambiente têm precedência
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, cfg.Validate()
}

// FromMap faz o mesmo que Load, mas lendo apenas do mapa informado.
func FromMap(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Rate.Shards <= 0 {
		errs = append(errs, errors.New("RATE_SHARDS must be > 0"))
	}
	if c.Rate.MaxKeys < 0 {
		errs = append(errs, errors.New("RATE_MAX_KEYS must be >= 0"))
	}
	if c.Ingress.RPS < 0 {
		errs = append(errs, errors.New("INGRESS_RPS must be >= 0"))
	}
	if c.Ingress.RPS > 0 && c.Ingress.Burst <= 0 {
		errs = append(errs, errors.New("INGRESS_BURST must be > 0 when INGRESS_RPS is set"))
	}
	if c.Concurrency.Max < 0 {
		errs = append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	if c.Stats.Enabled && c.Stats.InMemory() && !strings.HasPrefix(c.Stats.Path, "/") {
		errs = append(errs, errors.New("RATE_STATS_PATH must start with /"))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, errors.New("METRICS_PATH must start with /"))
	}
	if c.ProcessingDelay < 0 {
		errs = append(errs, errors.New("PROCESSING_DELAY must be >= 0"))
	}
	if c.Rate.Enabled {
		if _, err := c.Policy(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Upstream valida e devolve UPSTREAM_URL (obrigatória no modo proxy).
func (c Config) Upstream() (*url.URL, error) {
	if c.UpstreamURL == "" {
		return nil, fmt.Errorf("%w: UPSTREAM_URL is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.UpstreamURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid UPSTREAM_URL %q", ErrInvalidConfig, c.UpstreamURL)
	}
	return u, nil
}

// Policy monta a política efetiva. Com POLICY_FILE, o arquivo substitui os
// valores RATE_* que ele definir.
func (c Config) Policy() (domain.Policy, error) {
	p := domain.Policy{
		Name:                 c.Rate.PolicyLabel,
		Rules:                c.Rate.Rules,
		Tiers:                c.Rate.Tiers,
		MaxRequestsPerSecond: c.Rate.MaxRPS,
		Retention:            c.Rate.Retention,
	}
	if c.Rate.PolicyFile != "" {
		var err error
		if p, err = LoadPolicyFile(c.Rate.PolicyFile, p); err != nil {
			return domain.Policy{}, err
		}
	}
	if err := p.Validate(); err != nil {
		return domain.Policy{}, err
	}
	return p, nil
}

// LoadPolicyFile lê uma política YAML por cima de base.
//
//	name: account-policy
//	max_requests_per_second: 1000
//	retention: 10m
//	tiers:
//	  - {window: 10s, max_hits: 5, timeout: 60s}
//	  - {window: 30s, max_hits: 10, timeout: 5m}
func LoadPolicyFile(path string, base domain.Policy) (domain.Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	p := base
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return domain.Policy{}, fmt.Errorf("%w: parse policy file %s: %w", domain.ErrInvalidPolicy, path, err)
	}
	return p, nil
}
