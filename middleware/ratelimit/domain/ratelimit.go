package domain

// Camada de domínio do rate limit por conta.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPolicyName           = "account-policy"
	DefaultRules                = "Account"
	DefaultMaxRequestsPerSecond = 1000
	DefaultRetention            = 10 * time.Minute
)

// Key identifica um sujeito de rate limit: a credencial (opaca) e o endpoint.
type Key struct {
	Credential string
	Endpoint   string
}

// String retorna a forma canônica da chave, usada para hashing e logs.
// O separador NUL não aparece em headers HTTP nem em paths.
func (k Key) String() string {
	return k.Credential + "\x00" + k.Endpoint
}

// Tier é uma regra de janela deslizante: MaxHits requisições dentro de Window
// disparam uma penalidade de duração Timeout.
type Tier struct {
	Window  time.Duration `yaml:"window"`
	MaxHits int           `yaml:"max_hits"`
	Timeout time.Duration `yaml:"timeout"`
}

func (t Tier) Validate() error {
	if t.Window < time.Second || t.Window%time.Second != 0 {
		return fmt.Errorf("%w: window must be a whole number of seconds >= 1s, got %s", ErrInvalidTier, t.Window)
	}
	if t.MaxHits <= 0 {
		return fmt.Errorf("%w: max hits must be > 0, got %d", ErrInvalidTier, t.MaxHits)
	}
	if t.Timeout < time.Second || t.Timeout%time.Second != 0 {
		return fmt.Errorf("%w: timeout must be a whole number of seconds >= 1s, got %s", ErrInvalidTier, t.Timeout)
	}
	return nil
}

// String usa o mesmo formato do header X-Rate-Limit-Account: maxHits:window:timeout.
func (t Tier) String() string {
	return strconv.Itoa(t.MaxHits) + ":" + seconds(t.Window) + ":" + seconds(t.Timeout)
}

// Tiers é a lista ordenada de tiers de uma política.
//
// Implementa encoding.TextUnmarshaler para ser lida direto de variáveis de
// ambiente, no formato "5:10:60,10:30:300" (segundos).
type Tiers []Tier

func (ts Tiers) String() string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}

func (ts Tiers) MarshalText() ([]byte, error) {
	return []byte(ts.String()), nil
}

func (ts *Tiers) UnmarshalText(text []byte) error {
	parsed, err := ParseTiers(string(text))
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

// ParseTiers lê tiers no formato maxHits:window:timeout separados por vírgula.
// Window e timeout aceitam segundos inteiros ("10") ou durações Go ("10s", "5m").
func ParseTiers(s string) (Tiers, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty tier list", ErrInvalidTier)
	}

	var out Tiers
	for _, raw := range strings.Split(s, ",") {
		fields := strings.Split(strings.TrimSpace(raw), ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: %q is not maxHits:window:timeout", ErrInvalidTier, raw)
		}
		hits, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("%w: max hits %q: %v", ErrInvalidTier, fields[0], err)
		}
		window, err := parseSeconds(fields[1])
		if err != nil {
			return nil, err
		}
		timeout, err := parseSeconds(fields[2])
		if err != nil {
			return nil, err
		}
		t := Tier{Window: window, MaxHits: hits, Timeout: timeout}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func parseSeconds(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: duration %q: %v", ErrInvalidTier, v, err)
	}
	return d, nil
}

func seconds(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10)
}

func DefaultTiers() Tiers {
	return Tiers{
		{Window: 10 * time.Second, MaxHits: 5, Timeout: 60 * time.Second},
		{Window: 30 * time.Second, MaxHits: 10, Timeout: 300 * time.Second},
	}
}

// Policy é a configuração estática (imutável após o startup) aplicada a todas
// as chaves.
type Policy struct {
	// Name vai no header X-Rate-Limit-Policy.
	Name string `yaml:"name"`
	// Rules vai no header X-Rate-Limit-Rules.
	Rules string `yaml:"rules"`
	Tiers Tiers  `yaml:"tiers"`
	// MaxRequestsPerSecond é o teto por chave, checado depois dos tiers.
	MaxRequestsPerSecond int `yaml:"max_requests_per_second"`
	// Retention é o horizonte do histórico; entradas mais antigas são descartadas.
	Retention time.Duration `yaml:"retention"`
}

func DefaultPolicy() Policy {
	return Policy{
		Name:                 DefaultPolicyName,
		Rules:                DefaultRules,
		Tiers:                DefaultTiers(),
		MaxRequestsPerSecond: DefaultMaxRequestsPerSecond,
		Retention:            DefaultRetention,
	}
}

func (p Policy) Validate() error {
	if len(p.Tiers) == 0 {
		return fmt.Errorf("%w: at least one tier is required", ErrInvalidPolicy)
	}
	if p.MaxRequestsPerSecond <= 0 {
		return fmt.Errorf("%w: max requests per second must be > 0, got %d", ErrInvalidPolicy, p.MaxRequestsPerSecond)
	}
	if p.Retention <= 0 {
		return fmt.Errorf("%w: retention must be > 0, got %s", ErrInvalidPolicy, p.Retention)
	}
	for i, t := range p.Tiers {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%w: tier %d: %w", ErrInvalidPolicy, i, err)
		}
		// uma janela maior que a retenção contaria um histórico truncado
		if t.Window > p.Retention {
			return fmt.Errorf("%w: tier %d window %s exceeds retention %s", ErrInvalidPolicy, i, t.Window, p.Retention)
		}
	}
	return nil
}

// Reason explica uma negação.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonThrottledByTier
	ReasonGlobalRateExceeded
)

func (r Reason) String() string {
	switch r {
	case ReasonThrottledByTier:
		return "throttled_by_tier"
	case ReasonGlobalRateExceeded:
		return "global_rate_exceeded"
	default:
		return "none"
	}
}

// Headers são os valores (não a codificação HTTP) devolvidos em toda decisão.
type Headers struct {
	Policy       string // X-Rate-Limit-Policy
	Rules        string // X-Rate-Limit-Rules
	Account      string // X-Rate-Limit-Account
	AccountState string // X-Rate-Limit-Account-State
	// RetryAfter em segundos. Se 0, o header Retry-After não é emitido.
	RetryAfter int
}

// TierState é a leitura de um tier em uma avaliação.
type TierState struct {
	Hits       int
	RetryAfter int
}

// AdmissionResult é a decisão do engine. Toda entrada produz um resultado.
type AdmissionResult struct {
	Admitted bool
	Reason   Reason
	Headers  Headers
	Tiers    []TierState
}

// Limiter representa algo que pode decidir se uma ação é permitida agora.
// Usado pelo guard de ingresso (token bucket global do processo).
type Limiter interface {
	Allow() bool
}

// SlotPool representa um recurso com capacidade finita (ex: conexões concorrentes).
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar e devolve uma
// função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
