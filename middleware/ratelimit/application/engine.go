package application

import (
	"errors"
	"io"
	"slices"
	"time"

	"account-gateway/middleware/ratelimit/domain"
)

var ErrNoStore = errors.New("rate limit engine requires a state store")

// Engine é o motor de decisão do rate limit por conta.
//
// Ele não sabe nada sobre HTTP: recebe (chave, instante) e devolve um
// domain.AdmissionResult com a decisão e os valores de header.
type Engine struct {
	store   domain.StateStore
	policy  domain.Policy
	account string
}

func NewEngine(store domain.StateStore, policy domain.Policy) (*Engine, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	policy.Tiers = slices.Clone(policy.Tiers)
	return &Engine{
		store:   store,
		policy:  policy,
		account: PolicyString(policy.Tiers),
	}, nil
}

// Policy retorna uma cópia da política efetiva.
func (e *Engine) Policy() domain.Policy {
	p := e.policy
	p.Tiers = slices.Clone(p.Tiers)
	return p
}

// Close libera o store quando ele tem ciclo de vida próprio (ex: janitor).
func (e *Engine) Close() error {
	if c, ok := e.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Evaluate decide se o request da chave é admitido em now.
//
// A avaliação inteira roda sob o lock da chave; não é cancelável e a única
// mutação (append no histórico) é atômica.
func (e *Engine) Evaluate(key domain.Key, now time.Time) domain.AdmissionResult {
	var res domain.AdmissionResult
	e.store.Do(key, now, func(st *domain.KeyState) {
		res = e.evaluate(st, now)
	})
	return res
}

func (e *Engine) evaluate(st *domain.KeyState, now time.Time) domain.AdmissionResult {
	tiers := e.policy.Tiers
	if len(st.Timeouts) != len(tiers) {
		st.Timeouts = make([]time.Time, len(tiers))
	}

	st.History.Prune(now.Add(-e.policy.Retention))

	states := make([]domain.TierState, len(tiers))
	for i, t := range tiers {
		states[i].Hits = st.History.CountAfter(now.Add(-t.Window))
	}

	// Penalidade aberta não é re-armada: só ativa quando nenhum tier tem timeout.
	if !hasTimeout(st.Timeouts) {
		for i, t := range tiers {
			if states[i].Hits >= t.MaxHits {
				st.Timeouts[i] = now.Add(t.Timeout)
			}
		}
	}

	retryAfter := 0
	for i, exp := range st.Timeouts {
		if exp.IsZero() {
			continue
		}
		if now.After(exp) {
			st.Timeouts[i] = time.Time{}
			continue
		}
		states[i].RetryAfter = ceilSeconds(exp.Sub(now))
		retryAfter = max(retryAfter, states[i].RetryAfter)
	}

	res := domain.AdmissionResult{
		Headers: domain.Headers{
			Policy:       e.policy.Name,
			Rules:        e.policy.Rules,
			Account:      e.account,
			AccountState: StateString(tiers, states),
			RetryAfter:   retryAfter,
		},
		Tiers: states,
	}

	if retryAfter > 0 {
		res.Reason = domain.ReasonThrottledByTier
		return res
	}
	if st.History.CountAfter(now.Add(-time.Second)) >= e.policy.MaxRequestsPerSecond {
		res.Reason = domain.ReasonGlobalRateExceeded
		return res
	}

	st.History.Append(now)
	res.Admitted = true
	return res
}

func hasTimeout(timeouts []time.Time) bool {
	for _, t := range timeouts {
		if !t.IsZero() {
			return true
		}
	}
	return false
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
