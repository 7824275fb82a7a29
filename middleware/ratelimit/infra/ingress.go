package infra

import (
	"time"

	"golang.org/x/time/rate"
)

// IngressLimiter é um token bucket único para o processo inteiro (x/time/rate).
//
// Ele protege o gateway antes de qualquer avaliação por chave; não substitui
// o limite por conta.
type IngressLimiter struct {
	lim *rate.Limiter
	now func() time.Time
}

func NewIngressLimiter(rps float64, burst int) *IngressLimiter {
	return &IngressLimiter{
		lim: rate.NewLimiter(rate.Limit(rps), burst),
		now: time.Now,
	}
}

// Allow implementa domain.Limiter.
func (l *IngressLimiter) Allow() bool {
	return l.lim.AllowN(l.now(), 1)
}

// RetryAfter estima quanto falta para o próximo token ficar disponível.
func (l *IngressLimiter) RetryAfter() time.Duration {
	now := l.now()
	r := l.lim.ReserveN(now, 1)
	if !r.OK() {
		return 0
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return d
}

func (l *IngressLimiter) RPS() float64 { return float64(l.lim.Limit()) }
func (l *IngressLimiter) Burst() int   { return l.lim.Burst() }
