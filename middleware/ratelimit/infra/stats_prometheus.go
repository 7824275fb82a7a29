package infra

import (
	"context"

	"account-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "account_gateway"

// PrometheusStatsStore exporta as decisões como métricas Prometheus.
//
// O label route é o padrão da rota, nunca o path do cliente; credenciais
// também nunca viram label.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer) *PrometheusStatsStore {
	f := promauto.With(reg)
	return &PrometheusStatsStore{
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "ratelimit_decisions_total",
				Help:      "Total number of rate limit decisions by route, result and reason",
			},
			[]string{"route", "result", "reason"},
		),
	}
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	result := "allowed"
	if !ev.Allowed {
		result = "denied"
	}
	s.decisions.WithLabelValues(ev.RouteLabel(), result, ev.Reason.String()).Inc()
	return nil
}

// ObserveStore registra um gauge com o total de chaves rastreadas.
func ObserveStore(reg prometheus.Registerer, store *Store) {
	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "ratelimit_tracked_keys",
			Help:      "Number of (credential, endpoint) keys currently tracked",
		},
		func() float64 { return float64(store.Len()) },
	)
}

// ObservePool registra um gauge com as vagas de concorrência em uso.
func ObservePool(reg prometheus.Registerer, pool *ChanPool) {
	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "concurrency_slots_in_use",
			Help:      "Number of concurrency slots currently held",
		},
		func() float64 { return float64(pool.InUse()) },
	)
}
