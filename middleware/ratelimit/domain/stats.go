package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Ele é "agnóstico de HTTP": Method/Path são strings genéricas.
//
// Key.Endpoint e Path vêm do cliente e não têm limite de cardinalidade;
// agregações (labels, hashes) devem usar RouteLabel.
type StatsEvent struct {
	Key     Key
	Allowed bool
	Reason  Reason

	// Route é o padrão da rota que atendeu o request (ex: "/{endpoint}").
	Route  string
	Method string
	Path   string

	At time.Time
}

const UnmatchedRoute = "unmatched"

// RouteLabel devolve Route ou UnmatchedRoute quando não houve rota.
func (ev StatsEvent) RouteLabel() string {
	if ev.Route == "" {
		return UnmatchedRoute
	}
	return ev.Route
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// O middleware trata erro como best-effort (não derruba o request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
