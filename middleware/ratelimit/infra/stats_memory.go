package infra

import (
	"context"
	"maps"
	"sync"

	"account-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// MemoryStatsStore agrega decisões em memória, por rota e por motivo.
//
// Usado quando as estatísticas estão ligadas sem Redis; os contadores somem
// no restart. As chaves dos mapas têm cardinalidade fixa (rotas e motivos),
// nunca credenciais ou paths do cliente.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byRoute  map[string]Counters
	byReason map[domain.Reason]int64
}

func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{
		byRoute:  make(map[string]Counters),
		byReason: make(map[domain.Reason]int64),
	}
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bump := func(c Counters) Counters {
		if ev.Allowed {
			c.Allowed++
		} else {
			c.Denied++
		}
		return c
	}

	route := ev.RouteLabel()
	s.total = bump(s.total)
	s.byRoute[route] = bump(s.byRoute[route])
	if !ev.Allowed {
		s.byReason[ev.Reason]++
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byRoute)
}

// ByReason conta apenas negações.
func (s *MemoryStatsStore) ByReason() map[domain.Reason]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byReason)
}

// MemorySnapshot é a forma JSON do MemoryStatsStore.
type MemorySnapshot struct {
	Total    Counters            `json:"total"`
	ByRoute  map[string]Counters `json:"by_route"`
	ByReason map[string]int64    `json:"by_reason"`
}

func (s *MemoryStatsStore) Snapshot() MemorySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := MemorySnapshot{
		Total:    s.total,
		ByRoute:  maps.Clone(s.byRoute),
		ByReason: make(map[string]int64, len(s.byReason)),
	}
	for r, n := range s.byReason {
		out.ByReason[r.String()] = n
	}
	return out
}
