package infra

import (
	"sync"
	"time"

	"account-gateway/middleware/ratelimit/domain"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// Store guarda o estado por chave (credencial + endpoint) em uma tabela
// particionada: cada shard tem seu próprio mutex, então chaves em shards
// diferentes não disputam lock.
//
// Chaves são criadas sob demanda e removidas pelo janitor (inativas há mais
// de idleTTL e sem penalidade ativa) ou por despejo quando o shard enche.
// Uma chave penalizada nunca é removida antes da expiração.
type Store struct {
	shards       []*shard
	maxPerShard  int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
	logger       *zap.Logger

	stop      chan struct{}
	closeOnce sync.Once
}

type shard struct {
	mu      sync.Mutex
	entries map[domain.Key]*domain.KeyState
}

type storeConfig struct {
	shards  int
	maxKeys int
}

type StoreOption func(*Store, *storeConfig)

// WithShards define o número de partições da tabela de locks.
func WithShards(n int) StoreOption {
	return func(_ *Store, c *storeConfig) {
		if n > 0 {
			c.shards = n
		}
	}
}

// WithMaxKeys limita o total de chaves (0 = sem limite).
// O limite é dividido igualmente entre os shards.
func WithMaxKeys(n int) StoreOption {
	return func(_ *Store, c *storeConfig) { c.maxKeys = n }
}

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store, _ *storeConfig) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store, _ *storeConfig) { s.cleanupEvery = d }
}

// WithClock troca a fonte de tempo usada pelo Cleanup (testes).
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store, _ *storeConfig) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store, _ *storeConfig) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		idleTTL:      domain.DefaultRetention,
		cleanupEvery: time.Minute,
		now:          time.Now,
		logger:       zap.NewNop(),
		stop:         make(chan struct{}),
	}
	cfg := storeConfig{shards: 64, maxKeys: 100_000}
	for _, opt := range opts {
		opt(s, &cfg)
	}

	if cfg.maxKeys > 0 {
		s.maxPerShard = (cfg.maxKeys + cfg.shards - 1) / cfg.shards
	}
	s.shards = make([]*shard, cfg.shards)
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[domain.Key]*domain.KeyState)}
	}
	return s
}

func (s *Store) Shards() int                 { return len(s.shards) }
func (s *Store) CleanupEvery() time.Duration { return s.cleanupEvery }

func (s *Store) shardFor(key domain.Key) *shard {
	return s.shards[xxhash.Sum64String(key.String())%uint64(len(s.shards))]
}

// Do implementa domain.StateStore. fn roda com o lock do shard da chave.
func (s *Store) Do(key domain.Key, now time.Time, fn func(*domain.KeyState)) {
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.entries[key]
	if !ok {
		if s.maxPerShard > 0 && len(sh.entries) >= s.maxPerShard && !s.evictLocked(sh, now) {
			s.logger.Warn("rate limit shard over capacity, all keys penalized",
				zap.Int("keys", len(sh.entries)),
				zap.Int("max_per_shard", s.maxPerShard),
			)
		}
		st = &domain.KeyState{History: newHistory()}
		sh.entries[key] = st
	}
	if now.After(st.LastSeen) {
		st.LastSeen = now
	}
	fn(st)
}

// evictLocked remove a chave não penalizada vista há mais tempo. Chaves com
// penalidade ativa nunca são removidas: se todas estiverem penalizadas, o
// shard passa do limite e evictLocked devolve false. O chamador deve ter o
// lock do shard.
func (s *Store) evictLocked(sh *shard, now time.Time) bool {
	var (
		victim   domain.Key
		victimAt time.Time
		found    bool
	)
	for k, st := range sh.entries {
		if st.Penalized(now) {
			continue
		}
		if !found || st.LastSeen.Before(victimAt) {
			victim, victimAt, found = k, st.LastSeen, true
		}
	}
	if !found {
		return false
	}
	delete(sh.entries, victim)
	s.logger.Debug("rate limit key evicted",
		zap.String("endpoint", victim.Endpoint),
		zap.Time("last_seen", victimAt),
	)
	return true
}

// Sweep remove chaves inativas há mais de idleTTL que não estão penalizadas.
// Retorna quantas foram removidas.
func (s *Store) Sweep(now time.Time) int {
	cutoff := now.Add(-s.idleTTL)
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, st := range sh.entries {
			if st.LastSeen.Before(cutoff) && !st.Penalized(now) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

func (s *Store) Cleanup() {
	if n := s.Sweep(s.now()); n > 0 {
		s.logger.Debug("rate limit janitor sweep", zap.Int("removed", n))
	}
}

// Len retorna o total de chaves rastreadas.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto ou chamando Close.
func (s *Store) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// Close para o janitor. Pode ser chamado mais de uma vez.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.stop) })
	return nil
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
type DoneContext interface {
	Done() <-chan struct{}
}
