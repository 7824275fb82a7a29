package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"account-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore agrega decisões em hashes do Redis:
//
//	<prefix>:total                  allowed | denied:<reason>
//	<prefix>:minute:<yyyymmddhhmm>  idem, com TTL
//	<prefix>:route:<pattern>        idem, com TTL
//	<prefix>:credential:<hash>      idem, com TTL (só com trackKeys)
//	<prefix>:throttled              zset de credenciais (hash) por negações,
//	                                cortado em maxThrottled membros
//
// A credencial nunca é gravada em claro, apenas o Fingerprint. O path do
// cliente não vira chave: agregação por rota usa o padrão roteado.
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix       string
	ttl          time.Duration
	bucket       string // "minute" (padrão) ou "none"
	trackKeys    bool
	maxThrottled int64
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

// WithStatsTTL vale para os buckets por minuto, por rota e por credencial;
// total é cumulativo.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

// WithStatsMaxThrottled limita o zset de credenciais negadas às n maiores.
func WithStatsMaxThrottled(n int) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if n > 0 {
			s.maxThrottled = int64(n)
		}
	}
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:          rdb,
		prefix:       "ratelimit:stats",
		ttl:          24 * time.Hour,
		bucket:       "minute",
		maxThrottled: 1000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func statsField(ev domain.StatsEvent) string {
	if ev.Allowed {
		return "allowed"
	}
	return "denied:" + ev.Reason.String()
}

func (s *RedisStatsStore) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

func (s *RedisStatsStore) bucketKey(at time.Time) string {
	return s.key("minute", at.UTC().Format("200601021504"))
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := statsField(ev)
	fp := ""
	if cred := strings.TrimSpace(ev.Key.Credential); cred != "" {
		fp = Fingerprint(cred)
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.key("total"), field, 1)

	if s.bucket == "minute" {
		k := s.bucketKey(at)
		pipe.HIncrBy(ctx, k, field, 1)
		s.expire(ctx, pipe, k)
	}
	routeKey := s.key("route", ev.RouteLabel())
	pipe.HIncrBy(ctx, routeKey, field, 1)
	s.expire(ctx, pipe, routeKey)

	if s.trackKeys && fp != "" {
		k := s.key("credential", fp)
		pipe.HIncrBy(ctx, k, field, 1)
		s.expire(ctx, pipe, k)
	}
	if !ev.Allowed && fp != "" {
		k := s.key("throttled")
		pipe.ZIncrBy(ctx, k, 1, fp)
		// mantém só os maxThrottled com mais negações
		pipe.ZRemRangeByRank(ctx, k, 0, -(s.maxThrottled + 1))
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatsStore) expire(ctx context.Context, pipe redis.Pipeliner, key string) {
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

// Summary lê os contadores cumulativos: allowed e negações por motivo.
type Summary struct {
	Allowed int64
	Denied  map[string]int64
}

func (s *RedisStatsStore) Summary(ctx context.Context) (Summary, error) {
	raw, err := s.rdb.HGetAll(ctx, s.key("total")).Result()
	if err != nil {
		return Summary{}, fmt.Errorf("read stats total: %w", err)
	}
	return parseSummary(raw)
}

func parseSummary(raw map[string]string) (Summary, error) {
	out := Summary{Denied: make(map[string]int64)}
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Summary{}, fmt.Errorf("stats field %s: %w", field, err)
		}
		if field == "allowed" {
			out.Allowed = n
			continue
		}
		if reason, ok := strings.CutPrefix(field, "denied:"); ok {
			out.Denied[reason] += n
		}
	}
	return out, nil
}

// Offender é uma credencial (fingerprint) e quantas vezes foi negada.
type Offender struct {
	Fingerprint string
	Denied      int64
}

// TopThrottled devolve as n credenciais mais negadas, da maior para a menor.
func (s *RedisStatsStore) TopThrottled(ctx context.Context, n int) ([]Offender, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, s.key("throttled"), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read throttled credentials: %w", err)
	}
	out := make([]Offender, 0, len(zs))
	for _, z := range zs {
		fp, _ := z.Member.(string)
		out = append(out, Offender{Fingerprint: fp, Denied: int64(z.Score)})
	}
	return out, nil
}
