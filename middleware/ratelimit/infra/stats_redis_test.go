package infra

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"account-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commandRecorder captura os comandos sem tocar a rede.
type commandRecorder struct {
	mu   sync.Mutex
	cmds []string
}

func (h *commandRecorder) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *commandRecorder) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		h.add(cmd)
		return nil
	}
}

func (h *commandRecorder) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(_ context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			h.add(cmd)
		}
		return nil
	}
}

func (h *commandRecorder) add(cmd redis.Cmder) {
	parts := make([]string, len(cmd.Args()))
	for i, a := range cmd.Args() {
		parts[i] = fmt.Sprint(a)
	}
	h.mu.Lock()
	h.cmds = append(h.cmds, strings.Join(parts, " "))
	h.mu.Unlock()
}

func (h *commandRecorder) keys() map[string]bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := map[string]bool{}
	for _, c := range h.cmds {
		if f := strings.Fields(c); len(f) > 1 {
			out[f[1]] = true
		}
	}
	return out
}

func newRecordedRedis(t *testing.T) (*redis.Client, *commandRecorder) {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	rec := &commandRecorder{}
	rdb.AddHook(rec)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, rec
}

func routed(ev domain.StatsEvent, route string) domain.StatsEvent {
	ev.Route = route
	return ev
}

func TestRedisStatsStore_KeysAreBoundedByRoute(t *testing.T) {
	rdb, rec := newRecordedRedis(t)
	s := NewRedisStatsStore(rdb, WithStatsPrefix("rl"))
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		ep := fmt.Sprintf("/random-%d", i)
		require.NoError(t, s.Record(ctx, routed(event("tok", ep, true, domain.ReasonNone), "/{endpoint}")))
	}

	keys := rec.keys()
	assert.True(t, keys["rl:route:/{endpoint}"])
	for k := range keys {
		assert.NotContains(t, k, "/random-", "client path leaked into key %s", k)
	}
	assert.LessOrEqual(t, len(keys), 3)
}

func TestRedisStatsStore_RouteHashExpires(t *testing.T) {
	rdb, rec := newRecordedRedis(t)
	s := NewRedisStatsStore(rdb, WithStatsPrefix("rl"), WithStatsBucket("none"))

	require.NoError(t, s.Record(context.Background(), event("tok", "/x", true, domain.ReasonNone)))

	assert.Equal(t, []string{
		"hincrby rl:total allowed 1",
		"hincrby rl:route:unmatched allowed 1",
		"expire rl:route:unmatched 86400",
	}, rec.cmds)
}

func TestRedisStatsStore_ThrottledSetIsTrimmed(t *testing.T) {
	rdb, rec := newRecordedRedis(t)
	s := NewRedisStatsStore(rdb, WithStatsPrefix("rl"), WithStatsBucket("none"), WithStatsMaxThrottled(50))

	require.NoError(t, s.Record(context.Background(), routed(event("tok", "/x", false, domain.ReasonThrottledByTier), "/*")))

	fp := Fingerprint("tok")
	assert.Contains(t, rec.cmds, "zincrby rl:throttled 1 "+fp)
	assert.Contains(t, rec.cmds, "zremrangebyrank rl:throttled 0 -51")
}
