package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"account-gateway/internal/config"
	"account-gateway/middleware/ratelimit"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStack(t *testing.T, vars map[string]string, opts ...StackOption) (*Stack, *fakeClock) {
	t.Helper()

	cfg, err := config.FromMap(vars)
	require.NoError(t, err)

	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	stack, err := NewStack(context.Background(), cfg, nil, append([]StackOption{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stack.Close() })
	return stack, clock
}

func do(h http.Handler, path, token string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "http://gateway"+path, nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestAPIRouter_TierScenario(t *testing.T) {
	stack, clock := newTestStack(t, map[string]string{})
	h := NewAPIRouter(stack, 0)

	for i := 0; i < 5; i++ {
		w := do(h, "/orders", "tok")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)

		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "Request successful", body["message"])
		clock.Advance(time.Second)
	}

	w := do(h, "/orders", "tok")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get(ratelimit.HeaderRetryAfter))
	assert.Equal(t, "5:10:60,10:30:300", w.Header().Get(ratelimit.HeaderAccount))
	assert.Equal(t, "5:10:60,5:30:0", w.Header().Get(ratelimit.HeaderAccountState))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	// outro endpoint, mesma credencial
	assert.Equal(t, http.StatusOK, do(h, "/users", "tok").Code)

	clock.Advance(61 * time.Second)
	w = do(h, "/orders", "tok")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0:10:0,0:30:0", w.Header().Get(ratelimit.HeaderAccountState))
}

func TestAPIRouter_Unauthorized(t *testing.T) {
	stack, _ := newTestStack(t, map[string]string{})
	w := do(NewAPIRouter(stack, 0), "/orders", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, w.Body.String())
}

func TestAPIRouter_HealthAndMetricsAreNotLimited(t *testing.T) {
	stack, _ := newTestStack(t, map[string]string{"RATE_TIERS": "1:10:60"})
	h := NewAPIRouter(stack, 0)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(h, "/healthz", "").Code)
	}

	do(h, "/orders", "tok")
	do(h, "/orders", "tok")

	w := do(h, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `account_gateway_ratelimit_decisions_total{reason="throttled_by_tier",result="denied",route="/{endpoint}"} 1`)
	assert.NotContains(t, body, `"/orders"`)
	assert.Contains(t, body, "account_gateway_ratelimit_tracked_keys 1")
}

func TestAPIRouter_InMemoryStatsAggregateByRoute(t *testing.T) {
	stack, _ := newTestStack(t, map[string]string{"RATE_STATS_ENABLED": "true"})
	require.NotNil(t, stack.Memory)
	h := NewAPIRouter(stack, 0)

	for i := 0; i < 20; i++ {
		do(h, fmt.Sprintf("/path-%d", i), "tok")
	}

	w := do(h, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snap struct {
		Total   map[string]int64            `json:"total"`
		ByRoute map[string]map[string]int64 `json:"by_route"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&snap))
	assert.Equal(t, int64(20), snap.Total["allowed"])
	assert.Equal(t, map[string]map[string]int64{"/{endpoint}": {"allowed": 20, "denied": 0}}, snap.ByRoute)
}

func TestAPIRouter_ProcessingDelayRespectsCancel(t *testing.T) {
	stack, _ := newTestStack(t, map[string]string{})
	h := NewAPIRouter(stack, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	r := httptest.NewRequest(http.MethodGet, "http://gateway/orders", nil).WithContext(ctx)
	r.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(w, r)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not return after cancel")
	}
}

func TestAPIRouter_StatsFailureDoesNotBlock(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	stack, _ := newTestStack(t, map[string]string{}, WithRedisClient(rdb))
	w := do(NewAPIRouter(stack, 0), "/orders", "tok")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProxyRouter_ForwardsAdmittedRequests(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "upstream "+r.URL.Path)
	}))
	defer upstream.Close()

	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	stack, _ := newTestStack(t, map[string]string{"RATE_TIERS": "2:10:60"})
	h := NewProxyRouter(stack, target)

	w := do(h, "/a/b", "tok")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "upstream /a/b", w.Body.String())

	do(h, "/a/b", "tok")
	w = do(h, "/a/b", "tok")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/json"))
}

func TestProxyRouter_UpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	upstream.Close()

	stack, _ := newTestStack(t, map[string]string{})
	w := do(NewProxyRouter(stack, target), "/x", "tok")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"Bad Gateway"}`, w.Body.String())
}

func TestRequestID_KeepsClientValue(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "http://gateway/", nil)
	r.Header.Set(RequestIDHeader, "abc")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestStack_MiddlewaresPassThroughWhenDisabled(t *testing.T) {
	stack, _ := newTestStack(t, map[string]string{
		"RATE_ENABLED":    "false",
		"CONCURRENCY_MAX": "0",
		"METRICS_ENABLED": "false",
	})
	assert.Nil(t, stack.Engine)
	assert.Nil(t, stack.Registry)

	w := do(NewAPIRouter(stack, 0), "/orders", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
