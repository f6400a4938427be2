package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/serroba/qrlinks/internal/middleware"
	"github.com/serroba/qrlinks/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const testUserAgent = "TestAgent/1.0"

// mockPolicyStore counts records per key and can be told to fail.
type mockPolicyStore struct {
	mu     sync.Mutex
	counts map[string]int64
	keys   []string
	err    error
}

func newMockPolicyStore() *mockPolicyStore {
	return &mockPolicyStore{counts: make(map[string]int64)}
}

func (m *mockPolicyStore) Record(_ context.Context, key string, _ time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts[key]++
	m.keys = append(m.keys, key)

	return m.counts[key], nil
}

type rateLimitedAPI struct {
	router *chi.Mux
	api    huma.API
}

func newRateLimitedAPI(store ratelimit.Store, policy *ratelimit.Policy) *rateLimitedAPI {
	return newKeyedRateLimitedAPI(store, policy, middleware.ForwardedClientKey)
}

func newKeyedRateLimitedAPI(store ratelimit.Store, policy *ratelimit.Policy, key middleware.ClientKeyFunc) *rateLimitedAPI {
	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("Test", "1.0.0"))
	limiter := ratelimit.NewLimiter(store, policy)
	api.UseMiddleware(middleware.RateLimiter(api, limiter, ratelimit.NewOperationScopeResolver(), key, zap.NewNop()))

	return &rateLimitedAPI{router: router, api: api}
}

func (a *rateLimitedAPI) register(method, path string, cfg *ratelimit.EndpointConfig) {
	op := huma.Operation{Method: method, Path: path}
	if cfg != nil {
		op.Metadata = map[string]any{ratelimit.MetadataKey: *cfg}
	}

	huma.Register(a.api, op, func(_ context.Context, _ *struct{}) (*struct{}, error) {
		return nil, nil
	})
}

func (a *rateLimitedAPI) do(method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("User-Agent", testUserAgent)

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	return w
}

func TestRateLimiter(t *testing.T) {
	t.Run("allows request when under limit", func(t *testing.T) {
		policy := ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeGlobal, 2, time.Minute).Build()
		a := newRateLimitedAPI(newMockPolicyStore(), policy)
		a.register(http.MethodGet, "/items", nil)

		w := a.do(http.MethodGet, "/items", nil)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("returns 429 with details when rate limited", func(t *testing.T) {
		policy := ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeRead, 1, time.Minute).Build()
		a := newRateLimitedAPI(newMockPolicyStore(), policy)
		a.register(http.MethodGet, "/items", nil)

		_ = a.do(http.MethodGet, "/items", nil)
		w := a.do(http.MethodGet, "/items", nil)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "read scope")
		assert.Equal(t, "60", w.Header().Get("Retry-After"))
	})

	t.Run("applies different limits per scope", func(t *testing.T) {
		policy := ratelimit.NewPolicyBuilder().
			AddLimit(ratelimit.ScopeRead, 3, time.Minute).
			AddLimit(ratelimit.ScopeWrite, 1, time.Minute).
			Build()
		a := newRateLimitedAPI(newMockPolicyStore(), policy)
		a.register(http.MethodGet, "/items", nil)
		a.register(http.MethodPost, "/items", nil)

		assert.Equal(t, http.StatusNoContent, a.do(http.MethodPost, "/items", nil).Code)
		assert.Equal(t, http.StatusTooManyRequests, a.do(http.MethodPost, "/items", nil).Code)
		assert.Equal(t, http.StatusNoContent, a.do(http.MethodGet, "/items", nil).Code)
	})

	t.Run("keys clients by resolved ip", func(t *testing.T) {
		policy := ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeGlobal, 1, time.Minute).Build()
		a := newRateLimitedAPI(newMockPolicyStore(), policy)
		a.register(http.MethodGet, "/items", nil)

		first := map[string]string{"CF-Connecting-IP": "203.0.113.1"}
		second := map[string]string{"CF-Connecting-IP": "203.0.113.2"}

		assert.Equal(t, http.StatusNoContent, a.do(http.MethodGet, "/items", first).Code)
		assert.Equal(t, http.StatusTooManyRequests, a.do(http.MethodGet, "/items", first).Code)
		assert.Equal(t, http.StatusNoContent, a.do(http.MethodGet, "/items", second).Code)
	})

	t.Run("same ip behind different proxies shares a key", func(t *testing.T) {
		policy := ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeGlobal, 1, time.Minute).Build()
		a := newRateLimitedAPI(newMockPolicyStore(), policy)
		a.register(http.MethodGet, "/items", nil)

		_ = a.do(http.MethodGet, "/items", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"})
		w := a.do(http.MethodGet, "/items", map[string]string{"X-Real-IP": "203.0.113.9"})

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})

	t.Run("returns 500 on store error", func(t *testing.T) {
		store := newMockPolicyStore()
		store.err = errors.New("store down")
		policy := ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeGlobal, 10, time.Minute).Build()
		a := newRateLimitedAPI(store, policy)
		a.register(http.MethodGet, "/items", nil)

		assert.Equal(t, http.StatusInternalServerError, a.do(http.MethodGet, "/items", nil).Code)
	})

	t.Run("skips rate limiting when disabled via metadata", func(t *testing.T) {
		store := newMockPolicyStore()
		policy := ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeGlobal, 1, time.Minute).Build()
		a := newRateLimitedAPI(store, policy)
		a.register(http.MethodGet, "/health", &ratelimit.EndpointConfig{Disabled: true})

		for range 3 {
			assert.Equal(t, http.StatusNoContent, a.do(http.MethodGet, "/health", nil).Code)
		}

		assert.Empty(t, store.keys)
	})

	t.Run("route limits share a budget across path values", func(t *testing.T) {
		store := newMockPolicyStore()
		policy := ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeGlobal, 100, time.Minute).Build()
		a := newRateLimitedAPI(store, policy)
		a.register(http.MethodGet, "/r/{code}", &ratelimit.EndpointConfig{
			Limits: []ratelimit.LimitConfig{{Window: time.Minute, Max: 2}},
		})

		assert.Equal(t, http.StatusNoContent, a.do(http.MethodGet, "/r/aaa", nil).Code)
		assert.Equal(t, http.StatusNoContent, a.do(http.MethodGet, "/r/bbb", nil).Code)

		w := a.do(http.MethodGet, "/r/ccc", nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "3/2 requests to /r/{code}")

		var routeKeys int

		for _, key := range store.keys {
			if strings.Contains(key, ":route:") {
				assert.Contains(t, key, ":route:/r/{code}:")

				routeKeys++
			}
		}

		assert.Equal(t, 3, routeKeys)
	})

	t.Run("route limit store error returns 500", func(t *testing.T) {
		store := newMockPolicyStore()
		store.err = errors.New("store down")
		a := newRateLimitedAPI(store, ratelimit.NewPolicyBuilder().Build())
		a.register(http.MethodGet, "/r/{code}", &ratelimit.EndpointConfig{
			Limits: []ratelimit.LimitConfig{{Window: time.Minute, Max: 2}},
		})

		assert.Equal(t, http.StatusInternalServerError, a.do(http.MethodGet, "/r/aaa", nil).Code)
	})

	t.Run("scans are limited in their own scope", func(t *testing.T) {
		policy := ratelimit.NewPolicyBuilder().
			AddLimit(ratelimit.ScopeScan, 1, time.Minute).
			AddLimit(ratelimit.ScopeRead, 10, time.Minute).
			Build()
		a := newRateLimitedAPI(newMockPolicyStore(), policy)
		a.register(http.MethodGet, "/r/{code}", &ratelimit.EndpointConfig{Scope: ratelimit.ScopeScan})
		a.register(http.MethodGet, "/api/links", nil)

		assert.Equal(t, http.StatusNoContent, a.do(http.MethodGet, "/r/aaa", nil).Code)

		w := a.do(http.MethodGet, "/r/bbb", nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "scan scope")

		assert.Equal(t, http.StatusNoContent, a.do(http.MethodGet, "/api/links", nil).Code)
	})
}

func TestRateLimiter_PeerClientKey(t *testing.T) {
	t.Run("rotating forwarding headers does not reset the budget", func(t *testing.T) {
		policy := ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeScan, 1, time.Minute).Build()
		a := newKeyedRateLimitedAPI(newMockPolicyStore(), policy, middleware.PeerClientKey)
		a.register(http.MethodGet, "/r/{code}", &ratelimit.EndpointConfig{Scope: ratelimit.ScopeScan})

		first := a.do(http.MethodGet, "/r/aaa", map[string]string{"CF-Connecting-IP": "203.0.113.1"})
		second := a.do(http.MethodGet, "/r/aaa", map[string]string{
			"CF-Connecting-IP": "203.0.113.2",
			"X-Forwarded-For":  "203.0.113.3",
		})

		assert.Equal(t, http.StatusNoContent, first.Code)
		assert.Equal(t, http.StatusTooManyRequests, second.Code)
	})

	t.Run("distinct peers keep distinct budgets", func(t *testing.T) {
		policy := ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeGlobal, 1, time.Minute).Build()
		a := newKeyedRateLimitedAPI(newMockPolicyStore(), policy, middleware.PeerClientKey)
		a.register(http.MethodGet, "/r/{code}", nil)

		fromPeer := func(addr string) int {
			req := httptest.NewRequest(http.MethodGet, "/r/aaa", nil)
			req.RemoteAddr = addr
			w := httptest.NewRecorder()
			a.router.ServeHTTP(w, req)

			return w.Code
		}

		assert.Equal(t, http.StatusNoContent, fromPeer("198.51.100.1:1000"))
		assert.Equal(t, http.StatusNoContent, fromPeer("198.51.100.2:1000"))
		assert.Equal(t, http.StatusTooManyRequests, fromPeer("198.51.100.1:2000"))
	})
}
