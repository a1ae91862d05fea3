package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/anonto42/reelshelf/backend/internal/apperrors"
	"github.com/anonto42/reelshelf/backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *memoryCache) Put(_ context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = body
	return nil
}

func newTestClient(t *testing.T, h http.HandlerFunc, cache *memoryCache) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts := Options{BaseURL: srv.URL + "/3", APIKey: "secret-key", RateLimit: 1000}
	if cache == nil {
		return NewClient(opts, nil, logger.Nop())
	}
	return NewClient(opts, cache, logger.Nop())
}

func TestFetch_ForwardsParamsAndAddsKey(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"page":2}`))
	}, nil)

	body, err := c.Fetch(context.Background(), "movie/popular", url.Values{
		"endpoint": {"movie/popular"},
		"page":     {"2"},
		"api_key":  {"caller-supplied"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"page":2}`, string(body))

	require.NotNil(t, got)
	assert.Equal(t, "/3/movie/popular", got.URL.Path)
	assert.Equal(t, "2", got.URL.Query().Get("page"))
	assert.Equal(t, "secret-key", got.URL.Query().Get("api_key"))
	assert.Empty(t, got.URL.Query().Get("endpoint"))
}

func TestFetch_DropsCallerCredentials(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(`{}`))
	}, nil)

	_, err := c.Fetch(context.Background(), "movie/603", url.Values{
		"access_token": {"user-session-token"},
		"Access_Token": {"user-session-token"},
		"language":     {"en-US"},
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotContains(t, got.URL.RawQuery, "user-session-token")
	assert.Equal(t, "en-US", got.URL.Query().Get("language"))

	assert.Equal(t, cacheKey("movie/603", url.Values{"language": {"en-US"}}),
		cacheKey("movie/603", url.Values{"language": {"en-US"}, "access_token": {"t"}}))
}

func TestFetch_MapsUpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, http.StatusTooManyRequests, "Rate limit exceeded, please try again later"},
		{"not found", http.StatusNotFound, `{"status_message":"missing"}`, http.StatusNotFound, `API error: 404 - {"status_message":"missing"}`},
		{"server error", http.StatusBadGateway, `oops`, http.StatusBadGateway, "API error: 502 - oops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, nil)

			_, err := c.Fetch(context.Background(), "movie/1", nil)
			require.Error(t, err)
			status, msg := apperrors.StatusAndMessage(err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestFetch_RejectsEscapingEndpoints(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) }, nil)

	for _, ep := range []string{"", "../admin", "movie/../../etc", "http://evil.example/x", "//evil.example"} {
		_, err := c.Fetch(context.Background(), ep, nil)
		assert.ErrorIs(t, err, apperrors.ErrInvalidRequest, ep)
	}
	assert.Zero(t, calls.Load())
}

func TestFetch_ServesRepeatsFromCache(t *testing.T) {
	var calls atomic.Int32
	cache := &memoryCache{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"results":[]}`))
	}, cache)

	ctx := context.Background()
	_, err := c.Fetch(ctx, "search/movie", url.Values{"query": {"matrix"}, "page": {"1"}})
	require.NoError(t, err)
	body, err := c.Fetch(ctx, "search/movie", url.Values{"page": {"1"}, "query": {"matrix"}})
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.JSONEq(t, `{"results":[]}`, string(body))
	for key := range cache.data {
		assert.NotContains(t, key, "secret-key")
	}
}

func TestFetch_ErrorsAreNotCached(t *testing.T) {
	var calls atomic.Int32
	cache := &memoryCache{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}, cache)

	_, err := c.Fetch(context.Background(), "movie/603", nil)
	require.Error(t, err)
	_, err = c.Fetch(context.Background(), "movie/603", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_BreakerOpensOnRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)

	for i := 0; i < 10; i++ {
		_, _ = c.Fetch(context.Background(), "movie/603", nil)
	}
	before := calls.Load()

	_, err := c.Fetch(context.Background(), "movie/603", nil)
	status, msg := apperrors.StatusAndMessage(err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "Catalog temporarily unavailable", msg)
	assert.Equal(t, before, calls.Load(), "open breaker does not reach the catalog")
}

func TestFetch_ClientErrorsDoNotTripBreaker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, nil)

	for i := 0; i < 15; i++ {
		_, err := c.Fetch(context.Background(), "movie/0", nil)
		status, _ := apperrors.StatusAndMessage(err)
		require.Equal(t, http.StatusNotFound, status)
	}
}

func TestRequiresAuth(t *testing.T) {
	assert.True(t, RequiresAuth("account/42/favorite/movies"))
	assert.True(t, RequiresAuth("list/8136"))
	assert.False(t, RequiresAuth("movie/popular"))
	assert.False(t, RequiresAuth("tv/1399"))
}

func TestCacheKey(t *testing.T) {
	a := cacheKey("search/movie", url.Values{"query": {"x"}, "page": {"1"}, "endpoint": {"search/movie"}})
	b := cacheKey("search/movie", url.Values{"page": {"1"}, "query": {"x"}})
	assert.Equal(t, a, b)
	assert.Equal(t, "movie/popular", cacheKey("movie/popular", nil))
}
