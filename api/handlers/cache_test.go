package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/text2sqlctx/api"
	"github.com/BaSui01/text2sqlctx/cache"
	"github.com/BaSui01/text2sqlctx/types"
)

// envelope 按具体类型解码 Response.Data
type envelope[T any] struct {
	Success bool       `json:"success"`
	Data    T          `json:"data"`
	Error   *ErrorInfo `json:"error"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	return env
}

type recordingObserver struct {
	calls int
	last  map[string]cache.Stats
}

func (o *recordingObserver) ObserveCacheStats(stats map[string]cache.Stats) {
	o.calls++
	o.last = stats
}

func newCacheMux(t *testing.T) (*http.ServeMux, *cache.Bootstrap, *recordingObserver) {
	t.Helper()
	boot := cache.NewBootstrap(nil, nil)
	require.NoError(t, boot.Initialize(nil))
	obs := &recordingObserver{}

	mux := http.NewServeMux()
	NewCacheHandler(boot, obs, nil).Register(mux)
	return mux, boot, obs
}

func serve(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func TestCacheHandler_Stats(t *testing.T) {
	mux, boot, obs := newCacheMux(t)
	sql := boot.Cache(cache.SQLCacheName)
	sql.Set("k", "SELECT 1")
	sql.Get("k")
	sql.Get("missing")

	w := serve(mux, http.MethodGet, "/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	env := decode[map[string]cache.Stats](t, w)
	assert.True(t, env.Success)
	require.Contains(t, env.Data, cache.SQLCacheName)
	st := env.Data[cache.SQLCacheName]
	assert.Equal(t, uint64(1), st.HitCount)
	assert.Equal(t, uint64(1), st.MissCount)
	assert.Equal(t, 50.0, st.HitRate)
	require.NotNil(t, st.BackendStats)
	assert.Equal(t, 1, st.CurrentSize)
	assert.Len(t, env.Data, 4)

	assert.Equal(t, 1, obs.calls)
	assert.Len(t, obs.last, 4)
}

func TestCacheHandler_Summary(t *testing.T) {
	mux, boot, _ := newCacheMux(t)
	boot.Cache(cache.SchemaCacheName).Set("orders", "CREATE TABLE orders(...)")

	w := serve(mux, http.MethodGet, "/v1/cache/summary", "")
	require.Equal(t, http.StatusOK, w.Code)

	env := decode[cache.Summary](t, w)
	assert.True(t, env.Data.Initialized)
	assert.Equal(t, 4, env.Data.TotalCaches)
	assert.Equal(t, 1, env.Data.TotalCachedItems)
	assert.NotEmpty(t, env.Data.MemoryEstimate)
}

func TestCacheHandler_Clear(t *testing.T) {
	mux, boot, _ := newCacheMux(t)
	boot.Cache(cache.SQLCacheName).Set("a", 1)
	boot.Cache(cache.PromptCacheName).Set("b", 2)

	w := serve(mux, http.MethodPost, "/v1/cache/clear?name="+cache.SQLCacheName, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{cache.SQLCacheName}, decode[api.ClearResponse](t, w).Data.Cleared)
	_, ok := boot.Cache(cache.SQLCacheName).Get("a")
	assert.False(t, ok)
	_, ok = boot.Cache(cache.PromptCacheName).Get("b")
	assert.True(t, ok)

	w = serve(mux, http.MethodPost, "/v1/cache/clear?name=nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, boot.Registry().Names(), "nope", "unknown names are not created")

	w = serve(mux, http.MethodPost, "/v1/cache/clear", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[api.ClearResponse](t, w).Data.Cleared, 4)
	_, ok = boot.Cache(cache.PromptCacheName).Get("b")
	assert.False(t, ok)
}

func TestCacheHandler_ResetStats(t *testing.T) {
	mux, boot, _ := newCacheMux(t)
	boot.Cache(cache.SQLCacheName).Get("x")

	w := serve(mux, http.MethodPost, "/v1/cache/reset-stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, boot.Cache(cache.SQLCacheName).Stats().TotalRequests)
}

func TestCacheHandler_UpdateProfile(t *testing.T) {
	mux, boot, _ := newCacheMux(t)
	boot.Cache(cache.SQLCacheName).Set("old", 1)

	w := serve(mux, http.MethodPut, "/v1/cache/profiles/"+cache.SQLCacheName,
		`{"type":"ttl","max_size":5,"default_ttl_seconds":600}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[api.ProfileResponse](t, w).Data
	assert.Equal(t, api.ProfileResponse{Name: cache.SQLCacheName, Type: "ttl", MaxSize: 5, DefaultTTLSeconds: 600}, resp)

	st := boot.Cache(cache.SQLCacheName).Stats()
	assert.Equal(t, cache.BackendTypeTTLMemory, st.BackendType)
	assert.Equal(t, 5, st.MaxSize)
	assert.Equal(t, 10*time.Minute, st.DefaultTTL)
	_, ok := boot.Cache(cache.SQLCacheName).Get("old")
	assert.False(t, ok, "replacing the backend drops existing entries")
}

func TestCacheHandler_UpdateProfileErrors(t *testing.T) {
	mux, _, _ := newCacheMux(t)

	tests := []struct {
		name       string
		body       string
		ctype      string
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{name: "invalid size", body: `{"type":"lru","max_size":0}`, ctype: "application/json", wantStatus: http.StatusUnprocessableEntity, wantCode: types.ErrInvalidProfile},
		{name: "unknown field", body: `{"type":"lru","max_size":1,"ttl":"1h"}`, ctype: "application/json", wantStatus: http.StatusBadRequest, wantCode: types.ErrInvalidRequest},
		{name: "wrong content type", body: `{}`, ctype: "text/plain", wantStatus: http.StatusBadRequest, wantCode: types.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPut, "/v1/cache/profiles/sql_cache", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", tt.ctype)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			env := decode[any](t, w)
			require.NotNil(t, env.Error)
			assert.Equal(t, string(tt.wantCode), env.Error.Code)
		})
	}
}

func TestCacheHandler_MethodNotAllowed(t *testing.T) {
	mux, _, _ := newCacheMux(t)
	w := serve(mux, http.MethodDelete, "/v1/cache/stats", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
