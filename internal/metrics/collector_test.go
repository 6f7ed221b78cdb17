package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/text2sqlctx/cache"
	"github.com/BaSui01/text2sqlctx/memory"
)

var (
	_ cache.MetricsRecorder  = (*Collector)(nil)
	_ memory.MetricsRecorder = (*Collector)(nil)
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("test", reg, nil), reg
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector, _ := newTestCollector(t)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.cacheHits)
	assert.NotNil(t, collector.cacheEvictions)
	assert.NotNil(t, collector.conversationsAdded)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordHTTPRequest("GET", "/v1/cache/stats", 200, 100*time.Millisecond, 0, 2048)
	collector.RecordHTTPRequest("GET", "/v1/cache/stats", 201, 50*time.Millisecond, 0, 1024)
	collector.RecordHTTPRequest("PUT", "/v1/cache/profiles/sql_cache", 422, time.Millisecond, 64, 128)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/v1/cache/stats", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("PUT", "/v1/cache/profiles/sql_cache", "4xx")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.httpRequestDuration))
}

func TestCollector_CacheEvents(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordCacheHit(cache.SQLCacheName)
	collector.RecordCacheHit(cache.SQLCacheName)
	collector.RecordCacheMiss(cache.SQLCacheName)
	collector.RecordCacheEviction(cache.SchemaCacheName)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues(cache.SQLCacheName)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheMisses.WithLabelValues(cache.SQLCacheName)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheEvictions.WithLabelValues(cache.SchemaCacheName)))
}

func TestCollector_WiredIntoRegistry(t *testing.T) {
	collector, _ := newTestCollector(t)
	registry := cache.NewRegistry(nil, cache.WithMetricsRecorder(collector), cache.WithDefaultMaxSize(1))

	m := registry.GetInstance("tiny")
	m.Set("a", 1)
	m.Set("b", 2) // 淘汰 a
	m.Get("a")
	m.Get("b")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("tiny")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheMisses.WithLabelValues("tiny")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheEvictions.WithLabelValues("tiny")))

	collector.ObserveCacheStats(map[string]cache.Stats{"tiny": m.Stats()})
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheItems.WithLabelValues("tiny")))
	assert.Equal(t, 50.0, testutil.ToFloat64(collector.cacheHitRate.WithLabelValues("tiny")))
}

func TestCollector_MemoryEvents(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordConversationAdded("text2sql")
	collector.RecordConversationAdded("text2sql")
	collector.RecordContextsSwept(3)
	collector.RecordContextsSwept(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.conversationsAdded.WithLabelValues("text2sql")))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.contextsSwept))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector, _ := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				collector.RecordCacheHit("c")
				collector.RecordHTTPRequest("GET", "/health", 200, time.Millisecond, 0, 10)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("c")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	collector, reg := newTestCollector(t)
	collector.RecordCacheHit("c")
	collector.RecordConversationAdded("text2sql")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["test_cache_hits_total"])
	assert.True(t, names["test_memory_conversations_added_total"])

	// 同一个 registry 重复注册会 panic
	assert.Panics(t, func() { NewCollector("test", reg, nil) })
}

func TestStatusCode(t *testing.T) {
	tests := map[int]string{200: "2xx", 302: "3xx", 404: "4xx", 503: "5xx", 100: "unknown"}
	for code, want := range tests {
		assert.Equal(t, want, statusCode(code))
	}
}
