package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/text2sqlctx/testutil"
)

func TestBootstrap_DefaultProfiles(t *testing.T) {
	boot := NewBootstrap(NewRegistry(nil), zap.NewNop())
	require.NoError(t, boot.Initialize(nil))
	assert.True(t, boot.IsInitialized())

	stats := boot.AllStats()
	require.Len(t, stats, 4)

	cases := map[string]struct {
		backend string
		maxSize int
	}{
		SchemaCacheName:      {BackendTypeLRUMemory, 100},
		SQLCacheName:         {BackendTypeLRUMemory, 50},
		PromptCacheName:      {BackendTypeLRUMemory, 20},
		DatasetInfoCacheName: {BackendTypeTTLMemory, 50},
	}
	for name, want := range cases {
		st, ok := stats[name]
		require.True(t, ok, name)
		require.NotNil(t, st.BackendStats, name)
		assert.Equal(t, want.backend, st.BackendType, name)
		assert.Equal(t, want.maxSize, st.MaxSize, name)
	}
	assert.Equal(t, 2*time.Hour, stats[SQLCacheName].DefaultTTL)
	assert.Equal(t, time.Hour, stats[DatasetInfoCacheName].DefaultTTL)
}

func TestBootstrap_InitializeSkipsDefaultBackend(t *testing.T) {
	logger, logs := testutil.NewObservedLogger(zapcore.InfoLevel)
	boot := NewBootstrap(NewRegistry(logger), logger)
	require.NoError(t, boot.Initialize(nil))

	assert.Zero(t, logs.FilterMessage("cache instance created with default lru backend").Len())
	// 每个实例只挂载一次后端
	assert.Equal(t, 4, logs.FilterMessage("cache backend attached").Len())
	assert.Equal(t, BackendTypeTTLMemory, boot.Cache(DatasetInfoCacheName).Stats().BackendType)
}

func TestRegistry_Install(t *testing.T) {
	r := NewRegistry(nil)
	b, err := NewTTLBackend(3, nil)
	require.NoError(t, err)

	m := r.Install("ttl", b)
	assert.Same(t, m, r.GetInstance("ttl"))
	assert.Equal(t, BackendTypeTTLMemory, m.Stats().BackendType)

	lru, err := NewLRUBackend(2, nil)
	require.NoError(t, err)
	assert.Same(t, m, r.Install("ttl", lru), "existing instance keeps its identity")
	assert.Equal(t, BackendTypeLRUMemory, m.Stats().BackendType)
}

func TestBootstrap_InitializeIsIdempotent(t *testing.T) {
	boot := NewBootstrap(nil, nil)
	require.NoError(t, boot.Initialize(Profiles{"a": {Type: BackendLRU, MaxSize: 5}}))

	boot.Cache("a").Set("k", "v")
	// 第二次初始化不替换后端，已有数据保留
	require.NoError(t, boot.Initialize(Profiles{"a": {Type: BackendTTL, MaxSize: 1}}))

	_, ok := boot.Cache("a").Get("k")
	assert.True(t, ok)
	assert.Equal(t, BackendTypeLRUMemory, boot.Cache("a").Stats().BackendType)
}

func TestBootstrap_UnknownTypeFallsBackToLRU(t *testing.T) {
	logger, logs := testutil.NewObservedLogger(zapcore.WarnLevel)
	boot := NewBootstrap(nil, logger)

	require.NoError(t, boot.Initialize(Profiles{"odd": {Type: "redis", MaxSize: 3}}))

	st := boot.Cache("odd").Stats()
	require.NotNil(t, st.BackendStats)
	assert.Equal(t, BackendTypeLRUMemory, st.BackendType)
	testutil.AssertLogged(t, logs, "unknown cache backend type")
}

func TestBootstrap_InvalidProfileReported(t *testing.T) {
	boot := NewBootstrap(nil, nil)

	err := boot.Initialize(Profiles{
		"bad":  {Type: BackendLRU, MaxSize: 0},
		"good": {Type: BackendTTL, MaxSize: 2},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bad"`)
	assert.True(t, boot.IsInitialized())

	st := boot.Cache("good").Stats()
	require.NotNil(t, st.BackendStats)
	assert.Equal(t, BackendTypeTTLMemory, st.BackendType)
}

func TestBootstrap_UpdateProfile(t *testing.T) {
	boot := NewBootstrap(nil, nil)
	require.NoError(t, boot.Initialize(nil))

	m := boot.Cache(SQLCacheName)
	m.Set("k", "v")

	require.NoError(t, boot.UpdateProfile(SQLCacheName, Profile{Type: BackendTTL, MaxSize: 7, DefaultTTL: time.Minute}))
	assert.Same(t, m, boot.Cache(SQLCacheName))

	st := m.Stats()
	assert.Equal(t, BackendTypeTTLMemory, st.BackendType)
	assert.Equal(t, 7, st.MaxSize)
	assert.Equal(t, 0, st.CurrentSize)

	assert.Error(t, boot.UpdateProfile(SQLCacheName, Profile{MaxSize: -1}))
	assert.Equal(t, 7, m.Stats().MaxSize, "invalid profile leaves the backend untouched")
}

func TestBootstrap_SummaryAndBulkOps(t *testing.T) {
	boot := NewBootstrap(nil, nil)
	require.NoError(t, boot.Initialize(nil))

	sql := boot.Cache(SQLCacheName)
	schema := boot.Cache(SchemaCacheName)
	sql.Set("a", "select 1")
	schema.Set("b", "users(id)")
	sql.Get("a")
	sql.Get("zzz")
	schema.Get("b")

	s := boot.Summary()
	assert.True(t, s.Initialized)
	assert.Equal(t, 4, s.TotalCaches)
	assert.Equal(t, 2, s.TotalCachedItems)
	assert.Equal(t, uint64(3), s.TotalRequests)
	assert.Equal(t, uint64(2), s.TotalHits)
	assert.Equal(t, uint64(1), s.TotalMisses)
	assert.Equal(t, 66.67, s.OverallHitRate)
	assert.NotEmpty(t, s.MemoryEstimate)
	assert.Equal(t, []string{DatasetInfoCacheName, PromptCacheName, SchemaCacheName, SQLCacheName}, s.Caches)

	boot.ResetAllStats()
	assert.Zero(t, boot.Summary().TotalRequests)
	assert.Equal(t, 2, boot.Summary().TotalCachedItems)

	boot.ClearAll()
	assert.Zero(t, boot.Summary().TotalCachedItems)
}

func TestProfile_Validate(t *testing.T) {
	assert.NoError(t, Profile{Type: BackendLRU, MaxSize: 1}.Validate())
	assert.Error(t, Profile{Type: BackendLRU}.Validate())
	assert.Error(t, Profile{MaxSize: 1, TTL: -time.Second}.Validate())
	assert.Error(t, Profile{MaxSize: 1, DefaultTTL: -time.Second}.Validate())
	// 未知类型由工厂回退处理，不属于校验错误
	assert.NoError(t, Profile{Type: "memcached", MaxSize: 1}.Validate())
}
