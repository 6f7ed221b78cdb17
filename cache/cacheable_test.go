package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/text2sqlctx/testutil"
)

func newTestManager(t *testing.T, name string, logger *zap.Logger) *Manager {
	t.Helper()
	m := NewManager(name, logger)
	b, err := NewLRUBackend(16, logger)
	require.NoError(t, err)
	m.SetBackend(b)
	return m
}

func TestCacheable_CachesResult(t *testing.T) {
	m := newTestManager(t, "schema", nil)
	var calls atomic.Int32

	fetch := Cacheable(m, func(_ context.Context, args ...any) (string, error) {
		calls.Add(1)
		return "schema-of-" + args[0].(string), nil
	}, CacheableOptions[string]{KeyPrefix: "schema"})

	ctx := testutil.TestContext(t)
	for i := 0; i < 3; i++ {
		v, err := fetch(ctx, "ds1")
		require.NoError(t, err)
		assert.Equal(t, "schema-of-ds1", v)
	}
	assert.Equal(t, int32(1), calls.Load())

	_, err := fetch(ctx, "ds2")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	st := m.Stats()
	assert.Equal(t, uint64(2), st.HitCount)
	assert.Equal(t, uint64(2), st.MissCount)
}

func TestCacheable_ErrorsNotCached(t *testing.T) {
	m := newTestManager(t, "errs", nil)
	var calls atomic.Int32
	boom := errors.New("boom")

	fn := Cacheable(m, func(context.Context, ...any) (int, error) {
		calls.Add(1)
		return 0, boom
	}, CacheableOptions[int]{})

	ctx := testutil.TestContext(t)
	_, err := fn(ctx, 1)
	assert.ErrorIs(t, err, boom)
	_, err = fn(ctx, 1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), calls.Load())
	assert.Zero(t, m.Stats().CurrentSize)
}

func TestCacheable_Condition(t *testing.T) {
	m := newTestManager(t, "cond", nil)
	var calls atomic.Int32

	fn := Cacheable(m, func(_ context.Context, args ...any) ([]string, error) {
		calls.Add(1)
		if args[0] == "empty" {
			return nil, nil
		}
		return []string{"row"}, nil
	}, CacheableOptions[[]string]{
		Condition: func(rows []string) bool { return len(rows) > 0 },
	})

	ctx := testutil.TestContext(t)
	fn(ctx, "empty")
	fn(ctx, "empty")
	assert.Equal(t, int32(2), calls.Load(), "empty results are not cached")

	fn(ctx, "full")
	fn(ctx, "full")
	assert.Equal(t, int32(3), calls.Load())
}

func TestCacheable_PanickingConditionStillCaches(t *testing.T) {
	logger, logs := testutil.NewObservedLogger(zapcore.WarnLevel)
	m := newTestManager(t, "panic_cond", logger)
	var calls atomic.Int32

	fn := Cacheable(m, func(context.Context, ...any) (int, error) {
		calls.Add(1)
		return 42, nil
	}, CacheableOptions[int]{
		Condition: func(int) bool { panic("bad condition") },
	})

	ctx := testutil.TestContext(t)
	fn(ctx)
	v, err := fn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, int32(1), calls.Load())
	testutil.AssertLogged(t, logs, "cache condition panicked")
}

func TestCacheable_KeyFuncFallback(t *testing.T) {
	logger, logs := testutil.NewObservedLogger(zapcore.WarnLevel)
	m := newTestManager(t, "keys", logger)

	ident := func(_ context.Context, args ...any) (any, error) { return args[0], nil }
	ctx := testutil.TestContext(t)

	failing := Cacheable(m, ident, CacheableOptions[any]{
		KeyPrefix: "p",
		KeyFunc:   func(...any) (string, error) { return "", errors.New("no key") },
	})
	_, err := failing(ctx, "x")
	require.NoError(t, err)
	_, ok := m.Get(GenerateCacheKey("p", []any{"x"}, nil))
	assert.True(t, ok, "value stored under the default key")
	testutil.AssertLogged(t, logs, "custom key func failed")

	panicking := Cacheable(m, ident, CacheableOptions[any]{
		KeyPrefix: "q",
		KeyFunc:   func(args ...any) (string, error) { return args[5].(string), nil },
	})
	_, err = panicking(ctx, "y")
	require.NoError(t, err)
	_, ok = m.Get(GenerateCacheKey("q", []any{"y"}, nil))
	assert.True(t, ok)
	testutil.AssertLogged(t, logs, "custom key func panicked")

	custom := Cacheable(m, ident, CacheableOptions[any]{
		KeyFunc: func(args ...any) (string, error) { return "fixed", nil },
	})
	_, err = custom(ctx, "z")
	require.NoError(t, err)
	v, ok := m.Get("fixed")
	require.True(t, ok)
	assert.Equal(t, "z", v)
}

func TestCacheable_TTL(t *testing.T) {
	clock := testutil.NewFakeClock(testutil.Epoch)
	m := NewManager("ttl", nil)
	b, err := NewLRUBackend(4, nil, WithClock(clock.Now))
	require.NoError(t, err)
	m.SetBackend(b)

	var calls atomic.Int32
	fn := Cacheable(m, func(context.Context, ...any) (int, error) {
		return int(calls.Add(1)), nil
	}, CacheableOptions[int]{TTL: time.Minute})

	ctx := testutil.TestContext(t)
	v, _ := fn(ctx)
	assert.Equal(t, 1, v)
	v, _ = fn(ctx)
	assert.Equal(t, 1, v)

	clock.Advance(2 * time.Minute)
	v, _ = fn(ctx)
	assert.Equal(t, 2, v)
}

func TestCacheable_ConcurrentMissesCollapse(t *testing.T) {
	m := newTestManager(t, "sf", nil)
	var calls atomic.Int32
	release := make(chan struct{})

	build := func(context.Context, ...any) (string, error) {
		calls.Add(1)
		<-release
		return "sql", nil
	}
	fn := Cacheable(m, build, CacheableOptions[string]{})

	ctx := testutil.TestContext(t)
	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = fn(ctx, "same")
		}(i)
	}

	testutil.AssertEventuallyTrue(t, func() bool { return calls.Load() >= 1 }, time.Second)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "sql", r)
	}
	assert.LessOrEqual(t, calls.Load(), int32(8))
	v, ok := m.Get(GenerateCacheKey(FuncKeyPrefix[string](build), []any{"same"}, nil))
	require.True(t, ok)
	assert.Equal(t, "sql", v)
}

func TestCacheable_DefaultPrefixPerFunction(t *testing.T) {
	m := newTestManager(t, "shared", nil)
	ctx := testutil.TestContext(t)

	schema := Cacheable(m, func(_ context.Context, args ...any) (string, error) {
		return "schema-of-" + args[0].(string), nil
	}, CacheableOptions[string]{})
	dataset := Cacheable(m, func(_ context.Context, args ...any) (string, error) {
		return "dataset-of-" + args[0].(string), nil
	}, CacheableOptions[string]{})

	s, err := schema(ctx, "ds1")
	require.NoError(t, err)
	d, err := dataset(ctx, "ds1")
	require.NoError(t, err)

	assert.Equal(t, "schema-of-ds1", s)
	assert.Equal(t, "dataset-of-ds1", d)
	assert.Equal(t, 2, m.Backend().Len())

	// 命中各自的条目
	s, _ = schema(ctx, "ds1")
	d, _ = dataset(ctx, "ds1")
	assert.Equal(t, "schema-of-ds1", s)
	assert.Equal(t, "dataset-of-ds1", d)
}

func TestFuncKeyPrefix(t *testing.T) {
	a := func(context.Context, ...any) (int, error) { return 1, nil }
	b := func(context.Context, ...any) (int, error) { return 2, nil }

	pa, pb := FuncKeyPrefix[int](a), FuncKeyPrefix[int](b)
	assert.NotEqual(t, pa, pb)
	assert.Contains(t, pa, "TestFuncKeyPrefix")
	assert.Equal(t, pa, FuncKeyPrefix[int](a), "stable across calls")
	assert.Equal(t, DefaultKeyPrefix, FuncKeyPrefix[int](nil))
}

func TestInvalidateAfter(t *testing.T) {
	m := newTestManager(t, "inv", nil)
	ctx := testutil.TestContext(t)

	update := func(context.Context, ...any) (bool, error) { return true, nil }
	fail := func(context.Context, ...any) (bool, error) { return false, errors.New("nope") }

	m.Set("a", 1)
	m.Set("b", 2)
	_, err := InvalidateAfter(m, update, "a")(ctx)
	require.NoError(t, err)
	_, ok := m.Get("a")
	assert.False(t, ok)
	_, ok = m.Get("b")
	assert.True(t, ok)

	_, err = InvalidateAfter(m, fail)(ctx)
	require.Error(t, err)
	_, ok = m.Get("b")
	assert.True(t, ok, "failed calls do not invalidate")

	_, err = InvalidateAfter(m, update)(ctx)
	require.NoError(t, err)
	assert.Zero(t, m.Stats().CurrentSize)
}
