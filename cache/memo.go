package cache

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Memoizer 按参数惰性构建并复用开销较大的对象（例如数据库连接、检索客户端）
//
// 构建结果保存在容量有限的 LRUBackend 中，淘汰时通过 onEvict 通知调用方释放资源。
// 同一组参数的并发构建只会执行一次。
type Memoizer[V any] struct {
	name    string
	backend *LRUBackend
	group   singleflight.Group
	logger  *zap.Logger
}

// NewMemoizer 创建 Memoizer，maxSize <= 0 时返回 ErrInvalidMaxSize
func NewMemoizer[V any](name string, maxSize int, logger *zap.Logger, onEvict func(V)) (*Memoizer[V], error) {
	logger = loggerOrNop(logger).With(zap.String("component", "memoizer"), zap.String("memo", name))

	var opts []BackendOption
	if onEvict != nil {
		opts = append(opts, WithEvictionCallback(func(key string, value any) {
			if v, ok := value.(V); ok {
				logger.Debug("memoized value evicted", zap.String("key", key))
				onEvict(v)
			}
		}))
	}

	backend, err := NewLRUBackend(maxSize, logger, opts...)
	if err != nil {
		return nil, err
	}
	return &Memoizer[V]{name: name, backend: backend, logger: logger}, nil
}

// Get 返回 params 对应的值，不存在时调用 build 构建。build 失败时不保存结果。
func (m *Memoizer[V]) Get(ctx context.Context, params map[string]any, build func(ctx context.Context) (V, error)) (V, error) {
	key := CacheKeyFromMap(m.name, params)
	if v, ok := m.backend.Get(key); ok {
		if typed, ok := v.(V); ok {
			return typed, nil
		}
	}

	res, err, _ := m.group.Do(key, func() (any, error) {
		// 等待期间其他调用方可能已经构建完成
		if v, ok := m.backend.Get(key); ok {
			if typed, ok := v.(V); ok {
				return typed, nil
			}
		}
		v, err := build(ctx)
		if err != nil {
			return v, err
		}
		m.backend.Set(key, v)
		m.logger.Debug("memoized value built", zap.String("key", key))
		return v, nil
	})
	v, _ := res.(V)
	return v, err
}

// Forget 删除 params 对应的值，不触发 onEvict
func (m *Memoizer[V]) Forget(params map[string]any) bool {
	return m.backend.Delete(CacheKeyFromMap(m.name, params))
}

// Len 返回当前保存的值数量
func (m *Memoizer[V]) Len() int {
	return m.backend.Len()
}
