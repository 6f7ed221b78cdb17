package cache

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	_ Backend = (*LRUBackend)(nil)
	_ Backend = (*TTLBackend)(nil)
)

// MetricsRecorder 接收缓存事件，internal/metrics.Collector 实现了该接口
type MetricsRecorder interface {
	RecordCacheHit(cacheName string)
	RecordCacheMiss(cacheName string)
	RecordCacheEviction(cacheName string)
}

// Stats 缓存实例统计信息，后端统计字段被平铺合并
type Stats struct {
	Name          string  `json:"name"`
	HitCount      uint64  `json:"hit_count"`
	MissCount     uint64  `json:"miss_count"`
	TotalRequests uint64  `json:"total_requests"`
	HitRate       float64 `json:"hit_rate"` // 百分比，保留两位小数
	*BackendStats
}

// =============================================================================
// 💾 命名缓存实例
// =============================================================================

// Manager 命名缓存实例，持有一个后端并独立统计命中/未命中
//
// 未挂载后端时 Get 永远未命中且不计数，Set/Delete/Clear 为空操作，
// 均只记录告警日志，不向调用方返回错误。
type Manager struct {
	name string

	mu      sync.RWMutex
	backend Backend

	hits     atomic.Uint64
	misses   atomic.Uint64
	recorder MetricsRecorder

	logger *zap.Logger
}

// NewManager 创建未挂载后端的缓存实例
func NewManager(name string, logger *zap.Logger) *Manager {
	logger = loggerOrNop(logger)
	return &Manager{
		name:   name,
		logger: logger.With(zap.String("component", "cache_manager"), zap.String("cache", name)),
	}
}

// Name 返回实例名称
func (m *Manager) Name() string {
	return m.name
}

// SetBackend 挂载或整体替换后端
func (m *Manager) SetBackend(backend Backend) {
	m.mu.Lock()
	m.backend = backend
	m.mu.Unlock()

	if backend != nil {
		m.logger.Info("cache backend attached", zap.String("backend_type", backend.Stats().BackendType))
	}
}

// Backend 返回当前后端，可能为 nil
func (m *Manager) Backend() Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend
}

// SetRecorder 设置指标接收者
func (m *Manager) SetRecorder(recorder MetricsRecorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorder = recorder
}

func (m *Manager) snapshot() (Backend, MetricsRecorder) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend, m.recorder
}

// Get 获取缓存值并记录命中统计
func (m *Manager) Get(key string) (any, bool) {
	backend, recorder := m.snapshot()
	if backend == nil {
		m.logger.Warn("cache backend not set, treating as miss", zap.String("key", key))
		return nil, false
	}

	value, ok := backend.Get(key)
	if ok {
		m.hits.Add(1)
		if recorder != nil {
			recorder.RecordCacheHit(m.name)
		}
		m.logger.Debug("cache hit", zap.String("key", key))
		return value, true
	}

	m.misses.Add(1)
	if recorder != nil {
		recorder.RecordCacheMiss(m.name)
	}
	m.logger.Debug("cache miss", zap.String("key", key))
	return nil, false
}

// Set 写入缓存值
func (m *Manager) Set(key string, value any, opts ...SetOption) {
	backend, _ := m.snapshot()
	if backend == nil {
		m.logger.Warn("cache backend not set, set ignored", zap.String("key", key))
		return
	}
	backend.Set(key, value, opts...)
	m.logger.Debug("cache set", zap.String("key", key))
}

// Delete 删除缓存项，返回是否删除成功
func (m *Manager) Delete(key string) bool {
	backend, _ := m.snapshot()
	if backend == nil {
		m.logger.Warn("cache backend not set, delete ignored", zap.String("key", key))
		return false
	}
	deleted := backend.Delete(key)
	if deleted {
		m.logger.Debug("cache entry deleted", zap.String("key", key))
	}
	return deleted
}

// Clear 清空缓存
func (m *Manager) Clear() {
	backend, _ := m.snapshot()
	if backend == nil {
		m.logger.Warn("cache backend not set, clear ignored")
		return
	}
	backend.Clear()
	m.logger.Info("cache cleared")
}

// Stats 返回命中统计并合并后端统计
func (m *Manager) Stats() Stats {
	backend, _ := m.snapshot()

	hits := m.hits.Load()
	misses := m.misses.Load()
	total := hits + misses

	stats := Stats{
		Name:          m.name,
		HitCount:      hits,
		MissCount:     misses,
		TotalRequests: total,
		HitRate:       percent(float64(hits), float64(total)),
	}
	if backend != nil {
		bs := backend.Stats()
		stats.BackendStats = &bs
	}
	return stats
}

// ResetStats 重置命中统计
func (m *Manager) ResetStats() {
	m.hits.Store(0)
	m.misses.Store(0)
	m.logger.Info("cache stats reset")
}
