package cache

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

const (
	// DefaultCacheName 未指定名称时使用的实例名
	DefaultCacheName = "default"

	// DefaultMaxSize 注册表按需创建实例时 LRU 后端的容量
	DefaultMaxSize = 100
)

// Registry 名称到缓存实例的注册表
//
// 进程内通常只创建一个 Registry 并在启动时注入各调用方；
// 测试可以各自创建独立的 Registry。
type Registry struct {
	mu             sync.Mutex
	instances      map[string]*Manager
	defaultMaxSize int
	recorder       MetricsRecorder
	logger         *zap.Logger
}

// RegistryOption 配置 Registry
type RegistryOption func(*Registry)

// WithMetricsRecorder 为注册表内所有实例设置指标接收者
func WithMetricsRecorder(recorder MetricsRecorder) RegistryOption {
	return func(r *Registry) {
		r.recorder = recorder
	}
}

// WithDefaultMaxSize 设置按需创建实例的默认容量，<= 0 时忽略
func WithDefaultMaxSize(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.defaultMaxSize = n
		}
	}
}

// NewRegistry 创建注册表
func NewRegistry(logger *zap.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		instances:      make(map[string]*Manager),
		defaultMaxSize: DefaultMaxSize,
		logger:         loggerOrNop(logger),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetInstance 获取或创建命名实例。
// 同名多次调用返回同一个 *Manager；首次创建时挂载 LRU(defaultMaxSize) 后端。
func (r *Registry) GetInstance(name string) *Manager {
	if name == "" {
		name = DefaultCacheName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.instances[name]; ok {
		return m
	}

	m := NewManager(name, r.logger)
	m.SetRecorder(r.recorder)
	backend, err := NewLRUBackend(r.defaultMaxSize, r.logger, r.evictionHook(name))
	if err != nil {
		// defaultMaxSize 始终为正，这里只做防御
		r.logger.Error("failed to create default backend", zap.String("cache", name), zap.Error(err))
	} else {
		m.SetBackend(backend)
	}
	r.instances[name] = m

	r.logger.Info("cache instance created with default lru backend",
		zap.String("cache", name),
		zap.Int("max_size", r.defaultMaxSize))
	return m
}

// Install 把 backend 挂载到命名实例上并返回该实例。
// 实例不存在时直接以 backend 创建，不会先构造默认 LRU 后端；已存在时替换其后端。
func (r *Registry) Install(name string, backend Backend) *Manager {
	if name == "" {
		name = DefaultCacheName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.instances[name]
	if !ok {
		m = NewManager(name, r.logger)
		m.SetRecorder(r.recorder)
		r.instances[name] = m
	}
	m.SetBackend(backend)
	return m
}

// AllInstances 返回注册表快照，调用方可以安全遍历
func (r *Registry) AllInstances() map[string]*Manager {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]*Manager, len(r.instances))
	for k, v := range r.instances {
		out[k] = v
	}
	return out
}

// Names 返回排序后的实例名称
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.instances))
	for k := range r.instances {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// evictionHook 把后端的容量淘汰转发给指标接收者
func (r *Registry) evictionHook(name string) BackendOption {
	recorder := r.recorder
	return WithEvictionCallback(func(string, any) {
		if recorder != nil {
			recorder.RecordCacheEviction(name)
		}
	})
}
