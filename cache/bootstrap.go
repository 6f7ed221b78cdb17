package cache

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
)

// 预置缓存名称
const (
	SchemaCacheName      = "schema_cache"
	SQLCacheName         = "sql_cache"
	PromptCacheName      = "prompt_cache"
	DatasetInfoCacheName = "dataset_info_cache"
)

// BackendType 后端类型
type BackendType string

const (
	BackendLRU BackendType = "lru"
	BackendTTL BackendType = "ttl"
)

// Profile 单个缓存的配置
//
// LRU 后端使用 TTL 作为默认过期时间（0 表示永不过期）；
// TTL 后端使用 DefaultTTL（0 表示 1 小时）。
type Profile struct {
	Type       BackendType   `yaml:"type" json:"type"`
	MaxSize    int           `yaml:"max_size" json:"max_size"`
	TTL        time.Duration `yaml:"ttl" json:"ttl"`
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`
}

// Validate 校验配置。未知的 Type 不算错误，构造时会回退到 LRU。
func (p Profile) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.MaxSize, validation.Required, validation.Min(1)),
		validation.Field(&p.TTL, validation.Min(time.Duration(0))),
		validation.Field(&p.DefaultTTL, validation.Min(time.Duration(0))),
	)
}

// Profiles 缓存名称到配置的映射
type Profiles map[string]Profile

// DefaultProfiles 返回默认配置表
func DefaultProfiles() Profiles {
	return Profiles{
		// Schema 检索结果
		SchemaCacheName: {Type: BackendLRU, MaxSize: 100, TTL: time.Hour},
		// SQL 生成结果
		SQLCacheName: {Type: BackendLRU, MaxSize: 50, TTL: 2 * time.Hour},
		// 提示词模板
		PromptCacheName: {Type: BackendLRU, MaxSize: 20, TTL: 24 * time.Hour},
		// 数据集信息
		DatasetInfoCacheName: {Type: BackendTTL, MaxSize: 50, DefaultTTL: time.Hour},
	}
}

// NewBackend 按配置类型创建后端，未知类型回退到 LRU 并记录告警
func NewBackend(p Profile, logger *zap.Logger, opts ...BackendOption) (Backend, error) {
	logger = loggerOrNop(logger)
	all := make([]BackendOption, 0, len(opts)+1)
	all = append(all, opts...)

	switch p.Type {
	case BackendTTL:
		all = append(all, WithDefaultTTL(p.DefaultTTL))
		return NewTTLBackend(p.MaxSize, logger, all...)
	case BackendLRU, "":
	default:
		logger.Warn("unknown cache backend type, falling back to lru", zap.String("type", string(p.Type)))
	}
	all = append(all, WithDefaultTTL(p.TTL))
	return NewLRUBackend(p.MaxSize, logger, all...)
}

// =============================================================================
// 🚀 缓存系统初始化
// =============================================================================

// Bootstrap 按配置表初始化命名缓存，并提供跨实例的统计与管理
type Bootstrap struct {
	registry    *Registry
	backendOpts []BackendOption

	mu          sync.Mutex
	initialized bool

	logger *zap.Logger
}

// NewBootstrap 创建初始化器；opts 会传给每个新建的后端（例如 WithClock）
func NewBootstrap(registry *Registry, logger *zap.Logger, opts ...BackendOption) *Bootstrap {
	logger = loggerOrNop(logger)
	if registry == nil {
		registry = NewRegistry(logger)
	}
	return &Bootstrap{
		registry:    registry,
		backendOpts: opts,
		logger:      logger.With(zap.String("component", "cache_bootstrap")),
	}
}

// Registry 返回底层注册表
func (b *Bootstrap) Registry() *Registry {
	return b.registry
}

// Initialize 初始化所有缓存实例，profiles 为 nil 时使用 DefaultProfiles。
//
// 只有第一次调用生效，之后的调用仅记录日志并返回 nil，不会替换已有后端。
// 单个配置无效时继续初始化其余缓存，并返回合并后的错误。
func (b *Bootstrap) Initialize(profiles Profiles) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		b.logger.Info("cache system already initialized, skipping")
		return nil
	}

	if profiles == nil {
		profiles = DefaultProfiles()
		b.logger.Info("using default cache profiles")
	}

	b.logger.Info("initializing caches", zap.Int("count", len(profiles)))

	var errs []error
	for _, name := range sortedProfileNames(profiles) {
		if err := b.install(name, profiles[name]); err != nil {
			b.logger.Error("failed to initialize cache", zap.String("cache", name), zap.Error(err))
			errs = append(errs, err)
		}
	}

	b.initialized = true
	b.logger.Info("cache system initialized")
	return errors.Join(errs...)
}

// IsInitialized 返回是否已初始化
func (b *Bootstrap) IsInitialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// Cache 获取命名缓存实例
func (b *Bootstrap) Cache(name string) *Manager {
	return b.registry.GetInstance(name)
}

// UpdateProfile 用新配置替换指定缓存的后端，原有缓存内容会丢失
func (b *Bootstrap) UpdateProfile(name string, p Profile) error {
	b.logger.Info("updating cache profile", zap.String("cache", name))
	return b.install(name, p)
}

func (b *Bootstrap) install(name string, p Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("cache %q: %w", name, err)
	}

	opts := make([]BackendOption, 0, len(b.backendOpts)+1)
	opts = append(opts, b.backendOpts...)
	opts = append(opts, b.registry.evictionHook(name))

	backend, err := NewBackend(p, b.logger, opts...)
	if err != nil {
		return fmt.Errorf("cache %q: %w", name, err)
	}

	b.registry.Install(name, backend)
	b.logger.Info("cache initialized",
		zap.String("cache", name),
		zap.String("type", string(p.Type)),
		zap.Int("max_size", p.MaxSize))
	return nil
}

// =============================================================================
// 📊 汇总统计与批量管理
// =============================================================================

// Summary 缓存系统摘要
type Summary struct {
	Initialized         bool     `json:"initialized"`
	TotalCaches         int      `json:"total_caches"`
	TotalCachedItems    int      `json:"total_cached_items"`
	TotalRequests       uint64   `json:"total_requests"`
	TotalHits           uint64   `json:"total_hits"`
	TotalMisses         uint64   `json:"total_misses"`
	OverallHitRate      float64  `json:"overall_hit_rate"`
	MemoryEstimateBytes int64    `json:"memory_estimate_bytes"`
	MemoryEstimate      string   `json:"memory_estimate"`
	Caches              []string `json:"caches"`
}

// AllStats 返回所有缓存实例的统计信息
func (b *Bootstrap) AllStats() map[string]Stats {
	out := make(map[string]Stats)
	b.each("stats", func(name string, m *Manager) {
		out[name] = m.Stats()
	})
	return out
}

// ClearAll 清空所有缓存
func (b *Bootstrap) ClearAll() {
	b.logger.Info("clearing all caches")
	b.each("clear", func(_ string, m *Manager) {
		m.Clear()
	})
}

// ResetAllStats 重置所有缓存的命中统计
func (b *Bootstrap) ResetAllStats() {
	b.logger.Info("resetting all cache stats")
	b.each("reset_stats", func(_ string, m *Manager) {
		m.ResetStats()
	})
}

// Summary 汇总所有缓存实例的统计
func (b *Bootstrap) Summary() Summary {
	all := b.AllStats()

	s := Summary{
		Initialized: b.IsInitialized(),
		TotalCaches: len(all),
		Caches:      make([]string, 0, len(all)),
	}
	for name, st := range all {
		s.Caches = append(s.Caches, name)
		s.TotalHits += st.HitCount
		s.TotalMisses += st.MissCount
		if st.BackendStats != nil {
			s.TotalCachedItems += st.CurrentSize
			s.MemoryEstimateBytes += st.MemoryEstimateBytes
		}
	}
	sort.Strings(s.Caches)
	s.TotalRequests = s.TotalHits + s.TotalMisses
	s.OverallHitRate = percent(float64(s.TotalHits), float64(s.TotalRequests))
	s.MemoryEstimate = humanize.Bytes(uint64(s.MemoryEstimateBytes))
	return s
}

// each 对每个实例执行 op，单个实例 panic 时记录错误并继续
func (b *Bootstrap) each(op string, fn func(name string, m *Manager)) {
	for name, m := range b.registry.AllInstances() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("cache operation failed",
						zap.String("op", op),
						zap.String("cache", name),
						zap.Any("panic", r))
				}
			}()
			fn(name, m)
		}()
	}
}

func sortedProfileNames(p Profiles) []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
