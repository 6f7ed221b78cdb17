package cache

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidMaxSize 后端容量必须为正数
var ErrInvalidMaxSize = errors.New("cache: max size must be greater than 0")

// Backend 缓存后端接口
//
// 所有实现必须是并发安全的，且每个实例持有自己的锁。
type Backend interface {
	// Get 返回缓存值；不存在或已过期时返回 false
	Get(key string) (any, bool)

	// Set 写入缓存值，可通过 WithTTL 指定过期时间
	Set(key string, value any, opts ...SetOption)

	// Delete 删除缓存项，返回是否存在
	Delete(key string) bool

	// Clear 清空所有缓存项
	Clear()

	// Len 返回当前条目数（包含尚未被惰性清理的过期项）
	Len() int

	// Stats 返回后端统计信息
	Stats() BackendStats
}

// BackendStats 后端统计信息
type BackendStats struct {
	BackendType         string        `json:"backend_type"`
	MaxSize             int           `json:"max_size"`
	CurrentSize         int           `json:"current_size"`
	ValidItems          int           `json:"valid_items"`
	ExpiredItems        int           `json:"expired_items"`
	UsageRatio          float64       `json:"usage_ratio"`
	DefaultTTL          time.Duration `json:"default_ttl,omitempty"`
	MemoryEstimateBytes int64         `json:"memory_estimate_bytes"`
}

// =============================================================================
// ⚙️ 写入选项
// =============================================================================

type setConfig struct {
	ttl    time.Duration
	hasTTL bool
}

// SetOption 配置单次 Set 调用
type SetOption func(*setConfig)

// WithTTL 为本次写入指定过期时间。
// ttl <= 0 表示立即过期：随后的 Get 一定未命中。
func WithTTL(ttl time.Duration) SetOption {
	return func(c *setConfig) {
		c.ttl = ttl
		c.hasTTL = true
	}
}

func resolveSetOptions(opts []SetOption) setConfig {
	var cfg setConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// =============================================================================
// ⚙️ 后端构造选项
// =============================================================================

type backendConfig struct {
	now        func() time.Time
	defaultTTL time.Duration
	onEvict    func(key string, value any)
}

// BackendOption 配置后端构造
type BackendOption func(*backendConfig)

// WithClock 替换时间源，主要用于测试
func WithClock(now func() time.Time) BackendOption {
	return func(c *backendConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithDefaultTTL 设置未显式指定 TTL 时使用的默认过期时间。
// LRUBackend 的默认值为 0（永不过期）；TTLBackend 的默认值为 1 小时。
func WithDefaultTTL(ttl time.Duration) BackendOption {
	return func(c *backendConfig) {
		c.defaultTTL = ttl
	}
}

// WithEvictionCallback 注册容量淘汰回调。
// 回调在后端锁内同步执行，不得回调同一个后端。
func WithEvictionCallback(fn func(key string, value any)) BackendOption {
	return func(c *backendConfig) {
		c.onEvict = fn
	}
}

func resolveBackendOptions(opts []BackendOption, defaultTTL time.Duration) backendConfig {
	cfg := backendConfig{
		now:        time.Now,
		defaultTTL: defaultTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func validateMaxSize(maxSize int) error {
	if maxSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxSize, maxSize)
	}
	return nil
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// round2 保留两位小数
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// percent 计算百分比并保留两位小数，total 为 0 时返回 0
func percent(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return round2(part / total * 100)
}
