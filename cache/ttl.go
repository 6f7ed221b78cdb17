package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// BackendTypeTTLMemory TTL 后端在统计信息中的类型标识
	BackendTypeTTLMemory = "ttl_memory"

	// DefaultTTL TTLBackend 未配置默认过期时间时使用的值
	DefaultTTL = time.Hour
)

// TTLBackend 按插入顺序保存、每项独立过期的内存缓存后端
//
// 未指定 TTL 的写入使用默认 TTL。容量已满且写入新键时，
// 按插入顺序淘汰第一个已过期项；没有过期项时淘汰最早插入的项。
// 该后端不追踪访问顺序，因此溢出淘汰弱于 LRU，这是有意保留的行为。
type TTLBackend struct {
	mu         sync.Mutex
	maxSize    int
	defaultTTL time.Duration
	items      map[string]*entry
	order      entryList // head 最新插入，tail 最早插入
	now        func() time.Time
	onEvict    func(key string, value any)
	logger     *zap.Logger
}

// NewTTLBackend 创建 TTL 后端，maxSize <= 0 时返回 ErrInvalidMaxSize。
// 默认 TTL 通过 WithDefaultTTL 配置，<= 0 时回退为 DefaultTTL。
func NewTTLBackend(maxSize int, logger *zap.Logger, opts ...BackendOption) (*TTLBackend, error) {
	if err := validateMaxSize(maxSize); err != nil {
		return nil, err
	}
	cfg := resolveBackendOptions(opts, DefaultTTL)
	if cfg.defaultTTL <= 0 {
		cfg.defaultTTL = DefaultTTL
	}
	logger = loggerOrNop(logger)

	b := &TTLBackend{
		maxSize:    maxSize,
		defaultTTL: cfg.defaultTTL,
		items:      make(map[string]*entry, maxSize),
		now:        cfg.now,
		onEvict:    cfg.onEvict,
		logger:     logger.With(zap.String("component", "cache_ttl")),
	}
	b.logger.Debug("ttl backend initialized",
		zap.Int("max_size", maxSize),
		zap.Duration("default_ttl", cfg.defaultTTL))
	return b, nil
}

// Get 获取缓存项；过期项会被删除并按未命中返回
func (b *TTLBackend) Get(key string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.items[key]
	if !ok {
		return nil, false
	}
	if e.expired(b.now()) {
		b.removeLocked(e)
		return nil, false
	}
	return e.value, true
}

// Set 写入缓存项；覆盖已存在的键不改变其插入位置
func (b *TTLBackend) Set(key string, value any, opts ...SetOption) {
	sc := resolveSetOptions(opts)
	ttl := b.defaultTTL
	if sc.hasTTL {
		ttl = sc.ttl
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	expiresAt := expiresAtFor(now, ttl)

	if e, ok := b.items[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		return
	}

	if len(b.items) >= b.maxSize {
		b.evictLocked(now)
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	b.items[key] = e
	b.order.pushFront(e)
}

// Delete 删除缓存项
func (b *TTLBackend) Delete(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.items[key]
	if !ok {
		return false
	}
	b.removeLocked(e)
	return true
}

// Clear 清空所有缓存项
func (b *TTLBackend) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := len(b.items)
	b.items = make(map[string]*entry, b.maxSize)
	b.order.reset()
	b.logger.Info("cache cleared", zap.Int("removed", count))
}

// Len 返回当前条目数
func (b *TTLBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Stats 返回统计信息
func (b *TTLBackend) Stats() BackendStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	valid, expired, bytes := countItems(b.items, b.now())
	return BackendStats{
		BackendType:         BackendTypeTTLMemory,
		MaxSize:             b.maxSize,
		CurrentSize:         len(b.items),
		ValidItems:          valid,
		ExpiredItems:        expired,
		UsageRatio:          percent(float64(len(b.items)), float64(b.maxSize)),
		DefaultTTL:          b.defaultTTL,
		MemoryEstimateBytes: bytes,
	}
}

func (b *TTLBackend) removeLocked(e *entry) {
	b.order.remove(e)
	delete(b.items, e.key)
}

// evictLocked 从最早插入的一端扫描，淘汰第一个过期项；都未过期则淘汰最早插入项
func (b *TTLBackend) evictLocked(now time.Time) {
	victim := b.order.tail
	for e := b.order.tail; e != nil; e = e.prev {
		if e.expired(now) {
			victim = e
			break
		}
	}
	if victim == nil {
		return
	}
	b.removeLocked(victim)
	b.logger.Debug("cache full, evicted entry",
		zap.String("key", victim.key),
		zap.Bool("expired", victim.expired(now)))
	if b.onEvict != nil {
		b.onEvict(victim.key, victim.value)
	}
}
