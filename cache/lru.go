package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// BackendTypeLRUMemory LRU 后端在统计信息中的类型标识
const BackendTypeLRUMemory = "lru_memory"

// LRUBackend 基于 LRU 策略的内存缓存后端（双向链表实现 O(1) 操作）
//
// 写入已存在的键只更新值与过期时间并标记为最近使用，不触发淘汰；
// 写入新键且已满时，先淘汰最久未使用的一项再插入。
type LRUBackend struct {
	mu         sync.Mutex
	maxSize    int
	defaultTTL time.Duration
	items      map[string]*entry
	order      entryList // head 最近使用，tail 最久未使用
	now        func() time.Time
	onEvict    func(key string, value any)
	logger     *zap.Logger
}

// NewLRUBackend 创建 LRU 后端，maxSize <= 0 时返回 ErrInvalidMaxSize
func NewLRUBackend(maxSize int, logger *zap.Logger, opts ...BackendOption) (*LRUBackend, error) {
	if err := validateMaxSize(maxSize); err != nil {
		return nil, err
	}
	cfg := resolveBackendOptions(opts, 0)
	logger = loggerOrNop(logger)

	b := &LRUBackend{
		maxSize:    maxSize,
		defaultTTL: cfg.defaultTTL,
		items:      make(map[string]*entry, maxSize),
		now:        cfg.now,
		onEvict:    cfg.onEvict,
		logger:     logger.With(zap.String("component", "cache_lru")),
	}
	b.logger.Debug("lru backend initialized",
		zap.Int("max_size", maxSize),
		zap.Duration("default_ttl", cfg.defaultTTL))
	return b, nil
}

// Get 获取缓存项；过期项会被删除并按未命中返回
func (b *LRUBackend) Get(key string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.items[key]
	if !ok {
		return nil, false
	}

	if e.expired(b.now()) {
		b.removeLocked(e)
		b.logger.Debug("cache entry expired", zap.String("key", key))
		return nil, false
	}

	b.order.moveToFront(e)
	return e.value, true
}

// Set 写入缓存项
func (b *LRUBackend) Set(key string, value any, opts ...SetOption) {
	sc := resolveSetOptions(opts)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var expiresAt time.Time
	switch {
	case sc.hasTTL:
		expiresAt = expiresAtFor(now, sc.ttl)
	case b.defaultTTL > 0:
		expiresAt = now.Add(b.defaultTTL)
	}

	if e, ok := b.items[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		b.order.moveToFront(e)
		b.logger.Debug("cache entry updated", zap.String("key", key))
		return
	}

	if len(b.items) >= b.maxSize {
		b.evictOldestLocked()
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	b.items[key] = e
	b.order.pushFront(e)
	b.logger.Debug("cache entry added", zap.String("key", key))
}

// Delete 删除缓存项
func (b *LRUBackend) Delete(key string) bool {
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
func (b *LRUBackend) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := len(b.items)
	b.items = make(map[string]*entry, b.maxSize)
	b.order.reset()
	b.logger.Info("cache cleared", zap.Int("removed", count))
}

// Len 返回当前条目数
func (b *LRUBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Stats 返回统计信息
func (b *LRUBackend) Stats() BackendStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	valid, expired, bytes := countItems(b.items, b.now())
	return BackendStats{
		BackendType:         BackendTypeLRUMemory,
		MaxSize:             b.maxSize,
		CurrentSize:         len(b.items),
		ValidItems:          valid,
		ExpiredItems:        expired,
		UsageRatio:          percent(float64(len(b.items)), float64(b.maxSize)),
		DefaultTTL:          b.defaultTTL,
		MemoryEstimateBytes: bytes,
	}
}

// CleanupExpired 清理所有已过期的缓存项，返回清理数量
func (b *LRUBackend) CleanupExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	removed := 0
	for e := b.order.tail; e != nil; {
		prev := e.prev
		if e.expired(now) {
			b.removeLocked(e)
			removed++
		}
		e = prev
	}
	if removed > 0 {
		b.logger.Info("expired cache entries cleaned", zap.Int("removed", removed))
	}
	return removed
}

// Keys 按从最近使用到最久未使用的顺序返回键
func (b *LRUBackend) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make([]string, 0, len(b.items))
	for e := b.order.head; e != nil; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}

func (b *LRUBackend) removeLocked(e *entry) {
	b.order.remove(e)
	delete(b.items, e.key)
}

// evictOldestLocked 淘汰尾部节点 O(1)
func (b *LRUBackend) evictOldestLocked() {
	victim := b.order.tail
	if victim == nil {
		return
	}
	b.removeLocked(victim)
	b.logger.Debug("cache full, evicted least recently used entry", zap.String("key", victim.key))
	if b.onEvict != nil {
		b.onEvict(victim.key, victim.value)
	}
}
