package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrContextNotFound 存储中不存在对应的上下文
var ErrContextNotFound = errors.New("memory: context not found")

// Storage 上下文存储接口，实现必须并发安全
type Storage interface {
	// Get 返回上下文副本；不存在时返回 ErrContextNotFound
	Get(ctx context.Context, key string) (*UserContext, error)

	// Save 按 uc.Key() 保存（覆盖）上下文
	Save(ctx context.Context, uc *UserContext) error

	// Delete 删除上下文，返回是否存在
	Delete(ctx context.Context, key string) (bool, error)

	// Update 在存储锁内执行读-改-写。
	// key 不存在时先调用 create 创建；create 为 nil 时返回 ErrContextNotFound。
	// fn 返回错误时不写回。返回写回后的副本。
	Update(ctx context.Context, key string, create func() *UserContext, fn func(uc *UserContext) error) (*UserContext, error)

	// CleanupExpired 删除 LastAccess 早于 now-maxAge 的上下文，返回删除数量
	CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error)

	// Stats 返回存储统计
	Stats(ctx context.Context) (StorageStats, error)
}

// StorageStats 存储统计
type StorageStats struct {
	TotalContexts      int `json:"total_contexts"`
	TotalConversations int `json:"total_conversations"`
}

// MemoryStorageConfig 内存存储配置
type MemoryStorageConfig struct {
	// Now 用于测试，默认 time.Now
	Now func() time.Time
}

// MemoryStorage 基于内存的上下文存储。
// 写入时保存副本、读取时返回副本，调用方持有的对象不会与存储共享状态。
type MemoryStorage struct {
	mu       sync.Mutex
	contexts map[string]*UserContext
	now      func() time.Time
	logger   *zap.Logger
}

// NewMemoryStorage 创建内存存储
func NewMemoryStorage(config MemoryStorageConfig, logger *zap.Logger) *MemoryStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &MemoryStorage{
		contexts: make(map[string]*UserContext),
		now:      now,
		logger:   logger.With(zap.String("component", "context_storage_memory")),
	}
}

func (s *MemoryStorage) Get(ctx context.Context, key string) (*UserContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uc, ok := s.contexts[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContextNotFound, key)
	}
	return uc.Clone(), nil
}

func (s *MemoryStorage) Save(ctx context.Context, uc *UserContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if uc == nil {
		return fmt.Errorf("user context is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.contexts[uc.Key()] = uc.Clone()
	return nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contexts[key]; !ok {
		return false, nil
	}
	delete(s.contexts, key)
	return true, nil
}

func (s *MemoryStorage) Update(ctx context.Context, key string, create func() *UserContext, fn func(uc *UserContext) error) (*UserContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var working *UserContext
	if existing, ok := s.contexts[key]; ok {
		working = existing.Clone()
	} else {
		if create == nil {
			return nil, fmt.Errorf("%w: %s", ErrContextNotFound, key)
		}
		working = create()
		if working == nil {
			return nil, fmt.Errorf("create returned nil context for %s", key)
		}
		s.logger.Debug("context created", zap.String("key", key))
	}

	if fn != nil {
		if err := fn(working); err != nil {
			return nil, err
		}
	}

	s.contexts[key] = working
	return working.Clone(), nil
}

func (s *MemoryStorage) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for key, uc := range s.contexts {
		if uc.LastAccess.Before(cutoff) {
			delete(s.contexts, key)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("expired contexts removed", zap.Int("removed", removed))
	}
	return removed, nil
}

func (s *MemoryStorage) Stats(ctx context.Context) (StorageStats, error) {
	if err := ctx.Err(); err != nil {
		return StorageStats{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := StorageStats{TotalContexts: len(s.contexts)}
	for _, uc := range s.contexts {
		st.TotalConversations += len(uc.Conversations)
	}
	return st, nil
}
