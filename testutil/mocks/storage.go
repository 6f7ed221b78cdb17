// =============================================================================
// 🧠 MockStorage - 上下文存储模拟实现
// =============================================================================
// 包装 memory.MemoryStorage，支持按方法注入错误并记录调用次数
//
// 使用方法:
//
//	storage := mocks.NewMockStorage().WithUpdateError(errors.New("disk full"))
//	mgr := memory.NewManager(storage, logger)
//	ok := mgr.AddConversation(ctx, "u1", "", "q", "sql", nil) // false
// =============================================================================
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/text2sqlctx/memory"
)

var _ memory.Storage = (*MockStorage)(nil)

// =============================================================================
// 🎯 MockStorage 结构
// =============================================================================

// MockStorage 是 memory.Storage 的模拟实现
type MockStorage struct {
	mu sync.Mutex

	inner *memory.MemoryStorage

	// 错误注入
	updateErr  error
	cleanupErr error
	statsErr   error

	// 调用记录
	updateCalls  int
	cleanupCalls int
}

// =============================================================================
// 🔧 构造函数和 Builder 方法
// =============================================================================

// NewMockStorage 创建新的 MockStorage
func NewMockStorage() *MockStorage {
	return &MockStorage{inner: memory.NewMemoryStorage(memory.MemoryStorageConfig{}, nil)}
}

// WithClock 设置内部存储的时间源
func (m *MockStorage) WithClock(now func() time.Time) *MockStorage {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inner = memory.NewMemoryStorage(memory.MemoryStorageConfig{Now: now}, nil)
	return m
}

// WithUpdateError 设置 Update 方法的错误
func (m *MockStorage) WithUpdateError(err error) *MockStorage {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateErr = err
	return m
}

// WithCleanupError 设置 CleanupExpired 方法的错误
func (m *MockStorage) WithCleanupError(err error) *MockStorage {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupErr = err
	return m
}

// WithStatsError 设置 Stats 方法的错误
func (m *MockStorage) WithStatsError(err error) *MockStorage {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statsErr = err
	return m
}

// =============================================================================
// 🎯 Storage 接口实现
// =============================================================================

// Get / Save / Delete 直接转发，Manager 只通过 Update 读写上下文

func (m *MockStorage) Get(ctx context.Context, key string) (*memory.UserContext, error) {
	return m.inner.Get(ctx, key)
}

func (m *MockStorage) Save(ctx context.Context, uc *memory.UserContext) error {
	return m.inner.Save(ctx, uc)
}

func (m *MockStorage) Delete(ctx context.Context, key string) (bool, error) {
	return m.inner.Delete(ctx, key)
}

func (m *MockStorage) Update(ctx context.Context, key string, create func() *memory.UserContext, fn func(uc *memory.UserContext) error) (*memory.UserContext, error) {
	inner, err := m.state(&m.updateErr, &m.updateCalls)
	if err != nil {
		return nil, err
	}
	return inner.Update(ctx, key, create, fn)
}

func (m *MockStorage) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	inner, err := m.state(&m.cleanupErr, &m.cleanupCalls)
	if err != nil {
		return 0, err
	}
	return inner.CleanupExpired(ctx, maxAge)
}

func (m *MockStorage) Stats(ctx context.Context) (memory.StorageStats, error) {
	inner, err := m.state(&m.statsErr, nil)
	if err != nil {
		return memory.StorageStats{}, err
	}
	return inner.Stats(ctx)
}

func (m *MockStorage) state(errp *error, counter *int) (*memory.MemoryStorage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if counter != nil {
		*counter++
	}
	return m.inner, *errp
}

// =============================================================================
// 🔍 查询方法
// =============================================================================

// GetUpdateCalls 获取 Update 调用次数
func (m *MockStorage) GetUpdateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateCalls
}

// GetCleanupCalls 获取 CleanupExpired 调用次数
func (m *MockStorage) GetCleanupCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanupCalls
}
