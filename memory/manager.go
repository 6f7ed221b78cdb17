package memory

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 默认参数
const (
	DefaultWindowSize      = 3
	DefaultExpiry          = 24 * time.Hour
	DefaultCleanupInterval = time.Hour

	anonymousPrefix = "anon_"
)

// MetricsRecorder 接收上下文事件，internal/metrics.Collector 实现了该接口
type MetricsRecorder interface {
	RecordConversationAdded(toolName string)
	RecordContextsSwept(n int)
}

// Option 配置 Manager
type Option func(*Manager)

// WithWindowSize 设置默认历史窗口，<= 0 时忽略
func WithWindowSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.windowSize = n
		}
	}
}

// WithExpiry 设置上下文过期时间，<= 0 时忽略
func WithExpiry(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.expiry = d
		}
	}
}

// WithCleanupInterval 设置两次被动清理之间的最小间隔，<= 0 时忽略
func WithCleanupInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.cleanupInterval = d
		}
	}
}

// WithToolName 设置默认工具名
func WithToolName(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.toolName = name
		}
	}
}

// WithClock 替换时间源，用于测试
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator 替换匿名用户 ID 生成器
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// WithMetrics 设置指标接收者
func WithMetrics(recorder MetricsRecorder) Option {
	return func(m *Manager) {
		m.recorder = recorder
	}
}

// =============================================================================
// 🧠 上下文管理器
// =============================================================================

// Manager 多轮对话上下文管理器
//
// 存储错误在此边界被记录并转换为 false 或空结果，不向上传播。
type Manager struct {
	storage Storage

	windowSize      int
	expiry          time.Duration
	cleanupInterval time.Duration
	toolName        string

	now      func() time.Time
	newID    func() string
	recorder MetricsRecorder

	lastSweep atomic.Int64 // UnixNano

	logger *zap.Logger
}

// NewManager 创建上下文管理器，storage 为 nil 时使用 MemoryStorage
func NewManager(storage Storage, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		windowSize:      DefaultWindowSize,
		expiry:          DefaultExpiry,
		cleanupInterval: DefaultCleanupInterval,
		toolName:        DefaultToolName,
		now:             time.Now,
		newID:           anonymousID,
		logger:          logger.With(zap.String("component", "context_manager")),
	}
	for _, opt := range opts {
		opt(m)
	}
	if storage == nil {
		storage = NewMemoryStorage(MemoryStorageConfig{Now: m.now}, logger)
	}
	m.storage = storage
	m.lastSweep.Store(m.now().UnixNano())

	m.logger.Info("context manager initialized",
		zap.Int("window_size", m.windowSize),
		zap.Duration("expiry", m.expiry),
		zap.Duration("cleanup_interval", m.cleanupInterval))
	return m
}

// GetContext 获取或创建上下文，并刷新最近访问时间
func (m *Manager) GetContext(ctx context.Context, userID, toolName string) (*UserContext, error) {
	m.maybeSweep(ctx)

	userID, toolName = m.resolve(userID, toolName)
	now := m.now()

	uc, err := m.storage.Update(ctx, ContextKey(userID, toolName), m.creator(userID, toolName, now), func(uc *UserContext) error {
		uc.LastAccess = now
		return nil
	})
	if err != nil {
		m.logger.Error("failed to get context",
			zap.String("user_id", userID),
			zap.String("tool", toolName),
			zap.Error(err))
		return nil, err
	}
	return uc, nil
}

// AddConversation 追加一轮问答，返回是否成功
func (m *Manager) AddConversation(ctx context.Context, userID, toolName, query, sql string, metadata map[string]any) bool {
	m.maybeSweep(ctx)

	userID, toolName = m.resolve(userID, toolName)
	now := m.now()
	conv := NewConversation(query, sql, now, metadata)

	_, err := m.storage.Update(ctx, ContextKey(userID, toolName), m.creator(userID, toolName, now), func(uc *UserContext) error {
		uc.Add(conv)
		uc.LastAccess = now
		return nil
	})
	if err != nil {
		m.logger.Error("failed to add conversation",
			zap.String("user_id", userID),
			zap.String("tool", toolName),
			zap.Error(err))
		return false
	}

	if m.recorder != nil {
		m.recorder.RecordConversationAdded(toolName)
	}
	m.logger.Debug("conversation added",
		zap.String("user_id", userID),
		zap.String("tool", toolName),
		zap.Int("query_len", len(query)))
	return true
}

// GetConversationHistory 返回最近 windowSize 轮问答（按时间顺序）。
// windowSize <= 0 时使用默认窗口；出错时返回空切片。
func (m *Manager) GetConversationHistory(ctx context.Context, userID, toolName string, windowSize int) []Conversation {
	if windowSize <= 0 {
		windowSize = m.windowSize
	}

	uc, err := m.GetContext(ctx, userID, toolName)
	if err != nil {
		return []Conversation{}
	}
	return uc.Recent(windowSize)
}

// ResetMemory 清空对话历史，上下文本身保留
func (m *Manager) ResetMemory(ctx context.Context, userID, toolName string) bool {
	m.maybeSweep(ctx)

	userID, toolName = m.resolve(userID, toolName)
	now := m.now()

	_, err := m.storage.Update(ctx, ContextKey(userID, toolName), m.creator(userID, toolName, now), func(uc *UserContext) error {
		uc.ClearConversations()
		uc.LastAccess = now
		return nil
	})
	if err != nil {
		m.logger.Error("failed to reset memory",
			zap.String("user_id", userID),
			zap.String("tool", toolName),
			zap.Error(err))
		return false
	}

	m.logger.Info("conversation memory reset",
		zap.String("user_id", userID),
		zap.String("tool", toolName))
	return true
}

// StorageStats 返回存储统计，出错时返回零值
func (m *Manager) StorageStats(ctx context.Context) StorageStats {
	st, err := m.storage.Stats(ctx)
	if err != nil {
		m.logger.Error("failed to get storage stats", zap.Error(err))
		return StorageStats{}
	}
	return st
}

// Sweep 立即清理过期上下文，返回删除数量
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	m.lastSweep.Store(m.now().UnixNano())
	return m.sweep(ctx)
}

// WindowSize 返回默认历史窗口
func (m *Manager) WindowSize() int {
	return m.windowSize
}

// ToolName 返回默认工具名
func (m *Manager) ToolName() string {
	return m.toolName
}

// maybeSweep 距上次清理超过 cleanupInterval 时执行一次清理。
// CAS 保证同一时刻只有一个调用方执行；重复执行也是无害的。
func (m *Manager) maybeSweep(ctx context.Context) {
	now := m.now()
	last := m.lastSweep.Load()
	if now.Sub(time.Unix(0, last)) <= m.cleanupInterval {
		return
	}
	if !m.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	if _, err := m.sweep(ctx); err != nil {
		m.logger.Error("context sweep failed", zap.Error(err))
	}
}

func (m *Manager) sweep(ctx context.Context) (int, error) {
	removed, err := m.storage.CleanupExpired(ctx, m.expiry)
	if err != nil {
		return 0, err
	}
	if m.recorder != nil {
		m.recorder.RecordContextsSwept(removed)
	}
	if removed > 0 {
		m.logger.Info("expired contexts swept", zap.Int("removed", removed))
	}
	return removed, nil
}

func (m *Manager) resolve(userID, toolName string) (string, string) {
	if userID == "" {
		userID = m.newID()
	}
	if toolName == "" {
		toolName = m.toolName
	}
	return userID, toolName
}

func (m *Manager) creator(userID, toolName string, now time.Time) func() *UserContext {
	return func() *UserContext {
		m.logger.Debug("creating user context",
			zap.String("user_id", userID),
			zap.String("tool", toolName))
		return NewUserContext(userID, toolName, now)
	}
}

// anonymousID 生成 anon_ + 8 位十六进制
func anonymousID() string {
	return anonymousPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
