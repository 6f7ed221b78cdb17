package api

import (
	"time"

	"github.com/BaSui01/text2sqlctx/cache"
	"github.com/BaSui01/text2sqlctx/memory"
)

// =============================================================================
// 缓存管理类型
// =============================================================================

// ProfileRequest 表示一次缓存配置更新，时长以秒为单位。
// @Description 缓存配置更新请求
type ProfileRequest struct {
	// 后端类型: lru, ttl
	Type string `json:"type" example:"lru"`
	// 最大条目数
	MaxSize int `json:"max_size" example:"100"`
	// LRU 条目默认存活秒数，0 表示永不过期
	TTLSeconds int64 `json:"ttl_seconds,omitempty" example:"3600"`
	// TTL 后端默认存活秒数
	DefaultTTLSeconds int64 `json:"default_ttl_seconds,omitempty" example:"3600"`
}

// ToProfile 转换为 cache.Profile
func (r ProfileRequest) ToProfile() cache.Profile {
	return cache.Profile{
		Type:       cache.BackendType(r.Type),
		MaxSize:    r.MaxSize,
		TTL:        time.Duration(r.TTLSeconds) * time.Second,
		DefaultTTL: time.Duration(r.DefaultTTLSeconds) * time.Second,
	}
}

// ProfileResponse 返回生效后的配置
// @Description 缓存配置
type ProfileResponse struct {
	Name              string `json:"name"`
	Type              string `json:"type"`
	MaxSize           int    `json:"max_size"`
	TTLSeconds        int64  `json:"ttl_seconds"`
	DefaultTTLSeconds int64  `json:"default_ttl_seconds"`
}

// NewProfileResponse 由 cache.Profile 构造响应
func NewProfileResponse(name string, p cache.Profile) ProfileResponse {
	return ProfileResponse{
		Name:              name,
		Type:              string(p.Type),
		MaxSize:           p.MaxSize,
		TTLSeconds:        int64(p.TTL / time.Second),
		DefaultTTLSeconds: int64(p.DefaultTTL / time.Second),
	}
}

// ClearResponse 清空操作结果
// @Description 被清空的缓存名称
type ClearResponse struct {
	Cleared []string `json:"cleared"`
}

// =============================================================================
// 对话上下文类型
// =============================================================================

// ResetMemoryRequest 清空某个用户在某个工具下的历史
// @Description 重置对话上下文请求
type ResetMemoryRequest struct {
	UserID   string `json:"user_id" example:"analyst-42"`
	ToolName string `json:"tool_name,omitempty" example:"text2sql"`
}

// ResetMemoryResponse 重置结果
type ResetMemoryResponse struct {
	UserID   string `json:"user_id"`
	ToolName string `json:"tool_name"`
	Reset    bool   `json:"reset"`
}

// HistoryResponse 窗口化的对话历史，按时间从旧到新
// @Description 对话历史
type HistoryResponse struct {
	UserID        string                `json:"user_id"`
	ToolName      string                `json:"tool_name"`
	Window        int                   `json:"window"`
	Conversations []memory.Conversation `json:"conversations"`
}
