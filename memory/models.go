package memory

import (
	"encoding/json"
	"maps"
	"time"
)

// DefaultToolName 未指定工具名时使用的值
const DefaultToolName = "text2sql"

// ContextKey 返回上下文在存储中的键
func ContextKey(userID, toolName string) string {
	return userID + ":" + toolName
}

// =============================================================================
// 💬 Conversation
// =============================================================================

// Conversation 一轮问答记录
type Conversation struct {
	Query     string         `json:"query"`
	SQL       string         `json:"sql"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// MarshalJSON 保证 metadata 字段始终输出为对象，没有元数据时为 {}
func (c Conversation) MarshalJSON() ([]byte, error) {
	type plain Conversation
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	return json.Marshal(plain(c))
}

// NewConversation 创建问答记录，metadata 会被浅拷贝
func NewConversation(query, sql string, ts time.Time, metadata map[string]any) Conversation {
	return Conversation{
		Query:     query,
		SQL:       sql,
		Timestamp: ts,
		Metadata:  maps.Clone(metadata),
	}
}

// Clone 返回副本，元数据不与原记录共享
func (c Conversation) Clone() Conversation {
	c.Metadata = maps.Clone(c.Metadata)
	return c
}

// ToMap 转为普通字典，timestamp 为 Unix 秒（浮点）
func (c Conversation) ToMap() map[string]any {
	md := maps.Clone(c.Metadata)
	if md == nil {
		md = map[string]any{}
	}
	return map[string]any{
		"query":     c.Query,
		"sql":       c.SQL,
		"timestamp": unixSeconds(c.Timestamp),
		"metadata":  md,
	}
}

// ConversationFromMap 从普通字典恢复问答记录。
// 缺失或类型不对的字段取零值；timestamp 不是数字时使用 now。
func ConversationFromMap(m map[string]any, now time.Time) Conversation {
	c := Conversation{
		Query:     stringField(m, "query"),
		SQL:       stringField(m, "sql"),
		Timestamp: timeField(m, "timestamp", now),
	}
	if md, ok := m["metadata"].(map[string]any); ok {
		c.Metadata = maps.Clone(md)
	}
	return c
}

// =============================================================================
// 👤 UserContext
// =============================================================================

// UserContext 用户在某个工具下的对话上下文
type UserContext struct {
	UserID        string         `json:"user_id"`
	ToolName      string         `json:"tool_name"`
	Conversations []Conversation `json:"conversations"`
	CreatedAt     time.Time      `json:"created_at"`
	LastAccess    time.Time      `json:"last_access"`
}

// NewUserContext 创建空上下文
func NewUserContext(userID, toolName string, now time.Time) *UserContext {
	if toolName == "" {
		toolName = DefaultToolName
	}
	return &UserContext{
		UserID:        userID,
		ToolName:      toolName,
		Conversations: []Conversation{},
		CreatedAt:     now,
		LastAccess:    now,
	}
}

// Key 返回存储键
func (u *UserContext) Key() string {
	return ContextKey(u.UserID, u.ToolName)
}

// Add 追加一轮问答
func (u *UserContext) Add(c Conversation) {
	u.Conversations = append(u.Conversations, c.Clone())
}

// Recent 返回最近 n 轮问答（按时间顺序），不足 n 轮时全部返回
func (u *UserContext) Recent(n int) []Conversation {
	if n <= 0 {
		return []Conversation{}
	}
	start := max(len(u.Conversations)-n, 0)
	out := make([]Conversation, 0, len(u.Conversations)-start)
	for _, c := range u.Conversations[start:] {
		out = append(out, c.Clone())
	}
	return out
}

// ClearConversations 清空历史，上下文本身保留
func (u *UserContext) ClearConversations() {
	u.Conversations = []Conversation{}
}

// Clone 深拷贝
func (u *UserContext) Clone() *UserContext {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Conversations = make([]Conversation, len(u.Conversations))
	for i, c := range u.Conversations {
		cp.Conversations[i] = c.Clone()
	}
	return &cp
}

// ToMap 转为普通字典，时间字段为 Unix 秒（浮点）
func (u *UserContext) ToMap() map[string]any {
	convs := make([]any, len(u.Conversations))
	for i, c := range u.Conversations {
		convs[i] = c.ToMap()
	}
	return map[string]any{
		"user_id":       u.UserID,
		"tool_name":     u.ToolName,
		"conversations": convs,
		"created_at":    unixSeconds(u.CreatedAt),
		"last_access":   unixSeconds(u.LastAccess),
	}
}

// UserContextFromMap 从普通字典恢复上下文，规则同 ConversationFromMap
func UserContextFromMap(m map[string]any, now time.Time) *UserContext {
	u := NewUserContext(stringField(m, "user_id"), stringField(m, "tool_name"), now)
	u.CreatedAt = timeField(m, "created_at", now)
	u.LastAccess = timeField(m, "last_access", now)

	switch convs := m["conversations"].(type) {
	case []any:
		for _, raw := range convs {
			if cm, ok := raw.(map[string]any); ok {
				u.Conversations = append(u.Conversations, ConversationFromMap(cm, now))
			}
		}
	case []map[string]any:
		for _, cm := range convs {
			u.Conversations = append(u.Conversations, ConversationFromMap(cm, now))
		}
	}
	return u
}

// =============================================================================
// 🔧 字段辅助
// =============================================================================

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func timeField(m map[string]any, key string, fallback time.Time) time.Time {
	var secs float64
	switch v := m[key].(type) {
	case float64:
		secs = v
	case float32:
		secs = float64(v)
	case int:
		secs = float64(v)
	case int64:
		secs = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return fallback
		}
		secs = f
	default:
		return fallback
	}
	return time.Unix(0, int64(secs*float64(time.Second)))
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
