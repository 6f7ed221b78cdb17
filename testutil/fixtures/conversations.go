// =============================================================================
// 📦 测试数据工厂 - 对话与缓存配置
// =============================================================================
// 提供预定义的 Text2SQL 问答样例和缓存配置，用于测试
// =============================================================================
package fixtures

import (
	"fmt"
	"time"

	"github.com/BaSui01/text2sqlctx/cache"
	"github.com/BaSui01/text2sqlctx/memory"
)

// =============================================================================
// 💬 问答样例
// =============================================================================

// QA 一轮问答
type QA struct {
	Query string
	SQL   string
}

// SalesQuestions 返回一组典型的销售分析问答
func SalesQuestions() []QA {
	return []QA{
		{Query: "上个月的订单总数", SQL: "SELECT COUNT(*) FROM orders WHERE created_at >= DATE_SUB(CURDATE(), INTERVAL 1 MONTH)"},
		{Query: "按地区统计销售额", SQL: "SELECT region, SUM(amount) FROM orders GROUP BY region"},
		{Query: "销售额最高的前 10 个客户", SQL: "SELECT customer_id, SUM(amount) AS total FROM orders GROUP BY customer_id ORDER BY total DESC LIMIT 10"},
		{Query: "只看华东地区", SQL: "SELECT customer_id, SUM(amount) AS total FROM orders WHERE region = '华东' GROUP BY customer_id ORDER BY total DESC LIMIT 10"},
		{Query: "换成按月份", SQL: "SELECT DATE_FORMAT(created_at, '%Y-%m') AS month, SUM(amount) FROM orders WHERE region = '华东' GROUP BY month"},
	}
}

// NumberedConversations 生成 n 轮编号问答，时间间隔 1 分钟
func NumberedConversations(n int, start time.Time) []memory.Conversation {
	out := make([]memory.Conversation, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, memory.NewConversation(
			fmt.Sprintf("Q%d", i),
			fmt.Sprintf("SELECT %d", i),
			start.Add(time.Duration(i)*time.Minute),
			map[string]any{"turn": i},
		))
	}
	return out
}

// =============================================================================
// ⚙️ 缓存配置
// =============================================================================

// TinyProfiles 返回容量很小的配置表，便于触发淘汰
func TinyProfiles() cache.Profiles {
	return cache.Profiles{
		cache.SQLCacheName:         {Type: cache.BackendLRU, MaxSize: 2, TTL: time.Minute},
		cache.DatasetInfoCacheName: {Type: cache.BackendTTL, MaxSize: 2, DefaultTTL: time.Minute},
	}
}
