package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// SQLKeyPrefix SQL 生成结果缓存键前缀
const SQLKeyPrefix = "sql"

// DefaultMaxKeyLength SanitizeKey 的默认长度上限
const DefaultMaxKeyLength = 250

// queryFillers 查询中不影响语义的客套/意图词。
// 按子串直接删除，不做分词边界判断。
var queryFillers = []string{
	"请", "帮我", "查询", "获取", "告诉我", "我想",
	"能否", "可以", "如何", "怎么", "帮忙",
	"please", "can you", "could you", "tell me", "show me", "i want to", "help me",
}

// =============================================================================
// 🔤 查询规范化
// =============================================================================

// NormalizeQuery 规范化查询文本以提高缓存命中率
//
// 合并连续空白、转小写、去首尾空白；removeStopwords 为 true 时再删除客套词。
// 删除一轮后可能拼出新的客套词，因此重复执行直到结果不再变化，保证幂等。
func NormalizeQuery(query string, removeStopwords bool) string {
	normalized := collapse(query)
	if !removeStopwords {
		return normalized
	}

	for {
		next := normalized
		for _, w := range queryFillers {
			next = strings.ReplaceAll(next, w, "")
		}
		next = collapse(next)
		if next == normalized {
			return next
		}
		normalized = next
	}
}

// NormalizeQueries 批量规范化（移除客套词）
func NormalizeQueries(queries []string) []string {
	out := make([]string, len(queries))
	for i, q := range queries {
		out[i] = NormalizeQuery(q, true)
	}
	return out
}

// collapse 合并空白并转小写
func collapse(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// =============================================================================
// 🔑 缓存键生成
// =============================================================================

// GenerateHashKey 计算参数的 MD5 摘要（32 位十六进制）
//
// 位置参数保持顺序，命名参数按键排序，因此命名参数的传入顺序不影响结果。
func GenerateHashKey(args []any, named map[string]any) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, a := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%#v", a)
	}
	sb.WriteByte(']')
	writeSortedPairs(&sb, named)
	return md5Hex(sb.String())
}

// GenerateCacheKey 生成带前缀的缓存键：prefix:hash
func GenerateCacheKey(prefix string, args []any, named map[string]any) string {
	return prefix + ":" + GenerateHashKey(args, named)
}

// CacheKeyFromMap 由参数字典生成缓存键，键顺序不影响结果
func CacheKeyFromMap(prefix string, params map[string]any) string {
	var sb strings.Builder
	writeSortedPairs(&sb, params)
	return prefix + ":" + md5Hex(sb.String())
}

// SQLKeyParams SQL 生成结果缓存键的组成部分
type SQLKeyParams struct {
	Dialect      string
	Question     string
	DatasetID    string
	PromptPrefix string
}

// SQLCacheKey 生成 SQL 缓存键，问题文本先经过规范化
func SQLCacheKey(p SQLKeyParams) string {
	return CacheKeyFromMap(SQLKeyPrefix, map[string]any{
		"dialect":          p.Dialect,
		"normalized_query": NormalizeQuery(p.Question, true),
		"dataset_id":       p.DatasetID,
		"prompt_prefix":    p.PromptPrefix,
	})
}

// SanitizeKey 把非单词字符替换为下划线（保留 - 和 :），并限制长度。
// 超长时保留首尾各一段，中间用摘要替代。maxLen <= 0 时使用 DefaultMaxKeyLength。
func SanitizeKey(key string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxKeyLength
	}

	runes := []rune(key)
	for i, r := range runes {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == ':') {
			runes[i] = '_'
		}
	}
	if len(runes) <= maxLen {
		return string(runes)
	}

	sanitized := string(runes)
	keep := min(50, maxLen/3)
	return string(runes[:keep]) + "_" + md5Hex(sanitized)[:16] + "_" + string(runes[len(runes)-keep:])
}

func writeSortedPairs(sb *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteByte('[')
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(sb, "(%q, %#v)", k, m[k])
	}
	sb.WriteByte(']')
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
