// Package api 定义 text2sqlctx 管理接口的请求与响应类型。
//
// # API Overview
//
// 管理接口用于运维查看和调整进程内状态：
//   - 命名缓存的统计、汇总、清空、统计重置与配置热更新
//   - 对话上下文的存储统计、窗口化历史查询与重置
//   - 健康检查与版本信息
//
// 缓存配置中的时长在 JSON 中统一以秒表示（ttl_seconds, default_ttl_seconds）。
//
// # Base URL
//
// 默认监听地址：
//
//	http://localhost:8080
//
// Prometheus 指标在独立端口暴露（默认 9091）。
package api
