// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 text2sqlctx 管理接口的 HTTP 处理器实现。

# 核心类型

  - CacheHandler：命名缓存统计、摘要、清空、统计重置与配置热更新
  - MemoryHandler：对话上下文存储统计、窗口化历史与重置
  - HealthHandler：服务健康检查（/health, /healthz, /ready, /version）
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo：结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码与响应大小

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数，
    自动回显 X-Request-ID
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 路由使用方法限定的 ServeMux 模式，各 Handler 通过 Register 挂载
*/
package handlers
