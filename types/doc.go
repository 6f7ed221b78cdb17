// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 text2sqlctx 管理接口共享的基础类型。

types 不依赖任何内部包，供 api/handlers 与 cmd 使用。

# 核心类型

  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码与 Retryable 标记，
    GetErrorCode / IsRetryable 可穿透 %w 包装
  - WithRequestID / RequestID：请求 ID 在 context 中的传播
  - WithUserID / UserID：调用方用户 ID 在 context 中的传播
*/
package types
