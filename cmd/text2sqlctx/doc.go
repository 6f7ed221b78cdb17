// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 text2sqlctx 服务端程序入口。

# 概述

cmd/text2sqlctx 组装缓存系统与多轮对话上下文管理器，通过管理接口暴露
缓存统计、缓存配置热更新与对话历史查询，并在独立端口提供 Prometheus 指标。

# 核心类型

  - Server：主服务器，管理管理接口与 Metrics 双端口及优雅关闭
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令（cobra）：serve、normalize、key、version、health
  - 中间件链：Recovery、RequestID、UserIdentity（X-User-ID）、
    SecurityHeaders、RequestLogger、MetricsMiddleware、OTelTracing、
    RateLimiter（基于 IP）
  - 缓存配置热更新：ProfileWatcher 轮询配置文件并替换有变化的缓存后端
  - Metrics 服务器：独立端口暴露 /metrics，使用私有 Registry
  - 优雅关闭：信号监听 → 关闭 HTTP/Metrics → 停止 watcher → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
