// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供管理接口与指标端口的 HTTP 服务器生命周期管理，
支持非阻塞启动、优雅关闭与系统信号监听。

# 核心类型

  - Manager：封装 net/http.Server，持有监听器与异步错误通道。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小与
    优雅关闭超时，可由 ConfigFrom 从应用配置派生。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空。
  - 信号监听：WaitForShutdown 同时监听 SIGINT/SIGTERM、
    调用方 ctx 和各服务器的异步错误，触发后关闭全部服务器。
*/
package server
