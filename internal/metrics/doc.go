// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP 管理接口、命名缓存与对话上下文三个维度。

# 概述

Collector 通过 promauto.With(registerer) 注册指标，测试中可以传入
独立的 prometheus.Registry。Collector 同时满足 cache.MetricsRecorder
与 memory.MetricsRecorder，可直接注入缓存注册表和上下文管理器。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 缓存指标：命中、未命中、容量淘汰计数，以及由统计快照刷新的
    条目数与命中率 Gauge，按 cache 名称分组。
  - 对话上下文指标：按 tool 分组的新增对话数，过期上下文清理数。
*/
package metrics
