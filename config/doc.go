// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package config 提供 text2sqlctx 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，
// 环境变量统一使用 TEXT2SQLCTX_ 前缀，例如 TEXT2SQLCTX_MEMORY_WINDOW_SIZE。
// 缓存配置表只能来自 YAML，文件中的条目按名称覆盖默认表。
//
// ProfileWatcher 轮询配置文件，文件变更后重新加载并把
// 发生变化的缓存配置应用到运行中的缓存实例。
package config
