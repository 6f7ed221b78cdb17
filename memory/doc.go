// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 memory 提供 Text2SQL 工具的多轮对话上下文记忆。

# 概述

每个 (用户, 工具) 组合拥有一份独立的 [UserContext]，按时间顺序保存
历史问答（自然语言问题与生成的 SQL）。生成新 SQL 时只取最近的若干轮
作为上下文，避免提示词无限增长；长时间未访问的上下文会在后续调用时
被顺带清理。

# 核心接口

  - [Storage]：上下文存储接口，提供 Get / Save / Delete / Update /
    CleanupExpired / Stats，所有实现必须并发安全

# 核心类型

  - [Conversation]：一轮问答记录，构造后不可变
  - [UserContext]：用户在某个工具下的对话历史，键为 "user_id:tool_name"
  - [Manager]：上下文管理器，负责窗口化读取、追加、重置与被动过期清理
  - [MemoryStorage]：基于内存的默认存储，读写均返回深拷贝

# 默认参数

  - 历史窗口：3 轮
  - 上下文过期：24 小时未访问
  - 清理间隔：距上次清理超过 1 小时才会再次扫描
  - 默认工具名：text2sql
  - 匿名用户：anon_ + 8 位十六进制

# 使用方式

	mgr := memory.NewManager(nil, logger)
	mgr.AddConversation(ctx, "u1", "", "上个月的订单数", "SELECT COUNT(*) FROM orders ...", nil)
	history := mgr.GetConversationHistory(ctx, "u1", "", 0)
*/
package memory
