// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供 Text2SQL 工具使用的进程内缓存：可插拔的淘汰策略后端、
命名缓存实例管理、命中统计，以及基于规范化查询的缓存键生成。

# 概述

自然语言问题经常以不同的措辞重复出现。本包先对问题做规范化
（空白折叠、小写、去除客套/意图填充词），再与方言、数据集 ID、
提示词前缀等结构化参数一起哈希为稳定的缓存键，使重复的问题
能够命中之前生成的 SQL。

# 核心类型

  - Backend：后端接口，定义 Get/Set/Delete/Clear/Len/Stats。
  - LRUBackend：双向链表 + map 实现的 LRU 后端，支持可选 TTL。
  - TTLBackend：按插入顺序保存、带默认 TTL 的后端；溢出时优先淘汰
    已过期项，否则淘汰最早插入项（不追踪访问顺序）。
  - Manager：命名缓存实例，持有一个后端并统计命中/未命中。
  - Registry：名称到 Manager 的显式注册表，未知名称按需创建 LRU(100)。
  - Bootstrap：按配置表初始化 schema/sql/prompt/dataset_info 四个缓存，
    并提供汇总统计与批量管理。
  - Cacheable / InvalidateAfter：缓存旁路辅助函数。
  - Memoizer：基于 LRUBackend 的有界记忆化，用于按连接参数复用客户端。

# 主要能力

  - 惰性过期：读到过期项时先删除再按未命中返回。
  - 容量不变式：任何写操作完成后 Len() <= maxSize。
  - 键稳定性：命名参数按键排序后再哈希，与调用方组装顺序无关。
  - 失败降级：未挂载后端的 Manager 永远未命中，不向调用方报错。

# 使用方式

	reg := cache.NewRegistry(logger)
	boot := cache.NewBootstrap(reg, logger)
	_ = boot.Initialize(nil)

	sqlCache := boot.Cache(cache.SQLCacheName)
	key := cache.SQLCacheKey(cache.SQLKeyParams{Dialect: "mysql", Question: q, DatasetID: id})
	if v, ok := sqlCache.Get(key); ok {
		return v.(string), nil
	}
*/
package cache
