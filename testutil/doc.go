// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 text2sqlctx 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，
避免重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 可控时钟: FakeClock，Now 方法可直接注入缓存后端与上下文管理器，
    用 Advance 代替 time.Sleep
  - 日志断言: NewObservedLogger / AssertLogged，基于 zaptest/observer
  - 断言工具: AssertJSONEqual / AssertEventuallyTrue / AssertEventuallyEqual
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockStorage，包装内存上下文存储并支持按方法注入错误
  - testutil/fixtures: 问答样例与小容量缓存配置

# 使用示例

	clock := testutil.NewFakeClock(testutil.Epoch)
	mgr := memory.NewManager(nil, zap.NewNop(), memory.WithClock(clock.Now))
	clock.Advance(25 * time.Hour)
*/
package testutil
