// Copyright 2026 TeamFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 TeamFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试与基准测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。所有测试应优先使用此包
中的工具函数和 Mock 实现。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertJSONEqual / AssertNoError / AssertError
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual，
    支持超时轮询等待条件满足
  - 通道辅助: WaitForChannel / DrainChannel
  - 测试数据: MustJSON / MustParseJSON

# 子包

  - mocks: 脚本化 Runner 等 Mock 实现，用于驱动引擎测试
  - fixtures: 预定义的智能体档案、任务图与团队配置工厂

# 使用示例

	ctx := testutil.TestContext(t)
	runner := mocks.NewScriptedRunner()
	runner.Script("t1", func(ctx context.Context, inv *engine.Invocation) (*task.Result, error) {
		return &task.Result{Output: "done"}, nil
	})

注意：engine 包自身的测试不应依赖本包（会形成导入环），
应使用包内的本地 mock。
*/
package testutil
