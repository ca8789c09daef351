// Copyright (c) TeamFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 TeamFlow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 engine、task、bus、
api 等上层模块提供统一的类型契约。跨包共享的错误码和上下文传播
工具均定义于此，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable 标记
  - 配置期错误码：CONFIG_INVALID / NOT_FOUND / INVALID_STATE /
    INVALID_TRANSITION / EXECUTION_CANCELLED
  - 运行期错误码：TASK_FAILED / CONFLICT_UNRESOLVED / NO_CAPABLE_AGENT /
    TIMEOUT / STORE_UNAVAILABLE / INTERNAL_ERROR

# 主要能力

  - Context 传播：WithTenantID / WithUserID / WithRoles（认证身份）
  - 错误工具链：WithCause / WithHTTPStatus / WithRetryable /
    IsRetryable / GetErrorCode
*/
package types
