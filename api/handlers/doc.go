// Copyright (c) TeamFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 TeamFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 TeamFlow 所有 HTTP 端点的请求处理逻辑，
包括团队执行生命周期、智能体档案管理、冲突外部裁决、事件流订阅、
健康检查以及统一的响应/错误处理。所有 Handler 均遵循标准 net/http
接口，通过 Swagger 注解生成 API 文档。

# 核心类型

  - TeamHandler      — 团队执行：启动、快照、取消、裁决、WebSocket 事件流
  - AgentHandler     — 智能体档案注册、版本查询与团队兼容性评分
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（执行存储、Redis 等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - WebSocket 事件流：TeamHandler.HandleEvents 推送执行事件
  - 执行生命周期：启动、查询、列表（含持久化归档）、取消、外部裁决
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
