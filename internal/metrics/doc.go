// 版权所有 2025 TeamFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
执行、任务、消息、记忆、冲突与 HTTP 六大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
工厂按 Registerer 注册，测试中可注入独立 Registry 避免重复注册。
所有指标按 namespace 隔离，支持多维度 label 分组。

# 主要能力

  - 执行指标：执行总数（按 mode/status）、执行耗时、运行中执行数。
  - 任务指标：任务终态计数（按 status）、任务调用耗时（按 mode）。
  - 消息指标：总线投递与丢弃计数。
  - 记忆指标：共享记忆操作计数（按 operation）。
  - 冲突指标：冲突裁决计数（按 strategy/outcome）。
  - HTTP 指标：请求总数与耗时，状态码归类为 2xx/3xx/4xx/5xx。
*/
package metrics
