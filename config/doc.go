// Package config 提供 TeamFlow 的配置管理功能。
//
// 支持从 YAML 文件和环境变量加载配置，
// 优先级为默认值 → 文件 → 环境变量，
// 并提供到各子系统配置结构的转换。
package config
