// Package config 提供 agentloop 的配置管理功能。
//
// 包含配置加载、热重载和变更历史管理。
// 支持从 YAML 文件和环境变量加载配置（Default → YAML → Env 优先级），
// 并提供运行时热重载能力。
package config
