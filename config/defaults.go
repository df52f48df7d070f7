// =============================================================================
// 📦 AgentLoop 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Provider:  DefaultProviderConfig(),
		Agent:     DefaultAgentConfig(),
		Cache:     DefaultCacheConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultProviderConfig 返回默认 Provider 配置
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Kind:              "anthropic",
		APIKey:            "",
		BaseURL:           "",
		Timeout:           2 * time.Minute,
		MaxRetries:        3,
		RequestsPerMinute: 0,
	}
}

// DefaultAgentConfig 返回默认 Agent 配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Style:             "tool_calling",
		Model:             "claude-sonnet-4-5",
		SystemPrompt:      "You are a helpful agent that solves tasks step by step.",
		MaxSteps:          20,
		PlanningInterval:  0,
		MaxToolThreads:    1,
		Temperature:       0.7,
		MaxTokens:         4096,
		Timeout:           5 * time.Minute,
		StreamEnabled:     true,
		AuthorizedImports: nil,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:  false,
		Addr:     "localhost:6379",
		Password: "",
		DB:       0,
		TTL:      10 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentloop",
		SampleRate:   0.1,
	}
}
