// =============================================================================
// 📦 AgentLoop 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AGENTLOOP").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config is the complete runtime configuration for one agentloop run.
type Config struct {
	// Provider 选型与凭据
	Provider ProviderConfig `yaml:"provider" env:"PROVIDER"`

	// Agent 运行参数
	Agent AgentConfig `yaml:"agent" env:"AGENT"`

	// Cache 响应缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ProviderConfig selects and authenticates the model provider backing the
// run: one of anthropic, openai, gemini, or openaicompat (DeepSeek/GLM/Kimi/
// Qwen/Moonshot and other OpenAI-wire-compatible vendors).
type ProviderConfig struct {
	// Kind 选择 provider 实现
	Kind string `yaml:"kind" env:"KIND"`
	// APIKey 鉴权密钥
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// BaseURL 覆盖默认端点（openaicompat 必填）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// Timeout 单次请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// MaxRetries 失败重试次数上限
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// RequestsPerMinute 限流阈值，<= 0 表示关闭限流
	RequestsPerMinute float64 `yaml:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
}

// AgentConfig 驱动循环与两种 Agent 风格共用的运行参数。
type AgentConfig struct {
	// Style 选择 Agent 风格: tool_calling 或 code
	Style string `yaml:"style" env:"STYLE"`
	// Model 供应商侧模型标识
	Model string `yaml:"model" env:"MODEL"`
	// SystemPrompt 系统提示词
	SystemPrompt string `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	// MaxSteps 单次 Run 的最大步数
	MaxSteps int `yaml:"max_steps" env:"MAX_STEPS"`
	// PlanningInterval 每隔多少步插入一次规划步骤，0 表示关闭
	PlanningInterval int `yaml:"planning_interval" env:"PLANNING_INTERVAL"`
	// MaxToolThreads 工具调用代理的并行调度线程数上限
	MaxToolThreads int `yaml:"max_tool_threads" env:"MAX_TOOL_THREADS"`
	// Temperature 采样温度
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// MaxTokens 单次生成的最大 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// Timeout 单步执行超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// StreamEnabled 是否使用流式生成并在本地聚合
	StreamEnabled bool `yaml:"stream_enabled" env:"STREAM_ENABLED"`
	// AuthorizedImports 代码代理沙箱允许暴露的 Lua 全局库 (os, io)
	AuthorizedImports []string `yaml:"authorized_imports" env:"AUTHORIZED_IMPORTS"`
}

// CacheConfig 配置 provider 响应缓存的 Redis 后端。
type CacheConfig struct {
	// Enabled 是否启用响应缓存
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Addr Redis 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// Password Redis 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// DB 数据库编号
	DB int `yaml:"db" env:"DB"`
	// TTL 缓存条目存活时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// EnableStacktrace 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// Enabled 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLPEndpoint OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// ServiceName 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// SampleRate 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTLOOP",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Provider.Kind == "" {
		errs = append(errs, "provider.kind must be set")
	}
	if c.Agent.MaxSteps <= 0 {
		errs = append(errs, "agent.max_steps must be positive")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		errs = append(errs, "agent.temperature must be between 0 and 2")
	}
	if c.Agent.Style != "" && c.Agent.Style != "tool_calling" && c.Agent.Style != "code" {
		errs = append(errs, "agent.style must be tool_calling or code")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
