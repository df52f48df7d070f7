// Package openaicompat adapts any OpenAI-wire-compatible chat-completions
// endpoint (DeepSeek, GLM, Kimi, Qwen, Moonshot, ...) to provider.Provider,
// replacing a family of otherwise near-duplicate per-vendor packages with
// one adapter parameterized by base URL and default model.
package openaicompat

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentloop/agentloop/message"
	"github.com/agentloop/agentloop/provider"
	"github.com/agentloop/agentloop/provider/openai"
)

// Vendor names a known OpenAI-wire-compatible backend with its default
// base URL. Callers may also supply an arbitrary Config.BaseURL for a
// vendor not listed here.
type Vendor string

const (
	VendorDeepSeek Vendor = "deepseek"
	VendorGLM      Vendor = "glm"
	VendorKimi     Vendor = "kimi"
	VendorQwen     Vendor = "qwen"
	VendorMoonshot Vendor = "moonshot"
)

var vendorBaseURLs = map[Vendor]string{
	VendorDeepSeek: "https://api.deepseek.com/v1",
	VendorGLM:      "https://open.bigmodel.cn/api/paas/v4",
	VendorKimi:     "https://api.moonshot.cn/v1",
	VendorQwen:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
	VendorMoonshot: "https://api.moonshot.cn/v1",
}

// Config configures a Client. Either Vendor or BaseURL must resolve to a
// non-empty base URL.
type Config struct {
	Vendor  Vendor
	BaseURL string
	APIKey  string
}

func (c Config) resolveBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return vendorBaseURLs[c.Vendor]
}

// Client implements provider.Provider by delegating to an openai.Client
// pointed at a non-OpenAI base URL. The wire format (chat.completions,
// tool-calling, SSE streaming deltas) is assumed compatible; vendors that
// diverge (e.g. lacking native function calling) are expected to be wrapped
// in a fallback textual tool-call protocol upstream of this layer.
type Client struct {
	inner *openai.Client
	name  string
}

// New builds a Client for cfg. vendorName overrides Name() for logging and
// metrics; if empty, the vendor or base URL is used.
func New(cfg Config, vendorName string, logger *zap.Logger) *Client {
	name := vendorName
	if name == "" {
		if cfg.Vendor != "" {
			name = string(cfg.Vendor)
		} else {
			name = cfg.resolveBaseURL()
		}
	}
	inner := openai.New(openai.Config{APIKey: cfg.APIKey, BaseURL: cfg.resolveBaseURL()}, logger)
	return &Client{inner: inner, name: name}
}

func (c *Client) Name() string             { return c.name }
func (c *Client) SupportsToolCalling() bool { return c.inner.SupportsToolCalling() }

func (c *Client) HealthCheck(ctx context.Context) (provider.HealthStatus, error) {
	return c.inner.HealthCheck(ctx)
}

func (c *Client) Generate(ctx context.Context, req provider.Request) (message.Message, error) {
	return c.inner.Generate(ctx, req)
}

func (c *Client) GenerateStream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	return c.inner.GenerateStream(ctx, req)
}

var _ provider.Provider = (*Client)(nil)
