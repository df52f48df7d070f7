// Package anthropic adapts the Anthropic Messages API to provider.Provider.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/agentloop/agentloop/message"
	"github.com/agentloop/agentloop/provider"
	"github.com/agentloop/agentloop/toolkit"
)

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
}

// Client implements provider.Provider against Anthropic's Messages API.
type Client struct {
	sdk    anthropicsdk.Client
	logger *zap.Logger
}

// New builds a Client. If logger is nil, a no-op logger is used.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		sdk:    anthropicsdk.NewClient(opts...),
		logger: logger.With(zap.String("component", "provider.anthropic")),
	}
}

func (c *Client) Name() string             { return "anthropic" }
func (c *Client) SupportsToolCalling() bool { return true }

func (c *Client) HealthCheck(ctx context.Context) (provider.HealthStatus, error) {
	start := time.Now()
	_, err := c.sdk.Messages.New(ctx, anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.ModelClaudeHaiku4_5,
		MaxTokens: 1,
		Messages:  []anthropicsdk.MessageParam{anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock("ping"))},
	})
	latency := time.Since(start)
	if err != nil {
		return provider.HealthStatus{Healthy: false, Latency: latency}, err
	}
	return provider.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (c *Client) Generate(ctx context.Context, req provider.Request) (message.Message, error) {
	params := buildParams(req)
	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return message.Message{}, provider.ClassifyRetryable(fmt.Errorf("anthropic generate: %w", err))
	}
	return messageFromResponse(resp), nil
}

func (c *Client) GenerateStream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	params := buildParams(req)
	stream := c.sdk.Messages.NewStreaming(ctx, params)
	out := make(chan provider.StreamEvent)

	go func() {
		defer close(out)
		acc := anthropicsdk.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				out <- provider.StreamEvent{Err: provider.ClassifyRetryable(err)}
				return
			}
			if d, ok := deltaFromEvent(event); ok {
				out <- provider.StreamEvent{Delta: d}
			}
		}
		if err := stream.Err(); err != nil {
			out <- provider.StreamEvent{Err: provider.ClassifyRetryable(err)}
			return
		}
		if acc.Usage.InputTokens != 0 || acc.Usage.OutputTokens != 0 {
			out <- provider.StreamEvent{Delta: message.Delta{Usage: &message.TokenUsage{
				PromptTokens:     int(acc.Usage.InputTokens),
				CompletionTokens: int(acc.Usage.OutputTokens),
			}}}
		}
	}()
	return out, nil
}

func deltaFromEvent(event anthropicsdk.MessageStreamEventUnion) (message.Delta, bool) {
	switch variant := event.AsAny().(type) {
	case anthropicsdk.ContentBlockStartEvent:
		if variant.ContentBlock.Type != "tool_use" {
			return message.Delta{}, false
		}
		return message.Delta{ToolCalls: []message.ToolCallDelta{{
			Index: int(variant.Index), ID: variant.ContentBlock.ID, Type: "function", Name: variant.ContentBlock.Name,
		}}}, true
	case anthropicsdk.ContentBlockDeltaEvent:
		switch delta := variant.Delta.AsAny().(type) {
		case anthropicsdk.TextDelta:
			if delta.Text == "" {
				return message.Delta{}, false
			}
			return message.Delta{Content: delta.Text}, true
		case anthropicsdk.InputJSONDelta:
			if delta.PartialJSON == "" {
				return message.Delta{}, false
			}
			return message.Delta{ToolCalls: []message.ToolCallDelta{{
				Index: int(variant.Index), Arguments: delta.PartialJSON,
			}}}, true
		}
	}
	return message.Delta{}, false
}

func buildParams(req provider.Request) anthropicsdk.MessageNewParams {
	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  buildMessages(req.Messages),
		Tools:     buildTools(req.Tools),
	}
	if req.Temperature != 0 {
		params.Temperature = anthropicsdk.Float(float64(req.Temperature))
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}
	if system := collectSystem(req.Messages); system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	return params
}

func collectSystem(messages []message.Message) string {
	var b strings.Builder
	for _, m := range messages {
		if m.Role == message.RoleSystem {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(m.Text)
		}
	}
	return b.String()
}

func buildMessages(messages []message.Message) []anthropicsdk.MessageParam {
	out := make([]anthropicsdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case message.RoleSystem:
			continue
		case message.RoleToolResponse:
			block := anthropicsdk.NewToolResultBlock(m.ToolCallID, m.Text, false)
			out = append(out, anthropicsdk.NewUserMessage(block))
		case message.RoleAssistant, message.RoleToolCall:
			blocks := make([]anthropicsdk.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Text != "" {
				blocks = append(blocks, anthropicsdk.NewTextBlock(m.Text))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if tc.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.Arguments), &input)
				}
				blocks = append(blocks, anthropicsdk.ContentBlockParamUnion{
					OfToolUse: &anthropicsdk.ToolUseBlockParam{ID: tc.ID, Name: tc.Name, Input: input},
				})
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropicsdk.NewTextBlock(""))
			}
			out = append(out, anthropicsdk.NewAssistantMessage(blocks...))
		default:
			out = append(out, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Text)))
		}
	}
	if len(out) == 0 {
		out = append(out, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock("Continue.")))
	}
	return out
}

func buildTools(tools []toolkit.Tool) []anthropicsdk.ToolUnionParam {
	out := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := toolkit.ToJSONSchema(t)
		fn, _ := schema["function"].(map[string]any)
		properties, _ := fn["parameters"].(map[string]any)
		var props any
		var required []string
		if properties != nil {
			props = properties["properties"]
			if r, ok := properties["required"].([]string); ok {
				required = r
			}
		}
		param := anthropicsdk.ToolParam{
			Name:        t.Name(),
			Description: anthropicsdk.String(t.Description()),
			InputSchema: anthropicsdk.ToolInputSchemaParam{Type: "object", Properties: props, Required: required},
		}
		out = append(out, anthropicsdk.ToolUnionParam{OfTool: &param})
	}
	return out
}

func messageFromResponse(resp *anthropicsdk.Message) message.Message {
	out := message.NewAssistant("")
	var text strings.Builder
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			text.WriteString(variant.Text)
		case anthropicsdk.ToolUseBlock:
			args := ""
			if len(variant.Input) > 0 {
				args = string(variant.Input)
			}
			out.ToolCalls = append(out.ToolCalls, message.ToolCall{ID: variant.ID, Name: variant.Name, Arguments: args})
		}
	}
	out.Text = text.String()
	out.Usage = &message.TokenUsage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}
	return out
}

var _ provider.Provider = (*Client)(nil)
