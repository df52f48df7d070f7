// Package openai adapts the OpenAI Chat Completions API to provider.Provider.
package openai

import (
	"context"
	"fmt"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
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

// Client implements provider.Provider against OpenAI's chat.completions API,
// and against any OpenAI-wire-compatible endpoint when BaseURL is set.
type Client struct {
	sdk    openaisdk.Client
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
		sdk:    openaisdk.NewClient(opts...),
		logger: logger.With(zap.String("component", "provider.openai")),
	}
}

func (c *Client) Name() string             { return "openai" }
func (c *Client) SupportsToolCalling() bool { return true }

func (c *Client) HealthCheck(ctx context.Context) (provider.HealthStatus, error) {
	start := time.Now()
	_, err := c.sdk.Models.List(ctx)
	latency := time.Since(start)
	if err != nil {
		return provider.HealthStatus{Healthy: false, Latency: latency}, err
	}
	return provider.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (c *Client) Generate(ctx context.Context, req provider.Request) (message.Message, error) {
	params := buildParams(req)
	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return message.Message{}, provider.ClassifyRetryable(fmt.Errorf("openai generate: %w", err))
	}
	if len(resp.Choices) == 0 {
		return message.Message{}, fmt.Errorf("openai generate: no choices returned")
	}
	return messageFromCompletion(resp), nil
}

func (c *Client) GenerateStream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	params := buildParams(req)
	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	out := make(chan provider.StreamEvent)

	go func() {
		defer close(out)
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			var delta message.Delta
			if choice.Delta.Content != "" {
				delta.Content = choice.Delta.Content
			}
			for _, tc := range choice.Delta.ToolCalls {
				delta.ToolCalls = append(delta.ToolCalls, message.ToolCallDelta{
					Index: int(tc.Index), ID: tc.ID, Type: "function", Name: tc.Function.Name, Arguments: tc.Function.Arguments,
				})
			}
			if delta.Content != "" || len(delta.ToolCalls) > 0 {
				out <- provider.StreamEvent{Delta: delta}
			}
		}
		if err := stream.Err(); err != nil {
			out <- provider.StreamEvent{Err: provider.ClassifyRetryable(err)}
		}
	}()
	return out, nil
}

func buildParams(req provider.Request) openaisdk.ChatCompletionNewParams {
	params := openaisdk.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: buildMessages(req.Messages),
	}
	if len(req.StopSequences) > 0 {
		params.Stop = openaisdk.ChatCompletionNewParamsStopUnion{OfStringArray: req.StopSequences}
	}
	if req.Temperature != 0 {
		params.Temperature = openaisdk.Float(float64(req.Temperature))
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(int64(req.MaxTokens))
	}
	if tools := buildTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	return params
}

func buildMessages(messages []message.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case message.RoleSystem:
			out = append(out, openaisdk.SystemMessage(m.Text))
		case message.RoleUser:
			out = append(out, openaisdk.UserMessage(m.Text))
		case message.RoleToolResponse:
			out = append(out, openaisdk.ToolMessage(m.Text, m.ToolCallID))
		case message.RoleAssistant, message.RoleToolCall:
			asst := openaisdk.ChatCompletionAssistantMessageParam{}
			if m.Text != "" {
				asst.Content.OfString = openaisdk.String(m.Text)
			}
			for _, tc := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openaisdk.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openaisdk.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openaisdk.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					},
				})
			}
			out = append(out, openaisdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		}
	}
	return out
}

func buildTools(tools []toolkit.Tool) []openaisdk.ChatCompletionToolUnionParam {
	out := make([]openaisdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := toolkit.ToJSONSchema(t)
		fn, _ := schema["function"].(map[string]any)
		parameters, _ := fn["parameters"].(map[string]any)
		out = append(out, openaisdk.ChatCompletionToolUnionParam{
			OfFunction: &openaisdk.ChatCompletionFunctionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        t.Name(),
					Description: openaisdk.String(t.Description()),
					Parameters:  shared.FunctionParameters(parameters),
				},
			},
		})
	}
	return out
}

func messageFromCompletion(resp *openaisdk.ChatCompletion) message.Message {
	choice := resp.Choices[0]
	out := message.NewAssistant(choice.Message.Content)
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, message.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	out.Usage = &message.TokenUsage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}
	return out
}

var _ provider.Provider = (*Client)(nil)
