// Package gemini adapts the Google Gemini API (via google.golang.org/genai)
// to provider.Provider.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/agentloop/agentloop/message"
	"github.com/agentloop/agentloop/provider"
	"github.com/agentloop/agentloop/toolkit"
)

// Config configures a Client.
type Config struct {
	APIKey string
}

// Client implements provider.Provider against the Gemini generateContent API.
type Client struct {
	sdk    *genai.Client
	logger *zap.Logger
}

// New builds a Client. If logger is nil, a no-op logger is used.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sdk, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{sdk: sdk, logger: logger.With(zap.String("component", "provider.gemini"))}, nil
}

func (c *Client) Name() string             { return "gemini" }
func (c *Client) SupportsToolCalling() bool { return true }

func (c *Client) HealthCheck(ctx context.Context) (provider.HealthStatus, error) {
	start := time.Now()
	_, err := c.sdk.Models.List(ctx, nil)
	latency := time.Since(start)
	if err != nil {
		return provider.HealthStatus{Healthy: false, Latency: latency}, err
	}
	return provider.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (c *Client) Generate(ctx context.Context, req provider.Request) (message.Message, error) {
	contents, config := buildRequest(req)
	resp, err := c.sdk.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return message.Message{}, provider.ClassifyRetryable(fmt.Errorf("gemini generate: %w", err))
	}
	return messageFromResponse(resp), nil
}

func (c *Client) GenerateStream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	contents, config := buildRequest(req)
	out := make(chan provider.StreamEvent)

	go func() {
		defer close(out)
		for chunk, err := range c.sdk.Models.GenerateContentStream(ctx, req.Model, contents, config) {
			if err != nil {
				out <- provider.StreamEvent{Err: provider.ClassifyRetryable(err)}
				return
			}
			if d, ok := deltaFromChunk(chunk); ok {
				out <- provider.StreamEvent{Delta: d}
			}
		}
	}()
	return out, nil
}

func deltaFromChunk(chunk *genai.GenerateContentResponse) (message.Delta, bool) {
	if len(chunk.Candidates) == 0 || chunk.Candidates[0].Content == nil {
		return message.Delta{}, false
	}
	var delta message.Delta
	found := false
	for i, part := range chunk.Candidates[0].Content.Parts {
		if part.Text != "" {
			delta.Content += part.Text
			found = true
		}
		if part.FunctionCall != nil {
			args, _ := marshalArgs(part.FunctionCall.Args)
			delta.ToolCalls = append(delta.ToolCalls, message.ToolCallDelta{
				Index: i, ID: part.FunctionCall.ID, Type: "function", Name: part.FunctionCall.Name, Arguments: args,
			})
			found = true
		}
	}
	if chunk.UsageMetadata != nil {
		delta.Usage = &message.TokenUsage{
			PromptTokens:     int(chunk.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(chunk.UsageMetadata.CandidatesTokenCount),
		}
	}
	return delta, found
}

func buildRequest(req provider.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}
	if system := collectSystem(req.Messages); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature != 0 {
		t := float32(req.Temperature)
		config.Temperature = &t
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.StopSequences) > 0 {
		config.StopSequences = req.StopSequences
	}
	if tools := buildTools(req.Tools); len(tools) > 0 {
		config.Tools = tools
	}
	return buildContents(req.Messages), config
}

func collectSystem(messages []message.Message) string {
	out := ""
	for _, m := range messages {
		if m.Role == message.RoleSystem {
			if out != "" {
				out += "\n\n"
			}
			out += m.Text
		}
	}
	return out
}

func buildContents(messages []message.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case message.RoleSystem:
			continue
		case message.RoleUser:
			out = append(out, genai.NewContentFromText(m.Text, genai.RoleUser))
		case message.RoleToolResponse:
			part := genai.NewPartFromFunctionResponse(m.Name, map[string]any{"result": m.Text})
			out = append(out, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		case message.RoleAssistant, message.RoleToolCall:
			parts := make([]*genai.Part, 0, len(m.ToolCalls)+1)
			if m.Text != "" {
				parts = append(parts, genai.NewPartFromText(m.Text))
			}
			for _, tc := range m.ToolCalls {
				args, _ := tc.ParsedArguments()
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, args))
			}
			out = append(out, genai.NewContentFromParts(parts, genai.RoleModel))
		}
	}
	return out
}

func buildTools(tools []toolkit.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		schema := toolkit.ToJSONSchema(t)
		fn, _ := schema["function"].(map[string]any)
		parameters, _ := fn["parameters"].(map[string]any)
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  schemaFromMap(parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func schemaFromMap(m map[string]any) *genai.Schema {
	if m == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	props := map[string]*genai.Schema{}
	if p, ok := m["properties"].(map[string]any); ok {
		for name, raw := range p {
			prop, _ := raw.(map[string]any)
			t, _ := prop["type"].(string)
			props[name] = &genai.Schema{Type: genai.Type(jsonTypeToGenai(t))}
		}
	}
	var required []string
	if r, ok := m["required"].([]string); ok {
		required = r
	}
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

func jsonTypeToGenai(t string) string {
	switch t {
	case "integer":
		return "INTEGER"
	case "number":
		return "NUMBER"
	case "boolean":
		return "BOOLEAN"
	case "array":
		return "ARRAY"
	case "object":
		return "OBJECT"
	default:
		return "STRING"
	}
}

func marshalArgs(args map[string]any) (string, error) {
	if len(args) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func messageFromResponse(resp *genai.GenerateContentResponse) message.Message {
	out := message.NewAssistant("")
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				out.Text += part.Text
			}
			if part.FunctionCall != nil {
				args, _ := marshalArgs(part.FunctionCall.Args)
				out.ToolCalls = append(out.ToolCalls, message.ToolCall{
					ID: part.FunctionCall.ID, Name: part.FunctionCall.Name, Arguments: args,
				})
			}
		}
	}
	if resp.UsageMetadata != nil {
		out.Usage = &message.TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out
}

var _ provider.Provider = (*Client)(nil)
