// Package message defines the canonical chat message model shared by every
// agent style and every model provider: Role, ToolCall, Message and their
// wire-format round trip.
package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Role is the fixed set of chat-message participants.
type Role string

const (
	RoleSystem        Role = "system"
	RoleUser          Role = "user"
	RoleAssistant     Role = "assistant"
	RoleToolCall      Role = "tool-call"
	RoleToolResponse  Role = "tool-response"
)

func (r Role) valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleToolCall, RoleToolResponse:
		return true
	}
	return false
}

// PartType is the recognized set of content-part kinds.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
	PartAudio PartType = "audio"
)

// Part is one element of a multi-part message content list.
type Part struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	Payload  []byte   `json:"-"`
	MimeType string   `json:"mime_type,omitempty"`
}

// ToolCall is a structured tool invocation request from the model.
//
// Arguments holds the JSON-encoded argument object as a string (decoded by
// ParsedArguments); while a stream is still being agglomerated it holds the
// string fragments accumulated so far.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ParsedArguments decodes Arguments as a JSON object.
func (tc ToolCall) ParsedArguments() (map[string]any, error) {
	if tc.Arguments == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(tc.Arguments), &out); err != nil {
		return nil, fmt.Errorf("tool call %q: arguments not a JSON object: %w", tc.Name, err)
	}
	return out, nil
}

// TokenUsage counts prompt/completion tokens for a single model call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns the sum of prompt and completion tokens.
func (u TokenUsage) Total() int { return u.PromptTokens + u.CompletionTokens }

// Add accumulates other into u in place.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}

// Message is one entry in a conversation.
//
// Content is either plain text (Text non-empty, Parts nil) or an ordered
// list of typed parts. Invariant: Role is one of the fixed roles; when
// Parts is non-nil every element has a recognized Type.
type Message struct {
	Role       Role
	Text       string
	Parts      []Part
	Name       string
	ToolCalls  []ToolCall
	ToolCallID string
	Usage      *TokenUsage
	Raw        any
	Timestamp  time.Time
}

// Validate checks the role/content invariants.
func (m Message) Validate() error {
	if !m.Role.valid() {
		return fmt.Errorf("message: invalid role %q", m.Role)
	}
	for i, p := range m.Parts {
		switch p.Type {
		case PartText, PartImage, PartAudio:
		default:
			return fmt.Errorf("message: part %d has unrecognized type %q", i, p.Type)
		}
	}
	return nil
}

// HasContent reports whether the message carries any text or parts.
func (m Message) HasContent() bool {
	return m.Text != "" || len(m.Parts) > 0
}

// NewUser builds a plain-text user message.
func NewUser(text string) Message { return Message{Role: RoleUser, Text: text, Timestamp: now()} }

// NewSystem builds a plain-text system message.
func NewSystem(text string) Message { return Message{Role: RoleSystem, Text: text, Timestamp: now()} }

// NewAssistant builds a plain-text assistant message.
func NewAssistant(text string) Message {
	return Message{Role: RoleAssistant, Text: text, Timestamp: now()}
}

// NewToolResponse builds a tool-response message for a given call id.
func NewToolResponse(toolCallID, name, text string) Message {
	return Message{
		Role:       RoleToolResponse,
		Text:       text,
		Name:       name,
		ToolCallID: toolCallID,
		Timestamp:  now(),
	}
}

func now() time.Time { return time.Now() }

// wireMessage is the §6 "Message-wire shape" persisted/logged form:
// {role, content, tool_calls?, token_usage?} where content is a string or
// an ordered list of {type, text|image|...} parts.
type wireMessage struct {
	Role      Role            `json:"role"`
	Content   json.RawMessage `json:"content,omitempty"`
	ToolCalls []wireToolCall  `json:"tool_calls,omitempty"`
	Usage     *TokenUsage     `json:"token_usage,omitempty"`
}

type wireToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type wirePart struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	Image    string   `json:"image,omitempty"` // base64
	Audio    string   `json:"audio,omitempty"` // base64
	MimeType string   `json:"mime_type,omitempty"`
}

// ToWire renders m into the §6 wire shape.
func (m Message) ToWire() ([]byte, error) {
	w := wireMessage{Role: m.Role, Usage: m.Usage}

	var content []byte
	var err error
	switch {
	case len(m.Parts) > 0:
		parts := make([]wirePart, 0, len(m.Parts))
		for _, p := range m.Parts {
			wp := wirePart{Type: p.Type, Text: p.Text, MimeType: p.MimeType}
			switch p.Type {
			case PartImage:
				wp.Image = encodeB64(p.Payload)
			case PartAudio:
				wp.Audio = encodeB64(p.Payload)
			}
			parts = append(parts, wp)
		}
		content, err = json.Marshal(parts)
	default:
		content, err = json.Marshal(m.Text)
	}
	if err != nil {
		return nil, err
	}
	w.Content = content

	for _, tc := range m.ToolCalls {
		args := tc.Arguments
		if args == "" {
			args = "{}"
		}
		w.ToolCalls = append(w.ToolCalls, wireToolCall{ID: tc.ID, Name: tc.Name, Arguments: json.RawMessage(args)})
	}

	out, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	if m.Name != "" {
		out, _ = sjson.SetBytes(out, "name", m.Name)
	}
	if m.ToolCallID != "" {
		out, _ = sjson.SetBytes(out, "tool_call_id", m.ToolCallID)
	}
	return out, nil
}

// FromWire parses the §6 wire shape back into a Message, tolerating
// providers that emit "content" as a bare string or as a parts array.
func FromWire(data []byte) (Message, error) {
	root := gjson.ParseBytes(data)
	if !root.Exists() {
		return Message{}, fmt.Errorf("message: empty wire payload")
	}
	m := Message{
		Role:       Role(root.Get("role").String()),
		Name:       root.Get("name").String(),
		ToolCallID: root.Get("tool_call_id").String(),
	}

	content := root.Get("content")
	switch {
	case content.IsArray():
		for _, part := range content.Array() {
			p := Part{Type: PartType(part.Get("type").String()), Text: part.Get("text").String(), MimeType: part.Get("mime_type").String()}
			if img := part.Get("image").String(); img != "" {
				p.Payload = decodeB64(img)
			}
			if aud := part.Get("audio").String(); aud != "" {
				p.Payload = decodeB64(aud)
			}
			m.Parts = append(m.Parts, p)
		}
	default:
		m.Text = content.String()
	}

	for _, tc := range root.Get("tool_calls").Array() {
		m.ToolCalls = append(m.ToolCalls, ToolCall{
			ID:        tc.Get("id").String(),
			Name:      tc.Get("name").String(),
			Arguments: tc.Get("arguments").Raw,
		})
	}

	if usage := root.Get("token_usage"); usage.Exists() {
		m.Usage = &TokenUsage{
			PromptTokens:     int(usage.Get("prompt_tokens").Int()),
			CompletionTokens: int(usage.Get("completion_tokens").Int()),
		}
	}

	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
