package tokencount

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/agentloop/agentloop/message"
)

// TiktokenCounter counts tokens with the real BPE tokenizer used by OpenAI
// and, closely enough for budgeting purposes, by most other chat model
// vendors. Model ids tiktoken doesn't recognize use the cl100k_base
// encoding; it falls back to EstimateCounter only when no encoding can be
// loaded, mirroring the teacher's EstimateTokenizer as the degrade path.
type TiktokenCounter struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
	fallback *EstimateCounter
}

// NewTiktokenCounter creates a counter. The model id passed to
// CountTextForModel selects the BPE encoding (e.g. "gpt-4o", "gpt-4");
// CountText uses "gpt-4". An unrecognized model id falls
// back to the cl100k_base encoding, and a failure to load any encoding at
// all falls back to character-based estimation.
func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{encoders: make(map[string]*tiktoken.Tiktoken), fallback: NewEstimateCounter()}
}

func (t *TiktokenCounter) encoderFor(model string) *tiktoken.Tiktoken {
	t.mu.Lock()
	defer t.mu.Unlock()

	if enc, ok := t.encoders[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(normalizeModel(model))
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		t.encoders[model] = nil
		return nil
	}
	t.encoders[model] = enc
	return enc
}

// CountTextForModel counts text tokens using the encoding for a specific
// model id.
func (t *TiktokenCounter) CountTextForModel(model, text string) int {
	if text == "" {
		return 0
	}
	enc := t.encoderFor(model)
	if enc == nil {
		return t.fallback.CountText(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// CountText counts text tokens using the default cl100k_base encoding.
func (t *TiktokenCounter) CountText(text string) int {
	return t.CountTextForModel("gpt-4", text)
}

// CountMessage counts tokens in one message's text, tool-call names and
// arguments.
func (t *TiktokenCounter) CountMessage(m message.Message) int {
	total := 4 // per-message role/delimiter overhead
	total += t.CountText(m.Text)
	if m.Name != "" {
		total += t.CountText(m.Name)
	}
	for _, p := range m.Parts {
		total += t.CountText(p.Text)
	}
	for _, tc := range m.ToolCalls {
		total += t.CountText(tc.Name)
		total += t.CountText(tc.Arguments)
	}
	return total
}

// CountMessages sums CountMessage over a slice.
func (t *TiktokenCounter) CountMessages(msgs []message.Message) int {
	total := 0
	for _, m := range msgs {
		total += t.CountMessage(m)
	}
	return total
}

var _ Tokenizer = (*TiktokenCounter)(nil)

// normalizeModel strips a vendor prefix tiktoken doesn't know about (e.g.
// "anthropic/claude-3-5-sonnet-20241022" -> "claude-3-5-sonnet-20241022")
// before falling through to EncodingForModel, which only recognizes OpenAI
// model families. Date suffixes are kept.
func normalizeModel(model string) string {
	if idx := strings.LastIndex(model, "/"); idx >= 0 {
		model = model[idx+1:]
	}
	return model
}
