package tokencount

import "github.com/agentloop/agentloop/message"

// EstimateCounter is a character-based token estimator, adapted from the
// teacher's types.EstimateTokenizer, used when the real BPE tokenizer has
// no encoding for a model id.
type EstimateCounter struct {
	charsPerToken float64
	msgOverhead   int
}

// NewEstimateCounter returns an EstimateCounter with the teacher's defaults.
func NewEstimateCounter() *EstimateCounter {
	return &EstimateCounter{charsPerToken: 4.0, msgOverhead: 4}
}

// CountText estimates tokens in text, weighting CJK runes more heavily than
// the teacher's charsPerToken constant does for other scripts.
func (e *EstimateCounter) CountText(text string) int {
	if text == "" {
		return 0
	}
	var cjk, other int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FA5 {
			cjk++
		} else {
			other++
		}
	}
	tokens := float64(cjk)/1.5 + float64(other)/e.charsPerToken
	if tokens < 1 {
		return 1
	}
	return int(tokens)
}

// CountMessage estimates tokens in one message.
func (e *EstimateCounter) CountMessage(m message.Message) int {
	total := e.msgOverhead
	total += e.CountText(m.Text)
	if m.Name != "" {
		total += e.CountText(m.Name)
	}
	for _, tc := range m.ToolCalls {
		total += e.CountText(tc.Name)
		total += len(tc.Arguments) / 4
	}
	return total
}

// CountMessages sums CountMessage over a slice.
func (e *EstimateCounter) CountMessages(msgs []message.Message) int {
	total := 0
	for _, m := range msgs {
		total += e.CountMessage(m)
	}
	return total
}

var _ Tokenizer = (*EstimateCounter)(nil)
