package message

import "strings"

// ToolCallDelta is a partial fragment of one tool call arriving on a
// stream, keyed by its slot Index within the assistant turn.
//
// Per spec.md §9 Open Question (i), this adopts first-write-wins for ID and
// Type, and string-append for Name and Arguments fragments.
type ToolCallDelta struct {
	Index     int
	ID        string
	Type      string
	Name      string
	Arguments string
}

// Delta is the partial shape of one streamed model response chunk.
type Delta struct {
	Content   string
	ToolCalls []ToolCallDelta
	Usage     *TokenUsage
}

type toolCallAccumulator struct {
	index     int
	id        string
	typ       string
	name      strings.Builder
	arguments strings.Builder
}

// Agglomerate reconciles an ordered list of stream deltas representing one
// model response into a single canonical assistant message, per spec.md
// §4.1. It is deterministic: splitting deltas into any order-preserving
// contiguous partition and agglomerating each part separately, then summing
// usage and concatenating content/argument fragments across the parts in
// order, reproduces the same final message (spec.md §8).
func Agglomerate(deltas []Delta, role Role) Message {
	if role == "" {
		role = RoleAssistant
	}

	var content strings.Builder
	var usage TokenUsage
	haveUsage := false

	order := make([]int, 0)
	byIndex := make(map[int]*toolCallAccumulator)

	for _, d := range deltas {
		content.WriteString(d.Content)

		for _, tcd := range d.ToolCalls {
			acc, ok := byIndex[tcd.Index]
			if !ok {
				acc = &toolCallAccumulator{index: tcd.Index}
				byIndex[tcd.Index] = acc
				order = append(order, tcd.Index)
			}
			// First-write-wins for identifiers: later non-null values are ignored.
			if tcd.ID != "" && acc.id == "" {
				acc.id = tcd.ID
			}
			if tcd.Type != "" && acc.typ == "" {
				acc.typ = tcd.Type
			}
			acc.name.WriteString(tcd.Name)
			acc.arguments.WriteString(tcd.Arguments)
		}

		if d.Usage != nil {
			usage.Add(*d.Usage)
			haveUsage = true
		}
	}

	sortInts(order)

	var calls []ToolCall
	for _, idx := range order {
		acc := byIndex[idx]
		calls = append(calls, ToolCall{
			ID:        acc.id,
			Name:      acc.name.String(),
			Arguments: acc.arguments.String(),
		})
	}

	m := Message{Role: role, Timestamp: now()}
	if content.Len() > 0 {
		m.Text = content.String()
	}
	if len(calls) > 0 {
		m.ToolCalls = calls
	}
	if haveUsage {
		m.Usage = &usage
	}
	return m
}

// sortInts is a tiny insertion sort; the number of concurrent tool-call
// slots in one assistant turn is always small enough that this beats
// pulling in sort.Ints for readability at the call site.
func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}
