// Package tokencount provides token counting for messages and tool
// schemas, feeding the token-usage fields on memory steps and the
// aggregate RunResult.
package tokencount

import "github.com/agentloop/agentloop/message"

// Tokenizer counts tokens for the shapes that cross the model boundary.
type Tokenizer interface {
	CountText(text string) int
	CountMessage(m message.Message) int
	CountMessages(msgs []message.Message) int
}
