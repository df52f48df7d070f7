package builtintools

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/agentloop/agentloop/toolkit"
)

// UserInput returns a tool that prompts r (typically os.Stdin) for a line of
// text and returns it verbatim. It blocks on ctx cancellation only in the
// sense that a cancelled context makes no difference to a blocking stdin
// read — callers that need a hard cutoff should not register this tool in
// non-interactive runs.
func UserInput(r io.Reader, w io.Writer) toolkit.Tool {
	reader := bufio.NewReader(r)
	return toolkit.NewFuncTool(
		"user_input",
		"Ask the human user a question and return their typed reply.",
		toolkit.Schema{
			"question": {Types: []toolkit.ParamType{toolkit.TypeString}, Description: "the question to show the user"},
		},
		toolkit.TypeString,
		func(ctx context.Context, args map[string]any) (any, error) {
			question, _ := args["question"].(string)
			if w != nil && question != "" {
				fmt.Fprintln(w, question)
			}
			line, err := reader.ReadString('\n')
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("user_input: %w", err)
			}
			return trimNewline(line), nil
		},
		nil,
	)
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
