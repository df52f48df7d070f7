// Package builtintools ships the optional, pluggable tools spec.md §6
// mentions as collaborators an agent may register alongside its
// task-specific tools: final_answer, user_input, web_search, visit_webpage.
package builtintools

import (
	"context"

	"github.com/agentloop/agentloop/toolkit"
)

// FinalAnswer returns the reserved final_answer tool. Its Forward is a pure
// identity projection of the "answer" argument. The tool-calling agent
// recognizes a final_answer call by name, dispatches it through
// toolkit.Registry/toolkit.Call like any other tool, and takes the step's
// output from this return value. The code agent does not use this tool: its
// executor installs its own final_answer Lua global.
func FinalAnswer() toolkit.Tool {
	return toolkit.NewFuncTool(
		"final_answer",
		"Provide the final answer to the task. Calling this ends the run.",
		toolkit.Schema{
			"answer": {Types: []toolkit.ParamType{toolkit.TypeAny}, Description: "the final answer value"},
		},
		toolkit.TypeAny,
		func(ctx context.Context, args map[string]any) (any, error) {
			return args["answer"], nil
		},
		nil,
	)
}
