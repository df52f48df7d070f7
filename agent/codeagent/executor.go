package codeagent

import (
	"context"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/agentloop/agentloop/agent/driver"
	"github.com/agentloop/agentloop/agenterr"
	"github.com/agentloop/agentloop/toolkit"
	"github.com/agentloop/agentloop/typedvalue"
)

const defaultMaxPrintOutputsLength = 50_000

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// AuthorizedGlobals additionally opens named Lua standard-library
	// tables beyond the always-open base/string/table/math set. Lua has no
	// import system, so spec.md's additional_authorized_imports maps onto
	// "which extra stdlib table to expose" (spec.md §4.7, SPEC_FULL.md
	// §12; recorded as an Open Question resolution in DESIGN.md).
	// Recognized values: "os", "io".
	AuthorizedGlobals []string

	// MaxPrintOutputsLength truncates the captured print() log buffer.
	// Defaults to 50000 when <= 0.
	MaxPrintOutputsLength int
}

// Result is the executor's outcome for one code snippet, per spec.md §4.7's
// execution contract.
type Result struct {
	Output        any
	Logs          string
	IsFinalAnswer bool
}

// Executor runs a Lua snippet in a restricted, non-security-boundary
// sandbox: each registered tool is injected as a single-table-argument
// global function, a distinguished final_answer global records its
// argument, print() is captured into a capped log buffer, and only the
// base/string/table/math standard libraries are opened by default.
type Executor struct {
	cfg ExecutorConfig
}

// NewExecutor builds an Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.MaxPrintOutputsLength <= 0 {
		cfg.MaxPrintOutputsLength = defaultMaxPrintOutputsLength
	}
	return &Executor{cfg: cfg}
}

// Run evaluates code with every tool in registry and every state variable
// in state injected as Lua globals.
func (e *Executor) Run(ctx context.Context, code string, registry *toolkit.Registry, state *driver.AgentState) (Result, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, g := range e.cfg.AuthorizedGlobals {
		switch g {
		case "os":
			lua.OpenOs(L)
		case "io":
			lua.OpenIo(L)
		}
	}

	var logs strings.Builder
	L.SetGlobal("print", L.NewFunction(printCapture(&logs, e.cfg.MaxPrintOutputsLength)))

	var finalValue any
	var finalCalled bool
	L.SetGlobal("final_answer", L.NewFunction(func(ls *lua.LState) int {
		v := luaToGo(ls.CheckAny(1))
		finalValue = v
		finalCalled = true
		ls.Push(ls.Get(1))
		return 1
	}))

	if registry != nil {
		for _, t := range registry.All() {
			if t.Name() == "final_answer" {
				continue // the distinguished global above already owns this name
			}
			L.SetGlobal(t.Name(), L.NewFunction(toolFunc(ctx, t, state)))
		}
	}
	if state != nil {
		for name, v := range state.Snapshot() {
			if !isValidLuaGlobalName(name) {
				continue
			}
			L.SetGlobal(name, goToLua(L, v))
		}
	}

	top := L.GetTop()
	if err := L.DoString(code); err != nil {
		logs.WriteString(err.Error())
		return Result{Logs: truncateString(logs.String(), e.cfg.MaxPrintOutputsLength)},
			agenterr.Wrap(agenterr.KindExecution, fmt.Errorf("code execution: %w", err))
	}

	var output any
	if finalCalled {
		output = finalValue
	} else if L.GetTop() > top {
		output = luaToGo(L.Get(-1))
		L.Pop(1)
	}

	return Result{
		Output:        output,
		Logs:          truncateString(logs.String(), e.cfg.MaxPrintOutputsLength),
		IsFinalAnswer: finalCalled,
	}, nil
}

func printCapture(logs *strings.Builder, maxLen int) lua.LGFunction {
	return func(ls *lua.LState) int {
		n := ls.GetTop()
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			parts = append(parts, ls.Get(i).String())
		}
		if logs.Len() < maxLen {
			logs.WriteString(strings.Join(parts, "\t"))
			logs.WriteString("\n")
		}
		return 0
	}
}

// toolFunc adapts one registered tool into a Lua global taking a single
// table argument of keyword args, per spec.md §4.7's injection contract.
// The table (e.g. add({a = 2, b = 3})) arrives here as one positional
// value that is itself a mapping; toolkit.Call promotes it to kwargs per
// spec.md §4.2. Other positional values are not bound to parameters.
func toolFunc(ctx context.Context, t toolkit.Tool, state *driver.AgentState) lua.LGFunction {
	return func(ls *lua.LState) int {
		positional := make([]any, 0, ls.GetTop())
		for i := 1; i <= ls.GetTop(); i++ {
			positional = append(positional, luaToGo(ls.Get(i)))
		}

		var store func(kind typedvalue.Kind, raw []byte, mime string) string
		if state != nil {
			store = state.Store
		}

		out, err := toolkit.Call(ctx, t, positional, nil, true, store)
		if err != nil {
			ls.Push(lua.LNil)
			ls.Push(lua.LString(err.Error()))
			return 2
		}
		ls.Push(goToLua(ls, out))
		return 1
	}
}

// isValidLuaGlobalName reports whether name is safe to install as a global:
// a letter or underscore followed by letters, digits or underscores. State
// keys generated by agent/driver (e.g. "image.png") fail this and are
// skipped rather than mangled into a different identifier.
func isValidLuaGlobalName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 {
			if !isLetter {
				return false
			}
			continue
		}
		if !isLetter && !isDigit {
			return false
		}
	}
	return true
}

func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "... [truncated]"
}

// luaTableToGo converts a Lua table of keyword args into a Go map.
func luaTableToGo(tbl *lua.LTable) map[string]any {
	out := map[string]any{}
	tbl.ForEach(func(k, v lua.LValue) {
		out[k.String()] = luaToGo(v)
	})
	return out
}

// luaToGo converts a single Lua value into its Go equivalent.
func luaToGo(v lua.LValue) any {
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTBool:
		return bool(v.(lua.LBool))
	case lua.LTNumber:
		return float64(v.(lua.LNumber))
	case lua.LTString:
		return string(v.(lua.LString))
	case lua.LTTable:
		tbl := v.(*lua.LTable)
		if n := tbl.Len(); n > 0 {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, luaToGo(tbl.RawGetInt(i)))
			}
			return out
		}
		return luaTableToGo(tbl)
	default:
		return v.String()
	}
}

// goToLua converts a Go value returned from a tool call into its Lua
// equivalent, unwrapping typedvalue.Value into the serialized string form
// that crosses the model's text channel.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case []byte:
		return lua.LString(string(x))
	case typedvalue.Value:
		return lua.LString(x.String())
	case []any:
		tbl := L.NewTable()
		for _, e := range x {
			tbl.Append(goToLua(L, e))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, e := range x {
			tbl.RawSetString(k, goToLua(L, e))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", x))
	}
}
