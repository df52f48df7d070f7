// Package toolkit implements the tool contract of spec.md §4.2: declared
// input schemas, argument validation with the one permitted coercion,
// one-time setup, sanitize_io wrapping, and the JSON-schema projection used
// to advertise tools to a model's function-calling channel.
package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentloop/agentloop/agenterr"
	"github.com/agentloop/agentloop/typedvalue"
)

// ParamType is the fixed set of declarable parameter/output types.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
	TypeImage   ParamType = "image"
	TypeAudio   ParamType = "audio"
	TypeAny     ParamType = "any"
	TypeNull    ParamType = "null"
)

func validParamType(t ParamType) bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject, TypeImage, TypeAudio, TypeAny, TypeNull:
		return true
	}
	return false
}

// Param declares one input parameter.
type Param struct {
	// Types is a union of acceptable types; len(Types) == 1 for the common
	// case of a single declared type.
	Types       []ParamType
	Description string
	Nullable    bool
	HasDefault  bool
	Default     any
}

// Schema is a tool's full input declaration: parameter name -> Param.
type Schema map[string]Param

// Tool is the abstract contract every callable — whether hand-written or a
// FuncTool adapter — implements.
type Tool interface {
	Name() string
	Description() string
	InputSchema() Schema
	OutputType() ParamType
	// Forward runs the tool's behavior against already-validated,
	// already-unwrapped arguments. It must not itself re-validate or
	// re-wrap; Call does both around it.
	Forward(ctx context.Context, args map[string]any) (any, error)
}

// reservedNames records the final-answer sentinel name. Nothing in this
// package rejects a tool because its name is reserved: Register and
// ValidateSchema accept final_answer like any other valid identifier.
var reservedNames = map[string]bool{
	"final_answer": false, // the reserved name itself IS allowed to register: this flag marks names that collide with it
}

// ValidIdentifier reports whether name can be a tool name: non-empty,
// starts with a letter or underscore, and contains only
// letters/digits/underscores.
func ValidIdentifier(name string) bool {
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

// Call runs t.Forward after assembling positional and kwargs into the final
// argument map -- promoting a single positional argument that is itself a
// mapping of declared parameter names into kwargs, per spec.md §4.2 -- and
// validating the result against t.InputSchema. When sanitizeIO is set,
// typed-wrapper arguments are unwrapped first and the result re-wrapped
// afterward according to t.OutputType() (image and audio results are
// re-wrapped only when store is non-nil). It also runs the tool's one-time
// setup hook, if any, exactly once.
func Call(ctx context.Context, t Tool, positional []any, kwargs map[string]any, sanitizeIO bool, store func(kind typedvalue.Kind, raw []byte, mime string) string) (any, error) {
	if err := ensureSetup(t); err != nil {
		return nil, agenterr.Wrap(agenterr.KindToolExec, fmt.Errorf("tool %q setup: %w", t.Name(), err))
	}

	assembled := PromoteKwargs(t.InputSchema(), positional, kwargs)
	working := assembled
	if sanitizeIO {
		working = make(map[string]any, len(assembled))
		for k, v := range assembled {
			working[k] = typedvalue.Unwrap(v)
		}
	}

	if err := Validate(t.InputSchema(), working); err != nil {
		return nil, err
	}
	working = applyDefaults(t.InputSchema(), working)

	result, err := t.Forward(ctx, working)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindToolExec, err)
	}

	if sanitizeIO && (store != nil || t.OutputType() == TypeString) {
		result = typedvalue.Wrap(string(t.OutputType()), result, store)
	}
	return result, nil
}

// OneTimeSetup is implemented by tools that need idempotent initialization
// on first Call (spec.md §4.2 "One-time setup").
type OneTimeSetup interface {
	Setup(ctx context.Context) error
}

var setupOnce sync.Map // Tool (by name) -> *sync.Once, process-local dedup of the one-time hook

func ensureSetup(t Tool) error {
	s, ok := t.(OneTimeSetup)
	if !ok {
		return nil
	}
	onceAny, _ := setupOnce.LoadOrStore(t.Name(), &sync.Once{})
	once := onceAny.(*sync.Once)
	var err error
	once.Do(func() { err = s.Setup(context.Background()) })
	return err
}

// Validate walks the declared schema against args, implementing spec.md
// §4.2's argument validation: unknown names, missing required arguments,
// and type mismatches (with the integer-satisfies-number coercion, `any`
// matching anything, union-type membership, and null-satisfies-nullable)
// all raise ToolCallError.
func Validate(schema Schema, args map[string]any) error {
	for name := range args {
		if _, ok := schema[name]; !ok {
			return agenterr.Newf(agenterr.KindToolCall, "unknown argument %q", name)
		}
	}
	for name, p := range schema {
		v, present := args[name]
		if !present {
			if p.Nullable || p.HasDefault {
				continue
			}
			return agenterr.Newf(agenterr.KindToolCall, "missing required argument %q", name)
		}
		if v == nil {
			if p.Nullable {
				continue
			}
			return agenterr.Newf(agenterr.KindToolCall, "argument %q is not nullable", name)
		}
		if !satisfiesAny(p.Types, v) {
			return agenterr.Newf(agenterr.KindToolCall, "argument %q: type mismatch (expected %v)", name, p.Types)
		}
	}
	return nil
}

func applyDefaults(schema Schema, args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	for name, p := range schema {
		if _, present := out[name]; !present && p.HasDefault {
			out[name] = p.Default
		}
	}
	return out
}

func satisfiesAny(types []ParamType, v any) bool {
	for _, t := range types {
		if satisfies(t, v) {
			return true
		}
	}
	return false
}

func satisfies(t ParamType, v any) bool {
	if t == TypeAny {
		return true
	}
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeInteger:
		return isInteger(v)
	case TypeNumber:
		return isInteger(v) || isFloat(v)
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case TypeImage, TypeAudio:
		return true // carried as typedvalue.Value or raw []byte at this layer
	case TypeNull:
		return v == nil
	default:
		return false
	}
}

func isInteger(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		f := v.(float64)
		return f == float64(int64(f))
	}
	return false
}

func isFloat(v any) bool {
	_, ok := v.(float64)
	return ok
}

// ToJSONSchema projects a tool into the OpenAI-style function descriptor
// named in spec.md §4.2: `any` is rewritten to `string`, and `required`
// lists every parameter lacking both a default and Nullable:true.
func ToJSONSchema(t Tool) map[string]any {
	properties := map[string]any{}
	var required []string

	for name, p := range t.InputSchema() {
		prop := map[string]any{"description": p.Description}
		jsonTypes := make([]string, 0, len(p.Types))
		for _, pt := range p.Types {
			jt := string(pt)
			if pt == TypeAny {
				jt = "string"
			}
			jsonTypes = append(jsonTypes, jt)
		}
		if len(jsonTypes) == 1 {
			prop["type"] = jsonTypes[0]
		} else {
			prop["type"] = jsonTypes
		}
		properties[name] = prop

		if !p.HasDefault && !p.Nullable {
			required = append(required, name)
		}
	}

	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name(),
			"description": t.Description(),
			"parameters": map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

// ToJSON renders ToJSONSchema as compact JSON, for embedding in a code
// agent's tool-signature preamble.
func ToJSON(t Tool) (string, error) {
	b, err := json.Marshal(ToJSONSchema(t))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToCodeSignature renders a Python/Lua-style call signature for the code
// agent's system prompt, e.g. `add(a: number, b: number) -> number`.
func ToCodeSignature(t Tool) string {
	schema := t.InputSchema()
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sortStrings(names)

	out := t.Name() + "("
	for i, name := range names {
		if i > 0 {
			out += ", "
		}
		p := schema[name]
		typ := "any"
		if len(p.Types) > 0 {
			typ = string(p.Types[0])
		}
		out += name + ": " + typ
	}
	out += ") -> " + string(t.OutputType())
	return out
}

func sortStrings(xs []string) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

// ValidateSchema checks the tool-declaration invariant of spec.md §3: every
// declared parameter has at least one type and a description, the output
// type is authorized, and the name is a valid identifier. Reserved names
// such as final_answer are not rejected.
func ValidateSchema(t Tool) error {
	if !ValidIdentifier(t.Name()) {
		return agenterr.Newf(agenterr.KindToolCall, "tool name %q is not a valid identifier", t.Name())
	}
	if !validParamType(t.OutputType()) {
		return agenterr.Newf(agenterr.KindToolCall, "tool %q: unauthorized output type %q", t.Name(), t.OutputType())
	}
	for name, p := range t.InputSchema() {
		if len(p.Types) == 0 {
			return agenterr.Newf(agenterr.KindToolCall, "tool %q: parameter %q missing a type", t.Name(), name)
		}
		for _, pt := range p.Types {
			if !validParamType(pt) {
				return agenterr.Newf(agenterr.KindToolCall, "tool %q: parameter %q has unauthorized type %q", t.Name(), name, pt)
			}
		}
		if p.Description == "" {
			return agenterr.Newf(agenterr.KindToolCall, "tool %q: parameter %q missing a description", t.Name(), name)
		}
	}
	return nil
}
