package toolkit

// PromoteKwargs implements spec.md §4.2's single-positional-mapping
// promotion: when a call arrives as one positional argument whose value is
// itself a map of declared parameter names, that map becomes the keyword
// arguments instead of being passed as a literal first parameter.
func PromoteKwargs(schema Schema, positional []any, kwargs map[string]any) map[string]any {
	if len(positional) == 1 && len(kwargs) == 0 {
		if m, ok := positional[0].(map[string]any); ok && allDeclared(schema, m) {
			return m
		}
	}
	out := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		out[k] = v
	}
	return out
}

func allDeclared(schema Schema, m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if _, ok := schema[k]; !ok {
			return false
		}
	}
	return true
}
