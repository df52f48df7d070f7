// Package typedvalue implements the small tagged union of value wrappers
// (spec.md §3 "Type wrappers", §9 design note) that let text/image/audio
// payloads survive a round trip through the model's text-only channel: a
// tool returns raw bytes, the sanitize_io pass wraps them, the model later
// hands a serialized form (a path, or the same bytes) back to a tool input,
// which unwraps it again before Tool.Call runs.
package typedvalue

import "fmt"

// Kind is the tag of a typed wrapper.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Value is a tagged carrier for a cross-tool-boundary payload.
type Value struct {
	kind    Kind
	text    string // for KindText: the string itself; for KindImage/KindAudio: a storage key or path
	raw     []byte // for KindImage/KindAudio: the native bytes
	mime    string
}

// Text wraps a plain string.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Image wraps raw image bytes under the given stored key/path and MIME type.
func Image(key string, raw []byte, mime string) Value {
	return Value{kind: KindImage, text: key, raw: raw, mime: mime}
}

// Audio wraps raw audio samples under the given stored key/path and MIME type.
func Audio(key string, raw []byte, mime string) Value {
	return Value{kind: KindAudio, text: key, raw: raw, mime: mime}
}

// Kind returns the wrapper's tag.
func (v Value) Kind() Kind { return v.kind }

// Raw returns the native payload: the string itself for text, or the raw
// bytes for image/audio.
func (v Value) Raw() any {
	switch v.kind {
	case KindText:
		return v.text
	default:
		return v.raw
	}
}

// String returns the serialized form crossing the model's text channel: the
// string itself for text, or the stored key/path for image/audio.
func (v Value) String() string { return v.text }

// MimeType returns the MIME type for image/audio wrappers.
func (v Value) MimeType() string { return v.mime }

func (v Value) GoString() string {
	return fmt.Sprintf("typedvalue.Value{kind:%s, string:%q, bytes:%d}", v.kind, v.text, len(v.raw))
}

// Unwrap recursively strips wrapping from an argument value ahead of a tool
// call, per spec.md §4.2's sanitize_io invocation contract.
func Unwrap(arg any) any {
	switch x := arg.(type) {
	case Value:
		return x.Raw()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Unwrap(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Unwrap(e)
		}
		return out
	default:
		return arg
	}
}

// Wrap re-wraps a tool's return value according to its declared output
// type, per spec.md §4.2: "string/text → text wrapper, image → image
// wrapper, audio → audio wrapper, else identity".
func Wrap(outputType string, result any, storeKey func(kind Kind, raw []byte, mime string) string) any {
	switch outputType {
	case "string", "text":
		if s, ok := result.(string); ok {
			return Text(s)
		}
		return result
	case "image":
		raw, ok := result.([]byte)
		if !ok {
			return result
		}
		key := storeKey(KindImage, raw, "image/png")
		return Image(key, raw, "image/png")
	case "audio":
		raw, ok := result.([]byte)
		if !ok {
			return result
		}
		key := storeKey(KindAudio, raw, "audio/mpeg")
		return Audio(key, raw, "audio/mpeg")
	default:
		return result
	}
}
