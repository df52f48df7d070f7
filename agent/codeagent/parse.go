package codeagent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/tidwall/gjson"
	"github.com/yuin/gopher-lua"

	"github.com/agentloop/agentloop/agenterr"
)

// Default sentinel tags used outside structured-output/markdown mode.
const (
	DefaultOpeningTag  = "<code>"
	DefaultClosingTag  = "</code>"
	MarkdownOpeningTag = "```lua"
	MarkdownClosingTag = "```"
)

// TagConfig names the code-block delimiter pair the model is instructed to
// wrap its snippet in, per spec.md §4.7.
type TagConfig struct {
	Opening string
	Closing string
}

func (t TagConfig) withDefaults() TagConfig {
	if t.Opening == "" {
		t.Opening = DefaultOpeningTag
	}
	if t.Closing == "" {
		t.Closing = DefaultClosingTag
	}
	return t
}

// StopSequence returns the closing tag as a stop sequence, unless the
// closing string contains the opening one (in which case stopping on it
// would truncate the opening tag itself before the model finishes emitting
// it), per spec.md §4.7.
func (t TagConfig) StopSequence() []string {
	t = t.withDefaults()
	if strings.Contains(t.Closing, t.Opening) {
		return nil
	}
	return []string{t.Closing}
}

// extractCode implements spec.md §4.7's code-parsing rule: in
// structured-output mode the content is parsed as JSON and `.code` is
// read; otherwise the closing tag is appended if missing, then the
// first-opening/last-closing substring between the tag pair is extracted.
// When no tags are present at all, the raw content is accepted only if it
// is syntactically valid Lua (checked via a real parse, not a heuristic).
func extractCode(content string, tags TagConfig, structuredOutput bool) (string, error) {
	if structuredOutput {
		result := gjson.Get(content, "code")
		if !result.Exists() {
			return "", agenterr.Newf(agenterr.KindParsing, "structured output has no .code field: %q", content)
		}
		return result.String(), nil
	}

	tags = tags.withDefaults()

	if !strings.Contains(content, tags.Opening) {
		if err := checkValidLua(content); err != nil {
			return "", agenterr.Newf(agenterr.KindParsing,
				"no %q/%q code block found and the raw content is not valid code (%v); wrap the snippet in %s ... %s",
				tags.Opening, tags.Closing, err, tags.Opening, tags.Closing)
		}
		return strings.TrimSpace(content), nil
	}

	// The opening tag is present; a model response that got truncated
	// exactly at the closing-tag stop sequence may be missing it.
	if !strings.Contains(content, tags.Closing) {
		content += tags.Closing
	}

	pattern := regexp.QuoteMeta(tags.Opening) + "(.*)" + regexp.QuoteMeta(tags.Closing)
	re, err := regexp2.Compile(pattern, regexp2.Singleline)
	if err != nil {
		return "", agenterr.Wrap(agenterr.KindParsing, err)
	}
	m, err := re.FindStringMatch(content)
	if err != nil || m == nil {
		return "", agenterr.Newf(agenterr.KindParsing, "could not locate a %s ... %s code block", tags.Opening, tags.Closing)
	}
	group := m.GroupByNumber(1)
	if group == nil {
		return "", agenterr.Newf(agenterr.KindParsing, "code block between %s and %s was empty", tags.Opening, tags.Closing)
	}
	return strings.TrimSpace(group.String()), nil
}

// checkValidLua compiles code without executing it, surfacing a Lua syntax
// error the same way the executor's own DoString would.
func checkValidLua(code string) error {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	if _, err := L.LoadString(code); err != nil {
		return fmt.Errorf("lua syntax: %w", err)
	}
	return nil
}
