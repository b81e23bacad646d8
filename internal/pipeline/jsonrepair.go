package pipeline

import (
	"encoding/json"
	"regexp"
	"strings"
)

// RepairResult carries a successfully parsed JSON object. Repaired is true when
// the source text was not well-formed and heuristic correction was needed.
type RepairResult struct {
	Value    map[string]any
	Repaired bool
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

var smartQuoteReplacer = strings.NewReplacer(
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"„", `"`,
	"‟", `"`,
	"‘", "'",
	"’", "'",
)

// ParseJSONWithRepair extracts a JSON object from noisy model output. It tries,
// in order: the text verbatim, the first balanced {...} substring, and the
// substring after character-level repairs (smart quotes straightened, trailing
// commas stripped). Malformed input is a defined nil outcome, never a panic or
// an error escaping to the caller.
func ParseJSONWithRepair(text string) *RepairResult {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if v, ok := tryParseObject(trimmed); ok {
		return &RepairResult{Value: v}
	}

	sub := firstBalancedObject(trimmed)
	if sub == "" {
		// Truncated or quote-broken output can hide the closing brace; repair
		// the whole text and look again.
		sub = firstBalancedObject(repairCharacters(trimmed))
		if sub == "" {
			return nil
		}
	}

	if v, ok := tryParseObject(sub); ok {
		return &RepairResult{Value: v, Repaired: true}
	}

	if v, ok := tryParseObject(repairCharacters(sub)); ok {
		return &RepairResult{Value: v, Repaired: true}
	}

	return nil
}

func tryParseObject(s string) (map[string]any, bool) {
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

// firstBalancedObject returns the first balanced {...} region, tracking string
// literals so braces inside them do not affect the depth count.
func firstBalancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func repairCharacters(s string) string {
	s = smartQuoteReplacer.Replace(s)
	return trailingCommaRe.ReplaceAllString(s, "$1")
}
