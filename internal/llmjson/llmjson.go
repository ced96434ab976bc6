// Package llmjson recovers JSON payloads from language model responses,
// which routinely arrive wrapped in markdown fences, preceded by prose, or
// truncated mid-structure by output token limits.
package llmjson

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Clean strips markdown code fences and surrounding prose, returning the
// JSON document body. Returns "" when no JSON start delimiter is found.
// A truncated document (no closing delimiter) is returned as-is so Repair
// can close it.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)

	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[:i]
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}

	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return strings.TrimSpace(s[start:])
	}
	return strings.TrimSpace(s[start : end+1])
}

// Repair closes unterminated strings and unbalanced delimiters in truncated
// JSON. It walks the input tracking string and escape state, then appends
// whatever closers the delimiter stack still holds.
func Repair(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				stack = append(stack, c)
			}
		case '}', ']':
			if !inString && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		s += `"`
	}

	// A value cut off after a key or separator would still be invalid.
	trimmed := strings.TrimRight(s, " \t\n\r")
	if strings.HasSuffix(trimmed, ",") {
		trimmed = strings.TrimSuffix(trimmed, ",")
	} else if strings.HasSuffix(trimmed, ":") {
		trimmed += "null"
	}

	var b strings.Builder
	b.WriteString(trimmed)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// Decode unmarshals a model response into v, cleaning fences and prose first
// and repairing truncation if a straight parse fails. The returned bool is
// true when structural repair was needed.
func Decode(raw string, v any) (bool, error) {
	cleaned := Clean(raw)
	if cleaned == "" {
		return false, eris.New("llmjson: no JSON found in response")
	}

	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return false, nil
	}

	repaired := Repair(cleaned)
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return false, eris.Wrap(err, "llmjson: decode after repair")
	}
	return true, nil
}
