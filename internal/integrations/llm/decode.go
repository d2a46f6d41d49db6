package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

const maxSnippetChars = 512

// ParseError is returned for any model output that does not decode into the
// expected schema. Callers fall back on it without inspecting the cause.
type ParseError struct {
	Reason  string
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	msg := "llm output: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Snippet != "" {
		msg += fmt.Sprintf(" (truncated response: %s)", e.Snippet)
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// DecodeJSON scans text for the first balanced JSON object or array that
// unmarshals into T and passes validate.
func DecodeJSON[T any](text string, validate func(T) error) (T, error) {
	var zero T
	cleaned := stripFences(text)
	if cleaned == "" {
		return zero, &ParseError{Reason: "empty response"}
	}

	var lastErr error
	for _, block := range jsonBlocks(cleaned) {
		var v T
		if err := json.Unmarshal([]byte(block), &v); err != nil {
			lastErr = err
			continue
		}
		if validate != nil {
			if err := validate(v); err != nil {
				lastErr = err
				continue
			}
		}
		return v, nil
	}

	if lastErr == nil {
		return zero, &ParseError{Reason: "no json block found", Snippet: truncate(cleaned)}
	}
	return zero, &ParseError{Reason: "schema mismatch", Snippet: truncate(cleaned), Err: lastErr}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// jsonBlocks returns balanced {...} and [...] spans in order of appearance.
// A span that fails to decode is skipped whole, so nested fragments of a
// malformed document are not tried.
func jsonBlocks(s string) []string {
	var blocks []string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		end := matchBracket(s, i)
		if end < 0 {
			continue
		}
		blocks = append(blocks, s[i:end+1])
		i = end
	}
	return blocks
}

func matchBracket(s string, start int) int {
	var stack []byte
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
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

func truncate(s string) string {
	if len(s) <= maxSnippetChars {
		return s
	}
	return s[:maxSnippetChars] + fmt.Sprintf("... [truncated, total_length=%d]", len(s))
}
