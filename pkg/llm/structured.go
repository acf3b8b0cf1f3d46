package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// LLMs wrap JSON payloads in prose and markdown fences, and occasionally
// emit trailing commas. ExtractJSON strips the wrapping, takes the first
// balanced JSON object or array, and attempts one repair pass before giving
// up with an invalid-output error that preserves the raw text.

var fenceRegex = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n(.*?)```")

// ExtractJSON returns the first parseable JSON object or array in text.
func ExtractJSON(text string) (json.RawMessage, error) {
	candidates := []string{}

	// Prefer fenced blocks; an LLM that bothered to fence its payload put
	// the JSON inside the fence.
	for _, m := range fenceRegex.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}
	candidates = append(candidates, text)

	for _, c := range candidates {
		if raw, ok := extractBalanced(c); ok {
			if json.Valid(raw) {
				return raw, nil
			}
			// One best-effort repair pass.
			repaired := repairTrailingCommas(string(raw))
			if json.Valid([]byte(repaired)) {
				return json.RawMessage(repaired), nil
			}
		}
	}

	return nil, &Error{
		Kind: ErrKindInvalidOutput,
		Raw:  text,
		Err:  errors.New("no parseable JSON payload in output"),
	}
}

// extractBalanced finds the first '{' or '[' and scans to its matching
// close, respecting string literals and escapes.
func extractBalanced(text string) (json.RawMessage, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return nil, false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return json.RawMessage(text[start : i+1]), true
			}
		}
	}

	// Unbalanced: return the tail anyway so the repair pass can report on
	// the most plausible candidate.
	return json.RawMessage(text[start:]), true
}

// repairTrailingCommas removes commas that directly precede a closing
// bracket or brace, outside string literals.
func repairTrailingCommas(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			b.WriteByte(c)
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
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			// Look ahead past whitespace for a closing bracket.
			j := i + 1
			for j < len(text) && (text[j] == ' ' || text[j] == '\t' || text[j] == '\n' || text[j] == '\r') {
				j++
			}
			if j < len(text) && (text[j] == '}' || text[j] == ']') {
				continue // drop the comma
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
