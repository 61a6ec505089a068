package gen

import (
	"errors"
	"strings"
	"unicode"
)

// ErrNoJSONBlock means no well-formed JSON object could be recovered from the
// model output.
var ErrNoJSONBlock = errors.New("no JSON object found in model output")

// smartQuotes maps typographic quotes the model sometimes emits back to ASCII.
var smartQuotes = strings.NewReplacer(
	"“", `"`, // left double
	"”", `"`, // right double
	"„", `"`, // low double
	"‘", "'", // left single
	"’", "'", // right single
)

// ExtractJSONBlock recovers the first balanced JSON object embedded in raw
// model output. The model may wrap the object in prose or code fences and may
// leak control characters; those are stripped before scanning. The scan is
// string-aware, so braces inside string values do not end the block.
func ExtractJSONBlock(raw string) (string, error) {
	cleaned := sanitize(raw)

	start := strings.IndexByte(cleaned, '{')
	if start < 0 {
		return "", ErrNoJSONBlock
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(cleaned); i++ {
		c := cleaned[i]
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
				return cleaned[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSONBlock
}

// sanitize removes code fences and control characters and normalizes smart
// quotes, keeping newlines and tabs so string values survive.
func sanitize(raw string) string {
	s := strings.ReplaceAll(raw, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	s = smartQuotes.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stripTrailingCommas drops commas that directly precede a closing brace or
// bracket, a common model formatting slip that breaks strict JSON decoding.
func stripTrailingCommas(block string) string {
	var b strings.Builder
	b.Grow(len(block))
	inString := false
	escaped := false
	for i := 0; i < len(block); i++ {
		c := block[i]
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
			j := i + 1
			for j < len(block) && (block[j] == ' ' || block[j] == '\n' || block[j] == '\t' || block[j] == '\r') {
				j++
			}
			if j < len(block) && (block[j] == '}' || block[j] == ']') {
				continue // drop the comma
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
