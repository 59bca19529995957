// Package itinerary turns raw model output into a canonical itinerary document.
package itinerary

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnparseable is returned when no repair strategy yields valid JSON.
var ErrUnparseable = errors.New("itinerary output is not recoverable as JSON")

// Parse decodes raw model output into a JSON object. Strategies run in order
// and the first that succeeds wins: the text as-is, the outermost {...} span,
// then the span after textual repair.
func Parse(raw string) (map[string]any, error) {
	text := strings.TrimSpace(raw)

	if doc, err := decodeObject(text); err == nil {
		return doc, nil
	}

	span, ok := braceSpan(text)
	if ok {
		if doc, err := decodeObject(span); err == nil {
			return doc, nil
		}
	} else {
		span = text
	}

	doc, err := decodeObject(Repair(span))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return doc, nil
}

func decodeObject(text string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, err
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return doc, nil
}

// braceSpan returns the text from the first '{' to the last '}'.
func braceSpan(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// Repair rewrites common JSON-ish malformations into strict JSON: it strips
// // and /* */ comments, quotes bare object keys, drops trailing commas before
// ] or }, and converts single-quoted strings to double-quoted ones. String
// contents are never treated as syntax.
func Repair(text string) string {
	var out strings.Builder
	out.Grow(len(text) + 16)

	src := []rune(text)
	n := len(src)
	// last significant (non-space) rune written outside strings
	var last rune

	for i := 0; i < n; i++ {
		c := src[i]

		switch {
		case c == '"' || c == '\'':
			j := copyString(&out, src, i)
			i = j
			last = '"'
			continue

		case c == '/' && i+1 < n && src[i+1] == '/':
			for i < n && src[i] != '\n' {
				i++
			}
			if i < n {
				out.WriteRune('\n')
			}
			continue

		case c == '/' && i+1 < n && src[i+1] == '*':
			i += 2
			for i+1 < n && !(src[i] == '*' && src[i+1] == '/') {
				i++
			}
			i++ // land on '/', loop increment skips it
			continue

		case c == ',':
			if k := nextSignificant(src, i+1); k < n && (src[k] == ']' || src[k] == '}') {
				continue
			}

		case isIdentStart(c) && (last == '{' || last == ','):
			end := i
			for end < n && isIdentPart(src[end]) {
				end++
			}
			if k := nextSignificant(src, end); k < n && src[k] == ':' {
				out.WriteByte('"')
				out.WriteString(string(src[i:end]))
				out.WriteByte('"')
				i = end - 1
				last = '"'
				continue
			}
		}

		out.WriteRune(c)
		if !isSpace(c) {
			last = c
		}
	}
	return out.String()
}

// copyString writes the string literal starting at src[start] as a
// double-quoted JSON string and returns the index of its closing quote.
func copyString(out *strings.Builder, src []rune, start int) int {
	quote := src[start]
	out.WriteByte('"')
	i := start + 1
	for ; i < len(src); i++ {
		c := src[i]
		if c == '\\' && i+1 < len(src) {
			next := src[i+1]
			if quote == '\'' && next == '\'' {
				out.WriteRune('\'')
			} else {
				out.WriteRune(c)
				out.WriteRune(next)
			}
			i++
			continue
		}
		if c == quote {
			break
		}
		if c == '"' && quote == '\'' {
			out.WriteString(`\"`)
			continue
		}
		if c == '\n' {
			out.WriteString(`\n`)
			continue
		}
		out.WriteRune(c)
	}
	out.WriteByte('"')
	return i
}

// nextSignificant skips whitespace and comments starting at i.
func nextSignificant(src []rune, i int) int {
	n := len(src)
	for i < n {
		switch {
		case isSpace(src[i]):
			i++
		case src[i] == '/' && i+1 < n && src[i+1] == '/':
			for i < n && src[i] != '\n' {
				i++
			}
		case src[i] == '/' && i+1 < n && src[i+1] == '*':
			i += 2
			for i+1 < n && !(src[i] == '*' && src[i+1] == '/') {
				i++
			}
			i += 2
		default:
			return i
		}
	}
	return n
}

func isSpace(c rune) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c rune) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c rune) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
