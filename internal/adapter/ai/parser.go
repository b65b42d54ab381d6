// Package ai holds the LLM gateway, its memoization wrapper and the response parser
// shared by every prompt.
package ai

import (
	"bytes"
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/observability"
)

// ParseResult is the outcome of Parse: either Parsed or Empty.
type ParseResult interface {
	// Map returns the decoded fields, or nil for Empty.
	Map() map[string]any
	isParseResult()
}

// Parsed carries the first JSON object recovered from a model response. Numbers are
// kept as json.Number so well-formed input round-trips exactly.
type Parsed struct {
	Fields map[string]any
}

// Empty means no JSON object could be recovered.
type Empty struct{}

func (p Parsed) Map() map[string]any { return p.Fields }
func (Parsed) isParseResult()        {}
func (Empty) Map() map[string]any    { return nil }
func (Empty) isParseResult()         {}

const (
	parseStrict   = "strict"
	parseSalvaged = "salvaged"
	parseEmpty    = "empty"
)

// Salvage bounds. Model replies are short; anything past these limits is prose.
const (
	maxSalvageBytes = 64 << 10
	maxSalvageSpans = 64
)

// fenceRe matches a reply wrapped entirely in one code fence.
var fenceRe = regexp.MustCompile("(?s)\\A```[A-Za-z0-9_-]*\\s*(.*?)\\s*```\\z")

// Parse turns raw model output into fields. It never fails: a strict decode is tried
// first, then the body of an enclosing code fence, then balanced {...} spans left to
// right.
func Parse(raw string) ParseResult {
	fields, stage := parse(raw)
	observability.AIParseTotal.WithLabelValues(stage).Inc()
	if fields == nil {
		return Empty{}
	}
	return Parsed{Fields: fields}
}

func parse(raw string) (map[string]any, string) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, parseEmpty
	}
	if m, ok := decodeObject(s); ok {
		return m, parseStrict
	}
	if sub := fenceRe.FindStringSubmatch(s); sub != nil {
		if m, ok := decodeObject(sub[1]); ok {
			return m, parseSalvaged
		}
	}
	if len(s) > maxSalvageBytes {
		s = s[:maxSalvageBytes]
	}
	start := strings.IndexByte(s, '{')
	for tries := 0; start >= 0 && tries < maxSalvageSpans; tries++ {
		if end := matchBrace(s, start); end > start {
			if m, ok := decodeObject(s[start : end+1]); ok {
				return m, parseSalvaged
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, parseEmpty
}

// decodeObject accepts exactly one JSON object and nothing else.
func decodeObject(s string) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return m, true
}

// matchBrace returns the index of the brace closing s[start], skipping braces inside
// JSON strings, or -1 when the span is unbalanced.
func matchBrace(s string, start int) int {
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
				return i
			}
		}
	}
	return -1
}
