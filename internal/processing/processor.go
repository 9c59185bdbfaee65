package processing

import (
	"fmt"
	"regexp"
	"strings"
)

// ImprovedMarker prefixes every improved content body.
const ImprovedMarker = "[AI Improved] "

// SummaryMaxLen is the maximum summary length in characters.
const SummaryMaxLen = 200

const ellipsis = "..."

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// entities are decoded in this order, one pass each.
var entities = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`(?i)&nbsp;`), " "},
	{regexp.MustCompile(`(?i)&amp;`), "&"},
	{regexp.MustCompile(`(?i)&lt;`), "<"},
	{regexp.MustCompile(`(?i)&gt;`), ">"},
	{regexp.MustCompile(`(?i)&quot;`), `"`},
	{regexp.MustCompile(`(?i)&#39;`), "'"},
}

// Processor transforms article content. Implementations must be safe for
// concurrent use.
type Processor interface {
	Improve(content string) string
	Summarize(content string) string
}

// Deterministic is the built-in rule-based Processor.
type Deterministic struct{}

// NewDeterministic returns the rule-based processor.
func NewDeterministic() Deterministic {
	return Deterministic{}
}

// Improve implements Processor.
func (Deterministic) Improve(content string) string {
	return Improve(content)
}

// Summarize implements Processor.
func (Deterministic) Summarize(content string) string {
	return Summarize(content)
}

// New resolves a processor by its configured name.
func New(name string) (Processor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "deterministic":
		return NewDeterministic(), nil
	default:
		return nil, fmt.Errorf("unknown content processor %q", name)
	}
}

// Improve collapses whitespace runs, trims the result and prefixes it with
// ImprovedMarker. Blank input is returned unchanged.
func Improve(content string) string {
	if isBlank(content) {
		return content
	}
	return ImprovedMarker + collapseWhitespace(content)
}

// Summarize returns a markup-free summary of at most SummaryMaxLen
// characters. Blank input yields an empty string.
func Summarize(content string) string {
	if isBlank(content) {
		return ""
	}

	plain := PlainText(content)
	runes := []rune(plain)
	if len(runes) <= SummaryMaxLen {
		return plain
	}
	return string(runes[:SummaryMaxLen-len(ellipsis)]) + ellipsis
}

// PlainText strips tags, decodes the supported entities and squeezes
// whitespace. Unsupported entities are kept verbatim.
func PlainText(content string) string {
	if content == "" {
		return ""
	}
	text := tagPattern.ReplaceAllString(content, " ")
	for _, e := range entities {
		text = e.pattern.ReplaceAllLiteralString(text, e.repl)
	}
	return collapseWhitespace(text)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
