package processing

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "in": {}, "for": {},
	"and": {}, "or": {}, "of": {}, "on": {}, "with": {}, "is": {},
	"are": {}, "this": {}, "that": {}, "from": {}, "into": {}, "your": {},
	"have": {}, "will": {}, "about": {}, "what": {}, "when": {}, "they": {},
}

// CleanText returns the plain text of content with punctuation removed.
func CleanText(content string) string {
	text := PlainText(content)
	if text == "" {
		return ""
	}
	text = punctuation.ReplaceAllString(text, " ")
	return collapseWhitespace(text)
}

// ExtractKeywords returns the most frequent words that are not stop-words.
func ExtractKeywords(text string, limit, minLen int) []string {
	clean := strings.ToLower(CleanText(text))
	if clean == "" {
		return nil
	}

	freq := make(map[string]int)
	for _, token := range strings.Fields(clean) {
		token = strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len([]rune(token)) < minLen {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		freq[token]++
	}

	if len(freq) == 0 {
		return nil
	}

	type kv struct {
		word  string
		count int
	}

	pairs := make([]kv, 0, len(freq))
	for word, count := range freq {
		pairs = append(pairs, kv{word: word, count: count})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count == pairs[j].count {
			return pairs[i].word < pairs[j].word
		}
		return pairs[i].count > pairs[j].count
	})

	n := limit
	if n <= 0 || n > len(pairs) {
		n = len(pairs)
	}

	keywords := make([]string, 0, n)
	for _, p := range pairs[:n] {
		keywords = append(keywords, p.word)
	}
	return keywords
}

// SplitTags turns a comma separated tag list into trimmed, non-empty tags.
func SplitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
