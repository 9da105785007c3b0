package llmjson

import (
	"regexp"
	"strconv"
	"strings"
)

const quoted = `"((?:[^"\\]|\\.)*)"`

var literalPatterns = map[Kind]*regexp.Regexp{
	KindTerms:   literalPattern(KindTerms.KeyField()),
	KindClauses: literalPattern(KindClauses.KeyField()),
}

func literalPattern(keyField string) *regexp.Regexp {
	return regexp.MustCompile(`\{\s*"` + keyField + `"\s*:\s*` + quoted +
		`\s*,\s*"explanation"\s*:\s*` + quoted)
}

// scanLiterals pulls individual item literals out of text that failed to
// parse as a whole.
func scanLiterals(kind Kind, raw string) []Item {
	re, ok := literalPatterns[kind]
	if !ok {
		return nil
	}
	matches := re.FindAllStringSubmatch(NormalizeQuotes(raw), -1)
	items := make([]Item, 0, len(matches))
	for _, m := range matches {
		key := sanitize(m[1])
		if key == "" {
			continue
		}
		items = append(items, Item{Key: key, Explanation: sanitize(m[2])})
	}
	return items
}

// sanitize collapses whitespace, including raw newlines the model left
// inside a string, and resolves JSON escapes where possible.
func sanitize(s string) string {
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	if unquoted, err := strconv.Unquote(`"` + s + `"`); err == nil {
		s = strings.TrimSpace(whitespace.ReplaceAllString(unquoted, " "))
	}
	return s
}
