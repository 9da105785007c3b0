package llmjson

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	singleKey     = regexp.MustCompile(`'([^'\n]*)'(\s*:)`)
	singleValue   = regexp.MustCompile(`(:\s*)'([^'\n]*)'(\s*[,}\]])`)
	whitespace    = regexp.MustCompile(`\s+`)

	smartQuotes = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
		"‘", "'", "’", "'", "‚", "'", "‛", "'",
	)
)

type attempt struct {
	strategy Strategy
	repair   func(string) string
}

// Each repair is applied on top of the previous one.
var attempts = []attempt{
	{StrategyDirect, func(s string) string { return s }},
	{StrategyTrailingCommas, RemoveTrailingCommas},
	{StrategySmartQuotes, NormalizeQuotes},
	{StrategySingleQuotes, ConvertSingleQuotes},
}

// Decode recovers the items of kind from a free-text model response. It
// never fails: a response that cannot be understood yields StrategyEmpty.
func Decode(kind Kind, raw string) Result {
	candidate := ExtractBalanced(StripFences(raw))
	if candidate != "" {
		for _, a := range attempts {
			candidate = a.repair(candidate)

			var parsed any
			if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
				continue
			}
			if elems, ok := coerce(kind, parsed); ok {
				return Result{Items: toItems(kind, elems), Strategy: a.strategy}
			}
			break
		}
	}

	if items := scanLiterals(kind, raw); len(items) > 0 {
		return Result{Items: items, Strategy: StrategyRegex}
	}
	return Result{Strategy: StrategyEmpty}
}

// StripFences returns the body of the first Markdown code fence in s, or s
// unchanged when it has none. An unterminated fence runs to the end.
func StripFences(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return strings.TrimSpace(s)
	}
	body := s[start+3:]
	// optional language tag on the opening line
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// ExtractBalanced returns the first complete JSON object in s, or the
// leading array when s starts with one, ignoring anything after the closing
// bracket. Brackets inside string literals are not counted. When the value
// never closes, the rest of s from the opening bracket is returned so later
// repairs can still try.
func ExtractBalanced(s string) string {
	s = strings.TrimSpace(s)
	start := strings.IndexByte(s, '{')
	if strings.HasPrefix(s, "[") {
		start = 0
	}
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

// RemoveTrailingCommas drops commas directly before a closing bracket.
func RemoveTrailingCommas(s string) string {
	return trailingComma.ReplaceAllString(s, "$1")
}

// NormalizeQuotes turns typographic quotes into their ASCII forms.
func NormalizeQuotes(s string) string {
	return smartQuotes.Replace(s)
}

// ConvertSingleQuotes rewrites 'key': and : 'value' to double quotes.
// Apostrophes elsewhere in prose are left alone.
func ConvertSingleQuotes(s string) string {
	s = singleKey.ReplaceAllStringFunc(s, func(m string) string {
		sub := singleKey.FindStringSubmatch(m)
		return strconv.Quote(sub[1]) + sub[2]
	})
	return singleValue.ReplaceAllStringFunc(s, func(m string) string {
		sub := singleValue.FindStringSubmatch(m)
		return sub[1] + strconv.Quote(sub[2]) + sub[3]
	})
}

func coerce(kind Kind, v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case map[string]any:
		if arr, ok := t[kind.Field()].([]any); ok {
			return arr, true
		}
		if arr, ok := t["items"].([]any); ok {
			return arr, true
		}
	}
	return nil, false
}

func toItems(kind Kind, elems []any) []Item {
	items := make([]Item, 0, len(elems))
	for _, e := range elems {
		obj, ok := e.(map[string]any)
		if !ok {
			continue
		}
		key, _ := obj[kind.KeyField()].(string)
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		explanation, _ := obj["explanation"].(string)
		items = append(items, Item{Key: key, Explanation: strings.TrimSpace(explanation)})
	}
	return items
}
