package pipeline

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// NormalizeKey collapses whitespace, trims and lowercases s.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Rank merges items whose keys normalize to the same string, keeping the
// first one seen, and orders the survivors by occurrence count, then by key
// length, longest first. Remaining ties keep first-seen order. Items with an
// empty key are dropped.
func Rank[T any](items []T, keyOf func(T) string) []T {
	type entry struct {
		item  T
		key   string
		count int
	}

	index := make(map[string]int, len(items))
	entries := make([]entry, 0, len(items))
	for _, it := range items {
		key := NormalizeKey(keyOf(it))
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			entries[i].count++
			continue
		}
		index[key] = len(entries)
		entries = append(entries, entry{item: it, key: key, count: 1})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return utf8.RuneCountInString(entries[i].key) > utf8.RuneCountInString(entries[j].key)
	})

	ranked := make([]T, len(entries))
	for i, e := range entries {
		ranked[i] = e.item
	}
	return ranked
}

func termKey(t ExtractedTerm) string     { return t.Term }
func clauseKey(c ExtractedClause) string { return c.Clause }
