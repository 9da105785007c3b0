package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRank_FrequencyFirst(t *testing.T) {
	items := []ExtractedTerm{
		{Term: "Force Majeure", Explanation: "fm"},
		{Term: "Indemnity", Explanation: "first"},
		{Term: "indemnity ", Explanation: "second"},
		{Term: "INDEMNITY", Explanation: "third"},
	}

	ranked := Rank(items, termKey)
	assert.Equal(t, []ExtractedTerm{
		{Term: "Indemnity", Explanation: "first"},
		{Term: "Force Majeure", Explanation: "fm"},
	}, ranked)
}

func TestRank_LengthBreaksTies(t *testing.T) {
	items := []ExtractedClause{
		{Clause: "Term"},
		{Clause: "Limitation of Liability"},
		{Clause: "Payment"},
	}
	ranked := Rank(items, clauseKey)
	assert.Equal(t, "Limitation of Liability", ranked[0].Clause)
	assert.Equal(t, "Payment", ranked[1].Clause)
	assert.Equal(t, "Term", ranked[2].Clause)
}

func TestRank_FirstSeenBreaksFullTies(t *testing.T) {
	items := []ExtractedTerm{{Term: "Lien"}, {Term: "Bond"}, {Term: "Fees"}}
	ranked := Rank(items, termKey)
	assert.Equal(t, []ExtractedTerm{{Term: "Lien"}, {Term: "Bond"}, {Term: "Fees"}}, ranked)
}

func TestRank_CollapsesWhitespaceAndDropsEmpty(t *testing.T) {
	items := []ExtractedTerm{
		{Term: "Force   Majeure", Explanation: "a"},
		{Term: "   "},
		{Term: "force\nmajeure", Explanation: "b"},
	}
	ranked := Rank(items, termKey)
	assert.Equal(t, []ExtractedTerm{{Term: "Force   Majeure", Explanation: "a"}}, ranked)
}

func TestRank_Empty(t *testing.T) {
	ranked := Rank([]ExtractedTerm(nil), termKey)
	assert.NotNil(t, ranked)
	assert.Empty(t, ranked)
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "force majeure", NormalizeKey("  Force \t Majeure\n"))
	assert.Equal(t, "", NormalizeKey(" \n "))
}
