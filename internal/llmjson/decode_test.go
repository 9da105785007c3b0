package llmjson_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jurisense/backend/internal/llmjson"
)

const wellFormed = `{"terms":[{"term":"Indemnity","explanation":"One party covers the other's losses."},{"term":"Force Majeure","explanation":"Events beyond control."}]}`

var wellFormedItems = []llmjson.Item{
	{Key: "Indemnity", Explanation: "One party covers the other's losses."},
	{Key: "Force Majeure", Explanation: "Events beyond control."},
}

func TestDecode_WellFormed(t *testing.T) {
	res := llmjson.Decode(llmjson.KindTerms, wellFormed)
	assert.Equal(t, llmjson.StrategyDirect, res.Strategy)
	assert.True(t, res.Ok())
	assert.Equal(t, wellFormedItems, res.Items)
}

func TestDecode_FenceWithTrailingProse(t *testing.T) {
	raw := "Sure! Here is the JSON you asked for:\n```json\n" + wellFormed + "\n```\nLet me know if you need anything else {like more terms}."
	res := llmjson.Decode(llmjson.KindTerms, raw)
	assert.Equal(t, llmjson.StrategyDirect, res.Strategy)
	assert.Equal(t, wellFormedItems, res.Items)
}

func TestDecode_UnfencedTrailingCommentary(t *testing.T) {
	raw := wellFormed + "\n\nNote: the terms above are sorted by importance {roughly}."
	res := llmjson.Decode(llmjson.KindTerms, raw)
	assert.Equal(t, wellFormedItems, res.Items)
}

func TestDecode_Repairs(t *testing.T) {
	tests := []struct {
		name     string
		kind     llmjson.Kind
		raw      string
		strategy llmjson.Strategy
		want     []llmjson.Item
	}{
		{
			name:     "trailing commas",
			kind:     llmjson.KindTerms,
			raw:      `{"terms":[{"term":"Lien","explanation":"A claim on property.",},],}`,
			strategy: llmjson.StrategyTrailingCommas,
			want:     []llmjson.Item{{Key: "Lien", Explanation: "A claim on property."}},
		},
		{
			name:     "smart quotes",
			kind:     llmjson.KindTerms,
			raw:      `{“terms”:[{“term”:“Lien”,“explanation”:“A claim on property.”}]}`,
			strategy: llmjson.StrategySmartQuotes,
			want:     []llmjson.Item{{Key: "Lien", Explanation: "A claim on property."}},
		},
		{
			name:     "single quoted keys and values",
			kind:     llmjson.KindClauses,
			raw:      `{'clauses': [{'clause': 'Termination', 'explanation': 'Either side may end it with notice.'}]}`,
			strategy: llmjson.StrategySingleQuotes,
			want:     []llmjson.Item{{Key: "Termination", Explanation: "Either side may end it with notice."}},
		},
		{
			name:     "bare array",
			kind:     llmjson.KindClauses,
			raw:      `[{"clause":"Governing Law","explanation":"Which courts apply."}]`,
			strategy: llmjson.StrategyDirect,
			want:     []llmjson.Item{{Key: "Governing Law", Explanation: "Which courts apply."}},
		},
		{
			name:     "generic items field",
			kind:     llmjson.KindTerms,
			raw:      `{"items":[{"term":"Escrow","explanation":"Funds held by a third party."}]}`,
			strategy: llmjson.StrategyDirect,
			want:     []llmjson.Item{{Key: "Escrow", Explanation: "Funds held by a third party."}},
		},
		{
			name:     "empty array is understood",
			kind:     llmjson.KindTerms,
			raw:      `{"terms":[]}`,
			strategy: llmjson.StrategyDirect,
			want:     []llmjson.Item{},
		},
		{
			name:     "items without key are skipped",
			kind:     llmjson.KindTerms,
			raw:      `{"terms":[{"term":"  ","explanation":"blank"},"loose string",{"term":"Waiver"}]}`,
			strategy: llmjson.StrategyDirect,
			want:     []llmjson.Item{{Key: "Waiver", Explanation: ""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := llmjson.Decode(tt.kind, tt.raw)
			assert.Equal(t, tt.strategy, res.Strategy)
			assert.Equal(t, tt.want, res.Items)
		})
	}
}

func TestDecode_RegexFallback(t *testing.T) {
	raw := `I found these terms:
{"term": "Indemnity", "explanation": "One party
   covers    losses."} and also
{"term":"Arbitration","explanation":"Disputes go to an \"arbitrator\"."} oops [unclosed`

	res := llmjson.Decode(llmjson.KindTerms, raw)
	require.Equal(t, llmjson.StrategyRegex, res.Strategy)
	assert.Equal(t, []llmjson.Item{
		{Key: "Indemnity", Explanation: "One party covers losses."},
		{Key: "Arbitration", Explanation: `Disputes go to an "arbitrator".`},
	}, res.Items)
}

func TestDecode_WrongShapeFallsBackToLiterals(t *testing.T) {
	raw := `{"result": {"nested": [{"clause":"Severability","explanation":"Invalid parts drop out."}]}}`
	res := llmjson.Decode(llmjson.KindClauses, raw)
	assert.Equal(t, llmjson.StrategyRegex, res.Strategy)
	assert.Equal(t, []llmjson.Item{{Key: "Severability", Explanation: "Invalid parts drop out."}}, res.Items)
}

func TestDecode_Empty(t *testing.T) {
	for _, raw := range []string{"", "I could not find any terms.", "{{{", `{"terms": "none"}`} {
		res := llmjson.Decode(llmjson.KindTerms, raw)
		assert.False(t, res.Ok(), raw)
		assert.Equal(t, llmjson.StrategyEmpty, res.Strategy, raw)
		assert.Empty(t, res.Items, raw)
	}
}

func TestExtractBalanced(t *testing.T) {
	assert.Equal(t, `{"a":"}{"}`, llmjson.ExtractBalanced(`noise {"a":"}{"} tail }`))
	assert.Equal(t, `{"a":{"b":[1,2]}}`, llmjson.ExtractBalanced(`{"a":{"b":[1,2]}} {"c":1}`))
	assert.Equal(t, `[1,[2]]`, llmjson.ExtractBalanced(`  [1,[2]] trailing`))
	assert.Equal(t, `{"open":`, llmjson.ExtractBalanced(`x {"open":`))
	assert.Equal(t, "", llmjson.ExtractBalanced("no json here"))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, llmjson.StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, llmjson.StripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, llmjson.StripFences("```{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, llmjson.StripFences("```json\n{\"a\":1}"))
	assert.Equal(t, `{"a":1}`, llmjson.StripFences("  {\"a\":1}  "))
}

func TestConvertSingleQuotes_KeepsApostrophes(t *testing.T) {
	in := `{"explanation": "the party's duty", 'term': 'Lien'}`
	assert.Equal(t, `{"explanation": "the party's duty", "term": "Lien"}`, llmjson.ConvertSingleQuotes(in))
}

func TestKind(t *testing.T) {
	assert.Equal(t, "terms", llmjson.KindTerms.Field())
	assert.Equal(t, "term", llmjson.KindTerms.KeyField())
	assert.Equal(t, "clauses", llmjson.KindClauses.Field())
	assert.Equal(t, "clause", llmjson.KindClauses.KeyField())
	assert.Equal(t, "regex", llmjson.StrategyRegex.String())
}
