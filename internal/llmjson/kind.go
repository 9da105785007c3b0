package llmjson

// Kind selects which array a model response is expected to carry.
type Kind string

const (
	KindTerms   Kind = "terms"
	KindClauses Kind = "clauses"
)

// Field is the name of the wrapping array field, e.g. {"terms": [...]}.
func (k Kind) Field() string {
	return string(k)
}

// KeyField is the per-item field holding the term or clause text.
func (k Kind) KeyField() string {
	if k == KindClauses {
		return "clause"
	}
	return "term"
}

// Item is one decoded entry. Key holds the term or the clause name.
type Item struct {
	Key         string
	Explanation string
}

// Strategy records which step of the cascade produced a Result.
type Strategy int

const (
	StrategyEmpty Strategy = iota
	StrategyDirect
	StrategyTrailingCommas
	StrategySmartQuotes
	StrategySingleQuotes
	StrategyRegex
)

func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyTrailingCommas:
		return "trailing_commas"
	case StrategySmartQuotes:
		return "smart_quotes"
	case StrategySingleQuotes:
		return "single_quotes"
	case StrategyRegex:
		return "regex"
	default:
		return "empty"
	}
}

// Result is the outcome of Decode. A Result with StrategyEmpty carries no
// items; any other strategy means the response was understood, even when
// the model legitimately returned an empty array.
type Result struct {
	Items    []Item
	Strategy Strategy
}

// Ok reports whether the response could be decoded at all.
func (r Result) Ok() bool {
	return r.Strategy != StrategyEmpty
}
