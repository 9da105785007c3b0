package vector

import (
	"math"
	"sort"
)

// epsilon keeps the similarity finite for all-zero vectors.
const epsilon = 1e-8

// Cosine returns dot(a,b) / (|a|*|b| + epsilon). Vectors of different length
// are compared over their common prefix.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	return dot / (math.Sqrt(na)*math.Sqrt(nb) + epsilon)
}

type Scored struct {
	Position int
	Score    float64
}

// TopK scores every candidate against query and returns at most k positions
// ordered by descending score. Equal scores keep their input order.
func TopK(query []float32, candidates [][]float32, k int) []Scored {
	scored := make([]Scored, len(candidates))
	for i, c := range candidates {
		scored[i] = Scored{Position: i, Score: Cosine(query, c)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if k >= 0 && k < len(scored) {
		scored = scored[:k]
	}
	return scored
}
