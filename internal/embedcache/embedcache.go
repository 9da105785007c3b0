package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"jurisense/backend/internal/pipeline"
)

// ContentHash is the sha256 of text, hex encoded.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Key scopes a text's hash to the embedding model that produced the vector.
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// lookupFunc returns cached vectors by key; missing keys are absent.
type lookupFunc func(ctx context.Context, keys []string) (map[string][]float32, error)

// storeFunc records freshly computed vectors.
type storeFunc func(ctx context.Context, vectors map[string][]float32)

// embedThrough serves texts from the cache, sends only the misses to next
// in a single call, and returns vectors in input order.
func embedThrough(ctx context.Context, next pipeline.Embedder, texts, keys []string, lookup lookupFunc, store storeFunc) ([][]float32, error) {
	cached, err := lookup(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	var missTexts []string
	var missPos []int
	for i, k := range keys {
		if v, ok := cached[k]; ok {
			out[i] = clone(v)
			continue
		}
		missTexts = append(missTexts, texts[i])
		missPos = append(missPos, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("%w: sent %d texts, got %d vectors", pipeline.ErrEmbeddingCountMismatch, len(missTexts), len(fresh))
	}

	toStore := make(map[string][]float32, len(fresh))
	for j, pos := range missPos {
		out[pos] = fresh[j]
		toStore[keys[pos]] = clone(fresh[j])
	}
	store(ctx, toStore)
	return out, nil
}

func clone(values []float32) []float32 {
	if values == nil {
		return nil
	}
	c := make([]float32, len(values))
	copy(c, values)
	return c
}
