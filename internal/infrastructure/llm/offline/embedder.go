// Package offline provides model-free stand-ins for the embedder and answer
// generator, used when LLM_PROVIDER=none.
package offline

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const (
	DefaultDimensions = 256
	termSaturation    = 1.2
)

// Embedder hashes tokens into a fixed number of buckets and applies BM25-style
// term-frequency saturation, then L2-normalizes the result.
type Embedder struct {
	dims int
}

func NewEmbedder(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dims: dims}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, e.vector(text))
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

func (e *Embedder) vector(text string) []float32 {
	termFreq := make(map[int]float64, 32)
	for _, token := range tokenize(text) {
		termFreq[e.bucket(token)]++
	}

	vec := make([]float32, e.dims)
	var norm float64
	for idx, tf := range termFreq {
		weight := (tf * (termSaturation + 1)) / (tf + termSaturation)
		vec[idx] = float32(weight)
		norm += weight * weight
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func (e *Embedder) bucket(token string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return int(h.Sum32() % uint32(e.dims))
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
