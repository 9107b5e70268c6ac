package embed

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const defaultHashingDimension = 512

// Package-level token pattern shared with the stopword filter below.
var tokenRegexp = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// stopwords that carry no signal for grocery queries.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "with": {}, "by": {}, "from": {},
	"is": {}, "it": {}, "as": {}, "be": {}, "are": {}, "was": {}, "per": {},
}

// HashingEmbedder is a deterministic local embedder: tokens are hashed into
// a fixed-dimension term-frequency vector which is then L2-normalized. It
// needs no corpus preparation and no network, which makes it suitable for
// the embedded index backend and for tests.
type HashingEmbedder struct {
	dimension int
}

// NewHashingEmbedder creates a hashing embedder. A non-positive dimension
// selects the default.
func NewHashingEmbedder(dimension int) *HashingEmbedder {
	if dimension <= 0 {
		dimension = defaultHashingDimension
	}
	return &HashingEmbedder{dimension: dimension}
}

// Embed hashes the text's tokens into a normalized vector. It never fails
// and ignores the context; an all-zero vector comes back for token-free
// input.
func (e *HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vector := make([]float32, e.dimension)
	tokens := tokenRegexp.FindAllString(strings.ToLower(text), -1)
	for _, tok := range tokens {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		vector[int(h.Sum32())%e.dimension]++
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vector {
			vector[i] *= inv
		}
	}
	return vector, nil
}

// Dimension returns the fixed vector dimensionality.
func (e *HashingEmbedder) Dimension() int { return e.dimension }
