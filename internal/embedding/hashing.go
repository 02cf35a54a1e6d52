package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Hashing is a local feature-hashing bag-of-words embedder. Each lowercased
// word token is hashed to a bucket with a signed weight, and the result is
// L2 normalized. It needs no network and is fully deterministic.
type Hashing struct {
	dim int
}

// NewHashing creates a hashing provider producing dim-length vectors.
func NewHashing(dim int) *Hashing {
	return &Hashing{dim: dim}
}

func (h *Hashing) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return h.embed(ctx, text)
}

func (h *Hashing) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return h.embed(ctx, text)
}

func (h *Hashing) Dimension() int { return h.dim }

func (h *Hashing) Name() string { return fmt.Sprintf("hashing/%d", h.dim) }

func (h *Hashing) embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.dim < 1 {
		return nil, fmt.Errorf("%w: dimension must be >= 1", ErrEmbedding)
	}

	vec := make([]float32, h.dim)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		// Text without words still needs a non-zero vector.
		tokens = []string{""}
	}
	for _, tok := range tokens {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()

		bucket := sum % uint64(h.dim)
		if sum>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// Signed collisions cancelled out; fall back to the first token's bucket.
		f := fnv.New64a()
		f.Write([]byte(tokens[0]))
		vec[f.Sum64()%uint64(h.dim)] = 1
		return vec, nil
	}

	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
