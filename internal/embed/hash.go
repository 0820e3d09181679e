package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashDim is the vector width of the hashing provider.
const HashDim = 256

// HashProvider is a deterministic, dependency-free embedding backend:
// tokens are feature-hashed into a fixed-width vector and L2-normalized.
// Cosine similarity over these vectors measures lexical overlap, which
// keeps semantic search functional when no embeddings API is configured.
type HashProvider struct{}

// NewHashProvider creates the offline hashing backend.
func NewHashProvider() *HashProvider { return &HashProvider{} }

// Encode embeds each text independently. Identical texts always map to
// identical vectors.
func (p *HashProvider) Encode(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = hashEmbed(text)
	}
	return out, nil
}

func hashEmbed(text string) []float32 {
	vec := make([]float32, HashDim)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		sum := h.Sum32()
		// Sign bit decorrelates colliding tokens.
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[(sum>>1)%HashDim] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Cosine returns the cosine similarity of two vectors, zero when either
// vector is empty, zero, or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
