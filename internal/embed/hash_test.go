package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashEmbedder_NormalizedAndDeterministic(t *testing.T) {
	h := NewHashEmbedder(0)
	require.Equal(t, 384, h.Dim)

	a, err := h.Embed(context.Background(), "I feel calm and settled")
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), "I feel calm and settled")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, math.Sqrt(dot(a, a)), 1e-6)
}

func TestHashEmbedder_SharedWordsAreSimilar(t *testing.T) {
	h := NewHashEmbedder(384)
	ctx := context.Background()
	a, _ := h.Embed(ctx, "numb empty hopeless")
	b, _ := h.Embed(ctx, "so numb and empty")
	c, _ := h.Embed(ctx, "curious playful garden")

	assert.Greater(t, dot(a, b), dot(a, c))
}

func TestHashEmbedder_StopwordsOnly(t *testing.T) {
	h := NewHashEmbedder(16)
	vec, err := h.Embed(context.Background(), "I am the one")
	require.NoError(t, err)
	// "one" survives; everything else is a stopword
	assert.InDelta(t, 1.0, math.Sqrt(dot(vec, vec)), 1e-6)

	vec, err = h.Embed(context.Background(), "and the to")
	require.NoError(t, err)
	assert.Zero(t, dot(vec, vec))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"heart", "racing", "cannot", "sit", "still"},
		Tokenize("My heart is racing, I cannot sit still... racing!"))
	assert.Empty(t, Tokenize(""))
}
