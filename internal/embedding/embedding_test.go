package embedding

import (
	"context"
	"math"
	"testing"

	"legal-researcher/internal/config"
	"legal-researcher/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestHashEmbedder_DeterministicAndNormalized(t *testing.T) {
	h := NewHashEmbedder(256)
	ctx := context.Background()

	first, err := h.CreateEmbedding(ctx, []string{"Punishment for theft", "punishment FOR theft!"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Len(t, first[0], 256)
	assert.Equal(t, first[0], first[1], "case and punctuation are ignored")

	var norm float64
	for _, x := range first[0] {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)

	again, err := h.CreateEmbedding(ctx, []string{"Punishment for theft"})
	require.NoError(t, err)
	assert.Equal(t, first[0], again[0])
}

func TestHashEmbedder_EmptyTextHasDirection(t *testing.T) {
	v, err := NewHashEmbedder(8).CreateEmbedding(context.Background(), []string{"  "})
	require.NoError(t, err)
	assert.Equal(t, float32(1), v[0][0])
}

func TestHashEmbedder_FavoursLexicalOverlap(t *testing.T) {
	h := NewHashEmbedder(0)
	vs, err := h.CreateEmbedding(context.Background(), []string{
		"theft punishment",
		"Section 101. Punishment for theft. Whoever commits theft shall be punished with imprisonment.",
		"Section 10. Contracts made by minors are void ab initio.",
	})
	require.NoError(t, err)
	assert.Greater(t, cosine(vs[0], vs[1]), cosine(vs[0], vs[2]))
}

func TestNew_HashProvider(t *testing.T) {
	e, err := New(config.LLMConfig{Provider: "hash", Dimension: 64})
	require.NoError(t, err)
	assert.Equal(t, "hash:xxhash64-bow:64", e.Identity())

	q, err := e.EmbedQuery(context.Background(), "bail application")
	require.NoError(t, err)
	assert.Len(t, q, 64)
}

func TestNew_IdentityIncludesModel(t *testing.T) {
	e, err := New(config.LLMConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "nomic-embed-text"})
	require.NoError(t, err)
	assert.Equal(t, "ollama:nomic-embed-text", e.Identity())
}

func TestNew_GoogleAI(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "googleai", Model: "text-embedding-004"})
	assert.ErrorIs(t, err, models.ErrMissingCredential)

	e, err := New(config.LLMConfig{Provider: "googleai", Model: "text-embedding-004", Key: "g-test"})
	require.NoError(t, err)
	assert.Equal(t, "googleai:text-embedding-004", e.Identity())
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "word2vec"})
	assert.Error(t, err)
}

func TestGenerateEmbeddings(t *testing.T) {
	e, err := New(config.LLMConfig{Provider: "hash", Dimension: 32})
	require.NoError(t, err)

	chunks := []models.Chunk{{ID: "a#0", Content: "first"}, {ID: "a#1", Content: "second"}}
	vectors, err := GenerateEmbeddings(context.Background(), e, chunks)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[1], 32)

	vectors, err = GenerateEmbeddings(context.Background(), e, nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
