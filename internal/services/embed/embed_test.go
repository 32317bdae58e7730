package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStub_Deterministic(t *testing.T) {
	s := NewStub()
	a, err := s.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	b, err := s.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestStub_DifferentTextsDiffer(t *testing.T) {
	s := NewStub()
	out, err := s.Embed(context.Background(), []string{"foo", "bar"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.NotEqual(t, out[0], out[1])
}

func TestStub_Dimension(t *testing.T) {
	s := NewStub()
	out, err := s.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, out[0], Dim)
}

func TestStub_EmptyTextIsZeroVector(t *testing.T) {
	s := NewStub()
	out, err := s.Embed(context.Background(), []string{""})
	require.NoError(t, err)
	for _, f := range out[0] {
		assert.Equal(t, float32(0), f)
	}
}

func TestLazy_DefersConstruction(t *testing.T) {
	built := false
	e := NewLazy(func() Embedder {
		built = true
		return NewStub()
	})
	assert.False(t, built)
	_, err := e.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.True(t, built)
}

func TestBatch_SplitsAndPreservesOrder(t *testing.T) {
	texts := []string{"a", "b", "c", "d", "e"}
	batches := Batch(texts, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"c", "d"}, batches[1])
	assert.Equal(t, []string{"e"}, batches[2])
}

func TestBatch_ZeroSizeIsOneBatch(t *testing.T) {
	texts := []string{"a", "b", "c"}
	batches := Batch(texts, 0)
	require.Len(t, batches, 1)
	assert.Equal(t, texts, batches[0])
}
