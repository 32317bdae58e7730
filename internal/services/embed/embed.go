// Package embed provides the text -> vector seam (C5). The model runtime
// itself is out of scope (spec.md §1); this package defines the interface
// other components depend on plus a deterministic stub used in tests and
// whenever no real model is configured.
package embed

import (
	"context"
	"hash/fnv"
	"sync"
)

// Dim is the fixed embedding width the Store expects (spec.md §3, 384-D normalized)
const Dim = 384

// Embedder turns text into fixed-dimension normalized vectors, batched
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// lazyLoader defers expensive model initialization to first use
type lazyLoader struct {
	once sync.Once
	new  func() Embedder
	inst Embedder
}

// NewLazy wraps newFn so the embedder it returns isn't constructed until
// the first Embed call, matching spec.md §4.5's "lazy model load"
func NewLazy(newFn func() Embedder) Embedder {
	return &lazyLoader{new: newFn}
}

func (l *lazyLoader) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	l.once.Do(func() { l.inst = l.new() })
	return l.inst.Embed(ctx, texts)
}

// Stub is a deterministic hash-based pseudo-embedding: not semantically
// meaningful, but stable and normalized, useful for tests and for running
// the full pipeline without a real model configured
type Stub struct{}

// NewStub returns the deterministic stub embedder
func NewStub() Embedder { return Stub{} }

func (Stub) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashEmbed(t)
	}
	return out, nil
}

// hashEmbed fills each of the Dim floats from an FNV-1a hash of that
// float's index followed by the whole of t, then L2-normalizes the result
func hashEmbed(t string) []float32 {
	v := make([]float32, Dim)
	if t == "" {
		return v
	}
	for i := 0; i < Dim; i++ {
		h := fnv.New32a()
		_, _ = h.Write([]byte{byte(i), byte(i >> 8)})
		_, _ = h.Write([]byte(t))
		v[i] = float32(h.Sum32()%2000)/1000 - 1 // in [-1, 1)
	}
	normalize(v)
	return v
}

func normalize(v []float32) {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(1 / sqrt(sumSq))
	for i := range v {
		v[i] *= norm
	}
}

func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

// Batch splits texts into chunks of at most size, preserving order; the
// batching helper spec.md §4.5 names for inference calls
func Batch(texts []string, size int) [][]string {
	if size <= 0 {
		size = len(texts)
	}
	var out [][]string
	for len(texts) > 0 {
		n := size
		if n > len(texts) {
			n = len(texts)
		}
		out = append(out, texts[:n])
		texts = texts[n:]
	}
	return out
}
