// Package domain holds the search surface's request/response shapes, kept
// separate from internal/services/index/domain so callers depend on a
// stable, identifier-resolving contract rather than the storage layer's.
package domain

import idx "pinakes/internal/services/index/domain"

// TextQuery mirrors index.domain.TextSearchOptions but accepts DIDs or
// handles in its identifier fields; the service resolves handles before
// delegating
type TextQuery struct {
	Query          string
	IncludeAltText bool
	Creators       []string
	ParentAuthors  []string
	RootAuthors    []string
	Before, After  *int64
	Order          idx.Order
	Results        int
}

// VectorQuery mirrors index.domain.VectorSearchOptions, taking a
// pre-computed query embedding (the caller is responsible for calling the
// embedder)
type VectorQuery struct {
	QueryVec       []float32
	IncludeAltText bool
	Creators       []string
	ParentAuthors  []string
	RootAuthors    []string
	Before, After  *int64
	Order          idx.Order
	Threshold      *float64
	Results        int
}

// ExplainNode is one hop of an inclusion-reason chain: URI was pulled in
// for Reason, and if Context names another URI, Cause explains that one
// in turn. Cycle is set when Context loops back to an already-visited URI.
type ExplainNode struct {
	URI     string
	Reason  idx.InclusionReason
	Context *string
	Cycle   bool
	Cause   *ExplainNode
}
