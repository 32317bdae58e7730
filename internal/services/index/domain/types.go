// Package domain defines the types and ports for the index service (C4),
// the narrow store surface spec.md §4.4 describes over the embedded
// SQL engine.
package domain

import "context"

// InclusionReason is the discrete tag describing why a post is in the index
type InclusionReason string

// The closed set of inclusion reasons spec.md §3 enumerates
const (
	ReasonSelf         InclusionReason = "self"
	ReasonLikedBySelf  InclusionReason = "liked_by_self"
	ReasonRepostedBy   InclusionReason = "reposted_by"
	ReasonAncestorOf   InclusionReason = "ancestor_of"
	ReasonDescendantOf InclusionReason = "descendant_of"
	ReasonQuotedBy     InclusionReason = "quoted_by"
	ReasonLinkedBy     InclusionReason = "linked_by"
	ReasonByFollow     InclusionReason = "by_follow"
)

// Post is the primary entity, identified by (Creator, Rkey)
type Post struct {
	Creator           string
	Rkey              string
	CreatedAt         int64 // millisecond epoch
	Text              string
	AltText           *string
	ReplyParent       *string
	ReplyRoot         *string
	Quoted            *string
	EmbedTitle        *string
	EmbedDescription  *string
	EmbedURL          *string
	InclusionReason   InclusionReason
	InclusionContext  *string
	Embedding         []float32 // nil when not yet embedded
	AltTextEmbedding  []float32
}

// Config keys drawn from the small known set spec.md §3 describes
const (
	ConfigKeyDID     = "did"
	ConfigKeyAppview = "appview"
)

// Order is a sort direction
type Order int

const (
	// Desc orders created_at (or distance) descending — the default
	Desc Order = iota
	Asc
)

// TextSearchOptions is the filter/order/limit contract for SearchPostsText,
// matching spec.md §4.4 verbatim
type TextSearchOptions struct {
	Query           string
	IncludeAltText  bool
	Creators        []string
	ParentAuthors   []string
	RootAuthors     []string
	Before          *int64
	After           *int64
	Order           Order
	Results         int
}

// VectorSearchOptions is the filter/order/limit contract for SearchPostsVector
type VectorSearchOptions struct {
	QueryVec       []float32
	IncludeAltText bool
	Creators       []string
	ParentAuthors  []string
	RootAuthors    []string
	Before         *int64
	After          *int64
	Order          Order
	Threshold      *float64 // default 0.5 when unset and used
	Results        int
}

// ScoredPost pairs a Post with its cosine distance from a vector search
type ScoredPost struct {
	Post     Post
	Distance float64
}

// Repo is a repository watermark: the highest commit revision seen
type Repo struct {
	DID string
	Rev string
}

// Store is the port the Backfill Engine and Search surface depend on
type Store interface {
	InsertPosts(ctx context.Context, batch []Post) error
	GetPost(ctx context.Context, creator, rkey string) (*Post, error)

	SetRepoRev(ctx context.Context, did, rev string) error
	GetRepoRev(ctx context.Context, did string) (string, bool, error)

	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error
	DeleteConfig(ctx context.Context, key string) error

	SearchPostsText(ctx context.Context, opts TextSearchOptions) ([]Post, error)
	SearchPostsVector(ctx context.Context, opts VectorSearchOptions) ([]ScoredPost, error)
}
