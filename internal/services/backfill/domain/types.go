// Package domain holds the Backfill Engine's state, configuration, and
// queue argument tuples (spec.md §4.5 and §3 "Ownership")
package domain

import (
	"time"

	"pinakes/internal/adapters/atproto"
	idx "pinakes/internal/services/index/domain"
)

// FirstPartyDID is the network's own appview service account; post records
// authored under it are reply noise and are skipped wholesale
const FirstPartyDID = "did:plc:z72i7hdynmk6r22z27h6tvur"

// Depth and batching knobs spec.md §4.5 fixes
const (
	DefaultMaxDepth        = 5
	ReducedMaxDepth        = 2
	FollowsReduceThreshold = 250
	WritePostsBatchSize    = 20
)

// Queue sizing spec.md §4.5 "Queue configuration" names
const (
	RepoQueueSoft, RepoQueueHard, RepoQueueMax = 10, 20, 1000
	RepoQueueSoftTimeout                       = 60 * time.Second
	PostQueueSoft, PostQueueHard, PostQueueMax = 25, 100, 100_000
	EmbeddingsQueueHard                        = 1
)

// Config configures one Engine run
type Config struct {
	UserDID           string
	AppviewHost       string
	MaxDepth          int // 0 means "use DefaultMaxDepth, auto-reduce on fan-out"
	EmbeddingsEnabled bool
}

// RepoTask is the repo_queue argument tuple: a repo to fetch and walk,
// restricted to the named collections
type RepoTask struct {
	DID         string
	Collections []string
	Own         bool
}

// PostTask is the post_queue argument tuple
type PostTask struct {
	URI     string
	Reason  idx.InclusionReason
	Context *string
	// Record is set when the caller already has the post's content inlined
	// (e.g. a quoted-post view returned alongside the quoting post), letting
	// the engine skip a fetch. Nil means "look it up."
	Record *atproto.Post
	Depth  int
}

// EmbeddingBatch is the embeddings_queue argument tuple: a batch of posts
// already persisted, whose text/alt-text embeddings still need computing
type EmbeddingBatch struct {
	Posts []idx.Post
}
