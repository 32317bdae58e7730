package domain

import (
	"context"

	"pinakes/internal/adapters/atproto"
	idx "pinakes/internal/services/index/domain"
)

// RPCPort is the subset of atproto.Manager the engine depends on, named
// narrowly so tests can substitute a fake without pulling in XRPC
type RPCPort interface {
	GetRepo(ctx context.Context, did string) ([]byte, error)
	GetRecord(ctx context.Context, did, collection, rkey string) (*atproto.RecordEntry, error)
	GetPostThread(ctx context.Context, appviewHost, uri string, depth, parentHeight int64) (*atproto.ThreadView, error)
	GetProfile(ctx context.Context, appviewHost, did string) (*atproto.Profile, error)
}

// Store is the subset of index.domain.Store the engine writes through
type Store interface {
	InsertPosts(ctx context.Context, batch []idx.Post) error
	GetRepoRev(ctx context.Context, did string) (string, bool, error)
	SetRepoRev(ctx context.Context, did, rev string) error
}

// Embedder embeds text batches; satisfied by embed.Embedder
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ProgressSink receives per-collection counts; satisfied by *progress.Scope
type ProgressSink interface {
	Add(name string, n int64)
}
