// Package service implements the Backfill Engine (C7), the orchestrator
// wiring C1 (queue), C2/C3 (atproto adapters), C4 (store), C5 (embedder)
// and C6 (progress) together. Adapted from the teacher's identically
// named backfill/service.go: that package runs a claim-and-retry worker
// pool over gharchive hours; here the three C1 queues spec.md §4.5 names
// (repo_queue, post_queue, embeddings_queue) replace the hour-claim loop,
// generalized from "hour" to "repo"/"post" scopes.
package service

import (
	"context"
	"fmt"
	"sync"

	"pinakes/internal/adapters/atproto"
	"pinakes/internal/core/queue"
	"pinakes/internal/platform/logger"
	"pinakes/internal/services/backfill/domain"
	"pinakes/internal/services/backfill/guardrails"
	idx "pinakes/internal/services/index/domain"
)

// Engine is the live state of one backfill run: the dedup set and pending
// write buffer are Engine-owned and discarded on Close (spec.md §3
// "Ownership")
type Engine struct {
	cfg      domain.Config
	rpc      domain.RPCPort
	store    domain.Store
	embedder domain.Embedder
	progress domain.ProgressSink
	log      logger.Logger
	timeouts guardrails.Timeouts

	maxDepth int

	seenMu    sync.Mutex
	seenPosts map[uint32]struct{}

	pendingMu sync.Mutex
	pending   []idx.Post

	repoQueue  *queue.Queue[domain.RepoTask]
	postQueue  *queue.Queue[domain.PostTask]
	embedQueue *queue.Queue[domain.EmbeddingBatch]

	repoEvents, postEvents, embedEvents chan queue.Event
}

// New builds an Engine for one backfill run. cfg.MaxDepth == 0 defers the
// depth decision to Run, which may auto-reduce it per spec.md §4.5.
func New(cfg domain.Config, rpc domain.RPCPort, store domain.Store, embedder domain.Embedder, progress domain.ProgressSink, log logger.Logger) *Engine {
	e := &Engine{
		cfg:       cfg,
		rpc:       rpc,
		store:     store,
		embedder:  embedder,
		progress:  progress,
		log:       log,
		timeouts:  guardrails.Default(),
		seenPosts: make(map[uint32]struct{}),
	}

	e.repoEvents = make(chan queue.Event, 64)
	e.postEvents = make(chan queue.Event, 64)
	e.embedEvents = make(chan queue.Event, 64)
	go drainEvents(e.repoEvents)
	go drainEvents(e.postEvents)
	go drainEvents(e.embedEvents)

	e.repoQueue = queue.New(queue.Config{
		HardConcurrency: domain.RepoQueueHard,
		SoftConcurrency: domain.RepoQueueSoft,
		SoftTimeout:     domain.RepoQueueSoftTimeout,
		MaxQueueSize:    domain.RepoQueueMax,
		Events:          e.repoEvents,
	}, e.processRepo)

	e.postQueue = queue.New(queue.Config{
		HardConcurrency: domain.PostQueueHard,
		SoftConcurrency: domain.PostQueueSoft,
		MaxQueueSize:    domain.PostQueueMax,
		Events:          e.postEvents,
	}, e.processPost)

	e.embedQueue = queue.New(queue.Config{
		HardConcurrency: domain.EmbeddingsQueueHard,
		Events:          e.embedEvents,
	}, e.processEmbeddings)

	return e
}

// progress counter names, matching internal/platform/progress's constants
// without importing that package directly (the ProgressSink port keeps
// this package decoupled from the concrete bar implementation). Counts
// are incremented per-collection at the point of ingestion (handleRecord,
// processEmbeddings) rather than per queue-completion, since one queue
// task can touch more than one collection's worth of records.
const (
	progressCollectionPost       = "post"
	progressCollectionRepost     = "repost"
	progressCollectionLike       = "like"
	progressCollectionFollow     = "follow"
	progressCollectionEmbeddings = "embeddings"
)

func drainEvents(ch chan queue.Event) {
	for range ch {
	}
}

// Run crawls cfg.UserDID's repo graph to completion and flushes all
// pending writes. It returns only once every queue has drained.
func (e *Engine) Run(ctx context.Context) error {
	e.maxDepth = e.resolveMaxDepth(ctx)

	if err := e.repoQueue.Add(ctx, domain.RepoTask{
		DID:         e.cfg.UserDID,
		Collections: ownCollections,
		Own:         true,
	}); err != nil {
		return fmt.Errorf("backfill: seeding root repo: %w", err)
	}

	if err := e.drainAll(ctx); err != nil {
		return err
	}

	return e.flush(ctx)
}

// Close releases the Engine's transient state; safe to call once after Run
func (e *Engine) Close() {
	e.seenPosts = nil
	e.pending = nil
	close(e.repoEvents)
	close(e.postEvents)
	close(e.embedEvents)
}

var ownCollections = []string{atproto.CollectionPost, atproto.CollectionRepost, atproto.CollectionLike, atproto.CollectionFollow}
var otherCollections = []string{atproto.CollectionPost, atproto.CollectionRepost}

func (e *Engine) resolveMaxDepth(ctx context.Context) int {
	if e.cfg.MaxDepth > 0 {
		return e.cfg.MaxDepth
	}
	depth := domain.DefaultMaxDepth
	profile, err := e.rpc.GetProfile(ctx, e.cfg.AppviewHost, e.cfg.UserDID)
	if err != nil {
		e.log.Warn().Err(err).Msg("backfill: could not fetch profile for depth auto-reduction, using default")
		return depth
	}
	if profile.FollowsCount > domain.FollowsReduceThreshold {
		depth = domain.ReducedMaxDepth
	}
	return depth
}

// drainAll polls all three queues until none has waiting or running work,
// tolerating that draining one can re-enqueue onto another (spec.md
// §4.5 "Termination")
func (e *Engine) drainAll(ctx context.Context) error {
	for {
		if err := e.repoQueue.ProcessAll(ctx); err != nil {
			return err
		}
		if err := e.postQueue.ProcessAll(ctx); err != nil {
			return err
		}
		if err := e.embedQueue.ProcessAll(ctx); err != nil {
			return err
		}
		if e.idle() {
			return nil
		}
	}
}

func (e *Engine) idle() bool {
	return e.repoQueue.Size()+e.repoQueue.Running() == 0 &&
		e.postQueue.Size()+e.postQueue.Running() == 0 &&
		e.embedQueue.Size()+e.embedQueue.Running() == 0
}
