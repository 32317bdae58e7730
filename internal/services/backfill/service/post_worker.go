package service

import (
	"context"
	"fmt"

	"pinakes/internal/adapters/atproto"
	"pinakes/internal/services/backfill/domain"
	"pinakes/internal/services/backfill/guardrails"
	"pinakes/internal/services/backfill/ingest"
	idx "pinakes/internal/services/index/domain"
)

// processPost is the post_queue task body implementing spec.md §4.5
// "Post processing (the heart)"
func (e *Engine) processPost(ctx context.Context, task domain.PostTask) error {
	// 1. depth guard
	if task.Depth > e.maxDepth {
		return nil
	}

	// 2. dedup
	if !e.markSeen(task.URI) {
		return nil
	}

	did, collection, rkey, ok := ingest.SplitATURI(task.URI)
	if !ok {
		e.log.Error().Str("uri", task.URI).Msg("backfill: malformed post uri, dropping")
		return nil
	}
	if did == domain.FirstPartyDID {
		return nil
	}
	if collection == "" {
		collection = atproto.CollectionPost
	}

	rec, thread, err := e.fetchPost(ctx, task, did, collection, rkey)
	if err != nil {
		if atproto.IsNotFound(err) {
			return nil
		}
		return err
	}
	if rec == nil {
		// not found, or first-party-filtered at the decode layer
		return nil
	}

	// 4. assemble and buffer
	post, err := ingest.AssemblePost(did, rkey, *rec, task.Reason, task.Context)
	if err != nil {
		e.log.Error().Err(err).Str("uri", task.URI).Msg("backfill: dropping post with unparseable created_at")
		return nil
	}
	if err := e.bufferWrite(ctx, post); err != nil {
		return fmt.Errorf("backfill: buffering %s: %w", task.URI, err)
	}

	// 6. quoted expansion
	if rec.Quoted != "" {
		uri := task.URI
		if err := e.postQueue.Add(ctx, domain.PostTask{
			URI: rec.Quoted, Reason: idx.ReasonQuotedBy, Context: &uri, Depth: task.Depth + 1,
		}); err != nil {
			return err
		}
	}

	// 7. ancestor/descendant expansion
	return e.expand(ctx, task, did, rec, thread)
}

// fetchPost resolves a post's record, preferring the thread-view endpoint
// (which returns both the record and surrounding conversation) with a
// direct-record fallback, per spec.md §4.5 step 3
func (e *Engine) fetchPost(ctx context.Context, task domain.PostTask, did, collection, rkey string) (*atproto.Post, *atproto.ThreadView, error) {
	if task.Record != nil {
		return task.Record, nil, nil
	}

	tctx, cancel := guardrails.ForThreadFetch(ctx, e.timeouts)
	tv, err := e.rpc.GetPostThread(tctx, e.cfg.AppviewHost, task.URI, 1, 100)
	cancel()

	if err == nil && tv != nil && tv.Record != nil {
		return tv.Record, tv, nil
	}
	if err != nil && atproto.IsNotFound(err) {
		return nil, nil, nil
	}

	rctx, rcancel := guardrails.ForRecordFetch(ctx, e.timeouts)
	entry, rerr := e.rpc.GetRecord(rctx, did, collection, rkey)
	rcancel()
	if rerr != nil {
		if atproto.IsNotFound(rerr) {
			return nil, nil, nil
		}
		return nil, nil, rerr
	}

	rec, derr := atproto.DecodePostJSON(entry.Record)
	if derr != nil {
		// direct record fetches via com.atproto.repo.getRecord are
		// re-marshaled to JSON by the adapter (see endpoints.go)
		return nil, nil, fmt.Errorf("decode post record: %w", derr)
	}
	return &rec, nil, nil
}

// markSeen reports whether uri had not been seen yet, marking it seen as
// a side effect (spec.md §8 invariant 1, dedup by URI hash not content)
func (e *Engine) markSeen(uri string) bool {
	h := ingest.HashURI(uri)
	e.seenMu.Lock()
	defer e.seenMu.Unlock()
	if _, ok := e.seenPosts[h]; ok {
		return false
	}
	e.seenPosts[h] = struct{}{}
	return true
}
