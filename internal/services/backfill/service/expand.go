package service

import (
	"context"

	"pinakes/internal/adapters/atproto"
	"pinakes/internal/services/backfill/domain"
	"pinakes/internal/services/backfill/guardrails"
	"pinakes/internal/services/backfill/ingest"
	idx "pinakes/internal/services/index/domain"
)

// expand implements spec.md §4.5 step 7, "Ancestor/descendant expansion":
// whether and how to fan out from the post just assembled depends on the
// inclusion reason under which it was reached.
func (e *Engine) expand(ctx context.Context, task domain.PostTask, did string, rec *atproto.Post, thread *atproto.ThreadView) error {
	if task.Reason == idx.ReasonDescendantOf {
		// walking down; the ancestor that queued us already fanned out siblings
		return nil
	}

	isReply := rec.ReplyParent != ""

	if isReply && task.Reason == idx.ReasonAncestorOf {
		// walking up; don't re-queue the root again
		return nil
	}

	if isReply && task.Depth+1 < e.maxDepth {
		root := rec.ReplyRoot
		if root == "" {
			root = rec.ReplyParent
		}
		uri := task.URI
		return e.postQueue.Add(ctx, domain.PostTask{
			URI: root, Reason: idx.ReasonAncestorOf, Context: &uri, Depth: task.Depth + 1,
		})
	}

	// top-level post, or depth budget exhausted: need the thread view
	if thread == nil {
		tctx, cancel := guardrails.ForThreadFetch(ctx, e.timeouts)
		tv, err := e.rpc.GetPostThread(tctx, e.cfg.AppviewHost, task.URI, 1, 100)
		cancel()
		if err == nil {
			thread = tv
		}
	}

	if thread == nil {
		// appview unavailable: fall back to enqueuing the bare reply refs
		uri := task.URI
		if rec.ReplyParent != "" {
			if err := e.postQueue.Add(ctx, domain.PostTask{
				URI: rec.ReplyParent, Reason: idx.ReasonAncestorOf, Context: &uri, Depth: task.Depth,
			}); err != nil {
				return err
			}
		}
		if rec.ReplyRoot != "" && rec.ReplyRoot != rec.ReplyParent {
			if err := e.postQueue.Add(ctx, domain.PostTask{
				URI: rec.ReplyRoot, Reason: idx.ReasonAncestorOf, Context: &uri, Depth: task.Depth,
			}); err != nil {
				return err
			}
		}
		return nil
	}

	uri := task.URI
	for _, parent := range thread.ParentChain {
		if err := e.postQueue.Add(ctx, domain.PostTask{
			URI: parent, Reason: idx.ReasonAncestorOf, Context: &uri, Depth: task.Depth,
		}); err != nil {
			return err
		}
	}

	maxLevels := ingest.ThreadDepthScale(thread.ReplyCount)
	return e.walkDescendants(ctx, task.URI, task.Depth, thread.Replies, 1, maxLevels)
}

// walkDescendants enqueues thread.Replies (and their own nested replies)
// as descendant_of, stopping once level exceeds maxLevels, the semi-log
// depth bound from the thread's reply_count (spec.md §4.5 step 7, S2).
func (e *Engine) walkDescendants(ctx context.Context, contextURI string, depth int, replies []atproto.ThreadView, level, maxLevels int) error {
	if level > maxLevels {
		return nil
	}
	for _, child := range replies {
		uri := contextURI
		if err := e.postQueue.Add(ctx, domain.PostTask{
			URI: child.URI, Reason: idx.ReasonDescendantOf, Context: &uri, Depth: depth,
		}); err != nil {
			return err
		}
		if err := e.walkDescendants(ctx, contextURI, depth, child.Replies, level+1, maxLevels); err != nil {
			return err
		}
	}
	return nil
}
