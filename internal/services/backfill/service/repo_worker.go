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

// processRepo is the repo_queue task body: fetch the repo's CAR, walk it,
// dispatch each wanted record, and write back the new revision on success
// (spec.md §4.5 "Repo revision skip")
func (e *Engine) processRepo(ctx context.Context, task domain.RepoTask) error {
	ctx, cancel := guardrails.ForRepo(ctx, e.timeouts)
	defer cancel()

	car, err := e.rpc.GetRepo(ctx, task.DID)
	if err != nil {
		return err
	}

	lastRev, hasRev, err := e.store.GetRepoRev(ctx, task.DID)
	if err != nil {
		return fmt.Errorf("backfill: reading repo rev for %s: %w", task.DID, err)
	}

	var newRev string
	for entry, walkErr := range atproto.Walk(ctx, car) {
		if walkErr != nil {
			return fmt.Errorf("backfill: walking repo %s: %w", task.DID, walkErr)
		}
		if newRev == "" {
			newRev = entry.Rev
		}
		if !ingest.CollectionWanted(task.Collections, entry.Collection) {
			continue
		}
		if ingest.SkipByRev(entry.Collection, entry.Rkey, lastRev, hasRev) {
			continue
		}
		if err := e.handleRecord(ctx, task, entry); err != nil {
			e.log.Error().Err(err).Str("did", task.DID).Str("collection", entry.Collection).Str("rkey", entry.Rkey).
				Msg("backfill: dropping malformed record")
		}
	}

	if newRev != "" {
		if err := e.store.SetRepoRev(ctx, task.DID, newRev); err != nil {
			return fmt.Errorf("backfill: writing repo rev for %s: %w", task.DID, err)
		}
	}
	return nil
}

// handleRecord dispatches one decoded MST entry per spec.md §4.5
// "Inclusion tagging at ingress"
func (e *Engine) handleRecord(ctx context.Context, task domain.RepoTask, entry atproto.RecordEntry) error {
	switch entry.Collection {
	case atproto.CollectionPost:
		reason := idx.ReasonByFollow
		if task.Own {
			reason = idx.ReasonSelf
		}
		uri := ingest.BuildATURI(task.DID, entry.Collection, entry.Rkey)
		e.addProgress(collectionCounter(entry.Collection), 1)
		return e.postQueue.Add(ctx, domain.PostTask{URI: uri, Reason: reason})

	case atproto.CollectionRepost:
		rec, err := atproto.DecodeRepost(entry.Record)
		if err != nil {
			return err
		}
		reposter := task.DID
		e.addProgress(collectionCounter(entry.Collection), 1)
		return e.postQueue.Add(ctx, domain.PostTask{URI: rec.SubjectURI, Reason: idx.ReasonRepostedBy, Context: &reposter})

	case atproto.CollectionLike:
		rec, err := atproto.DecodeLike(entry.Record)
		if err != nil {
			return err
		}
		e.addProgress(collectionCounter(entry.Collection), 1)
		return e.postQueue.Add(ctx, domain.PostTask{URI: rec.SubjectURI, Reason: idx.ReasonLikedBySelf})

	case atproto.CollectionFollow:
		rec, err := atproto.DecodeFollow(entry.Record)
		if err != nil {
			return err
		}
		e.addProgress(collectionCounter(entry.Collection), 1)
		return e.repoQueue.Add(ctx, domain.RepoTask{DID: rec.SubjectDID, Collections: otherCollections, Own: false})
	}
	return nil
}

func collectionCounter(collection string) string {
	switch collection {
	case atproto.CollectionPost:
		return progressCollectionPost
	case atproto.CollectionRepost:
		return progressCollectionRepost
	case atproto.CollectionLike:
		return progressCollectionLike
	case atproto.CollectionFollow:
		return progressCollectionFollow
	default:
		return collection
	}
}

func (e *Engine) addProgress(name string, n int64) {
	if e.progress != nil {
		e.progress.Add(name, n)
	}
}
