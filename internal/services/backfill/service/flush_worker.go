package service

import (
	"context"

	"pinakes/internal/services/backfill/domain"
	idx "pinakes/internal/services/index/domain"
)

// bufferWrite appends post to the pending batch, flushing when it reaches
// domain.WritePostsBatchSize (spec.md §4.5 "Batched writes")
func (e *Engine) bufferWrite(ctx context.Context, post idx.Post) error {
	e.pendingMu.Lock()
	e.pending = append(e.pending, post)
	full := len(e.pending) >= domain.WritePostsBatchSize
	var batch []idx.Post
	if full {
		batch = e.pending
		e.pending = nil
	}
	e.pendingMu.Unlock()

	if batch == nil {
		return nil
	}
	return e.writeBatch(ctx, batch)
}

// flush writes out whatever remains buffered once the crawl itself has
// drained; called once at the end of Run
func (e *Engine) flush(ctx context.Context) error {
	e.pendingMu.Lock()
	batch := e.pending
	e.pending = nil
	e.pendingMu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return e.writeBatch(ctx, batch)
}

func (e *Engine) writeBatch(ctx context.Context, batch []idx.Post) error {
	if err := e.store.InsertPosts(ctx, batch); err != nil {
		return err
	}
	if e.cfg.EmbeddingsEnabled {
		cp := make([]idx.Post, len(batch))
		copy(cp, batch)
		return e.embedQueue.Add(ctx, domain.EmbeddingBatch{Posts: cp})
	}
	return nil
}

// processEmbeddings computes text and alt-text embeddings for a batch of
// already-persisted posts and re-upserts them (spec.md §4.5 step 5,
// §9's COALESCE-on-embedding-columns-only null-preserving upsert)
func (e *Engine) processEmbeddings(ctx context.Context, batch domain.EmbeddingBatch) error {
	if e.embedder == nil || len(batch.Posts) == 0 {
		return nil
	}

	texts := make([]string, len(batch.Posts))
	for i, p := range batch.Posts {
		texts[i] = p.Text
	}
	textVecs, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}

	altIdx := make([]int, 0, len(batch.Posts))
	alts := make([]string, 0, len(batch.Posts))
	for i, p := range batch.Posts {
		if p.AltText != nil && *p.AltText != "" {
			altIdx = append(altIdx, i)
			alts = append(alts, *p.AltText)
		}
	}
	var altVecs [][]float32
	if len(alts) > 0 {
		altVecs, err = e.embedder.Embed(ctx, alts)
		if err != nil {
			return err
		}
	}

	out := make([]idx.Post, len(batch.Posts))
	copy(out, batch.Posts)
	for i := range out {
		if i < len(textVecs) {
			out[i].Embedding = textVecs[i]
		}
	}
	for j, i := range altIdx {
		if j < len(altVecs) {
			out[i].AltTextEmbedding = altVecs[j]
		}
	}

	if err := e.store.InsertPosts(ctx, out); err != nil {
		return err
	}
	e.addProgress(progressCollectionEmbeddings, int64(len(out)))
	return nil
}
