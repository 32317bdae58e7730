// Package service is the thin logging/tracing shell around the index
// repo, mirroring the teacher's detect/service shape: the repo owns SQL,
// the service owns cross-cutting concerns (here, structured logging of
// write volume) and is what other components depend on.
package service

import (
	"context"

	"pinakes/internal/modkit/repokit"
	"pinakes/internal/platform/logger"
	idxrepo "pinakes/internal/services/index/repo"

	"pinakes/internal/services/index/domain"
)

// Index is the bound, logging-wrapped index store
type Index struct {
	store domain.Store
	log   logger.Logger
}

// New binds q to the index repo and wraps it with logging
func New(q repokit.Queryer, log logger.Logger) *Index {
	return &Index{store: idxrepo.Binder().Bind(q), log: log}
}

var _ domain.Store = (*Index)(nil)

func (s *Index) InsertPosts(ctx context.Context, batch []domain.Post) error {
	if err := s.store.InsertPosts(ctx, batch); err != nil {
		return err
	}
	s.log.Debug().Int("n", len(batch)).Msg("index: inserted posts")
	return nil
}

func (s *Index) GetPost(ctx context.Context, creator, rkey string) (*domain.Post, error) {
	return s.store.GetPost(ctx, creator, rkey)
}

func (s *Index) SetRepoRev(ctx context.Context, did, rev string) error {
	return s.store.SetRepoRev(ctx, did, rev)
}

func (s *Index) GetRepoRev(ctx context.Context, did string) (string, bool, error) {
	return s.store.GetRepoRev(ctx, did)
}

func (s *Index) GetConfig(ctx context.Context, key string) (string, bool, error) {
	return s.store.GetConfig(ctx, key)
}

func (s *Index) SetConfig(ctx context.Context, key, value string) error {
	return s.store.SetConfig(ctx, key, value)
}

func (s *Index) DeleteConfig(ctx context.Context, key string) error {
	return s.store.DeleteConfig(ctx, key)
}

func (s *Index) SearchPostsText(ctx context.Context, opts domain.TextSearchOptions) ([]domain.Post, error) {
	return s.store.SearchPostsText(ctx, opts)
}

func (s *Index) SearchPostsVector(ctx context.Context, opts domain.VectorSearchOptions) ([]domain.ScoredPost, error) {
	return s.store.SearchPostsVector(ctx, opts)
}
