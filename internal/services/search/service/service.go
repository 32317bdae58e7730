// Package service is the read-side search surface (C8): a thin wrapper
// over the index store that resolves handle identifiers to DIDs before
// delegating, plus Explain (C4.9), a recursive inclusion-reason walk.
package service

import (
	"context"
	"fmt"
	"strings"

	idx "pinakes/internal/services/index/domain"
	"pinakes/internal/services/search/domain"
)

// Resolver resolves a DID-or-handle identifier to a DID; satisfied by
// *atproto.Manager
type Resolver interface {
	ResolveIdentifier(ctx context.Context, identifier string) (string, error)
}

// Service is the search/explain entry point bound to an index store and
// an identity resolver
type Service struct {
	store    idx.Store
	resolver Resolver
}

// New builds a search Service
func New(store idx.Store, resolver Resolver) *Service {
	return &Service{store: store, resolver: resolver}
}

// SearchText resolves identifier filters to DIDs and runs a substring search
func (s *Service) SearchText(ctx context.Context, q domain.TextQuery) ([]idx.Post, error) {
	creators, err := s.resolveAll(ctx, q.Creators)
	if err != nil {
		return nil, err
	}
	parents, err := s.resolveAll(ctx, q.ParentAuthors)
	if err != nil {
		return nil, err
	}
	roots, err := s.resolveAll(ctx, q.RootAuthors)
	if err != nil {
		return nil, err
	}
	return s.store.SearchPostsText(ctx, idx.TextSearchOptions{
		Query:          q.Query,
		IncludeAltText: q.IncludeAltText,
		Creators:       creators,
		ParentAuthors:  parents,
		RootAuthors:    roots,
		Before:         q.Before,
		After:          q.After,
		Order:          q.Order,
		Results:        q.Results,
	})
}

// SearchVector resolves identifier filters to DIDs and runs an ANN search
// over a caller-supplied query embedding
func (s *Service) SearchVector(ctx context.Context, q domain.VectorQuery) ([]idx.ScoredPost, error) {
	creators, err := s.resolveAll(ctx, q.Creators)
	if err != nil {
		return nil, err
	}
	parents, err := s.resolveAll(ctx, q.ParentAuthors)
	if err != nil {
		return nil, err
	}
	roots, err := s.resolveAll(ctx, q.RootAuthors)
	if err != nil {
		return nil, err
	}
	return s.store.SearchPostsVector(ctx, idx.VectorSearchOptions{
		QueryVec:       q.QueryVec,
		IncludeAltText: q.IncludeAltText,
		Creators:       creators,
		ParentAuthors:  parents,
		RootAuthors:    roots,
		Before:         q.Before,
		After:          q.After,
		Order:          q.Order,
		Threshold:      q.Threshold,
		Results:        q.Results,
	})
}

// resolveAll resolves a mix of DIDs and handles to DIDs, memoizing per call
func (s *Service) resolveAll(ctx context.Context, identifiers []string) ([]string, error) {
	if len(identifiers) == 0 {
		return nil, nil
	}
	memo := make(map[string]string, len(identifiers))
	out := make([]string, len(identifiers))
	for i, id := range identifiers {
		if did, ok := memo[id]; ok {
			out[i] = did
			continue
		}
		did, err := s.resolver.ResolveIdentifier(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("search: resolving %q: %w", id, err)
		}
		memo[id] = did
		out[i] = did
	}
	return out, nil
}

// parseURI splits an at://<did>/<collection>/<rkey> URI into its creator
// DID and rkey; the collection segment is ignored since the post table is
// keyed only on (creator, rkey)
func parseURI(uri string) (creator, rkey string, ok bool) {
	const prefix = "at://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, prefix), "/", 3)
	if len(parts) != 3 {
		return "", "", false
	}
	return parts[0], parts[2], true
}

// Explain walks the inclusion_reason/inclusion_context chain starting at
// uri, returning the root node of the resulting linked list. A cycle
// (context URI already visited) ends the walk and labels the repeating
// node rather than recursing forever.
func (s *Service) Explain(ctx context.Context, uri string) (*domain.ExplainNode, error) {
	visited := make(map[string]bool)
	return s.explain(ctx, uri, visited)
}

func (s *Service) explain(ctx context.Context, uri string, visited map[string]bool) (*domain.ExplainNode, error) {
	node := &domain.ExplainNode{URI: uri}

	if visited[uri] {
		node.Cycle = true
		return node, nil
	}
	visited[uri] = true

	creator, rkey, ok := parseURI(uri)
	if !ok {
		return nil, fmt.Errorf("search: explain: malformed uri %q", uri)
	}

	post, err := s.store.GetPost(ctx, creator, rkey)
	if err != nil {
		return nil, fmt.Errorf("search: explain: %w", err)
	}

	node.Reason = post.InclusionReason
	node.Context = post.InclusionContext

	if post.InclusionContext == nil {
		return node, nil
	}

	switch post.InclusionReason {
	case idx.ReasonAncestorOf, idx.ReasonDescendantOf, idx.ReasonQuotedBy, idx.ReasonLinkedBy:
		cause, err := s.explain(ctx, *post.InclusionContext, visited)
		if err != nil {
			return nil, err
		}
		node.Cause = cause
		return node, nil
	default:
		// reposted_by/by_follow context is a DID, not a URI: nothing further to walk
		return node, nil
	}
}
