package atproto

import (
	"context"
	"errors"
	"fmt"

	"github.com/bluesky-social/indigo/atproto/identity"
	"github.com/bluesky-social/indigo/atproto/syntax"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrDidNotFound is returned (wrapped) when a DID cannot be resolved to a service
var ErrDidNotFound = errors.New("did not found")

const didCacheSize = 100_000

// didEntry caches either a resolved service host or a permanent miss
type didEntry struct {
	host  string
	found bool
}

// identityResolver resolves a DID to the PDS/appview host that serves it,
// bounded-LRU cached exactly as spec.md §4.2 specifies: a DidNotFound
// caches a negative entry so repeated lookups of a dead DID don't retrigger
// directory resolution
type identityResolver struct {
	dir   identity.Directory
	cache *lru.Cache[string, didEntry]
}

func newIdentityResolver(dir identity.Directory) *identityResolver {
	c, err := lru.New[string, didEntry](didCacheSize)
	if err != nil {
		panic(fmt.Sprintf("atproto: building did cache: %v", err))
	}
	return &identityResolver{dir: dir, cache: c}
}

// ResolveServiceHost returns the base URL of the PDS/appview that serves did
func (r *identityResolver) ResolveServiceHost(ctx context.Context, did string) (string, error) {
	if e, ok := r.cache.Get(did); ok {
		if !e.found {
			return "", fmt.Errorf("atproto: %s: %w", did, ErrDidNotFound)
		}
		return e.host, nil
	}

	d, err := syntax.ParseDID(did)
	if err != nil {
		r.cache.Add(did, didEntry{})
		return "", fmt.Errorf("atproto: invalid did %q: %w", did, err)
	}

	ident, err := r.dir.LookupDID(ctx, d)
	if err != nil {
		r.cache.Add(did, didEntry{})
		return "", fmt.Errorf("atproto: %s: %w", did, ErrDidNotFound)
	}

	svc, ok := ident.Services["atproto_pds"]
	if !ok || svc.URL == "" {
		r.cache.Add(did, didEntry{})
		return "", fmt.Errorf("atproto: %s: no atproto_pds service endpoint", did)
	}

	r.cache.Add(did, didEntry{host: svc.URL, found: true})
	return svc.URL, nil
}

// ResolveHandle resolves a handle to its DID. Unlike ResolveServiceHost this
// is not cached here: handle resolution is rare compared to per-repo
// service lookups (it happens once per CLI identifier argument, not once
// per repo/post), so the directory's own caching is sufficient
func (r *identityResolver) ResolveHandle(ctx context.Context, handle string) (string, error) {
	h, err := syntax.ParseHandle(handle)
	if err != nil {
		return "", fmt.Errorf("atproto: invalid handle %q: %w", handle, err)
	}
	ident, err := r.dir.LookupHandle(ctx, h)
	if err != nil {
		return "", fmt.Errorf("atproto: resolving handle %q: %w", handle, err)
	}
	return ident.DID.String(), nil
}
