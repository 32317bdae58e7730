package atproto

import (
	"context"
	"fmt"
	"net/http"

	atproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"
)

// GetRepo fetches the full repository CAR for did from its own PDS
func (m *Manager) GetRepo(ctx context.Context, did string) ([]byte, error) {
	var car []byte
	err := m.QueryByDID(ctx, did, func(ctx context.Context, c *xrpc.Client) error {
		b, err := atproto.SyncGetRepo(ctx, c, did, "")
		if err != nil {
			return wrapXRPCErr(err)
		}
		car = b
		return nil
	})
	return car, err
}

// GetRecord fetches a single record by its AT-URI components, falling back
// to whichever PDS currently serves the owning DID
func (m *Manager) GetRecord(ctx context.Context, did, collection, rkey string) (*RecordEntry, error) {
	var entry *RecordEntry
	err := m.QueryByDID(ctx, did, func(ctx context.Context, c *xrpc.Client) error {
		out, err := atproto.RepoGetRecord(ctx, c, "", collection, did, rkey)
		if err != nil {
			return wrapXRPCErr(err)
		}
		raw, err := out.Value.MarshalJSON()
		if err != nil {
			return fmt.Errorf("atproto: re-marshal record: %w", err)
		}
		entry = &RecordEntry{Collection: collection, Rkey: rkey, Record: raw}
		return nil
	})
	return entry, err
}

// ThreadView is the flattened subset of app.bsky.feed.getPostThread the
// Backfill Engine needs: the post's own URI, its full inlined ancestor
// chain (immediate parent first), its reply count, and its immediate
// inlined replies (each itself a ThreadView, recursively), so the engine
// can walk up the parent chain and down the reply tree without a second
// round trip per hop.
type ThreadView struct {
	URI         string
	ReplyCount  int64
	ParentChain []string
	Replies     []ThreadView
	Record      *Post
}

// GetPostThread fetches the thread view for uri from the appview named by
// appviewHost, used by the Backfill Engine's thread-view fetch step with a
// direct-record fallback when the appview is unavailable. depth/height
// bound how many reply/parent levels the appview inlines; the engine asks
// for enough to cover its own semi-log traversal budget.
func (m *Manager) GetPostThread(ctx context.Context, appviewHost, uri string, depth, parentHeight int64) (*ThreadView, error) {
	var tv *ThreadView
	err := m.Query(ctx, appviewHost, func(ctx context.Context, c *xrpc.Client) error {
		out, err := bsky.FeedGetPostThread(ctx, c, depth, parentHeight, uri)
		if err != nil {
			return wrapXRPCErr(err)
		}
		tv = flattenThread(out)
		return nil
	})
	return tv, err
}

func flattenThread(out *bsky.FeedGetPostThread_Output) *ThreadView {
	if out == nil || out.Thread == nil || out.Thread.FeedDefs_ThreadViewPost == nil {
		return nil
	}
	return flattenThreadViewPost(out.Thread.FeedDefs_ThreadViewPost)
}

func flattenThreadViewPost(tvp *bsky.FeedDefs_ThreadViewPost) *ThreadView {
	if tvp == nil || tvp.Post == nil {
		return nil
	}
	tv := &ThreadView{URI: tvp.Post.Uri}
	if tvp.Post.ReplyCount != nil {
		tv.ReplyCount = *tvp.Post.ReplyCount
	}
	if tvp.Post.Record != nil {
		if raw, err := tvp.Post.Record.MarshalJSON(); err == nil {
			if p, err := DecodePostJSON(raw); err == nil {
				tv.Record = &p
			}
		}
	}

	for p := tvp.Parent; p != nil && p.FeedDefs_ThreadViewPost != nil; {
		parent := p.FeedDefs_ThreadViewPost
		if parent.Post == nil {
			break
		}
		tv.ParentChain = append(tv.ParentChain, parent.Post.Uri)
		p = parent.Parent
	}

	for _, r := range tvp.Replies {
		if r == nil || r.FeedDefs_ThreadViewPost == nil {
			continue
		}
		if child := flattenThreadViewPost(r.FeedDefs_ThreadViewPost); child != nil {
			tv.Replies = append(tv.Replies, *child)
		}
	}

	return tv
}

// Profile is the subset of app.bsky.actor.getProfile the engine consumes
// to decide whether to auto-reduce its depth budget (spec.md §4.5)
type Profile struct {
	Handle      string
	FollowsCount int64
}

// GetProfile fetches the actor profile for did from appviewHost
func (m *Manager) GetProfile(ctx context.Context, appviewHost, did string) (*Profile, error) {
	var p *Profile
	err := m.Query(ctx, appviewHost, func(ctx context.Context, c *xrpc.Client) error {
		out, err := bsky.ActorGetProfile(ctx, c, did)
		if err != nil {
			return wrapXRPCErr(err)
		}
		p = &Profile{Handle: out.Handle}
		if out.FollowsCount != nil {
			p.FollowsCount = *out.FollowsCount
		}
		return nil
	})
	return p, err
}

// wrapXRPCErr converts an xrpc error into our typed StatusError when it
// carries an HTTP status, so the retry ladder in retry.go can classify it.
// indigo's xrpc.Client already parses a rate-limit-reset header into the
// response it returns on a 429; when present it rides along on *xrpc.Error
// as RatelimitReset, which we surface on StatusError unchanged.
func wrapXRPCErr(err error) error {
	xerr, ok := err.(*xrpc.Error)
	if !ok {
		return err
	}
	se := &StatusError{Status: xerr.StatusCode, Body: xerr.Message}
	if se.Status == 0 {
		se.Status = http.StatusBadGateway
	}
	if !xerr.Ratelimit.Reset.IsZero() {
		se.RateLimitReset = xerr.Ratelimit.Reset
	}
	return se
}
