// Package ingest turns decoded AT Protocol records into the Store's Post
// shape and provides the small pure-function helpers (URI parsing, rev
// comparison, thread depth scaling) the Backfill Engine's post-processing
// algorithm leans on, grounded on the teacher's own ingest/normalize.go
// (small stateless transforms kept apart from the orchestrating service).
package ingest

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"pinakes/internal/adapters/atproto"
	idx "pinakes/internal/services/index/domain"
)

// AssemblePost builds a Store Post from a decoded record plus the
// inclusion metadata under which it was reached (spec.md §4.5 step 4)
func AssemblePost(creator, rkey string, rec atproto.Post, reason idx.InclusionReason, inclusionCtx *string) (idx.Post, error) {
	createdAt, err := parseCreatedAt(rec.CreatedAt)
	if err != nil {
		return idx.Post{}, fmt.Errorf("ingest: post %s/%s: %w", creator, rkey, err)
	}

	return idx.Post{
		Creator:          creator,
		Rkey:             rkey,
		CreatedAt:        createdAt,
		Text:             rec.Text,
		AltText:          nonEmpty(rec.AltText),
		ReplyParent:      nonEmpty(rec.ReplyParent),
		ReplyRoot:        nonEmpty(rec.ReplyRoot),
		Quoted:           nonEmpty(rec.Quoted),
		EmbedTitle:       nonEmpty(rec.EmbedTitle),
		EmbedDescription: nonEmpty(rec.EmbedDescription),
		EmbedURL:         nonEmpty(rec.EmbedURL),
		InclusionReason:  reason,
		InclusionContext: inclusionCtx,
	}, nil
}

func parseCreatedAt(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("missing created_at")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return 0, fmt.Errorf("unparseable created_at %q: %w", s, err)
		}
	}
	return t.UnixMilli(), nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// HashURI returns the 32-bit dedup hash spec.md §9 requires be taken over
// the URI string itself, not the record contents, via xxhash (already a
// transitive dependency through the teacher's zerolog/prometheus chain)
func HashURI(uri string) uint32 {
	return uint32(xxhash.Sum64String(uri))
}

// SplitATURI splits "at://<did>/<collection>/<rkey>" into its parts
func SplitATURI(uri string) (did, collection, rkey string, ok bool) {
	const prefix = "at://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, prefix), "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// BuildATURI is the inverse of SplitATURI
func BuildATURI(did, collection, rkey string) string {
	return "at://" + did + "/" + collection + "/" + rkey
}

// looksLikeTID reports whether s is plausibly a TID (timestamp-prefixed
// record key): 13 base32-sortable characters. Used to guard the rev-skip
// comparison against a malformed or placeholder rev value.
func looksLikeTID(s string) bool {
	return len(s) == 13
}

// CollectionWanted reports whether collection is in the set this repo
// task was restricted to
func CollectionWanted(wanted []string, collection string) bool {
	for _, w := range wanted {
		if w == collection {
			return true
		}
	}
	return false
}

// SkipByRev reports whether a record should be skipped because it predates
// the last-known repo revision (spec.md §4.5 "Repo revision skip"): never
// for follow records, and only when lastRev looks like a real TID.
func SkipByRev(collection, rkey, lastRev string, hasRev bool) bool {
	if !hasRev || collection == atproto.CollectionFollow {
		return false
	}
	if !looksLikeTID(lastRev) {
		return false
	}
	return rkey < lastRev
}

// ThreadDepthScale interpolates the descendant-walk depth bound on the
// semi-log line anchored at (5 replies -> 20 levels) and (200 replies -> 3
// levels), per spec.md §4.5/S2: depth is linear in the *log of the reply
// count* (so 50 replies -> round(≈9), matching spec.md's worked example).
// replyCount <= x1 or >= x2 clamps to the nearer anchor.
func ThreadDepthScale(replyCount int64) int {
	const (
		x1, y1 = 5.0, 20.0
		x2, y2 = 200.0, 3.0
	)
	if replyCount <= x1 {
		return int(math.Round(y1))
	}
	if replyCount >= x2 {
		return int(math.Round(y2))
	}
	lx1, lx2 := math.Log(x1), math.Log(x2)
	lx := math.Log(float64(replyCount))
	t := (lx - lx1) / (lx2 - lx1)
	y := y1 + t*(y2-y1)
	return int(math.Round(y))
}
