package ingest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinakes/internal/adapters/atproto"
	idx "pinakes/internal/services/index/domain"
)

func TestAssemblePost_FullRecord(t *testing.T) {
	rec := atproto.Post{
		Text:             "hello world",
		CreatedAt:        "2024-03-01T12:00:00.000Z",
		ReplyParent:      "at://did:plc:a/app.bsky.feed.post/aaa",
		ReplyRoot:        "at://did:plc:a/app.bsky.feed.post/root",
		Quoted:           "at://did:plc:b/app.bsky.feed.post/quoted",
		AltText:          "a photo",
		EmbedTitle:       "title",
		EmbedDescription: "desc",
		EmbedURL:         "https://example.com",
	}
	ctx := "at://did:plc:c/app.bsky.feed.repost/xyz"

	post, err := AssemblePost("did:plc:c", "rkey1", rec, idx.ReasonRepostedBy, &ctx)
	require.NoError(t, err)

	assert.Equal(t, "did:plc:c", post.Creator)
	assert.Equal(t, "rkey1", post.Rkey)
	assert.Equal(t, "hello world", post.Text)
	assert.Equal(t, idx.ReasonRepostedBy, post.InclusionReason)
	require.NotNil(t, post.InclusionContext)
	assert.Equal(t, ctx, *post.InclusionContext)
	require.NotNil(t, post.AltText)
	assert.Equal(t, "a photo", *post.AltText)
	require.NotNil(t, post.Quoted)
	assert.Equal(t, rec.Quoted, *post.Quoted)
}

func TestAssemblePost_MissingCreatedAtErrors(t *testing.T) {
	_, err := AssemblePost("did:plc:a", "rkey1", atproto.Post{Text: "x"}, idx.ReasonSelf, nil)
	assert.Error(t, err)
}

func TestAssemblePost_RFC3339WithoutNanos(t *testing.T) {
	rec := atproto.Post{Text: "x", CreatedAt: "2024-03-01T12:00:00Z"}
	post, err := AssemblePost("did:plc:a", "r", rec, idx.ReasonSelf, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1709294400000), post.CreatedAt)
}

func TestSplitATURI_RoundTrips(t *testing.T) {
	did, collection, rkey, ok := SplitATURI("at://did:plc:abc/app.bsky.feed.post/xyz")
	require.True(t, ok)
	assert.Equal(t, "did:plc:abc", did)
	assert.Equal(t, "app.bsky.feed.post", collection)
	assert.Equal(t, "xyz", rkey)
	assert.Equal(t, "at://did:plc:abc/app.bsky.feed.post/xyz", BuildATURI(did, collection, rkey))
}

func TestSplitATURI_Malformed(t *testing.T) {
	cases := []string{"", "not-a-uri", "at://onlydid", "at:/did:plc:a/coll/rkey"}
	for _, c := range cases {
		_, _, _, ok := SplitATURI(c)
		assert.False(t, ok, c)
	}
}

func TestHashURI_StableAndDistinct(t *testing.T) {
	a := HashURI("at://did:plc:a/app.bsky.feed.post/1")
	b := HashURI("at://did:plc:a/app.bsky.feed.post/1")
	c := HashURI("at://did:plc:a/app.bsky.feed.post/2")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCollectionWanted(t *testing.T) {
	wanted := []string{atproto.CollectionPost, atproto.CollectionRepost}
	assert.True(t, CollectionWanted(wanted, atproto.CollectionPost))
	assert.False(t, CollectionWanted(wanted, atproto.CollectionFollow))
}

func TestSkipByRev(t *testing.T) {
	const (
		earlyRkey = "3juzn3f3mkk20" // 13 chars, lexically earlier
		lastRev   = "3juzn3f3mkk24"
		lateRkey  = "3juzn3f3mkk29"
	)

	// no prior rev: never skip
	assert.False(t, SkipByRev(atproto.CollectionPost, earlyRkey, "", false))

	// follow is always replayed regardless of rev
	assert.False(t, SkipByRev(atproto.CollectionFollow, earlyRkey, lastRev, true))

	// malformed/placeholder lastRev never triggers a skip
	assert.False(t, SkipByRev(atproto.CollectionPost, earlyRkey, "not-a-tid", true))

	// rkey lexically before lastRev is skipped
	assert.True(t, SkipByRev(atproto.CollectionPost, earlyRkey, lastRev, true))

	// rkey at/after lastRev is kept
	assert.False(t, SkipByRev(atproto.CollectionPost, lateRkey, lastRev, true))
}

func TestThreadDepthScale_Anchors(t *testing.T) {
	assert.Equal(t, 20, ThreadDepthScale(5))
	assert.Equal(t, 3, ThreadDepthScale(200))
	// below/above the anchors clamps rather than extrapolating
	assert.Equal(t, 20, ThreadDepthScale(1))
	assert.Equal(t, 3, ThreadDepthScale(10_000))
}

func TestThreadDepthScale_WorkedExample(t *testing.T) {
	// spec.md's S2: 50 replies -> round(≈9)
	assert.Equal(t, 9, ThreadDepthScale(50))
}

func TestThreadDepthScale_Monotonic(t *testing.T) {
	prev := math.MaxInt
	for _, n := range []int64{5, 10, 25, 50, 100, 150, 200} {
		v := ThreadDepthScale(n)
		assert.LessOrEqual(t, v, prev)
		prev = v
	}
}
