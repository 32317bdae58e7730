package atproto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bluesky-social/indigo/api/bsky"
)

// Collection NSIDs this module cares about
const (
	CollectionPost   = "app.bsky.feed.post"
	CollectionLike   = "app.bsky.feed.like"
	CollectionRepost = "app.bsky.feed.repost"
	CollectionFollow = "app.bsky.graph.follow"
)

// Post is the decoded subset of app.bsky.feed.post fields this module persists
type Post struct {
	Text            string
	CreatedAt       string
	ReplyParent     string
	ReplyRoot       string
	Quoted          string
	AltText         string
	EmbedTitle      string
	EmbedDescription string
	EmbedURL        string
}

// DecodePost CBOR-decodes raw bytes into a typed app.bsky.feed.post record
// via indigo's generated unmarshaler, then flattens the fields this module
// persists (spec.md §3's Post entity). Used for records read off a CAR walk.
func DecodePost(raw []byte) (Post, error) {
	var rec bsky.FeedPost
	if err := rec.UnmarshalCBOR(bytes.NewReader(raw)); err != nil {
		return Post{}, fmt.Errorf("atproto: decode post: %w", err)
	}
	return flattenPost(rec), nil
}

// DecodePostJSON decodes a JSON-encoded app.bsky.feed.post record, the
// form the appview's getPostThread inlines on each PostView. Same field
// flattening as DecodePost.
func DecodePostJSON(raw []byte) (Post, error) {
	var rec bsky.FeedPost
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Post{}, fmt.Errorf("atproto: decode post json: %w", err)
	}
	return flattenPost(rec), nil
}

func flattenPost(rec bsky.FeedPost) Post {
	p := Post{
		Text:      rec.Text,
		CreatedAt: rec.CreatedAt,
	}

	if rec.Reply != nil {
		if rec.Reply.Parent != nil {
			p.ReplyParent = rec.Reply.Parent.Uri
		}
		if rec.Reply.Root != nil {
			p.ReplyRoot = rec.Reply.Root.Uri
		}
	}

	if rec.Embed != nil {
		switch {
		case rec.Embed.EmbedImages != nil:
			p.AltText = joinAltTexts(rec.Embed.EmbedImages.Images)
		case rec.Embed.EmbedRecord != nil && rec.Embed.EmbedRecord.Record != nil:
			p.Quoted = rec.Embed.EmbedRecord.Record.Uri
		case rec.Embed.EmbedRecordWithMedia != nil:
			if rr := rec.Embed.EmbedRecordWithMedia.Record; rr != nil && rr.Record != nil {
				p.Quoted = rr.Record.Uri
			}
			if m := rec.Embed.EmbedRecordWithMedia.Media; m != nil && m.EmbedImages != nil {
				p.AltText = joinAltTexts(m.EmbedImages.Images)
			}
		case rec.Embed.EmbedExternal != nil:
			ext := rec.Embed.EmbedExternal.External
			if ext != nil {
				p.EmbedTitle = ext.Title
				p.EmbedDescription = ext.Description
				p.EmbedURL = ext.Uri
			}
		}
	}

	return p
}

// joinAltTexts concatenates per-image alt text with a delimiter, per spec.md §3
func joinAltTexts(images []*bsky.EmbedImages_Image) string {
	if len(images) == 0 {
		return ""
	}
	parts := make([]string, 0, len(images))
	for _, img := range images {
		if img == nil {
			continue
		}
		if t := strings.TrimSpace(img.Alt); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " | ")
}

// Like is the decoded subset of app.bsky.feed.like fields needed to trace
// "why is this in my index" back to the liked subject
type Like struct {
	SubjectURI string
}

// DecodeLike CBOR-decodes an app.bsky.feed.like record
func DecodeLike(raw []byte) (Like, error) {
	var rec bsky.FeedLike
	if err := rec.UnmarshalCBOR(bytes.NewReader(raw)); err != nil {
		return Like{}, fmt.Errorf("atproto: decode like: %w", err)
	}
	if rec.Subject == nil {
		return Like{}, fmt.Errorf("atproto: like record missing subject")
	}
	return Like{SubjectURI: rec.Subject.Uri}, nil
}

// Repost is the decoded subset of app.bsky.feed.repost fields
type Repost struct {
	SubjectURI string
}

// DecodeRepost CBOR-decodes an app.bsky.feed.repost record
func DecodeRepost(raw []byte) (Repost, error) {
	var rec bsky.FeedRepost
	if err := rec.UnmarshalCBOR(bytes.NewReader(raw)); err != nil {
		return Repost{}, fmt.Errorf("atproto: decode repost: %w", err)
	}
	if rec.Subject == nil {
		return Repost{}, fmt.Errorf("atproto: repost record missing subject")
	}
	return Repost{SubjectURI: rec.Subject.Uri}, nil
}

// Follow is the decoded subset of app.bsky.graph.follow fields
type Follow struct {
	SubjectDID string
}

// DecodeFollow CBOR-decodes an app.bsky.graph.follow record
func DecodeFollow(raw []byte) (Follow, error) {
	var rec bsky.GraphFollow
	if err := rec.UnmarshalCBOR(bytes.NewReader(raw)); err != nil {
		return Follow{}, fmt.Errorf("atproto: decode follow: %w", err)
	}
	return Follow{SubjectDID: rec.Subject}, nil
}
