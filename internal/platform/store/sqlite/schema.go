// Package sqlite owns the embedded database schema: post/repo/config
// tables plus the sqlite-vec virtual tables backing approximate-nearest-
// neighbor search over post embeddings.
package sqlite

import (
	"context"
	"fmt"

	"pinakes/internal/platform/store"
)

// EmbeddingDim is the fixed vector width spec.md §3 requires (384-D, normalized)
const EmbeddingDim = 384

const schemaSQL = `
CREATE TABLE IF NOT EXISTS post (
	creator             TEXT    NOT NULL,
	rkey                TEXT    NOT NULL,
	created_at          INTEGER NOT NULL,
	text                TEXT    NOT NULL DEFAULT '',
	alt_text            TEXT,
	reply_parent        TEXT,
	reply_root          TEXT,
	quoted              TEXT,
	embed_title         TEXT,
	embed_description   TEXT,
	embed_url           TEXT,
	inclusion_reason    TEXT    NOT NULL,
	inclusion_context   TEXT,
	embedding           BLOB,
	alt_text_embedding  BLOB,
	PRIMARY KEY (creator, rkey)
);

CREATE INDEX IF NOT EXISTS idx_post_creator ON post(creator);
CREATE INDEX IF NOT EXISTS idx_post_reply_parent ON post(reply_parent);
CREATE INDEX IF NOT EXISTS idx_post_reply_root ON post(reply_root);
CREATE INDEX IF NOT EXISTS idx_post_created_at ON post(created_at);

CREATE TABLE IF NOT EXISTS repo (
	did TEXT PRIMARY KEY,
	rev TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

-- post_vec_rowid maps the (creator, rkey) primary key onto the plain
-- integer rowids vec0 virtual tables require, since vec0 has no notion
-- of a composite key.
CREATE TABLE IF NOT EXISTS post_vec_rowid (
	creator TEXT NOT NULL,
	rkey    TEXT NOT NULL,
	rowid_  INTEGER PRIMARY KEY AUTOINCREMENT,
	UNIQUE (creator, rkey)
);
`

// vecTableSQL is parameterized by EmbeddingDim since vec0's column type
// embeds the dimension in its declaration
func vecTableSQL(name string) string {
	return fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d])`,
		name, EmbeddingDim,
	)
}

const (
	vecTableText = "post_vec_text"
	vecTableAlt  = "post_vec_alt"
)

// Migrate creates the schema if it does not already exist. Idempotent, per
// spec.md §4.4.
func Migrate(ctx context.Context, db store.RowQuerier) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("sqlite: migrate core schema: %w", err)
	}
	for _, name := range []string{vecTableText, vecTableAlt} {
		if _, err := db.Exec(ctx, vecTableSQL(name)); err != nil {
			return fmt.Errorf("sqlite: migrate %s: %w", name, err)
		}
	}
	return nil
}
