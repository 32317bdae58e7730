// Package repo is the SQL-facing half of the index service (C4): schema-
// aware queries over the embedded sqlite database. Query-builder idiom
// (strings.Builder, placeholder binder, batched upsert) grounded on the
// teacher's internal/services/detect/repo/repo.go, adapted from Postgres's
// "$N" placeholders to sqlite's "?".
package repo

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"pinakes/internal/modkit/repokit"
	"pinakes/internal/services/index/domain"

	perr "pinakes/internal/platform/errors"
)

type repo struct{ q repokit.Queryer }

// Bind satisfies repokit.Binder[domain.Store]
type binder struct{}

// Binder returns a repokit.Binder that produces a domain.Store bound to a Queryer
func Binder() repokit.Binder[domain.Store] { return binder{} }

func (binder) Bind(q repokit.Queryer) domain.Store { return &repo{q: q} }

// InsertPosts upserts a batch of posts. Ordinary columns are last-writer-
// wins (overwritten unconditionally, including with NULL); the two
// embedding columns use COALESCE(excluded.col, post.col) so a lazily
// filled embedding from a prior observation survives a later re-upsert
// that hasn't computed one yet (spec.md §9's null-overwrite resolution).
func (r *repo) InsertPosts(ctx context.Context, batch []domain.Post) error {
	if len(batch) == 0 {
		return nil
	}
	return r.insertBatch(ctx, batch)
}

const postColumns = `creator, rkey, created_at, text, alt_text, reply_parent, reply_root, quoted,
	embed_title, embed_description, embed_url, inclusion_reason, inclusion_context,
	embedding, alt_text_embedding`

const upsertSuffix = `ON CONFLICT (creator, rkey) DO UPDATE SET
	created_at = excluded.created_at,
	text = excluded.text,
	alt_text = excluded.alt_text,
	reply_parent = excluded.reply_parent,
	reply_root = excluded.reply_root,
	quoted = excluded.quoted,
	embed_title = excluded.embed_title,
	embed_description = excluded.embed_description,
	embed_url = excluded.embed_url,
	inclusion_reason = excluded.inclusion_reason,
	inclusion_context = excluded.inclusion_context,
	embedding = COALESCE(excluded.embedding, post.embedding),
	alt_text_embedding = COALESCE(excluded.alt_text_embedding, post.alt_text_embedding)`

// insertBatch writes the whole batch inside one transaction: the post rows
// themselves, plus their vec0 mirror rows for any post carrying an
// embedding this round.
func (r *repo) insertBatch(ctx context.Context, batch []domain.Post) error {
	tx, ok := r.q.(repokit.TxRunner)
	if !ok {
		return r.upsertPosts(ctx, r.q, batch)
	}
	return tx.Tx(ctx, func(q repokit.Queryer) error {
		if err := r.upsertPosts(ctx, q, batch); err != nil {
			return err
		}
		return r.upsertVectors(ctx, q, batch)
	})
}

func (r *repo) upsertPosts(ctx context.Context, q repokit.Queryer, batch []domain.Post) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO post (")
	sb.WriteString(postColumns)
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(batch)*15)
	for i, p := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('(')
		for j := 0; j < 15; j++ {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte('?')
		}
		sb.WriteByte(')')
		args = append(args,
			p.Creator, p.Rkey, p.CreatedAt, p.Text, p.AltText, p.ReplyParent, p.ReplyRoot, p.Quoted,
			p.EmbedTitle, p.EmbedDescription, p.EmbedURL, string(p.InclusionReason), p.InclusionContext,
			encodeVec(p.Embedding), encodeVec(p.AltTextEmbedding),
		)
	}
	sb.WriteByte(' ')
	sb.WriteString(upsertSuffix)

	if _, err := q.Exec(ctx, sb.String(), args...); err != nil {
		return perr.FromSQLiteWithField(err, "insert posts")
	}
	return nil
}

// upsertVectors mirrors embeddings present in this batch into the vec0
// tables, assigning a stable integer rowid per (creator, rkey) via
// post_vec_rowid on first insert
func (r *repo) upsertVectors(ctx context.Context, q repokit.Queryer, batch []domain.Post) error {
	for _, p := range batch {
		if p.Embedding == nil && p.AltTextEmbedding == nil {
			continue
		}
		rowid, err := r.vecRowID(ctx, q, p.Creator, p.Rkey)
		if err != nil {
			return err
		}
		if p.Embedding != nil {
			if _, err := q.Exec(ctx,
				`INSERT INTO post_vec_text(rowid, embedding) VALUES (?, ?)
				 ON CONFLICT (rowid) DO UPDATE SET embedding = excluded.embedding`,
				rowid, encodeVec(p.Embedding)); err != nil {
				return perr.FromSQLite(err, "insert vec text")
			}
		}
		if p.AltTextEmbedding != nil {
			if _, err := q.Exec(ctx,
				`INSERT INTO post_vec_alt(rowid, embedding) VALUES (?, ?)
				 ON CONFLICT (rowid) DO UPDATE SET embedding = excluded.embedding`,
				rowid, encodeVec(p.AltTextEmbedding)); err != nil {
				return perr.FromSQLite(err, "insert vec alt")
			}
		}
	}
	return nil
}

func (r *repo) vecRowID(ctx context.Context, q repokit.Queryer, creator, rkey string) (int64, error) {
	row := q.QueryRow(ctx, `SELECT rowid_ FROM post_vec_rowid WHERE creator = ? AND rkey = ?`, creator, rkey)
	var rowid int64
	if err := row.Scan(&rowid); err == nil {
		return rowid, nil
	}
	tag, err := q.Exec(ctx, `INSERT INTO post_vec_rowid (creator, rkey) VALUES (?, ?)`, creator, rkey)
	if err != nil {
		return 0, perr.FromSQLite(err, "allocate vec rowid")
	}
	_ = tag
	row = q.QueryRow(ctx, `SELECT rowid_ FROM post_vec_rowid WHERE creator = ? AND rkey = ?`, creator, rkey)
	if err := row.Scan(&rowid); err != nil {
		return 0, perr.FromSQLite(err, "read back vec rowid")
	}
	return rowid, nil
}

func (r *repo) GetPost(ctx context.Context, creator, rkey string) (*domain.Post, error) {
	row := r.q.QueryRow(ctx, `SELECT `+postColumns+` FROM post WHERE creator = ? AND rkey = ?`, creator, rkey)
	p, err := scanPost(row)
	if err != nil {
		if err == perr.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *repo) SetRepoRev(ctx context.Context, did, rev string) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO repo (did, rev) VALUES (?, ?) ON CONFLICT (did) DO UPDATE SET rev = excluded.rev`,
		did, rev)
	if err != nil {
		return perr.FromSQLite(err, "set repo rev")
	}
	return nil
}

func (r *repo) GetRepoRev(ctx context.Context, did string) (string, bool, error) {
	row := r.q.QueryRow(ctx, `SELECT rev FROM repo WHERE did = ?`, did)
	var rev string
	if err := row.Scan(&rev); err != nil {
		return "", false, nil //nolint:nilerr // not-found is a false ok, not an error
	}
	return rev, true, nil
}

func (r *repo) GetConfig(ctx context.Context, key string) (string, bool, error) {
	row := r.q.QueryRow(ctx, `SELECT value FROM config WHERE key = ?`, key)
	var v string
	if err := row.Scan(&v); err != nil {
		return "", false, nil //nolint:nilerr // not-found is a false ok, not an error
	}
	return v, true, nil
}

func (r *repo) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO config (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return perr.FromSQLite(err, "set config")
	}
	return nil
}

func (r *repo) DeleteConfig(ctx context.Context, key string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM config WHERE key = ?`, key)
	if err != nil {
		return perr.FromSQLite(err, "delete config")
	}
	return nil
}

// filterBuilder accumulates WHERE clauses and positional args shared by
// both text and vector search, since spec.md §4.4 says to "reuse the
// filter builder" between the two.
type filterBuilder struct {
	clauses []string
	args    []any
}

func (f *filterBuilder) add(clause string, args ...any) {
	f.clauses = append(f.clauses, clause)
	f.args = append(f.args, args...)
}

func (f *filterBuilder) inSet(col string, values []string) {
	if len(values) == 0 {
		return
	}
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	f.add(col+" IN ("+strings.Join(placeholders, ",")+")", args...)
}

func (f *filterBuilder) likePrefixAny(col string, authors []string) {
	if len(authors) == 0 {
		return
	}
	parts := make([]string, len(authors))
	args := make([]any, len(authors))
	for i, a := range authors {
		parts[i] = col + " LIKE ?"
		args[i] = "at://" + a + "%"
	}
	f.add("("+strings.Join(parts, " OR ")+")", args...)
}

func commonFilters(creators, parentAuthors, rootAuthors []string, before, after *int64) *filterBuilder {
	fb := &filterBuilder{}
	fb.inSet("creator", creators)
	fb.likePrefixAny("reply_parent", parentAuthors)
	fb.likePrefixAny("reply_root", rootAuthors)
	if before != nil {
		fb.add("created_at < ?", *before)
	}
	if after != nil {
		fb.add("created_at > ?", *after)
	}
	return fb
}

func (r *repo) SearchPostsText(ctx context.Context, opts domain.TextSearchOptions) ([]domain.Post, error) {
	fb := commonFilters(opts.Creators, opts.ParentAuthors, opts.RootAuthors, opts.Before, opts.After)

	if q := strings.TrimSpace(opts.Query); q != "" {
		like := "%" + q + "%"
		if opts.IncludeAltText {
			fb.add("(text LIKE ? OR alt_text LIKE ?)", like, like)
		} else {
			fb.add("text LIKE ?", like)
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + postColumns + " FROM post")
	if len(fb.clauses) > 0 {
		sb.WriteString(" WHERE " + strings.Join(fb.clauses, " AND "))
	}
	sb.WriteString(" ORDER BY created_at ")
	sb.WriteString(orderSQL(opts.Order))
	if opts.Results > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(opts.Results))
	}

	rows, err := r.q.Query(ctx, sb.String(), fb.args...)
	if err != nil {
		return nil, perr.FromSQLite(err, "search posts text")
	}
	defer rows.Close()

	var out []domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repo) SearchPostsVector(ctx context.Context, opts domain.VectorSearchOptions) ([]domain.ScoredPost, error) {
	fb := commonFilters(opts.Creators, opts.ParentAuthors, opts.RootAuthors, opts.Before, opts.After)
	fb.add("embedding IS NOT NULL")

	threshold := 0.5
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}

	distExpr := "vec_distance_cosine(embedding, ?)"
	args := append([]any{encodeVec(opts.QueryVec)}, fb.args...)
	if opts.IncludeAltText {
		distExpr = fmt.Sprintf(
			"MIN(vec_distance_cosine(embedding, ?), COALESCE(vec_distance_cosine(alt_text_embedding, ?), vec_distance_cosine(embedding, ?)))",
		)
		args = append([]any{encodeVec(opts.QueryVec), encodeVec(opts.QueryVec), encodeVec(opts.QueryVec)}, fb.args...)
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + postColumns + ", (" + distExpr + ") AS d_best FROM post")
	if len(fb.clauses) > 0 {
		sb.WriteString(" WHERE " + strings.Join(fb.clauses, " AND "))
	}
	sb.WriteString(" HAVING d_best <= ")
	sb.WriteString(strconv.FormatFloat(threshold, 'f', -1, 64))
	sb.WriteString(" ORDER BY d_best ")
	sb.WriteString(orderSQL(opts.Order))
	if opts.Results > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(opts.Results))
	}

	rows, err := r.q.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, perr.FromSQLite(err, "search posts vector")
	}
	defer rows.Close()

	var out []domain.ScoredPost
	for rows.Next() {
		sp, err := scanScoredPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func orderSQL(o domain.Order) string {
	if o == domain.Asc {
		return "ASC"
	}
	return "DESC"
}
