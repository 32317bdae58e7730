package repo

import (
	"database/sql"

	"pinakes/internal/modkit/repokit"
	"pinakes/internal/services/index/domain"

	perr "pinakes/internal/platform/errors"
)

// scanPost scans the 15 postColumns, in order, from a Row or a positioned Rows
func scanPost(row repokit.Row) (domain.Post, error) {
	var (
		p                                                  domain.Post
		altText, replyParent, replyRoot, quoted             sql.NullString
		embedTitle, embedDescription, embedURL              sql.NullString
		inclusionReason                                     string
		inclusionContext                                    sql.NullString
		embedding, altTextEmbedding                         []byte
	)

	err := row.Scan(
		&p.Creator, &p.Rkey, &p.CreatedAt, &p.Text, &altText, &replyParent, &replyRoot, &quoted,
		&embedTitle, &embedDescription, &embedURL, &inclusionReason, &inclusionContext,
		&embedding, &altTextEmbedding,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Post{}, perr.ErrNotFound
		}
		return domain.Post{}, perr.FromSQLite(err, "scan post")
	}

	p.AltText = nullableString(altText)
	p.ReplyParent = nullableString(replyParent)
	p.ReplyRoot = nullableString(replyRoot)
	p.Quoted = nullableString(quoted)
	p.EmbedTitle = nullableString(embedTitle)
	p.EmbedDescription = nullableString(embedDescription)
	p.EmbedURL = nullableString(embedURL)
	p.InclusionReason = domain.InclusionReason(inclusionReason)
	p.InclusionContext = nullableString(inclusionContext)
	p.Embedding = decodeVec(embedding)
	p.AltTextEmbedding = decodeVec(altTextEmbedding)

	return p, nil
}

// scanScoredPost scans postColumns plus a trailing d_best column
func scanScoredPost(row repokit.Row) (domain.ScoredPost, error) {
	var (
		p                                                  domain.Post
		altText, replyParent, replyRoot, quoted             sql.NullString
		embedTitle, embedDescription, embedURL              sql.NullString
		inclusionReason                                     string
		inclusionContext                                    sql.NullString
		embedding, altTextEmbedding                         []byte
		distance                                            float64
	)

	err := row.Scan(
		&p.Creator, &p.Rkey, &p.CreatedAt, &p.Text, &altText, &replyParent, &replyRoot, &quoted,
		&embedTitle, &embedDescription, &embedURL, &inclusionReason, &inclusionContext,
		&embedding, &altTextEmbedding, &distance,
	)
	if err != nil {
		return domain.ScoredPost{}, perr.FromSQLite(err, "scan scored post")
	}

	p.AltText = nullableString(altText)
	p.ReplyParent = nullableString(replyParent)
	p.ReplyRoot = nullableString(replyRoot)
	p.Quoted = nullableString(quoted)
	p.EmbedTitle = nullableString(embedTitle)
	p.EmbedDescription = nullableString(embedDescription)
	p.EmbedURL = nullableString(embedURL)
	p.InclusionReason = domain.InclusionReason(inclusionReason)
	p.InclusionContext = nullableString(inclusionContext)
	p.Embedding = decodeVec(embedding)
	p.AltTextEmbedding = decodeVec(altTextEmbedding)

	return domain.ScoredPost{Post: p, Distance: distance}, nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
