package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/folio/folio-backend/internal/db/entities"
)

const revisionColumns = `id, post_id, revision_number, title, content, excerpt, created_by, note, created_at`

type revisionRepository struct {
	conn querier
}

func (r *revisionRepository) Create(ctx context.Context, rev *entities.PostRevision) error {
	if rev.ID == "" {
		rev.ID = uuid.New().String()
	}
	if rev.CreatedAt.IsZero() {
		rev.CreatedAt = time.Now().UTC()
	}
	_, err := r.conn.Exec(ctx, `
		INSERT INTO post_revisions (`+revisionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rev.ID, rev.PostID, rev.RevisionNumber, rev.Title, rev.Content, rev.Excerpt,
		rev.CreatedBy, rev.Note, rev.CreatedAt,
	)
	return translate("create revision", err)
}

func (r *revisionRepository) MaxNumber(ctx context.Context, postID string) (int, error) {
	var n int
	err := r.conn.QueryRow(ctx,
		`SELECT COALESCE(MAX(revision_number), 0) FROM post_revisions WHERE post_id = $1`, postID,
	).Scan(&n)
	return n, translate("max revision", err)
}

func (r *revisionRepository) GetByID(ctx context.Context, id string) (*entities.PostRevision, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+revisionColumns+` FROM post_revisions WHERE id = $1`, id)
	if err != nil {
		return nil, translate("get revision", err)
	}
	rev, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[entities.PostRevision])
	return rev, translate("get revision", err)
}

func (r *revisionRepository) ListByPost(ctx context.Context, postID string) ([]*entities.PostRevision, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT `+revisionColumns+` FROM post_revisions WHERE post_id = $1 ORDER BY revision_number DESC`, postID)
	if err != nil {
		return nil, translate("list revisions", err)
	}
	revs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[entities.PostRevision])
	return revs, translate("list revisions", err)
}
