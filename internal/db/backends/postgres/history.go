package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/folio/folio-backend/internal/db/entities"
)

type historyRepository struct {
	conn querier
}

func (r *historyRepository) Record(ctx context.Context, entry *entities.ReadingHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.ReadAt.IsZero() {
		entry.ReadAt = time.Now().UTC()
	}
	_, err := r.conn.Exec(ctx,
		`INSERT INTO reading_history (id, user_id, post_id, read_at) VALUES ($1, $2, $3, $4)`,
		entry.ID, entry.UserID, entry.PostID, entry.ReadAt)
	return translate("record history", err)
}

func (r *historyRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*entities.ReadingHistoryEntry, error) {
	var qb queryBuilder
	qb.Add(`SELECT id, user_id, post_id, read_at FROM reading_history WHERE user_id = $? ORDER BY read_at DESC`, userID)
	if limit > 0 {
		qb.Add(`LIMIT $?`, limit)
	}
	rows, err := r.conn.Query(ctx, qb.String(), qb.Args()...)
	if err != nil {
		return nil, translate("list history", err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[entities.ReadingHistoryEntry])
	return entries, translate("list history", err)
}
