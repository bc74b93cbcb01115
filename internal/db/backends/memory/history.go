package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/folio/folio-backend/internal/db/entities"
)

type historyRepository struct {
	db   *Database
	inTx bool
}

func (r *historyRepository) Record(ctx context.Context, entry *entities.ReadingHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.ReadAt.IsZero() {
		entry.ReadAt = time.Now().UTC()
	}
	return r.db.write(r.inTx, func(t *tables) error {
		stored := *entry
		t.history = append(t.history, &stored)
		return nil
	})
}

func (r *historyRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*entities.ReadingHistoryEntry, error) {
	out := []*entities.ReadingHistoryEntry{}
	err := r.db.read(func(t *tables) error {
		for _, h := range t.history {
			if h.UserID == userID {
				entry := *h
				out = append(out, &entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(out, func(a, b *entities.ReadingHistoryEntry) int {
		return b.ReadAt.Compare(a.ReadAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
