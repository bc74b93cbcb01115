package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/folio/folio-backend/internal/db/entities"
	"github.com/folio/folio-backend/internal/db/interfaces"
)

type revisionRepository struct {
	db   *Database
	inTx bool
}

func (r *revisionRepository) Create(ctx context.Context, rev *entities.PostRevision) error {
	if rev.ID == "" {
		rev.ID = uuid.New().String()
	}
	if rev.CreatedAt.IsZero() {
		rev.CreatedAt = time.Now().UTC()
	}
	return r.db.write(r.inTx, func(t *tables) error {
		if _, exists := t.revisions[rev.ID]; exists {
			return fmt.Errorf("%w: revision id %q", interfaces.ErrUniqueConstraint, rev.ID)
		}
		for _, existing := range t.revisions {
			if existing.PostID == rev.PostID && existing.RevisionNumber == rev.RevisionNumber {
				return fmt.Errorf("%w: unique index 'post_revisions_post_number'", interfaces.ErrUniqueConstraint)
			}
		}
		t.revisions[rev.ID] = rev.Clone()
		return nil
	})
}

func (r *revisionRepository) MaxNumber(ctx context.Context, postID string) (int, error) {
	var highest int
	err := r.db.read(func(t *tables) error {
		for _, rev := range t.revisions {
			if rev.PostID == postID && rev.RevisionNumber > highest {
				highest = rev.RevisionNumber
			}
		}
		return nil
	})
	return highest, err
}

func (r *revisionRepository) GetByID(ctx context.Context, id string) (*entities.PostRevision, error) {
	var out *entities.PostRevision
	err := r.db.read(func(t *tables) error {
		rev, ok := t.revisions[id]
		if !ok {
			return interfaces.ErrNotFound
		}
		out = rev.Clone()
		return nil
	})
	return out, err
}

func (r *revisionRepository) ListByPost(ctx context.Context, postID string) ([]*entities.PostRevision, error) {
	out := []*entities.PostRevision{}
	err := r.db.read(func(t *tables) error {
		for _, rev := range t.revisions {
			if rev.PostID == postID {
				out = append(out, rev.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b *entities.PostRevision) int {
		return b.RevisionNumber - a.RevisionNumber
	})
	return out, nil
}
