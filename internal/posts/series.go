package posts

import (
	"context"

	"github.com/folio/folio-backend/internal/apperr"
	"github.com/folio/folio-backend/internal/db/interfaces"
)

// ReorderSeries assigns series positions 1..n to ids in the given order,
// all in one transaction. Every post must be live; posts may move into the
// series from elsewhere.
func (s *Service) ReorderSeries(ctx context.Context, seriesID string, ids []string) error {
	const op = "posts.reorder_series"

	if seriesID == "" {
		return apperr.Validation(op, "series id is required")
	}
	if len(ids) == 0 {
		return apperr.Validation(op, "no posts to order")
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return apperr.Validation(op, "post %s listed twice", id)
		}
		seen[id] = struct{}{}
	}

	unlock := s.lock(ids...)
	defer unlock()

	now := s.now()
	slugs := make(map[string]string, len(ids))
	err := s.db.Transaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		for i, id := range ids {
			post, err := tx.Posts().GetByID(ctx, id)
			if err != nil {
				return storeErr(op, err, "post %s not found", id)
			}
			slugs[id] = post.Slug
			if err := tx.Posts().SetSeriesOrder(ctx, id, seriesID, i+1, now); err != nil {
				return storeErr(op, err, "post %s not found", id)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for id, slug := range slugs {
		s.invalidate(ctx, id, slug)
	}
	s.logger.Infow("Series reordered", "series_id", seriesID, "posts", len(ids))
	return nil
}
