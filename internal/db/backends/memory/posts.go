package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/folio/folio-backend/internal/db/entities"
	"github.com/folio/folio-backend/internal/db/interfaces"
	"github.com/folio/folio-backend/internal/db/query"
)

type postRepository struct {
	db   *Database
	inTx bool
}

func livePost(t *tables, id string) (*entities.Post, error) {
	p, ok := t.posts[id]
	if !ok || p.IsDeleted() {
		return nil, interfaces.ErrNotFound
	}
	return p, nil
}

func slugTaken(t *tables, slug, excludeID string) bool {
	for id, p := range t.posts {
		if id != excludeID && !p.IsDeleted() && p.Slug == slug {
			return true
		}
	}
	return false
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*entities.Post, error) {
	var out *entities.Post
	err := r.db.read(func(t *tables) error {
		p, err := livePost(t, id)
		if err != nil {
			return err
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

func (r *postRepository) GetBySlug(ctx context.Context, slug string) (*entities.Post, error) {
	var out *entities.Post
	err := r.db.read(func(t *tables) error {
		for _, p := range t.posts {
			if !p.IsDeleted() && p.Slug == slug {
				out = p.Clone()
				return nil
			}
		}
		return interfaces.ErrNotFound
	})
	return out, err
}

func (r *postRepository) SlugTaken(ctx context.Context, slug, excludeID string) (bool, error) {
	var taken bool
	err := r.db.read(func(t *tables) error {
		taken = slugTaken(t, slug, excludeID)
		return nil
	})
	return taken, err
}

func (r *postRepository) Create(ctx context.Context, post *entities.Post) error {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	return r.db.write(r.inTx, func(t *tables) error {
		if _, exists := t.posts[post.ID]; exists {
			return fmt.Errorf("%w: post id %q", interfaces.ErrUniqueConstraint, post.ID)
		}
		if slugTaken(t, post.Slug, "") {
			return fmt.Errorf("%w: slug %q", interfaces.ErrUniqueConstraint, post.Slug)
		}
		t.posts[post.ID] = post.Clone()
		return nil
	})
}

func (r *postRepository) Update(ctx context.Context, post *entities.Post) error {
	return r.db.write(r.inTx, func(t *tables) error {
		if _, err := livePost(t, post.ID); err != nil {
			return err
		}
		if slugTaken(t, post.Slug, post.ID) {
			return fmt.Errorf("%w: slug %q", interfaces.ErrUniqueConstraint, post.Slug)
		}
		t.posts[post.ID] = post.Clone()
		return nil
	})
}

func (r *postRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return r.db.write(r.inTx, func(t *tables) error {
		p, err := livePost(t, id)
		if err != nil {
			return err
		}
		p.DeletedAt = &at
		p.UpdatedAt = at
		return nil
	})
}

func (r *postRepository) List(ctx context.Context, q *interfaces.PostQuery) ([]*entities.Post, error) {
	var out []*entities.Post
	err := r.db.read(func(t *tables) error {
		all := make([]*entities.Post, 0, len(t.posts))
		for _, p := range t.posts {
			all = append(all, p.Clone())
		}
		// Map iteration is random; fix a base order so equal sort keys are stable.
		slices.SortFunc(all, func(a, b *entities.Post) int {
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
		out = query.Execute(all, q)
		return nil
	})
	return out, err
}

func (r *postRepository) DueScheduled(ctx context.Context, now time.Time, limit int) ([]*entities.Post, error) {
	var out []*entities.Post
	err := r.db.read(func(t *tables) error {
		for _, p := range t.posts {
			if isDue(p, now) {
				out = append(out, p.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b *entities.Post) int {
		return a.ScheduledAt.Compare(*b.ScheduledAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func isDue(p *entities.Post, now time.Time) bool {
	return !p.IsDeleted() &&
		p.Status == entities.StatusScheduled &&
		p.ScheduledAt != nil &&
		!p.ScheduledAt.After(now)
}

func (r *postRepository) PromoteScheduled(ctx context.Context, id string, now time.Time) (*entities.Post, error) {
	var out *entities.Post
	err := r.db.write(r.inTx, func(t *tables) error {
		p, ok := t.posts[id]
		if !ok || !isDue(p, now) {
			return interfaces.ErrNotFound
		}
		p.Status = entities.StatusPublished
		if p.PublishedAt == nil {
			published := now
			p.PublishedAt = &published
		}
		p.UpdatedAt = now
		out = p.Clone()
		return nil
	})
	return out, err
}

func (r *postRepository) IncrementViewCount(ctx context.Context, id string) error {
	return r.db.write(r.inTx, func(t *tables) error {
		p, err := livePost(t, id)
		if err != nil {
			return err
		}
		p.ViewCount++
		return nil
	})
}

func (r *postRepository) SetSeriesOrder(ctx context.Context, id, seriesID string, order int, at time.Time) error {
	return r.db.write(r.inTx, func(t *tables) error {
		p, err := livePost(t, id)
		if err != nil {
			return err
		}
		series := seriesID
		position := order
		p.SeriesID = &series
		p.SeriesOrder = &position
		p.UpdatedAt = at
		return nil
	})
}
