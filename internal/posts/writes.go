package posts

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/folio/folio-backend/internal/apperr"
	"github.com/folio/folio-backend/internal/cache"
	"github.com/folio/folio-backend/internal/db/entities"
	"github.com/folio/folio-backend/internal/publication"
)

type CreateInput struct {
	AuthorID    string
	Title       string
	Slug        string // derived from Title when empty
	Content     *string
	Excerpt     *string
	Status      *entities.PostStatus
	Visibility  entities.Visibility // public when empty
	MinimumTier *entities.Tier
	ScheduledAt *time.Time
	SeriesID    *string
	SeriesOrder *int
}

// UpdateInput changes the fields that are set. The Clear flags null their
// field and win over a value given alongside. ClearSeries removes both the
// series and the position in it.
type UpdateInput struct {
	Title            *string
	Slug             *string
	Content          *string
	Excerpt          *string
	Status           *entities.PostStatus
	Visibility       *entities.Visibility
	MinimumTier      *entities.Tier
	ClearMinimumTier bool
	ScheduledAt      *time.Time
	ClearSchedule    bool
	SeriesID         *string
	SeriesOrder      *int
	ClearSeries      bool

	// Actor and Note are recorded on the revision taken before a content
	// change.
	Actor string
	Note  string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*entities.Post, error) {
	const op = "posts.create"

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation(op, "title is required")
	}
	if in.AuthorID == "" {
		return nil, apperr.Validation(op, "author is required")
	}

	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		slug = publication.Slugify(title)
	}
	if slug == "" {
		return nil, apperr.Validation(op, "a slug cannot be derived from title %q", title)
	}

	visibility := in.Visibility
	if visibility == "" {
		visibility = entities.VisibilityPublic
	}

	now := s.now()
	post := &entities.Post{
		ID:          uuid.NewString(),
		AuthorID:    in.AuthorID,
		Title:       title,
		Slug:        slug,
		Content:     in.Content,
		Excerpt:     in.Excerpt,
		Visibility:  visibility,
		MinimumTier: in.MinimumTier,
		ScheduledAt: in.ScheduledAt,
		SeriesID:    in.SeriesID,
		SeriesOrder: in.SeriesOrder,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validateAccess(op, post); err != nil {
		return nil, err
	}
	if err := publication.ApplyCreate(post, in.Status, now); err != nil {
		return nil, err
	}
	publication.Derive(post)

	taken, err := s.db.Posts().SlugTaken(ctx, slug, "")
	if err != nil {
		return nil, storeErr(op, err, "")
	}
	if taken {
		return nil, apperr.Conflict(op, "slug %q is already in use", slug)
	}

	if err := s.db.Posts().Create(ctx, post); err != nil {
		return nil, storeErr(op, err, "")
	}

	s.invalidate(ctx, post.ID, post.Slug)
	s.logger.Infow("Post created", "post_id", post.ID, "slug", post.Slug, "status", post.Status)
	return post, nil
}

// Update applies in to a post. A change to the title, content or excerpt
// first snapshots the stored version; a failed snapshot is logged and the
// update goes ahead.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*entities.Post, error) {
	const op = "posts.update"

	unlock := s.lock(id)
	defer unlock()

	current, err := s.db.Posts().GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(op, err, "post %s not found", id)
	}

	now := s.now()
	next := current.Clone()

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, apperr.Validation(op, "title is required")
		}
		next.Title = title
	}
	if in.Content != nil {
		next.Content = in.Content
	}
	if in.Excerpt != nil {
		next.Excerpt = in.Excerpt
	}
	if in.Visibility != nil {
		next.Visibility = *in.Visibility
	}
	if in.MinimumTier != nil {
		next.MinimumTier = in.MinimumTier
	}
	if in.SeriesID != nil {
		next.SeriesID = in.SeriesID
	}
	if in.SeriesOrder != nil {
		next.SeriesOrder = in.SeriesOrder
	}
	if in.ClearMinimumTier {
		next.MinimumTier = nil
	}
	if in.ClearSeries {
		next.SeriesID = nil
		next.SeriesOrder = nil
	}

	scheduleChanged := false
	switch {
	case in.ClearSchedule:
		scheduleChanged = current.ScheduledAt != nil
		next.ScheduledAt = nil
	case in.ScheduledAt != nil:
		scheduleChanged = current.ScheduledAt == nil || !current.ScheduledAt.Equal(*in.ScheduledAt)
		next.ScheduledAt = in.ScheduledAt
	}

	if in.Slug != nil && *in.Slug != current.Slug {
		slug := strings.TrimSpace(*in.Slug)
		if slug == "" {
			return nil, apperr.Validation(op, "slug cannot be empty")
		}
		taken, err := s.db.Posts().SlugTaken(ctx, slug, id)
		if err != nil {
			return nil, storeErr(op, err, "")
		}
		if taken {
			return nil, apperr.Conflict(op, "slug %q is already in use", slug)
		}
		next.Slug = slug
	}

	if err := validateAccess(op, next); err != nil {
		return nil, err
	}
	if err := publication.ApplyUpdate(next, in.Status, scheduleChanged, now); err != nil {
		return nil, err
	}
	publication.Derive(next)
	next.UpdatedAt = now

	if contentChanged(current, next) {
		if _, err := s.ledger.Snapshot(ctx, id, in.Actor, in.Note); err != nil {
			s.logger.Warnw("Revision snapshot failed, continuing update", "post_id", id, "error", err)
		}
	}

	if err := s.db.Posts().Update(ctx, next); err != nil {
		return nil, storeErr(op, err, "post %s not found", id)
	}

	s.invalidate(ctx, id, current.Slug, next.Slug)
	return next, nil
}

// Publish makes a post live now, whatever its state.
func (s *Service) Publish(ctx context.Context, id string) (*entities.Post, error) {
	return s.transition(ctx, "posts.publish", id, func(p *entities.Post, now time.Time) {
		publication.Publish(p, now)
	})
}

// Unpublish returns a post to draft. Its publish time is kept.
func (s *Service) Unpublish(ctx context.Context, id string) (*entities.Post, error) {
	return s.transition(ctx, "posts.unpublish", id, func(p *entities.Post, now time.Time) {
		publication.Unpublish(p)
	})
}

func (s *Service) Archive(ctx context.Context, id string) (*entities.Post, error) {
	return s.transition(ctx, "posts.archive", id, func(p *entities.Post, now time.Time) {
		publication.Archive(p)
	})
}

func (s *Service) transition(ctx context.Context, op, id string, apply func(p *entities.Post, now time.Time)) (*entities.Post, error) {
	unlock := s.lock(id)
	defer unlock()

	post, err := s.db.Posts().GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(op, err, "post %s not found", id)
	}

	now := s.now()
	apply(post, now)
	post.UpdatedAt = now

	if err := s.db.Posts().Update(ctx, post); err != nil {
		return nil, storeErr(op, err, "post %s not found", id)
	}

	s.invalidate(ctx, id, post.Slug)
	s.logger.Infow("Post status changed", "op", op, "post_id", id, "status", post.Status)
	return post, nil
}

// Delete soft-deletes a post. Its slug becomes free and its revisions
// unreachable.
func (s *Service) Delete(ctx context.Context, id string) error {
	const op = "posts.delete"

	unlock := s.lock(id)
	defer unlock()

	post, err := s.db.Posts().GetByID(ctx, id)
	if err != nil {
		return storeErr(op, err, "post %s not found", id)
	}
	if err := s.db.Posts().SoftDelete(ctx, id, s.now()); err != nil {
		return storeErr(op, err, "post %s not found", id)
	}

	s.invalidate(ctx, id, post.Slug)
	s.ledgerInvalidate(ctx, id)
	s.logger.Infow("Post deleted", "post_id", id, "slug", post.Slug)
	return nil
}

// Restore rolls a post's text back to a revision.
func (s *Service) Restore(ctx context.Context, postID, revisionID, actor string) (*entities.Post, error) {
	unlock := s.lock(postID)
	defer unlock()

	before, err := s.db.Posts().GetByID(ctx, postID)
	if err != nil {
		return nil, storeErr("posts.restore", err, "post %s not found", postID)
	}

	post, err := s.ledger.Restore(ctx, postID, revisionID, actor)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, postID, before.Slug, post.Slug)
	return post, nil
}

// Promote publishes a due scheduled post with a conditional store write.
// It returns an apperr.ErrNotFound error when the post is no longer due.
func (s *Service) Promote(ctx context.Context, id string, now time.Time) (*entities.Post, error) {
	const op = "posts.promote"

	unlock := s.lock(id)
	defer unlock()

	post, err := s.db.Posts().PromoteScheduled(ctx, id, now.UTC())
	if err != nil {
		return nil, storeErr(op, err, "post %s is not due", id)
	}

	s.invalidate(ctx, id, post.Slug)
	return post, nil
}

func (s *Service) ledgerInvalidate(ctx context.Context, postID string) {
	if err := s.cache.InvalidateByTag(ctx, cache.RevisionsTag(postID)); err != nil {
		s.logger.Warnw("Cache invalidation failed", "post_id", postID, "error", err)
	}
}

func contentChanged(a, b *entities.Post) bool {
	return a.Title != b.Title ||
		a.ContentOrEmpty() != b.ContentOrEmpty() ||
		a.ExcerptOrEmpty() != b.ExcerptOrEmpty() ||
		(a.Content == nil) != (b.Content == nil) ||
		(a.Excerpt == nil) != (b.Excerpt == nil)
}

func validateAccess(op string, p *entities.Post) error {
	if !p.Visibility.Valid() {
		return apperr.Validation(op, "unknown visibility %q", p.Visibility)
	}
	if p.MinimumTier != nil && !p.MinimumTier.Valid() {
		return apperr.Validation(op, "unknown tier %q", *p.MinimumTier)
	}
	return nil
}
