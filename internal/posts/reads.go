package posts

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/folio/folio-backend/internal/access"
	"github.com/folio/folio-backend/internal/apperr"
	"github.com/folio/folio-backend/internal/cache"
	"github.com/folio/folio-backend/internal/cursor"
	"github.com/folio/folio-backend/internal/db/entities"
	"github.com/folio/folio-backend/internal/db/interfaces"
	"github.com/folio/folio-backend/internal/db/query"
	"github.com/folio/folio-backend/internal/revisions"
)

// ReadOptions widen single-post reads for editor contexts.
type ReadOptions struct {
	IncludeUnpublished bool
}

// View is a post as one viewer may see it. Post.Content holds the gated
// body, never more than the viewer is allowed.
type View struct {
	Post   *entities.Post  `json:"post"`
	Access access.Decision `json:"access"`
}

type ListInput struct {
	Cursor    string
	Limit     int
	SortBy    interfaces.SortField
	SortOrder interfaces.SortOrder
	Filter    interfaces.PostFilter
}

// listKey is the cache identity of a listing request.
type listKey struct {
	Filter interfaces.PostFilter `json:"filter"`
	SortBy interfaces.SortField  `json:"sortBy"`
	Order  interfaces.SortOrder  `json:"order"`
	Cursor string                `json:"cursor"`
	Limit  int                   `json:"limit"`
}

// GetByID reads a post for viewerID, who is anonymous when empty.
func (s *Service) GetByID(ctx context.Context, id, viewerID string, opts ReadOptions) (*View, error) {
	const op = "posts.get"

	post, err := cache.WrapTagged(ctx, s.cache, cache.PostIDKey(id),
		cache.Options{TTL: s.opts.CacheTTL, Tags: cache.PostTags(id)},
		func(p *entities.Post) []string { return []string{cache.SlugTag(p.Slug)} },
		func(ctx context.Context) (*entities.Post, error) {
			return s.db.Posts().GetByID(ctx, id)
		})
	if err != nil {
		return nil, storeErr(op, err, "post %s not found", id)
	}
	return s.view(ctx, op, post, viewerID, opts)
}

func (s *Service) GetBySlug(ctx context.Context, slug, viewerID string, opts ReadOptions) (*View, error) {
	const op = "posts.get_by_slug"

	post, err := cache.WrapTagged(ctx, s.cache, cache.PostSlugKey(slug),
		cache.Options{TTL: s.opts.CacheTTL, Tags: []string{cache.TagPosts, cache.SlugTag(slug)}},
		func(p *entities.Post) []string { return []string{cache.PostTag(p.ID)} },
		func(ctx context.Context) (*entities.Post, error) {
			return s.db.Posts().GetBySlug(ctx, slug)
		})
	if err != nil {
		return nil, storeErr(op, err, "post %q not found", slug)
	}
	return s.view(ctx, op, post, viewerID, opts)
}

// view gates a cached post for one viewer and records the read.
func (s *Service) view(ctx context.Context, op string, post *entities.Post, viewerID string, opts ReadOptions) (*View, error) {
	if post.Status != entities.StatusPublished && !opts.IncludeUnpublished {
		return nil, apperr.NotFound(op, "post %s not found", post.ID)
	}

	decision := s.gate.Evaluate(ctx, post, viewerID)
	gated := post.Clone()
	body := decision.Content
	gated.Content = &body

	if post.Status == entities.StatusPublished {
		s.recordRead(ctx, post.ID, viewerID)
	}
	return &View{Post: gated, Access: decision}, nil
}

// recordRead bumps the view count and, for signed-in viewers, the reading
// history without holding up the response.
func (s *Service) recordRead(ctx context.Context, postID, viewerID string) {
	ctx = context.WithoutCancel(ctx)
	readAt := s.now()

	s.background.Add(1)
	go func() {
		defer s.background.Done()

		if err := s.db.Posts().IncrementViewCount(ctx, postID); err != nil {
			s.logger.Warnw("Failed to count view", "post_id", postID, "error", err)
		}
		if viewerID == "" {
			return
		}
		entry := &entities.ReadingHistoryEntry{
			ID:     uuid.NewString(),
			UserID: viewerID,
			PostID: postID,
			ReadAt: readAt,
		}
		if err := s.db.History().Record(ctx, entry); err != nil {
			s.logger.Warnw("Failed to record reading history", "post_id", postID, "user_id", viewerID, "error", err)
		}
	}()
}

// List pages posts by a sort field. Items carry no content; only single
// post reads go through the access gate.
func (s *Service) List(ctx context.Context, in ListInput) (cursor.Page[*entities.Post], error) {
	const op = "posts.list"

	if in.SortBy == "" {
		in.SortBy = interfaces.SortCreatedAt
	}
	if in.SortOrder == "" {
		in.SortOrder = interfaces.SortDesc
	}
	if !in.SortBy.Valid() {
		return cursor.Page[*entities.Post]{}, apperr.Validation(op, "cannot sort by %q", in.SortBy)
	}
	if !in.SortOrder.Valid() {
		return cursor.Page[*entities.Post]{}, apperr.Validation(op, "sort order must be ASC or DESC")
	}
	in.Limit = s.clampLimit(in.Limit)

	key := cache.PostListKey(listKey{
		Filter: in.Filter,
		SortBy: in.SortBy,
		Order:  in.SortOrder,
		Cursor: in.Cursor,
		Limit:  in.Limit,
	})

	page, err := cache.Wrap(ctx, s.cache, key,
		cache.Options{TTL: s.opts.ListCacheTTL, Tags: []string{cache.TagPosts}},
		func(ctx context.Context) (cursor.Page[*entities.Post], error) {
			rows, err := s.db.Posts().List(ctx, &interfaces.PostQuery{
				Filter: in.Filter,
				SortBy: in.SortBy,
				Order:  in.SortOrder,
				After:  cursor.Decode(in.Cursor).Value.Coerce(in.SortBy.Kind()),
				Limit:  in.Limit + 1,
			})
			if err != nil {
				return cursor.Page[*entities.Post]{}, err
			}
			for _, p := range rows {
				p.Content = nil
			}
			return cursor.Paginate(rows, in.Limit, in.Cursor, func(p *entities.Post) cursor.Value {
				return query.SortValue(p, in.SortBy)
			}), nil
		})
	if err != nil {
		return cursor.Page[*entities.Post]{}, storeErr(op, err, "")
	}
	return page, nil
}

// ListSeries pages the posts of a series in series order.
func (s *Service) ListSeries(ctx context.Context, seriesID string, in ListInput) (cursor.Page[*entities.Post], error) {
	if seriesID == "" {
		return cursor.Page[*entities.Post]{}, apperr.Validation("posts.list_series", "series id is required")
	}
	in.Filter.SeriesID = seriesID
	in.SortBy = interfaces.SortSeriesOrder
	if in.SortOrder == "" {
		in.SortOrder = interfaces.SortAsc
	}
	return s.List(ctx, in)
}

func (s *Service) clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return s.opts.DefaultLimit
	case limit > s.opts.MaxLimit:
		return s.opts.MaxLimit
	}
	return limit
}

// DueScheduled lists scheduled posts whose time has come.
func (s *Service) DueScheduled(ctx context.Context, now time.Time) ([]*entities.Post, error) {
	posts, err := s.db.Posts().DueScheduled(ctx, now.UTC(), 0)
	if err != nil {
		return nil, storeErr("posts.due_scheduled", err, "")
	}
	return posts, nil
}

// ReadingHistory lists what a viewer read most recently.
func (s *Service) ReadingHistory(ctx context.Context, userID string, limit int) ([]*entities.ReadingHistoryEntry, error) {
	entries, err := s.db.History().ListByUser(ctx, userID, s.clampLimit(limit))
	if err != nil {
		return nil, storeErr("posts.reading_history", err, "")
	}
	return entries, nil
}

func (s *Service) Revisions(ctx context.Context, postID string) ([]*entities.PostRevision, error) {
	return s.ledger.List(ctx, postID)
}

func (s *Service) Revision(ctx context.Context, revisionID string) (*entities.PostRevision, error) {
	return s.ledger.Get(ctx, revisionID)
}

func (s *Service) Diff(ctx context.Context, fromID, toID string) (*revisions.Diff, error) {
	return s.ledger.Diff(ctx, fromID, toID)
}
