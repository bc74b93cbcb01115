package interfaces

import (
	"context"
	"time"

	"github.com/folio/folio-backend/internal/db/entities"
)

// PostRepository stores posts. Soft-deleted rows are invisible to every
// method except where noted.
type PostRepository interface {
	GetByID(ctx context.Context, id string) (*entities.Post, error)

	GetBySlug(ctx context.Context, slug string) (*entities.Post, error)

	// SlugTaken reports whether a live post other than excludeID uses slug.
	SlugTaken(ctx context.Context, slug, excludeID string) (bool, error)

	// Create inserts a post. A live slug collision returns ErrUniqueConstraint.
	Create(ctx context.Context, post *entities.Post) error

	// Update overwrites every column of an existing live post.
	Update(ctx context.Context, post *entities.Post) error

	SoftDelete(ctx context.Context, id string, at time.Time) error

	// List returns up to q.Limit posts ordered by q.SortBy, strictly after
	// q.After in the sort direction when it is not null.
	List(ctx context.Context, q *PostQuery) ([]*entities.Post, error)

	// DueScheduled returns scheduled posts whose scheduled time is at or
	// before now, oldest first.
	DueScheduled(ctx context.Context, now time.Time, limit int) ([]*entities.Post, error)

	// PromoteScheduled flips a due scheduled post to published in a single
	// conditional write. It returns ErrNotFound when the post is no longer
	// eligible (already promoted, rescheduled, unpublished or deleted).
	PromoteScheduled(ctx context.Context, id string, now time.Time) (*entities.Post, error)

	IncrementViewCount(ctx context.Context, id string) error

	SetSeriesOrder(ctx context.Context, id, seriesID string, order int, at time.Time) error
}

// RevisionRepository stores post revisions.
type RevisionRepository interface {
	// Create inserts a revision. A duplicate (post_id, revision_number)
	// returns ErrUniqueConstraint.
	Create(ctx context.Context, rev *entities.PostRevision) error

	// MaxNumber returns the highest revision number for postID, or 0.
	MaxNumber(ctx context.Context, postID string) (int, error)

	GetByID(ctx context.Context, id string) (*entities.PostRevision, error)

	// ListByPost returns every revision of postID, newest first.
	ListByPost(ctx context.Context, postID string) ([]*entities.PostRevision, error)
}

// HistoryRepository stores reading history.
type HistoryRepository interface {
	Record(ctx context.Context, entry *entities.ReadingHistoryEntry) error

	// ListByUser returns the most recent entries for userID, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*entities.ReadingHistoryEntry, error)
}
