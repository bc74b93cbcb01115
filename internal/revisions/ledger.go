// Package revisions keeps the numbered history of a post's title, content
// and excerpt.
package revisions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/folio/folio-backend/internal/apperr"
	"github.com/folio/folio-backend/internal/cache"
	"github.com/folio/folio-backend/internal/db/entities"
	"github.com/folio/folio-backend/internal/db/interfaces"
	"github.com/folio/folio-backend/internal/metrics"
	"github.com/folio/folio-backend/internal/publication"
)

type Options struct {
	// MaxAttempts bounds how often a snapshot retries after losing a race
	// for the next revision number.
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	CacheTTL    time.Duration
	Now         func() time.Time
}

type Ledger struct {
	db      interfaces.Database
	cache   *cache.Cache
	opts    Options
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewLedger(db interfaces.Database, c *cache.Cache, opts Options, logger *zap.SugaredLogger, m *metrics.Metrics) *Ledger {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 5 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 200 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Ledger{db: db, cache: c, opts: opts, logger: logger, metrics: m}
}

// Snapshot records the current persisted title, content and excerpt of a
// post as its next revision. The number is max+1 read and inserted in one
// transaction; a concurrent writer taking the same number trips the unique
// (post, number) constraint and the snapshot retries with backoff.
func (l *Ledger) Snapshot(ctx context.Context, postID, actor, note string) (*entities.PostRevision, error) {
	const op = "revisions.snapshot"

	boff := &backoff.Backoff{Min: l.opts.MinBackoff, Max: l.opts.MaxBackoff, Jitter: true}

	var rev *entities.PostRevision
	var err error
	for attempt := 1; ; attempt++ {
		rev, err = l.snapshotOnce(ctx, postID, actor, note)
		if err == nil || !errors.Is(err, interfaces.ErrUniqueConstraint) || attempt >= l.opts.MaxAttempts {
			break
		}

		wait := boff.Duration()
		l.logger.Debugw("Revision number taken, retrying", "post_id", postID, "attempt", attempt, "wait", wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.metrics.RecordSnapshot(ctx, false)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if err != nil {
		l.metrics.RecordSnapshot(ctx, false)
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, apperr.NotFound(op, "post %s not found", postID)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	l.metrics.RecordSnapshot(ctx, true)
	l.invalidate(ctx, postID)
	return rev, nil
}

func (l *Ledger) snapshotOnce(ctx context.Context, postID, actor, note string) (*entities.PostRevision, error) {
	var rev *entities.PostRevision
	err := l.db.Transaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		post, err := tx.Posts().GetByID(ctx, postID)
		if err != nil {
			return err
		}
		highest, err := tx.Revisions().MaxNumber(ctx, postID)
		if err != nil {
			return err
		}

		rev = &entities.PostRevision{
			ID:             uuid.NewString(),
			PostID:         postID,
			RevisionNumber: highest + 1,
			Title:          post.Title,
			Content:        post.Content,
			Excerpt:        post.Excerpt,
			CreatedBy:      actor,
			Note:           note,
			CreatedAt:      l.opts.Now().UTC(),
		}
		return tx.Revisions().Create(ctx, rev)
	})
	if err != nil {
		return nil, err
	}
	return rev, nil
}

// List returns every revision of a live post, newest first.
func (l *Ledger) List(ctx context.Context, postID string) ([]*entities.PostRevision, error) {
	const op = "revisions.list"

	revs, err := cache.Wrap(ctx, l.cache, cache.RevisionsKey(postID),
		cache.Options{TTL: l.opts.CacheTTL, Tags: []string{cache.RevisionsTag(postID), cache.PostTag(postID)}},
		func(ctx context.Context) ([]*entities.PostRevision, error) {
			if _, err := l.db.Posts().GetByID(ctx, postID); err != nil {
				return nil, err
			}
			return l.db.Revisions().ListByPost(ctx, postID)
		})
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, apperr.NotFound(op, "post %s not found", postID)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return revs, nil
}

// Get returns a revision whose post is still live.
func (l *Ledger) Get(ctx context.Context, revisionID string) (*entities.PostRevision, error) {
	const op = "revisions.get"

	rev, err := l.db.Revisions().GetByID(ctx, revisionID)
	if err == nil {
		_, err = l.db.Posts().GetByID(ctx, rev.PostID)
	}
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, apperr.NotFound(op, "revision %s not found", revisionID)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rev, nil
}

// Diff compares two revisions of the same post, from the first to the second.
func (l *Ledger) Diff(ctx context.Context, fromID, toID string) (*Diff, error) {
	const op = "revisions.diff"

	from, err := l.Get(ctx, fromID)
	if err != nil {
		return nil, err
	}
	to, err := l.Get(ctx, toID)
	if err != nil {
		return nil, err
	}
	if from.PostID != to.PostID {
		return nil, apperr.Validation(op, "revisions %s and %s belong to different posts", fromID, toID)
	}

	return &Diff{
		PostID:      from.PostID,
		From:        from.RevisionNumber,
		To:          to.RevisionNumber,
		TitleDiff:   DiffLines(from.Title, to.Title),
		ContentDiff: DiffLines(from.ContentOrEmpty(), to.ContentOrEmpty()),
		ExcerptDiff: DiffLines(from.ExcerptOrEmpty(), to.ExcerptOrEmpty()),
	}, nil
}

// Restore puts a revision's title, content and excerpt back on its post.
// The current state is snapshotted first so the restore can itself be
// undone; if that snapshot fails nothing is changed. Every other post field
// is left as is.
func (l *Ledger) Restore(ctx context.Context, postID, revisionID, actor string) (*entities.Post, error) {
	const op = "revisions.restore"

	rev, err := l.db.Revisions().GetByID(ctx, revisionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, apperr.NotFound(op, "revision %s not found", revisionID)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rev.PostID != postID {
		return nil, apperr.NotFound(op, "revision %s does not belong to post %s", revisionID, postID)
	}

	note := fmt.Sprintf("Before restoring revision %d", rev.RevisionNumber)
	if _, err := l.Snapshot(ctx, postID, actor, note); err != nil {
		return nil, err
	}

	post, err := l.db.Posts().GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, apperr.NotFound(op, "post %s not found", postID)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	restored := rev.Clone()
	post.Title = restored.Title
	post.Content = restored.Content
	post.Excerpt = restored.Excerpt
	post.UpdatedAt = l.opts.Now().UTC()
	publication.Derive(post)

	if err := l.db.Posts().Update(ctx, post); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	l.invalidate(ctx, postID, post.Slug)
	l.logger.Infow("Revision restored", "post_id", postID, "revision", rev.RevisionNumber, "actor", actor)
	return post, nil
}

// invalidate drops cached revision lists and, when slugs are given, the
// post entries too.
func (l *Ledger) invalidate(ctx context.Context, postID string, slugs ...string) {
	tags := []string{cache.RevisionsTag(postID)}
	if len(slugs) > 0 {
		tags = append(tags, cache.PostTags(postID, slugs...)...)
	}
	if err := l.cache.InvalidateByTags(ctx, tags...); err != nil {
		l.logger.Warnw("Cache invalidation failed", "post_id", postID, "error", err)
	}
}
