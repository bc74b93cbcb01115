// Package publication holds the post lifecycle rules. Every function is a
// pure transition over a post and an injected clock reading; persistence
// and cache effects belong to the caller.
package publication

import (
	"time"

	"github.com/folio/folio-backend/internal/apperr"
	"github.com/folio/folio-backend/internal/db/entities"
)

// ApplyCreate sets the initial status of a new post. Without a requested
// status the post is a draft, or scheduled when it carries a future
// scheduledAt.
func ApplyCreate(p *entities.Post, requested *entities.PostStatus, now time.Time) error {
	const op = "publication.create"

	status := entities.StatusDraft
	if requested != nil {
		status = *requested
	} else if isFuture(p.ScheduledAt, now) {
		status = entities.StatusScheduled
	}

	switch status {
	case entities.StatusDraft:
	case entities.StatusScheduled:
		if !isFuture(p.ScheduledAt, now) {
			return apperr.Validation(op, "scheduled posts need a scheduledAt in the future")
		}
	case entities.StatusPublished:
		published := now
		p.PublishedAt = &published
	case entities.StatusArchived:
		return apperr.Validation(op, "a post cannot be created archived")
	default:
		return apperr.Validation(op, "unknown status %q", status)
	}

	p.Status = status
	return nil
}

// ApplyUpdate moves p to the requested status, if any. publishedAt is only
// stamped on the first transition into published. The schedule is checked
// only when the status or scheduledAt actually changed, so unrelated edits
// to a scheduled post whose time has passed are not rejected.
func ApplyUpdate(p *entities.Post, requested *entities.PostStatus, scheduleChanged bool, now time.Time) error {
	const op = "publication.update"

	previous := p.Status
	if requested != nil {
		if !requested.Valid() {
			return apperr.Validation(op, "unknown status %q", *requested)
		}
		p.Status = *requested
	}

	if p.Status == entities.StatusScheduled && (p.Status != previous || scheduleChanged) {
		if !isFuture(p.ScheduledAt, now) {
			return apperr.Validation(op, "scheduled posts need a scheduledAt in the future")
		}
	}

	if p.Status == entities.StatusPublished && p.PublishedAt == nil {
		published := now
		p.PublishedAt = &published
	}
	return nil
}

// Publish forces p live and restamps publishedAt.
func Publish(p *entities.Post, now time.Time) {
	published := now
	p.Status = entities.StatusPublished
	p.PublishedAt = &published
}

// Unpublish returns p to draft. publishedAt is kept.
func Unpublish(p *entities.Post) {
	p.Status = entities.StatusDraft
}

func Archive(p *entities.Post) {
	p.Status = entities.StatusArchived
}

// IsDue reports whether the scheduler should promote p at now.
func IsDue(p *entities.Post, now time.Time) bool {
	return p.Status == entities.StatusScheduled && p.ScheduledAt != nil && !p.ScheduledAt.After(now)
}

// Promote publishes a due scheduled post. It reports false, leaving p
// untouched, when p is not due.
func Promote(p *entities.Post, now time.Time) bool {
	if !IsDue(p, now) {
		return false
	}
	p.Status = entities.StatusPublished
	if p.PublishedAt == nil {
		published := now
		p.PublishedAt = &published
	}
	return true
}

func isFuture(t *time.Time, now time.Time) bool {
	return t != nil && t.After(now)
}
