package query

import (
	"slices"
	"strings"

	"github.com/folio/folio-backend/internal/cursor"
	"github.com/folio/folio-backend/internal/db/entities"
	"github.com/folio/folio-backend/internal/db/interfaces"
)

// Execute evaluates a keyset page request over an in-memory post set. It
// mirrors the SQL the relational backend issues: filter, drop rows with a
// null sort key for nullable fields, order, seek past the cursor, limit.
func Execute(posts []*entities.Post, q *interfaces.PostQuery) []*entities.Post {
	var out []*entities.Post
	for _, p := range posts {
		if p.IsDeleted() || !MatchesFilter(p, q.Filter) {
			continue
		}
		if q.SortBy.Nullable() && SortValue(p, q.SortBy).IsNull() {
			continue
		}
		out = append(out, p)
	}

	ApplySort(out, q.SortBy, q.Order)
	out = ApplyCursor(out, q.SortBy, q.Order, q.After)
	return ApplyLimit(out, q.Limit)
}

// MatchesFilter checks if a post matches every set field of f.
func MatchesFilter(p *entities.Post, f interfaces.PostFilter) bool {
	if f.Status != nil && p.Status != *f.Status {
		return false
	}
	if f.Visibility != nil && p.Visibility != *f.Visibility {
		return false
	}
	if f.AuthorID != "" && p.AuthorID != f.AuthorID {
		return false
	}
	if f.SeriesID != "" && (p.SeriesID == nil || *p.SeriesID != f.SeriesID) {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// SortValue extracts the cursor value of field from p.
func SortValue(p *entities.Post, field interfaces.SortField) cursor.Value {
	switch field {
	case interfaces.SortUpdatedAt:
		return cursor.Time(p.UpdatedAt)
	case interfaces.SortPublishedAt:
		if p.PublishedAt == nil {
			return cursor.Null()
		}
		return cursor.Time(*p.PublishedAt)
	case interfaces.SortTitle:
		return cursor.String(p.Title)
	case interfaces.SortViewCount:
		return cursor.Int(p.ViewCount)
	case interfaces.SortSeriesOrder:
		if p.SeriesOrder == nil {
			return cursor.Null()
		}
		return cursor.Int(int64(*p.SeriesOrder))
	default:
		return cursor.Time(p.CreatedAt)
	}
}

// ApplySort orders posts in place. Ties keep their input order.
func ApplySort(posts []*entities.Post, field interfaces.SortField, order interfaces.SortOrder) {
	slices.SortStableFunc(posts, func(a, b *entities.Post) int {
		c := SortValue(a, field).Compare(SortValue(b, field))
		if order == interfaces.SortDesc {
			return -c
		}
		return c
	})
}

// ApplyCursor drops every post that is not strictly after the cursor value:
// greater for ascending order, less for descending.
func ApplyCursor(posts []*entities.Post, field interfaces.SortField, order interfaces.SortOrder, after cursor.Value) []*entities.Post {
	if after.IsNull() {
		return posts
	}
	after = after.Coerce(field.Kind())
	if after.IsNull() {
		return posts
	}

	out := posts[:0:0]
	for _, p := range posts {
		c := SortValue(p, field).Compare(after)
		if (order == interfaces.SortDesc && c < 0) || (order != interfaces.SortDesc && c > 0) {
			out = append(out, p)
		}
	}
	return out
}

// ApplyLimit truncates to limit rows. A non-positive limit keeps everything.
func ApplyLimit(posts []*entities.Post, limit int) []*entities.Post {
	if limit > 0 && len(posts) > limit {
		return posts[:limit]
	}
	return posts
}
