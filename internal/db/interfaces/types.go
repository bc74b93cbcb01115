package interfaces

import (
	"errors"

	"github.com/folio/folio-backend/internal/cursor"
	"github.com/folio/folio-backend/internal/db/entities"
)

// SortField names a sortable post column.
type SortField string

const (
	SortCreatedAt   SortField = "createdAt"
	SortUpdatedAt   SortField = "updatedAt"
	SortPublishedAt SortField = "publishedAt"
	SortTitle       SortField = "title"
	SortViewCount   SortField = "viewCount"
	SortSeriesOrder SortField = "seriesOrder"
)

func (f SortField) Valid() bool {
	switch f {
	case SortCreatedAt, SortUpdatedAt, SortPublishedAt, SortTitle, SortViewCount, SortSeriesOrder:
		return true
	}
	return false
}

// Kind is the cursor kind carried by values of this field.
func (f SortField) Kind() cursor.Kind {
	switch f {
	case SortTitle:
		return cursor.KindString
	case SortViewCount, SortSeriesOrder:
		return cursor.KindInt
	default:
		return cursor.KindTime
	}
}

// Nullable fields only list rows where the column is set, so every row on a
// page has a usable cursor value.
func (f SortField) Nullable() bool {
	return f == SortPublishedAt || f == SortSeriesOrder
}

type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

func (o SortOrder) Valid() bool {
	return o == SortAsc || o == SortDesc
}

// PostFilter narrows a post listing. Zero fields do not filter.
type PostFilter struct {
	Status     *entities.PostStatus `json:"status,omitempty"`
	Visibility *entities.Visibility `json:"visibility,omitempty"`
	AuthorID   string               `json:"authorId,omitempty"`
	SeriesID   string               `json:"seriesId,omitempty"`
	Search     string               `json:"search,omitempty"` // case-insensitive title match
}

// PostQuery is a keyset page request against the post table.
type PostQuery struct {
	Filter PostFilter
	SortBy SortField
	Order  SortOrder
	After  cursor.Value
	Limit  int
}

// Common database errors
var (
	ErrNotFound             = errors.New("record not found")
	ErrUniqueConstraint     = errors.New("unique constraint violation")
	ErrInvalidQuery         = errors.New("invalid query")
	ErrTransactionCompleted = errors.New("transaction already completed")
	ErrDatabaseNotConnected = errors.New("database not connected")
)

// DatabaseError wraps database-specific errors
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}
