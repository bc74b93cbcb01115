package cursor

// Meta is the pagination block returned alongside a page of items.
type Meta struct {
	HasNextPage     bool   `json:"hasNextPage"`
	HasPreviousPage bool   `json:"hasPreviousPage"`
	NextCursor      string `json:"nextCursor,omitempty"`
	PreviousCursor  string `json:"previousCursor,omitempty"`
}

type Page[T any] struct {
	Items []T  `json:"items"`
	Meta  Meta `json:"meta"`
}

// Paginate turns a fetch of up to limit+1 rows into a page. The extra row,
// when present, only signals that a next page exists and is dropped. The
// previous cursor echoes the one the caller came in with.
func Paginate[T any](rows []T, limit int, input string, keyOf func(T) Value) Page[T] {
	hasNext := len(rows) > limit
	if hasNext {
		rows = rows[:limit]
	}
	if rows == nil {
		rows = []T{}
	}

	page := Page[T]{
		Items: rows,
		Meta: Meta{
			HasNextPage:     hasNext,
			HasPreviousPage: input != "",
			PreviousCursor:  input,
		},
	}
	if hasNext && len(rows) > 0 {
		page.Meta.NextCursor = Encode(keyOf(rows[len(rows)-1]))
	}
	return page
}
