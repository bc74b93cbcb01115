package entities

import "time"

// PostRevision is an immutable snapshot of a post's editable text taken
// before a mutation. Numbers are 1-based and gapless per post.
type PostRevision struct {
	ID             string    `json:"id" db:"id"`
	PostID         string    `json:"postId" db:"post_id"`
	RevisionNumber int       `json:"revisionNumber" db:"revision_number"`
	Title          string    `json:"title" db:"title"`
	Content        *string   `json:"content" db:"content"`
	Excerpt        *string   `json:"excerpt,omitempty" db:"excerpt"`
	CreatedBy      string    `json:"createdBy" db:"created_by"`
	Note           string    `json:"note,omitempty" db:"note"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

func (r *PostRevision) ContentOrEmpty() string {
	if r.Content == nil {
		return ""
	}
	return *r.Content
}

func (r *PostRevision) ExcerptOrEmpty() string {
	if r.Excerpt == nil {
		return ""
	}
	return *r.Excerpt
}

func (r *PostRevision) Clone() *PostRevision {
	if r == nil {
		return nil
	}
	c := *r
	c.Content = cloneString(r.Content)
	c.Excerpt = cloneString(r.Excerpt)
	return &c
}

// ReadingHistoryEntry records that a signed-in viewer opened a post.
type ReadingHistoryEntry struct {
	ID     string    `json:"id" db:"id"`
	UserID string    `json:"userId" db:"user_id"`
	PostID string    `json:"postId" db:"post_id"`
	ReadAt time.Time `json:"readAt" db:"read_at"`
}
