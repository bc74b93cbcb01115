package entities

import (
	"time"
)

type PostStatus string

const (
	StatusDraft     PostStatus = "draft"
	StatusScheduled PostStatus = "scheduled"
	StatusPublished PostStatus = "published"
	StatusArchived  PostStatus = "archived"
)

func (s PostStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusPublished, StatusArchived:
		return true
	}
	return false
}

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityMembers Visibility = "members"
	VisibilityPaid    Visibility = "paid"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityMembers, VisibilityPaid:
		return true
	}
	return false
}

// Tier is a subscription level. Ranks are fixed: free < basic < pro < premium.
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

var tierRanks = map[Tier]int{
	TierFree:    0,
	TierBasic:   1,
	TierPro:     2,
	TierPremium: 3,
}

// Rank returns the ordinal of t, or -1 for an unknown tier.
func (t Tier) Rank() int {
	if r, ok := tierRanks[t]; ok {
		return r
	}
	return -1
}

func (t Tier) Valid() bool {
	return t.Rank() >= 0
}

// Post represents a post entity
type Post struct {
	ID          string     `json:"id" db:"id"`
	AuthorID    string     `json:"authorId" db:"author_id"`
	Title       string     `json:"title" db:"title"`
	Slug        string     `json:"slug" db:"slug"`
	Content     *string    `json:"content" db:"content"`
	Excerpt     *string    `json:"excerpt,omitempty" db:"excerpt"`
	Status      PostStatus `json:"status" db:"status"`
	Visibility  Visibility `json:"visibility" db:"visibility"`
	MinimumTier *Tier      `json:"minimumTier,omitempty" db:"minimum_tier"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty" db:"scheduled_at"`
	PublishedAt *time.Time `json:"publishedAt,omitempty" db:"published_at"`
	SeriesID    *string    `json:"seriesId,omitempty" db:"series_id"`
	SeriesOrder *int       `json:"seriesOrder,omitempty" db:"series_order"`
	WordCount   int        `json:"wordCount" db:"word_count"`
	ReadingTime int        `json:"readingTime" db:"reading_time"`
	ViewCount   int64      `json:"viewCount" db:"view_count"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
}

// ContentOrEmpty returns the body, treating a missing body as empty.
func (p *Post) ContentOrEmpty() string {
	if p.Content == nil {
		return ""
	}
	return *p.Content
}

func (p *Post) ExcerptOrEmpty() string {
	if p.Excerpt == nil {
		return ""
	}
	return *p.Excerpt
}

func (p *Post) IsDeleted() bool {
	return p.DeletedAt != nil
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	c := *p
	c.Content = cloneString(p.Content)
	c.Excerpt = cloneString(p.Excerpt)
	c.SeriesID = cloneString(p.SeriesID)
	c.ScheduledAt = cloneTime(p.ScheduledAt)
	c.PublishedAt = cloneTime(p.PublishedAt)
	c.DeletedAt = cloneTime(p.DeletedAt)
	if p.MinimumTier != nil {
		t := *p.MinimumTier
		c.MinimumTier = &t
	}
	if p.SeriesOrder != nil {
		o := *p.SeriesOrder
		c.SeriesOrder = &o
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
