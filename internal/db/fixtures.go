package db

import (
	"context"
	"fmt"
	"time"

	"github.com/folio/folio-backend/internal/db/entities"
	"github.com/folio/folio-backend/internal/db/interfaces"
)

func strPtr(s string) *string { return &s }

func tierPtr(t entities.Tier) *entities.Tier { return &t }

// PostFixtures returns a small editorial set covering every visibility and
// a scheduled post that comes due shortly after now.
func PostFixtures(authorID string, now time.Time) []*entities.Post {
	published := now.Add(-24 * time.Hour)
	scheduled := now.Add(2 * time.Minute)
	series := "getting-started"
	one, two := 1, 2

	return []*entities.Post{
		{
			Title:       "Welcome to Folio",
			Slug:        "welcome-to-folio",
			Content:     strPtr("<p>Folio is a small publication engine.</p><p>It versions every edit.</p>"),
			Excerpt:     strPtr("Folio is a small publication engine."),
			Status:      entities.StatusPublished,
			Visibility:  entities.VisibilityPublic,
			PublishedAt: &published,
			SeriesID:    &series,
			SeriesOrder: &one,
		},
		{
			Title:       "Members Corner",
			Slug:        "members-corner",
			Content:     strPtr("First paragraph.\n\nSecond paragraph.\n\nThird paragraph.\n\nFourth paragraph."),
			Status:      entities.StatusPublished,
			Visibility:  entities.VisibilityMembers,
			PublishedAt: &published,
			SeriesID:    &series,
			SeriesOrder: &two,
		},
		{
			Title:       "Pro Deep Dive",
			Slug:        "pro-deep-dive",
			Content:     strPtr("<p>One</p><p>Two</p><p>Three</p><p>Four</p><p>Five</p>"),
			Status:      entities.StatusPublished,
			Visibility:  entities.VisibilityPaid,
			MinimumTier: tierPtr(entities.TierPro),
			PublishedAt: &published,
		},
		{
			Title:       "Coming Soon",
			Slug:        "coming-soon",
			Content:     strPtr("<p>Scheduled content.</p>"),
			Status:      entities.StatusScheduled,
			Visibility:  entities.VisibilityPublic,
			ScheduledAt: &scheduled,
		},
		{
			Title:      "Unfinished Draft",
			Slug:       "unfinished-draft",
			Status:     entities.StatusDraft,
			Visibility: entities.VisibilityPublic,
		},
	}
}

// SeedPosts inserts the fixtures directly through the repository, skipping
// any whose slug already exists.
func SeedPosts(ctx context.Context, store interfaces.Store, authorID string, now time.Time) (int, error) {
	seeded := 0
	for i, p := range PostFixtures(authorID, now) {
		taken, err := store.Posts().SlugTaken(ctx, p.Slug, "")
		if err != nil {
			return seeded, fmt.Errorf("check fixture %d: %w", i, err)
		}
		if taken {
			continue
		}

		p.AuthorID = authorID
		p.CreatedAt = now.Add(time.Duration(i) * time.Second)
		p.UpdatedAt = p.CreatedAt
		if err := store.Posts().Create(ctx, p); err != nil {
			return seeded, fmt.Errorf("seed fixture %d: %w", i, err)
		}
		seeded++
	}
	return seeded, nil
}
