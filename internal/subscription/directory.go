// Package subscription is the in-process stand-in for the membership
// service: it knows each viewer's active tier and who should hear about new
// posts.
package subscription

import (
	"context"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/folio/folio-backend/internal/db/entities"
)

// Subscriber is a viewer with an active paid or free membership.
type Subscriber struct {
	ID   string        `json:"id"`
	Tier entities.Tier `json:"tier"`
}

// Directory maps viewer ids to their active tier. Viewers without an entry
// have no subscription and rank as free.
type Directory struct {
	tiers *xsync.MapOf[string, entities.Tier]
}

func NewDirectory() *Directory {
	return &Directory{tiers: xsync.NewMapOf[string, entities.Tier]()}
}

func (d *Directory) Subscribe(viewerID string, tier entities.Tier) {
	d.tiers.Store(viewerID, tier)
}

func (d *Directory) Cancel(viewerID string) {
	d.tiers.Delete(viewerID)
}

func (d *Directory) TierOf(viewerID string) entities.Tier {
	if tier, ok := d.tiers.Load(viewerID); ok {
		return tier
	}
	return entities.TierFree
}

// HasTierAccess reports whether the viewer's tier ranks at or above
// required.
func (d *Directory) HasTierAccess(ctx context.Context, viewerID string, required entities.Tier) (bool, error) {
	return d.TierOf(viewerID).Rank() >= required.Rank(), nil
}

// ActiveSubscribers lists every subscribed viewer, ordered by id.
func (d *Directory) ActiveSubscribers(ctx context.Context) ([]Subscriber, error) {
	subs := make([]Subscriber, 0, d.tiers.Size())
	d.tiers.Range(func(id string, tier entities.Tier) bool {
		subs = append(subs, Subscriber{ID: id, Tier: tier})
		return true
	})
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs, nil
}
