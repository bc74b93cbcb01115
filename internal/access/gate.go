// Package access decides how much of a post a viewer may read.
package access

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/folio/folio-backend/internal/db/entities"
	"github.com/folio/folio-backend/internal/metrics"
)

// PreviewParagraphs is how many paragraphs a gated viewer sees.
const PreviewParagraphs = 3

var (
	paragraphBreak = regexp.MustCompile(`(?i)</p>|\n\s*\n`)
	openParagraph  = regexp.MustCompile(`(?i)^<p(\s[^>]*)?>`)
)

// TierChecker answers whether a viewer's active subscription ranks at or
// above a tier. Viewers without a subscription rank as free.
type TierChecker interface {
	HasTierAccess(ctx context.Context, viewerID string, required entities.Tier) (bool, error)
}

// Decision is the viewer-specific rendering of a post body. It is computed
// per request and never cached.
type Decision struct {
	Content              string         `json:"content"`
	Paywalled            bool           `json:"paywalled"`
	Gated                bool           `json:"gated"`
	RequiresSubscription bool           `json:"requiresSubscription"`
	MinimumTier          *entities.Tier `json:"minimumTier,omitempty"`
}

type Gate struct {
	tiers   TierChecker
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewGate(tiers TierChecker, logger *zap.SugaredLogger, m *metrics.Metrics) *Gate {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Gate{tiers: tiers, logger: logger, metrics: m}
}

// Evaluate applies the gating rules in order: public posts are open,
// anonymous viewers are gated, members posts are open to any signed-in
// viewer, and paid posts need the minimum tier (basic when unset). An empty
// viewerID means anonymous.
func (g *Gate) Evaluate(ctx context.Context, post *entities.Post, viewerID string) Decision {
	var d Decision
	switch {
	case post.Visibility == entities.VisibilityPublic:
		d = full(post)
	case viewerID == "":
		d = gated(post)
	case post.Visibility == entities.VisibilityMembers:
		d = full(post)
	case post.Visibility == entities.VisibilityPaid:
		ok, err := g.tiers.HasTierAccess(ctx, viewerID, RequiredTier(post))
		if err != nil {
			g.logger.Warnw("Tier lookup failed, gating post",
				"post_id", post.ID, "viewer_id", viewerID, "error", err)
		}
		if ok && err == nil {
			d = full(post)
		} else {
			d = gated(post)
		}
	default:
		g.logger.Warnw("Unknown visibility, gating post", "post_id", post.ID, "visibility", post.Visibility)
		d = gated(post)
	}

	g.metrics.RecordGateDecision(ctx, string(post.Visibility), d.Gated)
	return d
}

// RequiredTier is the tier a paid post asks for.
func RequiredTier(post *entities.Post) entities.Tier {
	if post.MinimumTier != nil && post.MinimumTier.Valid() {
		return *post.MinimumTier
	}
	return entities.TierBasic
}

func full(post *entities.Post) Decision {
	return Decision{Content: post.ContentOrEmpty()}
}

func gated(post *entities.Post) Decision {
	d := Decision{
		Content:   Truncate(post.ContentOrEmpty()),
		Paywalled: true,
		Gated:     true,
	}
	if post.Visibility == entities.VisibilityPaid {
		tier := RequiredTier(post)
		d.RequiresSubscription = true
		d.MinimumTier = &tier
	}
	return d
}

// Truncate keeps the first paragraphs of content. Paragraphs end at a
// closing </p> or a blank line. Short content is returned as is; longer
// content is rebuilt from the kept paragraphs, each wrapped in <p></p>.
func Truncate(content string) string {
	var paragraphs []string
	for _, part := range paragraphBreak.Split(content, -1) {
		if part = strings.TrimSpace(part); part != "" {
			paragraphs = append(paragraphs, part)
		}
	}
	if len(paragraphs) <= PreviewParagraphs {
		return content
	}

	var b strings.Builder
	for _, part := range paragraphs[:PreviewParagraphs] {
		part = strings.TrimSpace(openParagraph.ReplaceAllString(part, ""))
		b.WriteString("<p>")
		b.WriteString(part)
		b.WriteString("</p>")
	}
	return b.String()
}
