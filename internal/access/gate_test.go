package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/folio/folio-backend/internal/db/entities"
	"github.com/folio/folio-backend/internal/subscription"
)

type MockTierChecker struct {
	mock.Mock
}

func (m *MockTierChecker) HasTierAccess(ctx context.Context, viewerID string, required entities.Tier) (bool, error) {
	args := m.Called(ctx, viewerID, required)
	return args.Bool(0), args.Error(1)
}

const fiveParagraphs = "<p>One</p><p>Two</p><p>Three</p><p>Four</p><p>Five</p>"

func post(visibility entities.Visibility, tier *entities.Tier) *entities.Post {
	body := fiveParagraphs
	return &entities.Post{ID: "p1", Visibility: visibility, MinimumTier: tier, Content: &body}
}

func tierPtr(t entities.Tier) *entities.Tier { return &t }

func TestEvaluateRules(t *testing.T) {
	dir := subscription.NewDirectory()
	dir.Subscribe("free", entities.TierFree)
	dir.Subscribe("basic", entities.TierBasic)
	dir.Subscribe("premium", entities.TierPremium)
	gate := NewGate(dir, zaptest.NewLogger(t).Sugar(), nil)
	ctx := context.Background()

	truncated := "<p>One</p><p>Two</p><p>Three</p>"

	tests := []struct {
		name     string
		post     *entities.Post
		viewer   string
		expected Decision
	}{
		{
			name:     "public is open to anonymous",
			post:     post(entities.VisibilityPublic, nil),
			expected: Decision{Content: fiveParagraphs},
		},
		{
			name:     "members post gates anonymous",
			post:     post(entities.VisibilityMembers, nil),
			expected: Decision{Content: truncated, Paywalled: true, Gated: true},
		},
		{
			name:     "members post opens for free tier",
			post:     post(entities.VisibilityMembers, nil),
			viewer:   "free",
			expected: Decision{Content: fiveParagraphs},
		},
		{
			name:     "members post opens for unsubscribed viewer",
			post:     post(entities.VisibilityMembers, nil),
			viewer:   "stranger",
			expected: Decision{Content: fiveParagraphs},
		},
		{
			name:     "paid pro post gates anonymous",
			post:     post(entities.VisibilityPaid, tierPtr(entities.TierPro)),
			expected: Decision{Content: truncated, Paywalled: true, Gated: true, RequiresSubscription: true, MinimumTier: tierPtr(entities.TierPro)},
		},
		{
			name:     "paid pro post gates basic",
			post:     post(entities.VisibilityPaid, tierPtr(entities.TierPro)),
			viewer:   "basic",
			expected: Decision{Content: truncated, Paywalled: true, Gated: true, RequiresSubscription: true, MinimumTier: tierPtr(entities.TierPro)},
		},
		{
			name:     "paid pro post opens for premium",
			post:     post(entities.VisibilityPaid, tierPtr(entities.TierPro)),
			viewer:   "premium",
			expected: Decision{Content: fiveParagraphs},
		},
		{
			name:     "paid without tier defaults to basic",
			post:     post(entities.VisibilityPaid, nil),
			viewer:   "basic",
			expected: Decision{Content: fiveParagraphs},
		},
		{
			name:     "paid without tier gates free",
			post:     post(entities.VisibilityPaid, nil),
			viewer:   "free",
			expected: Decision{Content: truncated, Paywalled: true, Gated: true, RequiresSubscription: true, MinimumTier: tierPtr(entities.TierBasic)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, gate.Evaluate(ctx, tt.post, tt.viewer))
		})
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	gate := NewGate(subscription.NewDirectory(), nil, nil)
	p := post(entities.VisibilityPaid, tierPtr(entities.TierPremium))

	first := gate.Evaluate(context.Background(), p, "")
	second := gate.Evaluate(context.Background(), p, "")
	assert.Equal(t, first, second)
	assert.Equal(t, fiveParagraphs, p.ContentOrEmpty())
}

func TestTierCheckerErrorFailsClosed(t *testing.T) {
	checker := &MockTierChecker{}
	checker.On("HasTierAccess", mock.Anything, "viewer", entities.TierPro).
		Return(true, errors.New("subscription service down"))

	gate := NewGate(checker, zaptest.NewLogger(t).Sugar(), nil)
	d := gate.Evaluate(context.Background(), post(entities.VisibilityPaid, tierPtr(entities.TierPro)), "viewer")

	assert.True(t, d.Paywalled)
	assert.True(t, d.Gated)
	checker.AssertExpectations(t)
}

func TestTierCheckerNotConsultedOutsidePaid(t *testing.T) {
	checker := &MockTierChecker{}
	gate := NewGate(checker, nil, nil)

	gate.Evaluate(context.Background(), post(entities.VisibilityMembers, nil), "viewer")
	gate.Evaluate(context.Background(), post(entities.VisibilityPaid, nil), "")

	checker.AssertNotCalled(t, "HasTierAccess", mock.Anything, mock.Anything, mock.Anything)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "html paragraphs",
			content: "<p>A</p>\n<p class=\"lead\">B</p>\n<p>C</p>\n<p>D</p>",
			want:    "<p>A</p><p>B</p><p>C</p>",
		},
		{
			name:    "blank line paragraphs",
			content: "First.\n\nSecond.\n  \nThird.\n\nFourth.",
			want:    "<p>First.</p><p>Second.</p><p>Third.</p>",
		},
		{
			name:    "upper case tags",
			content: "<P>a</P><P>b</P><P>c</P><P>d</P>",
			want:    "<p>a</p><p>b</p><p>c</p>",
		},
		{
			name:    "three paragraphs are left alone",
			content: "<p>a</p><p>b</p><p>c</p>",
			want:    "<p>a</p><p>b</p><p>c</p>",
		},
		{
			name:    "single paragraph",
			content: "just one",
			want:    "just one",
		},
		{
			name:    "empty",
			content: "",
			want:    "",
		},
		{
			name:    "pre blocks are not paragraph tags",
			content: "<pre>x</pre>\n\nb\n\nc\n\nd",
			want:    "<p><pre>x</pre></p><p>b</p><p>c</p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Truncate(tt.content))
		})
	}
}

func TestShortContentStillPaywalled(t *testing.T) {
	body := "<p>only</p>"
	p := &entities.Post{Visibility: entities.VisibilityMembers, Content: &body}

	d := NewGate(subscription.NewDirectory(), nil, nil).Evaluate(context.Background(), p, "")
	assert.Equal(t, body, d.Content)
	assert.True(t, d.Paywalled)
	assert.False(t, d.RequiresSubscription)
	assert.Nil(t, d.MinimumTier)
}
