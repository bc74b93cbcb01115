package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/folio/folio-backend/internal/db/entities"
	"github.com/folio/folio-backend/internal/subscription"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyNewPost(ctx context.Context, post *entities.Post, subscribers []subscription.Subscriber) (int, error) {
	args := m.Called(ctx, post, subscribers)
	return args.Int(0), args.Error(1)
}

type staticSource struct {
	subs []subscription.Subscriber
	err  error
}

func (s staticSource) ActiveSubscribers(ctx context.Context) ([]subscription.Subscriber, error) {
	return s.subs, s.err
}

func subscribers(n int) []subscription.Subscriber {
	subs := make([]subscription.Subscriber, n)
	for i := range subs {
		subs[i] = subscription.Subscriber{ID: fmt.Sprintf("s%03d", i), Tier: entities.TierBasic}
	}
	return subs
}

func TestBatches(t *testing.T) {
	subs := subscribers(7)

	batches := Batches(subs, 3)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[2], 1)
	assert.Equal(t, "s006", batches[2][0].ID)

	assert.Len(t, Batches(subs, 0), 1)
	assert.Empty(t, Batches(nil, 3))
}

func TestDispatchCountsFailures(t *testing.T) {
	notifier := &MockNotifier{}
	post := &entities.Post{ID: "p1", Title: "Hello"}

	notifier.On("NotifyNewPost", mock.Anything, post, mock.MatchedBy(func(b []subscription.Subscriber) bool {
		return b[0].ID == "s000"
	})).Return(1, nil)
	notifier.On("NotifyNewPost", mock.Anything, post, mock.MatchedBy(func(b []subscription.Subscriber) bool {
		return b[0].ID == "s004"
	})).Return(0, errors.New("smtp down"))
	notifier.On("NotifyNewPost", mock.Anything, post, mock.MatchedBy(func(b []subscription.Subscriber) bool {
		return b[0].ID == "s008"
	})).Return(0, nil)

	d := NewDispatcher(staticSource{subs: subscribers(10)}, notifier,
		Config{BatchSize: 4, BatchesPerSec: 1000, MaxConcurrency: 2},
		zaptest.NewLogger(t).Sugar(), nil)

	res := d.Dispatch(context.Background(), post)
	assert.Equal(t, Result{Subscribers: 10, Batches: 3, Sent: 5, Failed: 5}, res)
	notifier.AssertNumberOfCalls(t, "NotifyNewPost", 3)
}

func TestDispatchSourceErrorSendsNothing(t *testing.T) {
	notifier := &MockNotifier{}
	d := NewDispatcher(staticSource{err: errors.New("db down")}, notifier, Config{}, zaptest.NewLogger(t).Sugar(), nil)

	assert.Equal(t, Result{}, d.Dispatch(context.Background(), &entities.Post{ID: "p1"}))
	notifier.AssertNotCalled(t, "NotifyNewPost", mock.Anything, mock.Anything, mock.Anything)
}

type recordingNotifier struct {
	mu    sync.Mutex
	posts []string
}

func (r *recordingNotifier) NotifyNewPost(ctx context.Context, post *entities.Post, subs []subscription.Subscriber) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, post.ID)
	return 0, nil
}

func (r *recordingNotifier) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.posts...)
}

func TestWorkersDrainQueue(t *testing.T) {
	notifier := &recordingNotifier{}
	d := NewDispatcher(staticSource{subs: subscribers(2)}, notifier,
		Config{BatchesPerSec: 1000}, zaptest.NewLogger(t).Sugar(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	assert.True(t, d.Enqueue(&entities.Post{ID: "a"}))
	assert.True(t, d.Enqueue(&entities.Post{ID: "b"}))

	assert.Eventually(t, func() bool { return len(notifier.seen()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"a", "b"}, notifier.seen())
}

func TestDrainWithoutWorkers(t *testing.T) {
	notifier := &recordingNotifier{}
	d := NewDispatcher(staticSource{subs: subscribers(1)}, notifier,
		Config{BatchesPerSec: 1000}, zaptest.NewLogger(t).Sugar(), nil)

	d.Enqueue(&entities.Post{ID: "a"})
	d.Enqueue(&entities.Post{ID: "b"})

	assert.Equal(t, 2, d.Drain(context.Background()))
	assert.Equal(t, []string{"a", "b"}, notifier.seen())
	assert.Zero(t, d.Drain(context.Background()))
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	d := NewDispatcher(staticSource{}, &recordingNotifier{}, Config{QueueSize: 1}, zaptest.NewLogger(t).Sugar(), nil)

	assert.True(t, d.Enqueue(&entities.Post{ID: "a"}))
	assert.False(t, d.Enqueue(&entities.Post{ID: "b"}))
}

func TestPerRecipientIsolatesFailures(t *testing.T) {
	send := func(ctx context.Context, post *entities.Post, sub subscription.Subscriber) error {
		if sub.ID == "s001" {
			return errors.New("bounced")
		}
		return nil
	}

	failed, err := PerRecipient(send, nil).NotifyNewPost(context.Background(), &entities.Post{ID: "p"}, subscribers(3))
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
}

func TestPerRecipientStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	send := func(ctx context.Context, post *entities.Post, sub subscription.Subscriber) error {
		calls++
		cancel()
		return nil
	}

	failed, err := PerRecipient(send, nil).NotifyNewPost(ctx, &entities.Post{ID: "p"}, subscribers(4))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 3, failed)
}
