package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/folio/folio-backend/pkg/kv"
	"github.com/folio/folio-backend/pkg/kv/memory"
)

type article struct {
	ID    string `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

func newTestCache(t *testing.T) (*Cache, *memory.Store) {
	t.Helper()
	store := memory.New(0)
	c := New(store, time.Minute, zaptest.NewLogger(t).Sugar(), nil)
	t.Cleanup(func() { _ = c.Close() })
	return c, store
}

func TestWrapComputesOnceThenHits(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var calls int
	compute := func(ctx context.Context) (article, error) {
		calls++
		return article{ID: "1", Title: "First"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := Wrap(ctx, c, PostIDKey("1"), Options{Tags: PostTags("1")}, compute)
		require.NoError(t, err)
		assert.Equal(t, "First", got.Title)
	}
	assert.Equal(t, 1, calls)
}

func TestWrapDoesNotCacheErrors(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var calls int
	compute := func(ctx context.Context) (*article, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return &article{ID: "1"}, nil
	}

	_, err := Wrap(ctx, c, "k", Options{}, compute)
	assert.ErrorIs(t, err, boom)

	got, err := Wrap(ctx, c, "k", Options{}, compute)
	require.NoError(t, err)
	assert.Equal(t, "1", got.ID)
	assert.Equal(t, 2, calls)
}

func TestInvalidateByTagRemovesOnlyTaggedEntries(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, PostIDKey("1"), article{ID: "1"}, Options{Tags: PostTags("1", "one")}))
	require.NoError(t, c.Set(ctx, PostSlugKey("one"), article{ID: "1"}, Options{Tags: PostTags("1", "one")}))
	require.NoError(t, c.Set(ctx, PostIDKey("2"), article{ID: "2"}, Options{Tags: PostTags("2", "two")}))
	require.NoError(t, c.Set(ctx, PostListKey(map[string]int{"limit": 10}), []article{}, Options{Tags: []string{TagPosts}}))

	require.NoError(t, c.InvalidateByTag(ctx, PostTag("1")))

	var a article
	assert.ErrorIs(t, c.Get(ctx, PostIDKey("1"), &a), ErrCacheMiss)
	assert.ErrorIs(t, c.Get(ctx, PostSlugKey("one"), &a), ErrCacheMiss)
	assert.NoError(t, c.Get(ctx, PostIDKey("2"), &a))

	var list []article
	assert.NoError(t, c.Get(ctx, PostListKey(map[string]int{"limit": 10}), &list))

	require.NoError(t, c.InvalidateByTags(ctx, TagPosts))
	assert.ErrorIs(t, c.Get(ctx, PostIDKey("2"), &a), ErrCacheMiss)
	assert.ErrorIs(t, c.Get(ctx, PostListKey(map[string]int{"limit": 10}), &list), ErrCacheMiss)
}

func TestWrapTaggedAddsValueTags(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	slugTags := func(a article) []string { return []string{SlugTag(a.Slug)} }
	_, err := WrapTagged(ctx, c, PostIDKey("1"), Options{Tags: PostTags("1")}, slugTags,
		func(ctx context.Context) (article, error) {
			return article{ID: "1", Slug: "hello"}, nil
		})
	require.NoError(t, err)

	require.NoError(t, c.InvalidateByTag(ctx, SlugTag("hello")))

	var a article
	assert.ErrorIs(t, c.Get(ctx, PostIDKey("1"), &a), ErrCacheMiss)
}

func TestComputeOverlappingInvalidationIsNotStored(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan article)

	go func() {
		v, err := Wrap(ctx, c, PostIDKey("1"), Options{Tags: PostTags("1")}, func(ctx context.Context) (article, error) {
			close(started)
			<-release
			return article{ID: "1", Title: "stale"}, nil
		})
		assert.NoError(t, err)
		done <- v
	}()

	<-started
	require.NoError(t, c.InvalidateByTags(ctx, PostTags("1")...))
	close(release)

	assert.Equal(t, "stale", (<-done).Title)

	var a article
	assert.ErrorIs(t, c.Get(ctx, PostIDKey("1"), &a), ErrCacheMiss)

	fresh, err := Wrap(ctx, c, PostIDKey("1"), Options{Tags: PostTags("1")}, func(ctx context.Context) (article, error) {
		return article{ID: "1", Title: "fresh"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", fresh.Title)
	assert.NoError(t, c.Get(ctx, PostIDKey("1"), &a))
	assert.Equal(t, "fresh", a.Title)
}

func TestConcurrentMissesShareCompute(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Wrap(ctx, c, "answer", Options{}, compute)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Let the goroutines pile up on the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 42, v)
	}
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestSharedComputeSurvivesCallerCancellation(t *testing.T) {
	c, _ := newTestCache(t)

	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(ctx context.Context) (article, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return article{}, err
		}
		return article{ID: "1", Title: "Shared"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		got article
		err error
	}
	first := make(chan result, 1)
	go func() {
		got, err := Wrap(ctx, c, PostIDKey("1"), Options{}, compute)
		first <- result{got, err}
	}()

	<-started
	cancel()
	close(release)

	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, "Shared", res.got.Title)

	// The result was stored for the next caller.
	got, err := Wrap(context.Background(), c, PostIDKey("1"), Options{}, func(ctx context.Context) (article, error) {
		return article{}, errors.New("should hit")
	})
	require.NoError(t, err)
	assert.Equal(t, "Shared", got.Title)
}

func TestTagIndexOutlivesItsEntries(t *testing.T) {
	c, store := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", 1, Options{TTL: time.Second, Tags: []string{"t"}}))
	require.NoError(t, c.Set(ctx, "long", 2, Options{TTL: time.Hour, Tags: []string{"t"}}))
	require.NoError(t, c.Set(ctx, "short2", 3, Options{TTL: time.Second, Tags: []string{"t"}}))

	ttl, err := store.TTL(ctx, tagPrefix+"t")
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}

type failingStore struct {
	*memory.Store
	err error
}

func (s *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, s.err
}

func TestBackendErrorsAreMisses(t *testing.T) {
	store := &failingStore{Store: memory.New(0), err: kv.ErrBackendUnavailable}
	c := New(store, time.Minute, zaptest.NewLogger(t).Sugar(), nil)
	defer c.Close()

	var calls int
	for i := 0; i < 2; i++ {
		v, err := Wrap(context.Background(), c, "k", Options{}, func(ctx context.Context) (string, error) {
			calls++
			return "v", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	}
	assert.Equal(t, 2, calls)
}

func TestUndecodableEntryIsDropped(t *testing.T) {
	c, store := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "bad", []byte("{not json")))

	var a article
	assert.ErrorIs(t, c.Get(ctx, "bad", &a), ErrCacheMiss)

	n, err := store.Exists(ctx, "bad")
	require.NoError(t, err)
	assert.Zero(t, n)
}
