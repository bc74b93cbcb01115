package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/folio/folio-backend/internal/metrics"
	"github.com/folio/folio-backend/pkg/kv"
)

// ErrCacheMiss is returned by Get when the key holds no usable entry.
var ErrCacheMiss = errors.New("cache miss")

const (
	epochKey  = "cache:epoch"
	tagPrefix = "tag:"
)

// Options control how a computed value is stored.
type Options struct {
	// TTL of the entry. Zero uses the cache default.
	TTL  time.Duration
	Tags []string
}

// Cache is a JSON read-through cache over a kv.Store with tag-based
// invalidation. Tag membership lives in the store as one set per tag, so
// every process sharing a Redis backend sees the same invalidations.
//
// Writes are guarded by a store-wide epoch counter: an invalidation bumps the
// epoch before it deletes, and a fill that observes a different epoch after
// writing removes its own entry. A compute that overlapped an invalidation
// therefore never leaves a stale value behind.
type Cache struct {
	store      kv.Store
	defaultTTL time.Duration
	group      singleflight.Group

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func New(store kv.Store, defaultTTL time.Duration, logger *zap.SugaredLogger, m *metrics.Metrics) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Cache{
		store:      store,
		defaultTTL: defaultTTL,
		logger:     logger,
		metrics:    m,
	}
}

// Get decodes the entry under key into dest. Backend failures are reported
// as misses.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.logger.Warnw("Cache get error", "key", key, "error", err)
		}
		c.metrics.RecordCacheMiss(ctx, namespaceOf(key))
		return ErrCacheMiss
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warnw("Cache entry undecodable, dropping", "key", key, "error", err)
		_, _ = c.store.Del(ctx, key)
		c.metrics.RecordCacheMiss(ctx, namespaceOf(key))
		return ErrCacheMiss
	}
	c.metrics.RecordCacheHit(ctx, namespaceOf(key))
	return nil
}

// Set stores value under key and registers it with each tag.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, opts Options) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	return c.write(ctx, key, data, opts)
}

func (c *Cache) write(ctx context.Context, key string, data []byte, opts Options) error {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	// Tags are indexed before the value is visible so an invalidation can
	// never miss a live entry.
	for _, tag := range dedupe(opts.Tags) {
		tagKey := tagPrefix + tag
		if _, err := c.store.SAdd(ctx, tagKey, key); err != nil {
			return fmt.Errorf("cache tag error: %w", err)
		}
		current, err := c.store.TTL(ctx, tagKey)
		if err != nil || current < ttl {
			if _, err := c.store.Expire(ctx, tagKey, ttl); err != nil {
				return fmt.Errorf("cache tag expire error: %w", err)
			}
		}
	}

	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

// Delete removes keys directly, without touching tag indexes.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := c.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

func (c *Cache) InvalidateByTag(ctx context.Context, tag string) error {
	return c.InvalidateByTags(ctx, tag)
}

// InvalidateByTags removes every entry carrying any of the given tags.
func (c *Cache) InvalidateByTags(ctx context.Context, tags ...string) error {
	tags = dedupe(tags)
	if len(tags) == 0 {
		return nil
	}

	if _, err := c.store.IncrBy(ctx, epochKey, 1); err != nil {
		return fmt.Errorf("cache epoch error: %w", err)
	}

	var errs []error
	for _, tag := range tags {
		tagKey := tagPrefix + tag
		members, err := c.store.SMembers(ctx, tagKey)
		if err != nil {
			errs = append(errs, fmt.Errorf("cache tag %q: %w", tag, err))
			continue
		}
		if _, err := c.store.Del(ctx, append(members, tagKey)...); err != nil {
			errs = append(errs, fmt.Errorf("cache tag %q: %w", tag, err))
			continue
		}
		c.metrics.RecordInvalidation(ctx, tagFamily(tag), len(members))
		c.logger.Debugw("Cache tag invalidated", "tag", tag, "entries", len(members))
	}
	return errors.Join(errs...)
}

func (c *Cache) epoch(ctx context.Context) (int64, error) {
	data, err := c.store.Get(ctx, epochKey)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(data), 10, 64)
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

func (c *Cache) Close() error {
	return c.store.Close()
}

// Wrap returns the cached value under key, or computes, stores and returns
// it. Concurrent misses for the same key share one compute.
func Wrap[T any](ctx context.Context, c *Cache, key string, opts Options, compute func(ctx context.Context) (T, error)) (T, error) {
	return WrapTagged(ctx, c, key, opts, nil, compute)
}

// WrapTagged is Wrap with extra tags derived from the computed value, for
// entries whose dependencies are only known after loading.
func WrapTagged[T any](ctx context.Context, c *Cache, key string, opts Options, tagsOf func(T) []string, compute func(ctx context.Context) (T, error)) (T, error) {
	var cached T
	if err := c.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	epoch, epochErr := c.epoch(ctx)
	if epochErr != nil {
		c.logger.Warnw("Cache epoch unavailable, computing without storing", "key", key, "error", epochErr)
		return compute(ctx)
	}

	// Keying the flight by epoch means callers arriving after an
	// invalidation never join a compute that started before it.
	flight := key + "@" + strconv.FormatInt(epoch, 10)
	v, err, _ := c.group.Do(flight, func() (interface{}, error) {
		// The flight is shared, so one caller's cancellation must not fail
		// the others.
		fctx := context.WithoutCancel(ctx)
		value, err := compute(fctx)
		if err != nil {
			return value, err
		}
		c.fill(fctx, key, value, epoch, withTags(opts, value, tagsOf))
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

func withTags[T any](opts Options, value T, tagsOf func(T) []string) Options {
	if tagsOf == nil {
		return opts
	}
	tags := make([]string, 0, len(opts.Tags)+2)
	tags = append(tags, opts.Tags...)
	tags = append(tags, tagsOf(value)...)
	return Options{TTL: opts.TTL, Tags: tags}
}

// fill stores a computed value unless an invalidation ran since epoch was
// read. Failures only cost a future miss.
func (c *Cache) fill(ctx context.Context, key string, value interface{}, epoch int64, opts Options) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warnw("Cache marshal error", "key", key, "error", err)
		return
	}
	if err := c.write(ctx, key, data, opts); err != nil {
		c.logger.Warnw("Cache fill failed", "key", key, "error", err)
		return
	}

	after, err := c.epoch(ctx)
	if err != nil || after != epoch {
		if _, delErr := c.store.Del(ctx, key); delErr != nil {
			c.logger.Warnw("Cache stale entry not removed", "key", key, "error", delErr)
		}
	}
}

// namespaceOf keeps metric labels bounded: "post:id:abc" -> "post:id".
func namespaceOf(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 {
		return key
	}
	return parts[0] + ":" + parts[1]
}

// tagFamily strips the entity part of a tag: "post:slug:x" -> "post:slug".
func tagFamily(tag string) string {
	switch {
	case strings.HasPrefix(tag, "post:slug:"):
		return "post:slug"
	case strings.HasPrefix(tag, "revisions:post:"):
		return "revisions:post"
	case strings.HasPrefix(tag, "post:"):
		return "post"
	}
	return tag
}

func dedupe(tags []string) []string {
	if len(tags) < 2 {
		return tags
	}
	seen := make(map[string]struct{}, len(tags))
	out := tags[:0:0]
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
