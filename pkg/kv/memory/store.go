package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/folio/folio-backend/pkg/kv"
)

// Store is an in-memory implementation of the kv.Store interface
type Store struct {
	mu          sync.RWMutex
	values      map[string][]byte
	sets        map[string]map[string]struct{}
	expirations map[string]time.Time

	janitorInterval time.Duration
	janitorStop     chan struct{}
	janitorDone     chan struct{}
	closeOnce       sync.Once
}

// New creates a new in-memory store with optional janitor for TTL cleanup
func New(janitorInterval time.Duration) *Store {
	s := &Store{
		values:          make(map[string][]byte),
		sets:            make(map[string]map[string]struct{}),
		expirations:     make(map[string]time.Time),
		janitorInterval: janitorInterval,
		janitorStop:     make(chan struct{}),
		janitorDone:     make(chan struct{}),
	}

	if janitorInterval > 0 {
		go s.janitor()
	} else {
		close(s.janitorDone)
	}

	return s
}

// janitor runs background expiration cleanup
func (s *Store) janitor() {
	defer close(s.janitorDone)
	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.janitorStop:
			return
		}
	}
}

func (s *Store) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, expiry := range s.expirations {
		if now.After(expiry) {
			s.deleteLocked(key)
		}
	}
}

// live reports whether key exists and has not expired. Expired keys are
// left for the janitor or the next write. Caller holds mu.
func (s *Store) live(key string) bool {
	if expiry, ok := s.expirations[key]; ok && time.Now().After(expiry) {
		return false
	}
	if _, ok := s.values[key]; ok {
		return true
	}
	_, ok := s.sets[key]
	return ok
}

// purgeIfExpired drops key if its TTL has passed. Caller holds the write lock.
func (s *Store) purgeIfExpired(key string) {
	if expiry, ok := s.expirations[key]; ok && time.Now().After(expiry) {
		s.deleteLocked(key)
	}
}

func (s *Store) deleteLocked(key string) {
	delete(s.values, key)
	delete(s.sets, key)
	delete(s.expirations, key)
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(key)
	stored := make([]byte, len(value))
	copy(stored, value)
	s.values[key] = stored

	if len(ttl) > 0 && ttl[0] > 0 {
		s.expirations[key] = time.Now().Add(ttl[0])
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.live(key) {
		return nil, kv.ErrNotFound
	}
	value, ok := s.values[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, key := range keys {
		if s.live(key) {
			deleted++
		}
		s.deleteLocked(key)
	}
	return deleted, nil
}

func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, key := range keys {
		if s.live(key) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeIfExpired(key)
	if !s.live(key) {
		return false, nil
	}
	if ttl <= 0 {
		// Redis deletes a key given a non-positive expiry.
		s.deleteLocked(key)
		return true, nil
	}
	s.expirations[key] = time.Now().Add(ttl)
	return true, nil
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.live(key) {
		return 0, kv.ErrNotFound
	}
	expiry, ok := s.expirations[key]
	if !ok {
		return -1, nil
	}
	return time.Until(expiry), nil
}

func (s *Store) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeIfExpired(key)

	var current int64
	if value, ok := s.values[key]; ok {
		parsed, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return 0, err
		}
		current = parsed
	}

	current += n
	s.values[key] = []byte(strconv.FormatInt(current, 10))
	return current, nil
}

func (s *Store) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeIfExpired(key)
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}

	var added int64
	for _, m := range members {
		if _, exists := set[m]; !exists {
			set[m] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (s *Store) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeIfExpired(key)
	set, ok := s.sets[key]
	if !ok {
		return 0, nil
	}

	var removed int64
	for _, m := range members {
		if _, exists := set[m]; exists {
			delete(set, m)
			removed++
		}
	}
	if len(set) == 0 {
		s.deleteLocked(key)
	}
	return removed, nil
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.live(key) {
		return []string{}, nil
	}
	set := s.sets[key]
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	return members, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close stops the janitor. The data stays readable.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.janitorInterval > 0 {
			close(s.janitorStop)
		}
		<-s.janitorDone
	})
	return nil
}
