// Package kvtest provides conformance tests for kv.Store implementations
package kvtest

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio/folio-backend/pkg/kv"
)

// StoreFactory creates a fresh Store instance for testing
type StoreFactory func(t *testing.T) kv.Store

type storeTest struct {
	name string
	test func(t *testing.T, store kv.Store)
}

// RunConformanceTests runs all conformance tests against a Store implementation
func RunConformanceTests(t *testing.T, factory StoreFactory) {
	groups := []struct {
		name  string
		tests []storeTest
	}{
		{"StringOperations", []storeTest{
			{"SetGet", testSetGet},
			{"GetNonExistent", testGetNonExistent},
			{"SetOverwritesSet", testSetOverwritesSet},
		}},
		{"KeyOperations", []storeTest{
			{"Del", testDel},
			{"Exists", testExists},
		}},
		{"TTLOperations", []storeTest{
			{"SetWithTTL", testSetWithTTL},
			{"TTLStates", testTTLStates},
			{"ExpireMissing", testExpireMissing},
		}},
		{"CounterOperations", []storeTest{
			{"IncrBy", testIncrBy},
		}},
		{"SetOperations", []storeTest{
			{"AddMembersRemove", testSetMembers},
			{"MembersOfMissingKey", testMembersOfMissingKey},
			{"ExpireSet", testExpireSet},
		}},
		{"HealthCheck", []storeTest{
			{"Ping", testPing},
		}},
	}

	for _, g := range groups {
		t.Run(g.name, func(t *testing.T) {
			for _, tt := range g.tests {
				t.Run(tt.name, func(t *testing.T) {
					store := factory(t)
					defer store.Close()
					tt.test(t, store)
				})
			}
		})
	}
}

func testSetGet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	value := []byte("hello world")

	require.NoError(t, store.Set(ctx, "test:string", value))

	got, err := store.Get(ctx, "test:string")
	require.NoError(t, err)
	assert.Equal(t, value, got)
}

func testGetNonExistent(t *testing.T, store kv.Store) {
	_, err := store.Get(context.Background(), "test:nonexistent")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testSetOverwritesSet(t *testing.T, store kv.Store) {
	ctx := context.Background()

	_, err := store.SAdd(ctx, "test:overwrite", "a")
	require.NoError(t, err)
	_, err = store.Del(ctx, "test:overwrite")
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "test:overwrite", []byte("v")))
	got, err := store.Get(ctx, "test:overwrite")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func testDel(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:del1", []byte("x")))
	require.NoError(t, store.Set(ctx, "test:del2", []byte("x")))

	deleted, err := store.Del(ctx, "test:del1", "test:missing")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.Get(ctx, "test:del1")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	_, err = store.Get(ctx, "test:del2")
	assert.NoError(t, err)
}

func testExists(t *testing.T, store kv.Store) {
	ctx := context.Background()

	n, err := store.Exists(ctx, "test:exists")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, store.Set(ctx, "test:exists", []byte("x")))
	_, err = store.SAdd(ctx, "test:exists:set", "m")
	require.NoError(t, err)

	n, err = store.Exists(ctx, "test:exists", "test:exists:set", "test:missing")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func testSetWithTTL(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:ttl", []byte("x"), 50*time.Millisecond))

	_, err := store.Get(ctx, "test:ttl")
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)

	_, err = store.Get(ctx, "test:ttl")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testTTLStates(t *testing.T, store kv.Store) {
	ctx := context.Background()

	_, err := store.TTL(ctx, "test:ttl:missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, store.Set(ctx, "test:ttl:persistent", []byte("x")))
	ttl, err := store.TTL(ctx, "test:ttl:persistent")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)

	require.NoError(t, store.Set(ctx, "test:ttl:bounded", []byte("x"), time.Minute))
	ttl, err = store.TTL(ctx, "test:ttl:bounded")
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)
	assert.LessOrEqual(t, ttl, time.Minute)

	ok, err := store.Expire(ctx, "test:ttl:persistent", 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ttl, err = store.TTL(ctx, "test:ttl:persistent")
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Minute)
}

func testExpireMissing(t *testing.T, store kv.Store) {
	ok, err := store.Expire(context.Background(), "test:expire:missing", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testIncrBy(t *testing.T, store kv.Store) {
	ctx := context.Background()

	v, err := store.IncrBy(ctx, "test:counter", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = store.IncrBy(ctx, "test:counter", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), v)

	v, err = store.IncrBy(ctx, "test:counter", -2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)

	raw, err := store.Get(ctx, "test:counter")
	require.NoError(t, err)
	assert.Equal(t, "4", string(raw))
}

func testSetMembers(t *testing.T, store kv.Store) {
	ctx := context.Background()

	added, err := store.SAdd(ctx, "test:set", "a", "b", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), added)

	added, err = store.SAdd(ctx, "test:set", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), added)

	members, err := store.SMembers(ctx, "test:set")
	require.NoError(t, err)
	sort.Strings(members)
	assert.Equal(t, []string{"a", "b", "c"}, members)

	removed, err := store.SRem(ctx, "test:set", "a", "z")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	removed, err = store.SRem(ctx, "test:set", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	// An emptied set no longer exists.
	n, err := store.Exists(ctx, "test:set")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testMembersOfMissingKey(t *testing.T, store kv.Store) {
	members, err := store.SMembers(context.Background(), "test:set:missing")
	require.NoError(t, err)
	assert.NotNil(t, members)
	assert.Empty(t, members)
}

func testExpireSet(t *testing.T, store kv.Store) {
	ctx := context.Background()

	_, err := store.SAdd(ctx, "test:set:ttl", "a")
	require.NoError(t, err)
	ok, err := store.Expire(ctx, "test:set:ttl", 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(120 * time.Millisecond)

	members, err := store.SMembers(ctx, "test:set:ttl")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func testPing(t *testing.T, store kv.Store) {
	assert.NoError(t, store.Ping(context.Background()))
}
