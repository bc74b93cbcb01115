package redis

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio/folio-backend/pkg/kv"
	"github.com/folio/folio-backend/pkg/kv/kvtest"
)

func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set, skipping Redis tests")
	}

	factory := func(t *testing.T) kv.Store {
		store, err := New(redisURL)
		require.NoError(t, err)
		require.NoError(t, store.client.FlushDB(context.Background()).Err())
		return store
	}

	kvtest.RunConformanceTests(t, factory)
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
	assert.False(t, IsConnectionError(goredis.Nil))
	assert.False(t, IsConnectionError(context.Canceled))
	assert.True(t, IsConnectionError(errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")))
	assert.False(t, IsConnectionError(errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")))
}

func TestUnreachableServerIsBackendUnavailable(t *testing.T) {
	store, err := New("127.0.0.1:1/0")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(context.Background(), "folio:"+uuid.NewString())
	assert.ErrorIs(t, err, kv.ErrBackendUnavailable)
}
