package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/bewirtungsbeleg/internal/domain"
)

func newRedisStore(t *testing.T) (*RedisTokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewRedisTokenStore(client), mr
}

func TestRedisTokenStore(t *testing.T) {
	store, _ := newRedisStore(t)
	storeContract(t, store)
}

func TestRedisTokenStoreTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, newToken("h", "a@example.com", domain.TokenKindPasswordReset), 30*time.Minute))
	assert.Equal(t, 30*time.Minute, mr.TTL(tokenKey("h")))

	mr.FastForward(31 * time.Minute)
	_, err := store.Get(ctx, "h")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestRedisTokenStoreRejectsNonPositiveTTL(t *testing.T) {
	store, _ := newRedisStore(t)
	err := store.Set(context.Background(), newToken("h", "a@example.com", domain.TokenKindMagicLink), 0)
	assert.Error(t, err)
}

func TestRedisTokenStoreIndexTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetByEmail(ctx, "a@example.com", domain.TokenKindMagicLink, "h", time.Hour))

	key := emailIndexKey("a@example.com", domain.TokenKindMagicLink)
	members, err := mr.Members(key)
	require.NoError(t, err)
	assert.Equal(t, []string{"h"}, members)
	assert.Equal(t, time.Hour, mr.TTL(key))
}

func TestRedisTokenStoreConcurrentTake(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, newToken("h", "a@example.com", domain.TokenKindMagicLink), time.Hour))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Take(ctx, "h"); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}

func TestRedisTokenStorePing(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, store.Ping(context.Background()))

	mr.Close()
	assert.Error(t, store.Ping(context.Background()))
}

func TestNewRedisClientInvalidURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "http://nope")
	assert.Error(t, err)
}
