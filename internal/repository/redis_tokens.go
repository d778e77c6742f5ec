package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tendant/bewirtungsbeleg/internal/domain"
)

// deleteByEmailScript removes an email index and all tokens it references in
// one atomic step. ARGV[1] is the token key prefix.
var deleteByEmailScript = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
local removed = 0
for _, hash in ipairs(members) do
	removed = removed + redis.call('DEL', ARGV[1] .. hash)
end
redis.call('DEL', KEYS[1])
return removed
`)

// RedisTokenStore persists email tokens in Redis with native TTLs.
type RedisTokenStore struct {
	client *redis.Client
}

// NewRedisClient creates a Redis client from a redis:// or rediss:// URL and
// verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisTokenStore creates a new Redis-backed token store.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

// Get retrieves a token by hash.
func (s *RedisTokenStore) Get(ctx context.Context, hash string) (*domain.EmailToken, error) {
	data, err := s.client.Get(ctx, tokenKey(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, err
	}
	return decodeToken(data)
}

// Set stores a token with the given TTL. The TTL counts from the write, which
// is never earlier than the token's creation.
func (s *RedisTokenStore) Set(ctx context.Context, token *domain.EmailToken, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("refusing to store token with non-positive ttl %s", ttl)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	return s.client.Set(ctx, tokenKey(token.Hash), data, ttl).Err()
}

// Delete removes a token and reports whether it existed.
func (s *RedisTokenStore) Delete(ctx context.Context, hash string) (bool, error) {
	n, err := s.client.Del(ctx, tokenKey(hash)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Take removes and returns a token using GETDEL.
func (s *RedisTokenStore) Take(ctx context.Context, hash string) (*domain.EmailToken, error) {
	data, err := s.client.GetDel(ctx, tokenKey(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, err
	}
	return decodeToken(data)
}

// SetByEmail adds hash to the index set for email and kind and refreshes the
// index TTL.
func (s *RedisTokenStore) SetByEmail(ctx context.Context, email string, kind domain.TokenKind, hash string, ttl time.Duration) error {
	key := emailIndexKey(email, kind)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, hash)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

// DeleteByEmail removes the index for email and kind and every token in it.
func (s *RedisTokenStore) DeleteByEmail(ctx context.Context, email string, kind domain.TokenKind) (int, error) {
	n, err := deleteByEmailScript.Run(ctx, s.client, []string{emailIndexKey(email, kind)}, tokenKeyPrefix).Int()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Ping checks the Redis connection.
func (s *RedisTokenStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decodeToken(data []byte) (*domain.EmailToken, error) {
	var token domain.EmailToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}
