// Package session keeps track of issued login tokens in Redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a token has no live session.
var ErrNotFound = errors.New("session not found or expired")

// Data is stored for each issued token.
type Data struct {
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisStore records sessions at session:<hash> and indexes them per user
// in the set user-sessions:<user_id>.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func sessionKey(tokenHash string) string {
	return "session:" + tokenHash
}

func userKey(userID int64) string {
	return "user-sessions:" + strconv.FormatInt(userID, 10)
}

// Save records a session that lives until expiresAt.
func (s *RedisStore) Save(ctx context.Context, tokenHash string, data Data, expiresAt time.Time) error {
	if data.CreatedAt.IsZero() {
		data.CreatedAt = s.now().UTC()
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("save session: expiry %s is in the past", expiresAt.Format(time.RFC3339))
	}

	index := userKey(data.UserID)
	current, err := s.client.TTL(ctx, index).Result()
	if err != nil {
		return fmt.Errorf("read session index ttl: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(tokenHash), payload, ttl)
	pipe.SAdd(ctx, index, tokenHash)
	// The index lives as long as its longest session.
	if current < ttl {
		pipe.Expire(ctx, index, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Lookup returns the session for a token hash.
func (s *RedisStore) Lookup(ctx context.Context, tokenHash string) (Data, error) {
	raw, err := s.client.Get(ctx, sessionKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Data{}, ErrNotFound
	}
	if err != nil {
		return Data{}, fmt.Errorf("lookup session: %w", err)
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return Data{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return data, nil
}

// Revoke removes one session.
func (s *RedisStore) Revoke(ctx context.Context, userID int64, tokenHash string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(tokenHash))
	pipe.SRem(ctx, userKey(userID), tokenHash)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAll removes every session of a user and reports how many were live.
func (s *RedisStore) RevokeAll(ctx context.Context, userID int64) (int, error) {
	hashes, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	keys := make([]string, 0, len(hashes))
	for _, h := range hashes {
		keys = append(keys, sessionKey(h))
	}

	pipe := s.client.TxPipeline()
	var removed *redis.IntCmd
	if len(keys) > 0 {
		removed = pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, userKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	if removed == nil {
		return 0, nil
	}
	return int(removed.Val()), nil
}

// Count reports how many of a user's indexed sessions are still live.
func (s *RedisStore) Count(ctx context.Context, userID int64) (int, error) {
	hashes, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(hashes))
	for _, h := range hashes {
		keys = append(keys, sessionKey(h))
	}
	n, err := s.client.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
