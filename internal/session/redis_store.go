package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewRedisStore(client *redisv9.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *RedisStore) Get(ctx context.Context, ownerID int64) (Session, error) {
	raw, err := s.client.Get(ctx, s.key(ownerID)).Result()
	if err == redisv9.Nil {
		return Session{State: Idle}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("redis get session failed: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return Session{}, fmt.Errorf("unmarshal session failed: %w", err)
	}
	return sess, nil
}

func (s *RedisStore) Set(ctx context.Context, ownerID int64, sess Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}
	if err := s.client.Set(ctx, s.key(ownerID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, ownerID int64) error {
	if err := s.client.Del(ctx, s.key(ownerID)).Err(); err != nil {
		return fmt.Errorf("redis delete session failed: %w", err)
	}
	return nil
}

func (s *RedisStore) key(ownerID int64) string {
	return fmt.Sprintf("bot:session:%d", ownerID)
}
