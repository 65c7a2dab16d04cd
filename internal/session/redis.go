package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "wiremeet:session:"

// RedisStore keeps entries in redis with a TTL matching the credential expiry,
// so stale credentials disappear on their own.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

// NewRedisStore wraps client. An empty keyPrefix uses "wiremeet:session:".
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, now: time.Now}
}

func (s *RedisStore) key(room string) string { return s.keyPrefix + room }

// Load fetches and decodes the entry for room, mapping a missing key to ErrNoEntry.
func (s *RedisStore) Load(ctx context.Context, room string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.key(room)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoEntry
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &e, nil
}

// Save stores e until its credential expires. Entries that are already
// expired, or whose expiry cannot be decoded, are not stored.
func (s *RedisStore) Save(ctx context.Context, e *Entry) error {
	exp, err := e.ExpiresAt()
	if err != nil {
		return err
	}
	ttl := exp.Sub(s.now())
	if ttl <= 0 {
		return s.Clear(ctx, e.RoomName)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(e.RoomName), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Clear deletes the key for room.
func (s *RedisStore) Clear(ctx context.Context, room string) error {
	if err := s.client.Del(ctx, s.key(room)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
