package drivers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fieldvoice/fieldvoice/internal/models"
)

const (
	sessionKeyPrefix = "fieldvoice:session:"
	defaultTTL       = 24 * time.Hour
)

// RedisStore implements session.Store on Redis. Sessions are stored as
// JSON under fieldvoice:session:<id> with a TTL that is refreshed on
// every read and write, so Redis itself reclaims sessions nobody
// touches even if the sweep never runs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Put creates or replaces a session and refreshes its TTL.
func (s *RedisStore) Put(ctx context.Context, sess *models.Session) error {
	val, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.ID, err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), val, s.ttl).Err(); err != nil {
		return fmt.Errorf("put session %s: %w", sess.ID, err)
	}
	return nil
}

// Get returns nil if the session is not found (not an error).
// Refreshes the TTL on every read.
func (s *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	key := s.key(id)
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	var sess models.Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}

	// Best effort: an expired TTL refresh just means an earlier sweep.
	_ = s.client.Expire(ctx, key, s.ttl).Err()

	return &sess, nil
}

// Delete removes a session by ID.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// List scans all live sessions, for the expiry sweep.
func (s *RedisStore) List(ctx context.Context) ([]*models.Session, error) {
	var out []*models.Session
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		val, err := s.client.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		var sess models.Session
		if err := json.Unmarshal([]byte(val), &sess); err != nil {
			return nil, fmt.Errorf("list sessions: unmarshal %s: %w", iter.Val(), err)
		}
		out = append(out, &sess)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: scan: %w", err)
	}
	return out, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return sessionKeyPrefix + id
}
