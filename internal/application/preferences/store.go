package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"kbs-backend/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Key names match the ones the web client kept in local storage. Each viewer
// (device) gets its own suffix.
const (
	PreferredCircleKey = "kbs_preferred_circle"
	SeenStoriesKey     = "seenStories"
)

// Store is per-viewer durable key-value storage for the preferred scope and
// the seen-story set. The seen set is always read and written whole.
type Store interface {
	PreferredScope(ctx context.Context, viewerID string) (scopeID string, ok bool, err error)
	SetPreferredScope(ctx context.Context, viewerID, scopeID string) error
	SeenSet(ctx context.Context, viewerID string) (domain.SeenSet, error)
	SetSeenSet(ctx context.Context, viewerID string, seen domain.SeenSet) error
}

func viewerKey(base, viewerID string) string {
	return base + ":" + viewerID
}

// RedisStore keeps preferences in Redis without expiry.
type RedisStore struct {
	Rdb *redis.Client
}

func (s *RedisStore) PreferredScope(ctx context.Context, viewerID string) (string, bool, error) {
	v, err := s.Rdb.Get(ctx, viewerKey(PreferredCircleKey, viewerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

func (s *RedisStore) SetPreferredScope(ctx context.Context, viewerID, scopeID string) error {
	return s.Rdb.Set(ctx, viewerKey(PreferredCircleKey, viewerID), scopeID, 0).Err()
}

func (s *RedisStore) SeenSet(ctx context.Context, viewerID string) (domain.SeenSet, error) {
	b, err := s.Rdb.Get(ctx, viewerKey(SeenStoriesKey, viewerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SeenSet{}, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return nil, fmt.Errorf("decode seen set: %w", err)
	}
	return domain.NewSeenSet(ids...), nil
}

func (s *RedisStore) SetSeenSet(ctx context.Context, viewerID string, seen domain.SeenSet) error {
	b, err := json.Marshal(seen.IDs())
	if err != nil {
		return err
	}
	return s.Rdb.Set(ctx, viewerKey(SeenStoriesKey, viewerID), b, 0).Err()
}

// MemoryStore is used when no Redis is configured.
type MemoryStore struct {
	mu     sync.Mutex
	scopes map[string]string
	seen   map[string]domain.SeenSet
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scopes: make(map[string]string),
		seen:   make(map[string]domain.SeenSet),
	}
}

func (s *MemoryStore) PreferredScope(_ context.Context, viewerID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.scopes[viewerID]
	return v, ok, nil
}

func (s *MemoryStore) SetPreferredScope(_ context.Context, viewerID, scopeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[viewerID] = scopeID
	return nil
}

func (s *MemoryStore) SeenSet(_ context.Context, viewerID string) (domain.SeenSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.seen[viewerID]; ok {
		return set.Clone(), nil
	}
	return domain.SeenSet{}, nil
}

func (s *MemoryStore) SetSeenSet(_ context.Context, viewerID string, seen domain.SeenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[viewerID] = seen.Clone()
	return nil
}
