package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kbs-backend/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ListingSource fetches the raw listings of a scope. An empty scope means all.
type ListingSource interface {
	FetchListings(ctx context.Context, scopeID string) ([]domain.Listing, error)
}

// CircleSource lists the known scopes.
type CircleSource interface {
	ListCircles(ctx context.Context) ([]domain.Circle, error)
}

// GormSource reads listings and circles from the hosted Postgres.
type GormSource struct {
	DB *gorm.DB
}

func (s *GormSource) FetchListings(ctx context.Context, scopeID string) ([]domain.Listing, error) {
	q := s.DB.WithContext(ctx).Where("status = ?", domain.ListingActive)
	if scopeID != "" {
		q = q.Where("circle_id = ?", scopeID)
	}
	var listings []domain.Listing
	if err := q.Order("created_at DESC").Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("fetch listings: %w", err)
	}
	return listings, nil
}

func (s *GormSource) ListCircles(ctx context.Context) ([]domain.Circle, error) {
	var circles []domain.Circle
	if err := s.DB.WithContext(ctx).Order("id ASC").Find(&circles).Error; err != nil {
		return nil, fmt.Errorf("list circles: %w", err)
	}
	return circles, nil
}

// SnapshotCache remembers the last good fetch of each scope.
type SnapshotCache interface {
	Get(ctx context.Context, scopeID string) ([]domain.Listing, bool)
	Put(ctx context.Context, scopeID string, listings []domain.Listing)
}

const snapshotPrefix = "feed:snapshot:"

// RedisSnapshotCache stores snapshots as JSON with a TTL. Errors count as misses
// and are logged.
type RedisSnapshotCache struct {
	Rdb *redis.Client
	TTL time.Duration
}

func (c *RedisSnapshotCache) Get(ctx context.Context, scopeID string) ([]domain.Listing, bool) {
	b, err := c.Rdb.Get(ctx, snapshotPrefix+scopeID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Str("scope", scopeID).Msg("feed snapshot unavailable")
		return nil, false
	}
	var listings []domain.Listing
	if err := json.Unmarshal(b, &listings); err != nil {
		log.Warn().Err(err).Str("scope", scopeID).Msg("feed snapshot corrupt")
		return nil, false
	}
	return listings, true
}

func (c *RedisSnapshotCache) Put(ctx context.Context, scopeID string, listings []domain.Listing) {
	b, err := json.Marshal(listings)
	if err != nil {
		log.Warn().Err(err).Str("scope", scopeID).Msg("feed snapshot not encoded")
		return
	}
	if err := c.Rdb.Set(ctx, snapshotPrefix+scopeID, b, c.TTL).Err(); err != nil {
		log.Warn().Err(err).Str("scope", scopeID).Msg("feed snapshot not saved")
	}
}
