package feed

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"kbs-backend/internal/application/preferences"
	"kbs-backend/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupFeedTest(t *testing.T) (*Service, *gorm.DB, *redis.Client) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Circle{}, &domain.Listing{}))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	src := &GormSource{DB: db}
	svc := &Service{
		Source:          src,
		Scopes:          src,
		Snapshots:       &RedisSnapshotCache{Rdb: rdb, TTL: time.Minute},
		Prefs:           &preferences.RedisStore{Rdb: rdb},
		DefaultDistance: 25,
	}
	return svc, db, rdb
}

func seedFeed(t *testing.T, db *gorm.DB) {
	require.NoError(t, db.Create(&[]domain.Circle{
		{ID: "c1", Name: "Downtown"},
		{ID: "c2", Name: "Riverside", DefaultDistance: dist(1)},
	}).Error)
	for _, l := range fixtureListings() {
		l.Status = domain.ListingActive
		require.NoError(t, db.Create(&l).Error)
	}
	require.NoError(t, db.Create(&domain.Listing{
		ID: "sold", Title: "Sold chair", Type: domain.ListingSale, Status: "SOLD", CircleID: "c1", CreatedAt: t0,
	}).Error)
}

type failingSource struct{}

func (failingSource) FetchListings(context.Context, string) ([]domain.Listing, error) {
	return nil, errors.New("connection refused")
}

func cardIDs(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}

func TestFeed_DefaultsToFirstCircle(t *testing.T) {
	svc, db, _ := setupFeedTest(t)
	seedFeed(t, db)

	res, err := svc.Feed(context.Background(), "viewer-1", Query{})
	require.NoError(t, err)
	require.NotNil(t, res.Scope)
	assert.Equal(t, "c1", res.Scope.ID)
	// Default distance 25 drops the desk at 30; inactive listings never load.
	assert.Equal(t, []string{"2", "1", "5"}, cardIDs(res.Listings))
	assert.Equal(t, 3, res.Total)
	assert.False(t, res.Stale)
	assert.Equal(t, SortNewest, res.Criteria.SortBy)
	assert.Equal(t, "FREE", res.Listings[0].DisplayPrice)
	assert.Equal(t, "$25.00", res.Listings[1].DisplayPrice)
	assert.Equal(t, "TRADE", res.Listings[2].DisplayPrice)
}

func TestFeed_RequestedScopeIsRemembered(t *testing.T) {
	svc, db, _ := setupFeedTest(t)
	seedFeed(t, db)
	ctx := context.Background()

	res, err := svc.Feed(ctx, "viewer-1", Query{Scope: "c2"})
	require.NoError(t, err)
	assert.Equal(t, "c2", res.Scope.ID)
	// Riverside's own default distance applies.
	assert.Equal(t, 1.0, res.Criteria.Distance)
	assert.Equal(t, []string{"4"}, cardIDs(res.Listings))

	scope, ok, err := svc.Prefs.PreferredScope(ctx, "viewer-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c2", scope)

	res, err = svc.Feed(ctx, "viewer-1", Query{})
	require.NoError(t, err)
	assert.Equal(t, "c2", res.Scope.ID)
}

func TestFeed_UnknownScope(t *testing.T) {
	svc, db, _ := setupFeedTest(t)
	seedFeed(t, db)

	_, err := svc.Feed(context.Background(), "viewer-1", Query{Scope: "nowhere"})
	assert.ErrorIs(t, err, ErrUnknownScope)
}

func TestFeed_StalePreferenceFallsBackToFirstCircle(t *testing.T) {
	svc, db, _ := setupFeedTest(t)
	seedFeed(t, db)
	ctx := context.Background()
	require.NoError(t, svc.Prefs.SetPreferredScope(ctx, "viewer-1", "deleted"))

	c, err := svc.ResolveScope(ctx, "viewer-1", "")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
}

func TestFeed_ExplicitDistanceOverridesDefault(t *testing.T) {
	svc, db, _ := setupFeedTest(t)
	seedFeed(t, db)

	q := Query{Scope: "c1", Criteria: Criteria{Distance: 50, SortBy: SortPriceDesc}}
	res, err := svc.Feed(context.Background(), "viewer-1", q)
	require.NoError(t, err)
	assert.Equal(t, []string{"6", "1", "2", "5"}, cardIDs(res.Listings))
}

func TestFeed_SourceFailureServesSnapshot(t *testing.T) {
	svc, db, _ := setupFeedTest(t)
	seedFeed(t, db)
	ctx := context.Background()

	fresh, err := svc.Feed(ctx, "viewer-1", Query{Scope: "c1"})
	require.NoError(t, err)
	require.False(t, fresh.Stale)

	svc.Source = failingSource{}
	cached, err := svc.Feed(ctx, "viewer-1", Query{Scope: "c1"})
	require.NoError(t, err)
	assert.True(t, cached.Stale)
	assert.Equal(t, cardIDs(fresh.Listings), cardIDs(cached.Listings))
}

func TestFeed_SourceFailureWithoutSnapshotIsEmpty(t *testing.T) {
	svc, db, _ := setupFeedTest(t)
	seedFeed(t, db)
	svc.Source = failingSource{}

	res, err := svc.Feed(context.Background(), "viewer-1", Query{Scope: "c1"})
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.NotNil(t, res.Listings)
	assert.Empty(t, res.Listings)
}

func captureLog(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestFeed_NoBackends(t *testing.T) {
	logs := captureLog(t)
	svc := &Service{Prefs: preferences.NewMemoryStore(), DefaultDistance: 25}

	res, err := svc.Feed(context.Background(), "viewer-1", Query{})
	require.NoError(t, err)
	assert.Nil(t, res.Scope)
	assert.Empty(t, res.Listings)
	// No source configured is not a failure.
	assert.False(t, res.Stale)
	assert.NotContains(t, logs.String(), "listing fetch failed")
}

func TestSelectScope(t *testing.T) {
	svc, db, _ := setupFeedTest(t)
	seedFeed(t, db)
	ctx := context.Background()

	c, err := svc.SelectScope(ctx, "viewer-1", "c2")
	require.NoError(t, err)
	assert.Equal(t, "Riverside", c.Name)

	scope, _, err := svc.Prefs.PreferredScope(ctx, "viewer-1")
	require.NoError(t, err)
	assert.Equal(t, "c2", scope)

	_, err = svc.SelectScope(ctx, "viewer-1", "nope")
	assert.ErrorIs(t, err, ErrUnknownScope)
	scope, _, _ = svc.Prefs.PreferredScope(ctx, "viewer-1")
	assert.Equal(t, "c2", scope)
}

func TestGormSource_OrdersNewestFirst(t *testing.T) {
	svc, db, _ := setupFeedTest(t)
	seedFeed(t, db)

	ls, err := svc.Source.FetchListings(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"6", "2", "4", "3", "1", "5"}, ids(ls))
}

func TestRedisSnapshotCache_MissAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	cache := &RedisSnapshotCache{Rdb: rdb, TTL: time.Minute}
	ctx := context.Background()

	_, ok := cache.Get(ctx, "c1")
	assert.False(t, ok)

	cache.Put(ctx, "c1", fixtureListings()[:2])
	got, ok := cache.Get(ctx, "c1")
	require.True(t, ok)
	assert.Equal(t, []string{"1", "2"}, ids(got))

	mr.FastForward(2 * time.Minute)
	_, ok = cache.Get(ctx, "c1")
	assert.False(t, ok)
}

func TestRedisSnapshotCache_LogsWriteFailure(t *testing.T) {
	logs := captureLog(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	cache := &RedisSnapshotCache{Rdb: rdb, TTL: time.Minute}
	mr.Close()

	require.NotPanics(t, func() { cache.Put(context.Background(), "c1", fixtureListings()) })
	assert.Contains(t, logs.String(), "feed snapshot not saved")

	_, ok := cache.Get(context.Background(), "c1")
	assert.False(t, ok)
	assert.Contains(t, logs.String(), "feed snapshot unavailable")
}
