package stories

import (
	"context"
	"testing"
	"time"

	"kbs-backend/internal/application/preferences"
	"kbs-backend/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func ptr[T any](v T) *T { return &v }

func setupStoriesTest(t *testing.T) (*Service, *fakeClock, *ManualScheduler) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Community{}, &domain.Story{}))

	clock := newFakeClock()
	base := clock.Now()
	require.NoError(t, db.Create(&[]domain.Community{
		{ID: "k1", Name: "Oak Street Gardeners", CircleID: "c1"},
		{ID: "k2", Name: "Quiet Readers", CircleID: "c1"},
		{ID: "k3", Name: "Riverside Makers", CircleID: "c2"},
	}).Error)
	require.NoError(t, db.Create(&[]domain.Story{
		{ID: "s1", CommunityID: "k1", MediaURL: "https://cdn.example/1.jpg", Type: domain.StoryImage, CreatedAt: base.Add(-3 * time.Hour)},
		{ID: "s2", CommunityID: "k1", MediaURL: "https://cdn.example/2.mp4", Type: domain.StoryVideo, CreatedAt: base.Add(-2 * time.Hour),
			CTAText: ptr("Join us"), CTALink: ptr("https://example.org/join")},
		{ID: "s3", CommunityID: "k1", MediaURL: "https://cdn.example/3.jpg", Type: domain.StoryImage, CreatedAt: base.Add(-1 * time.Hour)},
		{ID: "old", CommunityID: "k2", MediaURL: "https://cdn.example/o.jpg", Type: domain.StoryImage, CreatedAt: base.Add(-48 * time.Hour),
			ExpiresAt: ptr(base.Add(-24 * time.Hour))},
	}).Error)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sched := &ManualScheduler{}
	svc := &Service{
		Communities: &GormCommunitySource{DB: db},
		Prefs:       &preferences.RedisStore{Rdb: rdb},
		Clock:       clock,
		Scheduler:   sched,
		IdleTTL:     15 * time.Minute,
	}
	t.Cleanup(func() { svc.CloseAll() })
	return svc, clock, sched
}

func TestTray_FlagsUnseenAndExpired(t *testing.T) {
	svc, _, _ := setupStoriesTest(t)
	ctx := context.Background()
	require.NoError(t, svc.Prefs.SetSeenSet(ctx, "viewer-1", domain.NewSeenSet("s1")))

	tray, err := svc.Tray(ctx, "viewer-1", "c1")
	require.NoError(t, err)
	require.Len(t, tray, 2)

	assert.Equal(t, "k1", tray[0].ID)
	assert.True(t, tray[0].HasStories)
	assert.True(t, tray[0].HasUnseen)
	assert.Len(t, tray[0].Stories, 3)
	assert.Equal(t, "s1", tray[0].Stories[0].ID)

	assert.Equal(t, "k2", tray[1].ID)
	assert.False(t, tray[1].HasStories)
	assert.False(t, tray[1].HasUnseen)
}

func TestTray_AllSeen(t *testing.T) {
	svc, _, _ := setupStoriesTest(t)
	ctx := context.Background()
	require.NoError(t, svc.Prefs.SetSeenSet(ctx, "viewer-1", domain.NewSeenSet("s1", "s2", "s3")))

	tray, err := svc.Tray(ctx, "viewer-1", "c1")
	require.NoError(t, err)
	assert.False(t, tray[0].HasUnseen)
}

func TestOpen_ResumesAtFirstUnseenAndPersists(t *testing.T) {
	svc, _, _ := setupStoriesTest(t)
	ctx := context.Background()
	require.NoError(t, svc.Prefs.SetSeenSet(ctx, "viewer-1", domain.NewSeenSet("s1")))

	view, err := svc.Open(ctx, "viewer-1", "k1")
	require.NoError(t, err)
	assert.NotEmpty(t, view.SessionID)
	assert.Equal(t, "k1", view.CommunityID)
	assert.Equal(t, 1, view.Index)
	assert.Equal(t, "s2", view.Story.ID)
	require.NotNil(t, view.Story.CTAText)
	assert.Equal(t, "Join us", *view.Story.CTAText)
	assert.Equal(t, 1, svc.Active())

	// Seen sets are written in the background.
	assert.Eventually(t, func() bool {
		seen, err := svc.Prefs.SeenSet(ctx, "viewer-1")
		return err == nil && seen.Has("s2")
	}, time.Second, 5*time.Millisecond)
}

func TestOpen_Errors(t *testing.T) {
	svc, _, _ := setupStoriesTest(t)
	ctx := context.Background()

	_, err := svc.Open(ctx, "viewer-1", "missing")
	assert.ErrorIs(t, err, ErrCommunityNotFound)

	_, err = svc.Open(ctx, "viewer-1", "k2")
	assert.ErrorIs(t, err, ErrNoStories)
	assert.Equal(t, 0, svc.Active())
}

func TestDispatch_PlaysThroughAndCloses(t *testing.T) {
	svc, _, _ := setupStoriesTest(t)
	ctx := context.Background()
	view, err := svc.Open(ctx, "viewer-1", "k1")
	require.NoError(t, err)
	id := view.SessionID

	view, err = svc.Dispatch("viewer-1", id, EventNext)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Index)

	view, err = svc.Dispatch("viewer-1", id, EventHoldStart)
	require.NoError(t, err)
	assert.Equal(t, Paused, view.State)

	view, err = svc.Dispatch("viewer-1", id, EventHoldEnd)
	require.NoError(t, err)
	assert.Equal(t, Playing, view.State)

	_, err = svc.Dispatch("viewer-1", id, "swipe")
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = svc.Dispatch("viewer-1", id, EventNext)
	require.NoError(t, err)
	view, err = svc.Dispatch("viewer-1", id, EventNext)
	require.NoError(t, err)
	assert.Equal(t, Closed, view.State)
	assert.Equal(t, 0, svc.Active())

	_, err = svc.Get("viewer-1", id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSession_TimerAdvances(t *testing.T) {
	svc, clock, sched := setupStoriesTest(t)
	view, err := svc.Open(context.Background(), "viewer-1", "k1")
	require.NoError(t, err)

	sched.Fire(clock.Advance(StoryDuration))
	view, err = svc.Get("viewer-1", view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Index)
}

func TestSession_OtherViewerCannotSeeIt(t *testing.T) {
	svc, _, _ := setupStoriesTest(t)
	view, err := svc.Open(context.Background(), "viewer-1", "k1")
	require.NoError(t, err)

	_, err = svc.Get("viewer-2", view.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.Close("viewer-2", view.SessionID), ErrSessionNotFound)
	assert.Equal(t, 1, svc.Active())
}

func TestClose(t *testing.T) {
	svc, _, sched := setupStoriesTest(t)
	view, err := svc.Open(context.Background(), "viewer-1", "k1")
	require.NoError(t, err)

	require.NoError(t, svc.Close("viewer-1", view.SessionID))
	assert.Equal(t, 0, svc.Active())
	assert.Equal(t, 0, sched.Active())
	assert.ErrorIs(t, svc.Close("viewer-1", view.SessionID), ErrSessionNotFound)
}

func TestCloseAll_FlushesSeenSets(t *testing.T) {
	svc, _, _ := setupStoriesTest(t)
	ctx := context.Background()
	view, err := svc.Open(ctx, "viewer-1", "k1")
	require.NoError(t, err)
	_, err = svc.Dispatch("viewer-1", view.SessionID, EventNext)
	require.NoError(t, err)
	_, err = svc.Open(ctx, "viewer-2", "k1")
	require.NoError(t, err)

	assert.Equal(t, 2, svc.CloseAll())
	assert.Equal(t, 0, svc.Active())
	// Closing waits for the writer, so the store is current without polling.
	seen, err := svc.Prefs.SeenSet(ctx, "viewer-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, seen.IDs())
	seen, err = svc.Prefs.SeenSet(ctx, "viewer-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, seen.IDs())
	assert.Equal(t, 0, svc.CloseAll())
}

func TestReap_ClosesIdleSessions(t *testing.T) {
	svc, clock, sched := setupStoriesTest(t)
	ctx := context.Background()
	idle, err := svc.Open(ctx, "viewer-1", "k1")
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	busy, err := svc.Open(ctx, "viewer-2", "k1")
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)
	assert.Equal(t, 1, svc.Reap(clock.Now()))
	assert.Equal(t, 1, svc.Active())
	assert.Equal(t, 1, sched.Active())

	_, err = svc.Get("viewer-1", idle.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.Get("viewer-2", busy.SessionID)
	assert.NoError(t, err)
}

func TestRunReaper_StopsWithContext(t *testing.T) {
	svc := &Service{Communities: NoCommunities{}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunReaper(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestBuildTray_Expiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	communities := []domain.Community{{
		ID: "k1",
		Stories: []domain.Story{
			{ID: "a", ExpiresAt: ptr(now)},
			{ID: "b", ExpiresAt: ptr(now.Add(time.Second))},
		},
	}}
	tray := BuildTray(communities, domain.NewSeenSet("b"), now)
	require.Len(t, tray, 1)
	require.Len(t, tray[0].Stories, 1)
	assert.Equal(t, "b", tray[0].Stories[0].ID)
	assert.True(t, tray[0].HasStories)
	assert.False(t, tray[0].HasUnseen)
}

func TestNoCommunities(t *testing.T) {
	ctx := context.Background()
	list, err := NoCommunities{}.Communities(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = NoCommunities{}.Community(ctx, "k1")
	assert.ErrorIs(t, err, ErrCommunityNotFound)
}

func TestTickerScheduler_CancelStopsTicks(t *testing.T) {
	ticks := make(chan time.Time, 16)
	cancel := TickerScheduler{Interval: time.Millisecond}.Schedule(func(now time.Time) {
		select {
		case ticks <- now:
		default:
		}
	})
	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatal("no tick delivered")
	}
	cancel()
	cancel()
}

func TestLive_DropsUnsafeCallToAction(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	in := []domain.Story{
		{ID: "a", CTAText: ptr("Open"), CTALink: ptr("javascript:alert(1)")},
		{ID: "b", CTAText: ptr("Join"), CTALink: ptr("https://example.org/join")},
	}
	out := Live(in, now)
	require.Len(t, out, 2)
	assert.Nil(t, out[0].CTAText)
	assert.Nil(t, out[0].CTALink)
	assert.Equal(t, "Join", *out[1].CTAText)
	assert.NotNil(t, in[0].CTALink)
}
