package stories

import (
	"context"
	"errors"
	"sync"
	"time"

	"kbs-backend/internal/application/preferences"
	"kbs-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionNotFound = errors.New("playback session not found")
	ErrUnknownEvent    = errors.New("unknown playback event")
)

// Event is a viewer gesture sent by the client.
type Event string

const (
	EventNext      Event = "next"
	EventPrev      Event = "prev"
	EventHoldStart Event = "hold_start"
	EventHoldEnd   Event = "hold_end"
	EventClose     Event = "close"
)

// Service serves the community tray and keeps one Controller per open viewer.
type Service struct {
	Communities CommunitySource
	Prefs       preferences.Store
	Clock       Clock
	Scheduler   Scheduler
	IdleTTL     time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	id          string
	viewerID    string
	communityID string
	ctrl        *Controller
	touched     time.Time
}

// View is a session's current state.
type View struct {
	SessionID   string `json:"session_id"`
	CommunityID string `json:"community_id"`
	Snapshot
}

// Tray lists the communities of a circle for the viewer.
func (s *Service) Tray(ctx context.Context, viewerID, circleID string) ([]TrayEntry, error) {
	communities, err := s.Communities.Communities(ctx, circleID)
	if err != nil {
		return nil, err
	}
	return BuildTray(communities, s.loadSeen(ctx, viewerID), s.now()), nil
}

// Open starts a playback session over a community's live stories.
func (s *Service) Open(ctx context.Context, viewerID, communityID string) (*View, error) {
	community, err := s.Communities.Community(ctx, communityID)
	if err != nil {
		return nil, err
	}
	live := Live(community.Stories, s.now())
	if len(live) == 0 {
		return nil, ErrNoStories
	}

	sess := &session{
		id:          uuid.New().String(),
		viewerID:    viewerID,
		communityID: communityID,
		touched:     s.now(),
	}
	ctrl, err := Open(live, Options{
		Clock:     s.Clock,
		Scheduler: s.Scheduler,
		Seen:      s.loadSeen(ctx, viewerID),
		SaveSeen: func(ctx context.Context, seen domain.SeenSet) error {
			if s.Prefs == nil {
				return nil
			}
			return s.Prefs.SetSeenSet(ctx, viewerID, seen)
		},
		OnClose: func() { s.drop(sess.id) },
	})
	if err != nil {
		return nil, err
	}
	sess.ctrl = ctrl

	s.mu.Lock()
	if s.sessions == nil {
		s.sessions = make(map[string]*session)
	}
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	log.Info().Str("session_id", sess.id).Str("viewer_id", viewerID).Str("community_id", communityID).Msg("story playback opened")
	return sess.view(), nil
}

// Get returns the session's current state.
func (s *Service) Get(viewerID, sessionID string) (*View, error) {
	sess, err := s.lookup(viewerID, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.view(), nil
}

// Dispatch applies a viewer gesture. A session that closes stays readable for
// the returned view only.
func (s *Service) Dispatch(viewerID, sessionID string, ev Event) (*View, error) {
	sess, err := s.lookup(viewerID, sessionID)
	if err != nil {
		return nil, err
	}
	switch ev {
	case EventNext:
		sess.ctrl.Next()
	case EventPrev:
		sess.ctrl.Prev()
	case EventHoldStart:
		sess.ctrl.HoldStart()
	case EventHoldEnd:
		sess.ctrl.HoldEnd()
	case EventClose:
		sess.ctrl.Close()
	default:
		return nil, ErrUnknownEvent
	}
	return sess.view(), nil
}

// Close ends a session.
func (s *Service) Close(viewerID, sessionID string) error {
	sess, err := s.lookup(viewerID, sessionID)
	if err != nil {
		return err
	}
	sess.ctrl.Close()
	return nil
}

// Reap closes sessions untouched for longer than IdleTTL and returns how many
// it closed.
func (s *Service) Reap(now time.Time) int {
	if s.IdleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	var stale []*session
	for _, sess := range s.sessions {
		if now.Sub(sess.touched) > s.IdleTTL {
			stale = append(stale, sess)
		}
	}
	s.mu.Unlock()
	for _, sess := range stale {
		sess.ctrl.Close()
	}
	return len(stale)
}

// CloseAll ends every open session and waits for their seen sets to be saved.
func (s *Service) CloseAll() int {
	s.mu.Lock()
	open := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()
	for _, sess := range open {
		sess.ctrl.Close()
	}
	return len(open)
}

// RunReaper calls Reap every interval until ctx is done.
func (s *Service) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Reap(now); n > 0 {
				log.Info().Int("closed", n).Msg("idle story sessions reaped")
			}
		}
	}
}

// Active is the number of open sessions.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) lookup(viewerID, sessionID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.viewerID != viewerID {
		return nil, ErrSessionNotFound
	}
	sess.touched = s.now()
	return sess, nil
}

func (s *Service) drop(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	log.Info().Str("session_id", sessionID).Msg("story playback closed")
}

// loadSeen treats an unavailable store as an empty set.
func (s *Service) loadSeen(ctx context.Context, viewerID string) domain.SeenSet {
	if s.Prefs == nil {
		return domain.SeenSet{}
	}
	seen, err := s.Prefs.SeenSet(ctx, viewerID)
	if err != nil {
		log.Warn().Err(err).Str("viewer_id", viewerID).Msg("seen set unavailable")
		return domain.SeenSet{}
	}
	return seen
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (sess *session) view() *View {
	return &View{
		SessionID:   sess.id,
		CommunityID: sess.communityID,
		Snapshot:    sess.ctrl.Snapshot(),
	}
}
