package feed

import (
	"context"
	"errors"

	"kbs-backend/internal/application/preferences"
	"kbs-backend/internal/domain"

	"github.com/rs/zerolog/log"
)

// ErrUnknownScope is returned when a requested scope is not a known circle.
var ErrUnknownScope = errors.New("unknown scope")

// Service assembles the home feed: it resolves the viewer's scope, fetches the
// raw listings and runs them through Apply.
type Service struct {
	Source          ListingSource
	Scopes          CircleSource
	Snapshots       SnapshotCache
	Prefs           preferences.Store
	DefaultDistance float64
}

// Result is one rendered feed.
type Result struct {
	Scope    *domain.Circle `json:"scope"`
	Criteria Criteria       `json:"-"`
	Listings []Card         `json:"listings"`
	Total    int            `json:"total"`
	Stale    bool           `json:"stale"`
}

// Circles lists the selectable scopes.
func (s *Service) Circles(ctx context.Context) ([]domain.Circle, error) {
	if s.Scopes == nil {
		return []domain.Circle{}, nil
	}
	return s.Scopes.ListCircles(ctx)
}

// ResolveScope picks the active circle: the requested one, else the viewer's
// stored preference if it still exists, else the first circle. A nil circle
// with a nil error means no scope is selected.
func (s *Service) ResolveScope(ctx context.Context, viewerID, requested string) (*domain.Circle, error) {
	circles, err := s.Circles(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("circle list unavailable, using bare scope id")
		if requested == "" {
			requested, _ = s.preferredScope(ctx, viewerID)
		}
		if requested == "" {
			return nil, nil
		}
		return &domain.Circle{ID: requested}, nil
	}

	if requested != "" {
		if c := findCircle(circles, requested); c != nil {
			return c, nil
		}
		return nil, ErrUnknownScope
	}
	if pref, ok := s.preferredScope(ctx, viewerID); ok {
		if c := findCircle(circles, pref); c != nil {
			return c, nil
		}
	}
	if len(circles) == 0 {
		return nil, nil
	}
	return &circles[0], nil
}

// SelectScope makes scopeID the viewer's preferred circle.
func (s *Service) SelectScope(ctx context.Context, viewerID, scopeID string) (*domain.Circle, error) {
	c, err := s.ResolveScope(ctx, viewerID, scopeID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrUnknownScope
	}
	s.rememberScope(ctx, viewerID, c.ID)
	return c, nil
}

// Feed returns the filtered, ordered listings for the viewer. A zero
// Criteria.Distance is replaced by the scope's default distance.
func (s *Service) Feed(ctx context.Context, viewerID string, q Query) (*Result, error) {
	circle, err := s.ResolveScope(ctx, viewerID, q.Scope)
	if err != nil {
		return nil, err
	}
	scopeID := ""
	if circle != nil {
		scopeID = circle.ID
		if q.Scope != "" {
			s.rememberScope(ctx, viewerID, scopeID)
		}
	}
	q.Scope = scopeID

	if q.Criteria.Distance == 0 {
		q.Criteria.Distance = s.DefaultDistance
		if circle != nil && circle.DefaultDistance != nil {
			q.Criteria.Distance = *circle.DefaultDistance
		}
	}
	if q.Criteria.SortBy == "" {
		q.Criteria.SortBy = SortNewest
	}

	raw, stale := s.fetch(ctx, scopeID)
	cards := Cards(Apply(raw, q))
	return &Result{
		Scope:    circle,
		Criteria: q.Criteria,
		Listings: cards,
		Total:    len(cards),
		Stale:    stale,
	}, nil
}

// fetch never fails: a source error falls back to the last snapshot of the
// scope, or nothing. Without a configured source the feed is simply empty.
func (s *Service) fetch(ctx context.Context, scopeID string) ([]domain.Listing, bool) {
	if s.Source == nil {
		return nil, false
	}
	listings, err := s.Source.FetchListings(ctx, scopeID)
	if err == nil {
		if s.Snapshots != nil {
			s.Snapshots.Put(ctx, scopeID, listings)
		}
		return listings, false
	}

	log.Warn().Err(err).Str("scope", scopeID).Msg("listing fetch failed")
	if s.Snapshots != nil {
		if cached, ok := s.Snapshots.Get(ctx, scopeID); ok {
			return cached, true
		}
	}
	return nil, true
}

func (s *Service) preferredScope(ctx context.Context, viewerID string) (string, bool) {
	if s.Prefs == nil || viewerID == "" {
		return "", false
	}
	scope, ok, err := s.Prefs.PreferredScope(ctx, viewerID)
	if err != nil {
		log.Warn().Err(err).Str("viewer_id", viewerID).Msg("preferred scope unavailable")
		return "", false
	}
	return scope, ok
}

func (s *Service) rememberScope(ctx context.Context, viewerID, scopeID string) {
	if s.Prefs == nil || viewerID == "" {
		return
	}
	if err := s.Prefs.SetPreferredScope(ctx, viewerID, scopeID); err != nil {
		log.Warn().Err(err).Str("viewer_id", viewerID).Str("scope", scopeID).Msg("preferred scope not saved")
	}
}

func findCircle(circles []domain.Circle, id string) *domain.Circle {
	for i := range circles {
		if circles[i].ID == id {
			return &circles[i]
		}
	}
	return nil
}
