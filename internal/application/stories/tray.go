package stories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kbs-backend/internal/domain"
	"kbs-backend/internal/pkg/validation"

	"gorm.io/gorm"
)

// ErrCommunityNotFound is returned for an unknown community id.
var ErrCommunityNotFound = errors.New("community not found")

// CommunitySource loads communities with their stories ordered oldest first.
type CommunitySource interface {
	Communities(ctx context.Context, circleID string) ([]domain.Community, error)
	Community(ctx context.Context, id string) (*domain.Community, error)
}

// GormCommunitySource reads communities from the hosted Postgres.
type GormCommunitySource struct {
	DB *gorm.DB
}

func (s *GormCommunitySource) Communities(ctx context.Context, circleID string) ([]domain.Community, error) {
	q := s.DB.WithContext(ctx).Preload("Stories", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	})
	if circleID != "" {
		q = q.Where("circle_id = ?", circleID)
	}
	var out []domain.Community
	if err := q.Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	return out, nil
}

func (s *GormCommunitySource) Community(ctx context.Context, id string) (*domain.Community, error) {
	var c domain.Community
	err := s.DB.WithContext(ctx).Preload("Stories", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	}).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCommunityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get community: %w", err)
	}
	return &c, nil
}

// TrayEntry is one avatar in the community hub tray.
type TrayEntry struct {
	domain.Community
	HasStories bool `json:"has_stories"`
	HasUnseen  bool `json:"has_unseen"`
}

// BuildTray drops expired stories and flags which communities still have
// something the viewer has not seen.
func BuildTray(communities []domain.Community, seen domain.SeenSet, now time.Time) []TrayEntry {
	out := make([]TrayEntry, 0, len(communities))
	for _, c := range communities {
		c.Stories = Live(c.Stories, now)
		e := TrayEntry{Community: c, HasStories: len(c.Stories) > 0}
		for _, s := range c.Stories {
			if !seen.Has(s.ID) {
				e.HasUnseen = true
				break
			}
		}
		out = append(out, e)
	}
	return out
}

// Live returns the stories that have not expired. A call to action whose link
// is not an absolute http(s) URL is dropped.
func Live(stories []domain.Story, now time.Time) []domain.Story {
	out := make([]domain.Story, 0, len(stories))
	for _, s := range stories {
		if s.Expired(now) {
			continue
		}
		if s.CTALink != nil && !validation.IsSafeLink(*s.CTALink) {
			s.CTAText, s.CTALink = nil, nil
		}
		out = append(out, s)
	}
	return out
}

// NoCommunities is the source used when no database is configured.
type NoCommunities struct{}

func (NoCommunities) Communities(context.Context, string) ([]domain.Community, error) {
	return []domain.Community{}, nil
}

func (NoCommunities) Community(context.Context, string) (*domain.Community, error) {
	return nil, ErrCommunityNotFound
}
