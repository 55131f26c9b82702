package domain

import (
	"sort"
	"time"
)

// StoryType is the media kind of a story item.
type StoryType string

const (
	StoryImage StoryType = "IMAGE"
	StoryVideo StoryType = "VIDEO"
)

// Story is one full-screen item of a community's story sequence.
type Story struct {
	ID          string     `gorm:"column:id;primaryKey" json:"id"`
	CommunityID string     `gorm:"column:community_id;index" json:"community_id"`
	MediaURL    string     `gorm:"column:media_url;not null" json:"media_url"`
	Title       string     `gorm:"column:title" json:"title"`
	Type        StoryType  `gorm:"column:type;type:varchar(8);default:'IMAGE'" json:"type"`
	CTAText     *string    `gorm:"column:cta_text" json:"cta_text,omitempty"`
	CTALink     *string    `gorm:"column:cta_link" json:"cta_link,omitempty"`
	ExpiresAt   *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at" json:"created_at"`
}

func (Story) TableName() string {
	return "story"
}

// Expired reports whether the story has an expiry at or before now.
func (s Story) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// Community is a hub inside a circle that publishes stories.
type Community struct {
	ID       string  `gorm:"column:id;primaryKey" json:"id"`
	Name     string  `gorm:"column:name;not null" json:"name"`
	ImageURL string  `gorm:"column:image_url" json:"image_url"`
	CircleID string  `gorm:"column:circle_id;index" json:"circle_id"`
	Stories  []Story `gorm:"foreignKey:CommunityID" json:"stories"`
}

func (Community) TableName() string {
	return "community"
}

// SeenSet holds the ids of stories a viewer has already watched.
type SeenSet map[string]struct{}

// NewSeenSet builds a set from ids.
func NewSeenSet(ids ...string) SeenSet {
	s := make(SeenSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s SeenSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id and reports whether the set changed.
func (s SeenSet) Add(id string) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// IDs returns the members sorted, for stable persistence.
func (s SeenSet) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone copies the set.
func (s SeenSet) Clone() SeenSet {
	c := make(SeenSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}
