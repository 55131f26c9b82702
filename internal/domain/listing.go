package domain

import (
	"time"

	"gorm.io/datatypes"
)

// ListingType is the listing kind shown by the feed chips.
type ListingType string

const (
	ListingSale     ListingType = "SALE"
	ListingTrade    ListingType = "TRADE"
	ListingDonation ListingType = "DONATION"
)

// Condition is the seller-declared item condition.
type Condition string

const (
	ConditionNew      Condition = "New"
	ConditionLikeNew  Condition = "Like New"
	ConditionUsedGood Condition = "Used - Good"
	ConditionUsedFair Condition = "Used - Fair"
	ConditionForParts Condition = "For Parts"
)

// ListingActive is the only status the feed reads.
const ListingActive = "ACTIVE"

// Listing matches the hosted `listing` table. Distance is computed by the backend
// relative to the viewer and may be absent.
type Listing struct {
	ID          string         `gorm:"column:id;primaryKey" json:"id"`
	SellerID    string         `gorm:"column:seller_id" json:"seller_id"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Description string         `gorm:"column:description" json:"description"`
	Category    string         `gorm:"column:category" json:"category"`
	Condition   Condition      `gorm:"column:condition" json:"condition"`
	PriceCents  int64          `gorm:"column:price_cents;not null;default:0" json:"price_cents"`
	Type        ListingType    `gorm:"column:type;type:varchar(16);not null" json:"type"`
	Status      string         `gorm:"column:status;type:varchar(16);default:'ACTIVE'" json:"status"`
	CircleID    string         `gorm:"column:circle_id;index" json:"circle_id"`
	Distance    *float64       `gorm:"column:distance" json:"distance,omitempty"`
	Images      datatypes.JSON `gorm:"column:images" json:"images,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (Listing) TableName() string {
	return "listing"
}

// Amount is the price used for display, filtering and sorting. Donations and
// trades are always free regardless of the stored price.
func (l Listing) Amount() int64 {
	if l.Type == ListingDonation || l.Type == ListingTrade {
		return 0
	}
	return l.PriceCents
}

// DistanceOrZero treats an absent distance as 0.
func (l Listing) DistanceOrZero() float64 {
	if l.Distance == nil {
		return 0
	}
	return *l.Distance
}
