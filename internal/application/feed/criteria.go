package feed

import (
	"math"
	"strconv"
	"strings"

	"kbs-backend/internal/domain"
)

// Chip is a quick filter on listing type.
type Chip string

const (
	ChipAll      Chip = "All"
	ChipForSale  Chip = "For Sale"
	ChipTrade    Chip = "Trade"
	ChipDonation Chip = "Donation"
)

// listingType maps a chip to the listing type it selects. ok is false for "All".
func (c Chip) listingType() (t domain.ListingType, ok bool) {
	switch c {
	case ChipAll, "":
		return "", false
	case ChipForSale:
		return domain.ListingSale, true
	case ChipTrade:
		return domain.ListingTrade, true
	case ChipDonation:
		return domain.ListingDonation, true
	}
	// Unknown labels select nothing rather than everything.
	return domain.ListingType(c), true
}

// SortKey orders the filtered feed.
type SortKey string

const (
	SortNewest    SortKey = "newest"
	SortClosest   SortKey = "closest"
	SortPriceAsc  SortKey = "price_asc"
	SortPriceDesc SortKey = "price_desc"
)

// Criteria is the filter sheet state. Price bounds are raw decimal strings in
// currency units as typed by the user.
type Criteria struct {
	Distance   float64
	PriceMin   string
	PriceMax   string
	Conditions []domain.Condition
	SortBy     SortKey
}

// Query is everything the feed screen filters by.
type Query struct {
	Scope    string
	Chip     Chip
	Search   string
	Criteria Criteria
}

// DefaultCriteria matches the filter sheet on first open.
func DefaultCriteria(distance float64) Criteria {
	return Criteria{Distance: distance, SortBy: SortNewest}
}

// parseBound converts a decimal currency string to minor units. Empty,
// unparsable or non-finite input yields ok=false and the bound is ignored.
func parseBound(raw string) (cents float64, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v * 100, true
}
