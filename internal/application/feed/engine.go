package feed

import (
	"cmp"
	"slices"
	"strings"

	"kbs-backend/internal/domain"

	"golang.org/x/text/cases"
)

type predicate func(domain.Listing) bool

// Apply runs the feed pipeline (scope, chip, search, distance, price,
// condition, sort) over listings. The input is never modified; the result is a
// new, possibly empty, slice.
func Apply(listings []domain.Listing, q Query) []domain.Listing {
	out := make([]domain.Listing, 0, len(listings))
	preds := q.predicates()
next:
	for _, l := range listings {
		for _, keep := range preds {
			if !keep(l) {
				continue next
			}
		}
		out = append(out, l)
	}
	sortListings(out, q.Criteria.SortBy)
	return out
}

func (q Query) predicates() []predicate {
	var preds []predicate

	if q.Scope != "" {
		scope := q.Scope
		preds = append(preds, func(l domain.Listing) bool { return l.CircleID == scope })
	}

	if t, ok := q.Chip.listingType(); ok {
		preds = append(preds, func(l domain.Listing) bool { return l.Type == t })
	}

	if s := strings.TrimSpace(q.Search); s != "" {
		fold := cases.Fold()
		needle := fold.String(s)
		preds = append(preds, func(l domain.Listing) bool {
			return strings.Contains(fold.String(l.Title), needle) ||
				strings.Contains(fold.String(l.Description), needle)
		})
	}

	c := q.Criteria
	if c.Distance > 0 {
		limit := c.Distance
		preds = append(preds, func(l domain.Listing) bool { return l.DistanceOrZero() <= limit })
	}
	if lo, ok := parseBound(c.PriceMin); ok {
		preds = append(preds, func(l domain.Listing) bool { return float64(l.Amount()) >= lo })
	}
	if hi, ok := parseBound(c.PriceMax); ok {
		preds = append(preds, func(l domain.Listing) bool { return float64(l.Amount()) <= hi })
	}
	if len(c.Conditions) > 0 {
		allowed := slices.Clone(c.Conditions)
		preds = append(preds, func(l domain.Listing) bool { return slices.Contains(allowed, l.Condition) })
	}
	return preds
}

func sortListings(ls []domain.Listing, key SortKey) {
	switch key {
	case SortClosest:
		slices.SortStableFunc(ls, func(a, b domain.Listing) int {
			return cmp.Compare(a.DistanceOrZero(), b.DistanceOrZero())
		})
	case SortPriceAsc:
		slices.SortStableFunc(ls, func(a, b domain.Listing) int {
			return cmp.Compare(a.Amount(), b.Amount())
		})
	case SortPriceDesc:
		slices.SortStableFunc(ls, func(a, b domain.Listing) int {
			return cmp.Compare(b.Amount(), a.Amount())
		})
	default:
		slices.SortStableFunc(ls, func(a, b domain.Listing) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	}
}
