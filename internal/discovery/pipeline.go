// Package discovery filters and ranks the catalog against a session's criteria.
package discovery

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/oggyb/swap-market/internal/criteria"
	"github.com/oggyb/swap-market/internal/domain"
	"github.com/oggyb/swap-market/internal/geo"
)

// Ratings maps owner ids to their average rating.
// Owners without any rating are absent, which is not the same as 0.
type Ratings map[string]float64

// Result is a listing that survived filtering, with its distance when known.
type Result struct {
	Listing       domain.Listing
	DistanceMiles *float64
}

// FilterAndSort is deterministic and side-effect free; the input slice is not modified.
func FilterAndSort(listings []domain.Listing, c criteria.Criteria, userLocation *domain.Coordinates, ratings Ratings) []Result {
	c = c.Normalize()
	term := strings.ToLower(c.SearchTerm)

	out := make([]Result, 0, len(listings))
	for _, l := range listings {
		if l.Status != domain.ListingActive {
			continue
		}
		if c.Category != criteria.All && l.Category != c.Category {
			continue
		}
		if c.Condition != criteria.All && l.Condition != c.Condition {
			continue
		}
		if !matchesSwap(l, c.Swap) {
			continue
		}
		if !inPriceRange(l, c.Price) {
			continue
		}
		if avg, rated := ratings[l.OwnerID]; rated && c.MinRating > 0 && avg < c.MinRating {
			continue
		}
		if term != "" && !matchesTerm(l, term) {
			continue
		}

		r := Result{Listing: l}
		if userLocation != nil && l.Coordinates != nil {
			d := geo.DistanceMiles(*userLocation, *l.Coordinates)
			if d > c.RadiusMiles {
				continue
			}
			r.DistanceMiles = &d
		}
		out = append(out, r)
	}

	sortResults(out, c.Sort, userLocation != nil)
	return out
}

// Listings strips distances from results.
func Listings(results []Result) []domain.Listing {
	out := make([]domain.Listing, len(results))
	for i, r := range results {
		out[i] = r.Listing
	}
	return out
}

func matchesSwap(l domain.Listing, f criteria.SwapFilter) bool {
	switch f {
	case criteria.SwapUnswapped:
		return !l.HasActiveConversation()
	case criteria.SwapSwapped:
		return l.HasActiveConversation()
	}
	return true
}

// listings without a price are never excluded by the price filter
func inPriceRange(l domain.Listing, p *criteria.PriceRange) bool {
	if p == nil || l.Price == nil {
		return true
	}
	return l.Price.GreaterThanOrEqual(p.Min) && l.Price.LessThanOrEqual(p.Max)
}

func matchesTerm(l domain.Listing, term string) bool {
	if strings.Contains(strings.ToLower(l.Title), term) ||
		strings.Contains(strings.ToLower(l.Description), term) {
		return true
	}
	for _, w := range l.WantedItems {
		if strings.Contains(strings.ToLower(w), term) {
			return true
		}
	}
	return false
}

func sortResults(rs []Result, key criteria.SortKey, haveLocation bool) {
	if key == criteria.SortDistance && !haveLocation {
		key = criteria.SortNewest
	}

	var byKey func(a, b Result) int
	switch key {
	case criteria.SortOldest:
		byKey = func(a, b Result) int { return a.Listing.CreatedAt.Compare(b.Listing.CreatedAt) }
	case criteria.SortTitle:
		byKey = func(a, b Result) int {
			return strings.Compare(strings.ToLower(a.Listing.Title), strings.ToLower(b.Listing.Title))
		}
	case criteria.SortViews:
		byKey = func(a, b Result) int { return cmp.Compare(b.Listing.Views, a.Listing.Views) }
	case criteria.SortLikes:
		byKey = func(a, b Result) int { return cmp.Compare(b.Listing.Likes, a.Listing.Likes) }
	case criteria.SortDistance:
		byKey = func(a, b Result) int { return cmp.Compare(distanceOrInf(a), distanceOrInf(b)) }
	default:
		byKey = func(a, b Result) int { return b.Listing.CreatedAt.Compare(a.Listing.CreatedAt) }
	}
	slices.SortStableFunc(rs, byKey)
}

func distanceOrInf(r Result) float64 {
	if r.DistanceMiles == nil {
		return math.Inf(1)
	}
	return *r.DistanceMiles
}
