// Package criteria holds the user-chosen filter, sort and search state for discovery.
package criteria

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/oggyb/swap-market/internal/domain"
)

// All is the sentinel that disables the category and condition filters.
const All = "all"

// DefaultRadiusMiles is used when no positive radius is supplied.
const DefaultRadiusMiles = 25.0

type SortKey string

const (
	SortNewest   SortKey = "newest"
	SortOldest   SortKey = "oldest"
	SortTitle    SortKey = "title"
	SortDistance SortKey = "distance"
	SortViews    SortKey = "views"
	SortLikes    SortKey = "likes"
)

func (k SortKey) valid() bool {
	switch k {
	case SortNewest, SortOldest, SortTitle, SortDistance, SortViews, SortLikes:
		return true
	}
	return false
}

// SwapFilter selects listings by their derived conversation flag.
type SwapFilter string

const (
	SwapAll       SwapFilter = "all"
	SwapUnswapped SwapFilter = "unswapped"
	SwapSwapped   SwapFilter = "swapped"
)

// PriceRange is inclusive on both ends.
type PriceRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// Criteria is the full discovery state of one session.
type Criteria struct {
	Category     string              `json:"category"`
	Condition    string              `json:"condition"`
	SearchTerm   string              `json:"search_term"`
	Price        *PriceRange         `json:"price,omitempty"`
	MinRating    float64             `json:"min_rating"`
	RadiusMiles  float64             `json:"radius_miles"`
	Sort         SortKey             `json:"sort"`
	Swap         SwapFilter          `json:"swap"`
	LocationText string              `json:"location_text,omitempty"`
	Location     *domain.Coordinates `json:"location,omitempty"`
}

// Default returns criteria that match every active listing, newest first.
func Default(radius float64) Criteria {
	if radius <= 0 {
		radius = DefaultRadiusMiles
	}
	return Criteria{
		Category:    All,
		Condition:   All,
		RadiusMiles: radius,
		Sort:        SortNewest,
		Swap:        SwapAll,
	}
}

// Normalize corrects malformed values instead of rejecting them:
//   - empty category/condition become All
//   - negative prices clamp to 0; min > max collapses to [max, max]
//   - rating clamps to [0, 5]; non-positive radius falls back to the default
//   - unknown sort or swap keys fall back to newest / all
func (c Criteria) Normalize() Criteria {
	c.Category = sentinel(c.Category)
	c.Condition = sentinel(c.Condition)
	c.SearchTerm = strings.TrimSpace(c.SearchTerm)

	if c.Price != nil {
		p := *c.Price
		if p.Min.IsNegative() {
			p.Min = decimal.Zero
		}
		if p.Max.IsNegative() {
			p.Max = decimal.Zero
		}
		if p.Min.GreaterThan(p.Max) {
			p.Min = p.Max
		}
		c.Price = &p
	}

	switch {
	case c.MinRating < 0:
		c.MinRating = 0
	case c.MinRating > 5:
		c.MinRating = 5
	}
	if c.RadiusMiles <= 0 {
		c.RadiusMiles = DefaultRadiusMiles
	}
	if !c.Sort.valid() {
		c.Sort = SortNewest
	}
	switch c.Swap {
	case SwapAll, SwapUnswapped, SwapSwapped:
	default:
		c.Swap = SwapAll
	}
	return c
}

func sentinel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, All) {
		return All
	}
	return v
}
