package criteria

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/oggyb/swap-market/internal/domain"
)

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Category      *string             `json:"category,omitempty"`
	Condition     *string             `json:"condition,omitempty"`
	SearchTerm    *string             `json:"search_term,omitempty"`
	Price         *PriceRange         `json:"price,omitempty"`
	ClearPrice    bool                `json:"clear_price,omitempty"`
	MinRating     *float64            `json:"min_rating,omitempty"`
	RadiusMiles   *float64            `json:"radius_miles,omitempty"`
	Sort          *SortKey            `json:"sort,omitempty"`
	Swap          *SwapFilter         `json:"swap,omitempty"`
	LocationText  *string             `json:"location_text,omitempty"`
	Location      *domain.Coordinates `json:"location,omitempty"`
	ClearLocation bool                `json:"clear_location,omitempty"`
}

// Store is the mutable criteria of a single session. It does no I/O;
// persistence happens through Marshal and Restore at session boundaries.
type Store struct {
	mu      sync.RWMutex
	current Criteria
	radius  float64
}

func NewStore(defaultRadius float64) *Store {
	return &Store{current: Default(defaultRadius), radius: defaultRadius}
}

// Snapshot returns a normalized copy safe to hand to the pipeline.
func (s *Store) Snapshot() Criteria {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.current
	if c.Price != nil {
		p := *c.Price
		c.Price = &p
	}
	if c.Location != nil {
		l := *c.Location
		c.Location = &l
	}
	return c
}

// Apply merges p into the current criteria and returns the result.
func (s *Store) Apply(p Patch) Criteria {
	s.mu.Lock()
	c := s.current
	if p.Category != nil {
		c.Category = *p.Category
	}
	if p.Condition != nil {
		c.Condition = *p.Condition
	}
	if p.SearchTerm != nil {
		c.SearchTerm = *p.SearchTerm
	}
	if p.ClearPrice {
		c.Price = nil
	}
	if p.Price != nil {
		pr := *p.Price
		c.Price = &pr
	}
	if p.MinRating != nil {
		c.MinRating = *p.MinRating
	}
	if p.RadiusMiles != nil {
		c.RadiusMiles = *p.RadiusMiles
	}
	if p.Sort != nil {
		c.Sort = *p.Sort
	}
	if p.Swap != nil {
		c.Swap = *p.Swap
	}
	if p.ClearLocation {
		c.LocationText = ""
		c.Location = nil
	}
	if p.LocationText != nil && *p.LocationText != c.LocationText {
		c.LocationText = *p.LocationText
		// the text changed, so previously resolved coordinates are stale
		c.Location = nil
	}
	if p.Location != nil {
		l := *p.Location
		c.Location = &l
	}
	s.current = c.Normalize()
	s.mu.Unlock()
	return s.Snapshot()
}

// SetLocation records the resolved reference point for the current location text.
func (s *Store) SetLocation(c *domain.Coordinates) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == nil {
		s.current.Location = nil
		return
	}
	l := *c
	s.current.Location = &l
}

// Reset restores the defaults.
func (s *Store) Reset() {
	s.mu.Lock()
	s.current = Default(s.radius)
	s.mu.Unlock()
}

// Marshal serializes the session state.
func (s *Store) Marshal() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// Restore rebuilds a store from Marshal output. Empty data yields defaults.
func Restore(data []byte, defaultRadius float64) (*Store, error) {
	s := NewStore(defaultRadius)
	if len(data) == 0 {
		return s, nil
	}
	var c Criteria
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode criteria: %w", err)
	}
	s.current = c.Normalize()
	return s, nil
}
