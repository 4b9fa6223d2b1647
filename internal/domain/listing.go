package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ListingStatus is the lifecycle state of a listing.
type ListingStatus string

const (
	ListingActive    ListingStatus = "active"
	ListingPaused    ListingStatus = "paused"
	ListingCompleted ListingStatus = "completed"
	ListingPending   ListingStatus = "pending"
	ListingRejected  ListingStatus = "rejected"
)

// ParseListingStatus validates a raw status string.
func ParseListingStatus(s string) (ListingStatus, error) {
	st := ListingStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case ListingActive, ListingPaused, ListingCompleted, ListingPending, ListingRejected:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown listing status %q", ErrValidation, s)
}

// Terminal reports whether no further transition is possible.
func (s ListingStatus) Terminal() bool {
	return s == ListingCompleted || s == ListingRejected
}

// CanTransitionTo encodes the one-way listing lifecycle.
// Only active and paused may move back and forth.
func (s ListingStatus) CanTransitionTo(next ListingStatus) bool {
	switch s {
	case ListingPending:
		return next == ListingActive || next == ListingRejected
	case ListingActive:
		return next == ListingPaused || next == ListingCompleted || next == ListingRejected
	case ListingPaused:
		return next == ListingActive || next == ListingCompleted
	}
	return false
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Listing is an item offered for swap.
type Listing struct {
	ID          string
	Title       string
	Description string
	Category    string
	Condition   string
	Price       *decimal.Decimal
	Location    string
	Coordinates *Coordinates
	Images      []string
	WantedItems []string
	OwnerID     string
	Status      ListingStatus
	Views       int64
	Likes       int64
	CreatedAt   time.Time

	// derived from the conversation store, never persisted on the listing row
	activeConversation bool
}

// HasActiveConversation reports the derived conversation flag.
func (l Listing) HasActiveConversation() bool {
	return l.activeConversation
}

// WithActiveConversation returns a copy with the derived flag set.
// Listings in a terminal status never carry the flag.
func (l Listing) WithActiveConversation(active bool) Listing {
	l.activeConversation = active && !l.Status.Terminal()
	return l
}
