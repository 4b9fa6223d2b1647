package domain

import "errors"

var (
	// ErrValidation marks malformed input rejected at the boundary.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates that a requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates that the actor may not perform the action.
	ErrForbidden = errors.New("action forbidden")
	// ErrQuotaExceeded means the user lacks coins or reached a monthly cap.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrInsufficientCoins means a debit lost a race against another spend.
	ErrInsufficientCoins = errors.New("insufficient coins")
	// ErrInvalidTransition is returned for any move out of a terminal state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrSelfInterest is returned when a user swipes on their own listing.
	ErrSelfInterest = errors.New("cannot express interest in own listing")
	// ErrRatingNotAllowed is returned when the rating gate is not satisfied.
	ErrRatingNotAllowed = errors.New("rating not allowed")
	// ErrListingUnavailable is returned when interest targets a listing that is not active.
	ErrListingUnavailable = errors.New("listing is not available")
	// ErrDuplicate is returned by stores when a unique key already exists.
	ErrDuplicate = errors.New("duplicate record")
)
