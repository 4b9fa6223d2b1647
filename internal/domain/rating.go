package domain

import (
	"fmt"
	"time"
)

// Rating is one user's score for a counterparty after a swap.
type Rating struct {
	ID             string
	RatedUserID    string
	RaterUserID    string
	ConversationID string
	Score          int
	Comment        string
	ItemTitle      string
	CreatedAt      time.Time
}

// Validate checks the score range and the self-rating rule.
func (r Rating) Validate() error {
	if r.RaterUserID == "" || r.RatedUserID == "" {
		return fmt.Errorf("%w: rater and rated user are required", ErrValidation)
	}
	if r.RaterUserID == r.RatedUserID {
		return fmt.Errorf("%w: users cannot rate themselves", ErrValidation)
	}
	if r.Score < 1 || r.Score > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}
	return nil
}

// RatingSummary is the aggregate over all ratings a user received.
type RatingSummary struct {
	Average float64
	Count   int64
}
