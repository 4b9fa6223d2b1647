package domain

import (
	"fmt"
	"time"
)

// ConversationStatus is the lifecycle state of a matched pairing.
type ConversationStatus string

const (
	ConversationMatched   ConversationStatus = "matched"
	ConversationCompleted ConversationStatus = "completed"
	ConversationRejected  ConversationStatus = "rejected"
)

// ParseConversationStatus validates a raw status string.
func ParseConversationStatus(s string) (ConversationStatus, error) {
	switch st := ConversationStatus(s); st {
	case ConversationMatched, ConversationCompleted, ConversationRejected:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown conversation status %q", ErrValidation, s)
}

func (s ConversationStatus) Terminal() bool {
	return s == ConversationCompleted || s == ConversationRejected
}

// CanTransitionTo allows matched -> completed and matched -> rejected only.
func (s ConversationStatus) CanTransitionTo(next ConversationStatus) bool {
	return s == ConversationMatched && (next == ConversationCompleted || next == ConversationRejected)
}

// Conversation pairs an interested user with a listing owner.
// User1ID/User2ID are stored normalized so (A,B) and (B,A) are the same pair.
type Conversation struct {
	ID        string
	ListingID string
	ItemTitle string
	User1ID   string
	User2ID   string
	OwnerID   string
	Status    ConversationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizePair orders two user ids.
func NormalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// ConversationKey identifies the (listing, user pair) a conversation belongs to.
func ConversationKey(listingID, a, b string) string {
	u1, u2 := NormalizePair(a, b)
	return listingID + ":" + u1 + ":" + u2
}

// NewConversation builds a matched conversation between the interested user and the owner.
func NewConversation(id string, listing Listing, interestedUserID string, now time.Time) (Conversation, error) {
	if interestedUserID == listing.OwnerID {
		return Conversation{}, ErrSelfInterest
	}
	u1, u2 := NormalizePair(interestedUserID, listing.OwnerID)
	return Conversation{
		ID:        id,
		ListingID: listing.ID,
		ItemTitle: listing.Title,
		User1ID:   u1,
		User2ID:   u2,
		OwnerID:   listing.OwnerID,
		Status:    ConversationMatched,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Key returns the uniqueness key of the conversation.
func (c Conversation) Key() string {
	return ConversationKey(c.ListingID, c.User1ID, c.User2ID)
}

func (c Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.User1ID == userID || c.User2ID == userID)
}

// Counterpart returns the other participant.
func (c Conversation) Counterpart(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// CheckTransition validates that actorID may move the conversation to next.
// Completion may be triggered by either participant, rejection only by the owner.
func (c Conversation) CheckTransition(actorID string, next ConversationStatus) error {
	if !c.HasParticipant(actorID) {
		return fmt.Errorf("%w: %s is not part of conversation %s", ErrForbidden, actorID, c.ID)
	}
	if !c.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, next)
	}
	if next == ConversationRejected && actorID != c.OwnerID {
		return fmt.Errorf("%w: only the item owner can reject", ErrForbidden)
	}
	return nil
}
