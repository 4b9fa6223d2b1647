// Package events publishes domain events for downstream consumers
// (notifications, analytics). Delivery is best effort.
package events

import (
	"context"
	"sync"
	"time"
)

const (
	SubjectListingCreated       = "swap.listing.created"
	SubjectListingStatusChanged = "swap.listing.status_changed"
	SubjectConversationMatched  = "swap.conversation.matched"
	SubjectConversationUpdated  = "swap.conversation.status_changed"
	SubjectRatingCreated        = "swap.rating.created"
)

type ListingCreated struct {
	ListingID string    `json:"listing_id"`
	OwnerID   string    `json:"owner_id"`
	Category  string    `json:"category"`
	At        time.Time `json:"at"`
}

type ListingStatusChanged struct {
	ListingID string    `json:"listing_id"`
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
}

type ConversationMatched struct {
	ConversationID string    `json:"conversation_id"`
	ListingID      string    `json:"listing_id"`
	OwnerID        string    `json:"owner_id"`
	InterestedID   string    `json:"interested_id"`
	At             time.Time `json:"at"`
}

type ConversationStatusChanged struct {
	ConversationID string    `json:"conversation_id"`
	ListingID      string    `json:"listing_id"`
	ActorID        string    `json:"actor_id"`
	Status         string    `json:"status"`
	At             time.Time `json:"at"`
}

type RatingCreated struct {
	RatingID    string    `json:"rating_id"`
	RatedUserID string    `json:"rated_user_id"`
	Score       int       `json:"score"`
	At          time.Time `json:"at"`
}

// Publisher sends one event to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, event interface{}) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

// Message is one event captured by a Recorder.
type Message struct {
	Subject string
	Event   interface{}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Publish(_ context.Context, subject string, event interface{}) error {
	r.mu.Lock()
	r.messages = append(r.messages, Message{Subject: subject, Event: event})
	r.mu.Unlock()
	return nil
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Subjects lists recorded subjects in publish order.
func (r *Recorder) Subjects() []string {
	msgs := r.Messages()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Subject
	}
	return out
}
