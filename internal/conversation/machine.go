// Package conversation drives the matched -> completed | rejected lifecycle.
package conversation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oggyb/swap-market/internal/catalog"
	"github.com/oggyb/swap-market/internal/domain"
	"github.com/oggyb/swap-market/internal/events"
	"github.com/oggyb/swap-market/internal/metrics"
)

type Store interface {
	Get(ctx context.Context, id string) (domain.Conversation, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.ConversationStatus) error
	OpenListingIDs(ctx context.Context, listingIDs ...string) (map[string]bool, error)
}

type Machine struct {
	store     Store
	catalog   *catalog.Catalog
	publisher events.Publisher
	metrics   *metrics.MetricsManager
	log       *slog.Logger
}

// NewMachine wires the state machine. catalog, publisher and m may be nil.
func NewMachine(store Store, cat *catalog.Catalog, publisher events.Publisher, m *metrics.MetricsManager, log *slog.Logger) *Machine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Machine{store: store, catalog: cat, publisher: publisher, metrics: m, log: log}
}

// Complete marks the swap as done. Either participant may call it.
func (m *Machine) Complete(ctx context.Context, id, actorID string) (domain.Conversation, error) {
	return m.Transition(ctx, id, actorID, domain.ConversationCompleted)
}

// Reject declines the swap. Only the listing owner may call it.
func (m *Machine) Reject(ctx context.Context, id, actorID string) (domain.Conversation, error) {
	return m.Transition(ctx, id, actorID, domain.ConversationRejected)
}

// Transition moves a conversation to next on behalf of actorID.
//
// Behavior:
//   - Terminal states never change; attempts fail with ErrInvalidTransition and are logged at warn.
//   - The store update is compare-and-set on the status that was read, so two racing
//     transitions cannot both win.
//   - A rejection recomputes the listing's active-conversation flag in the catalog.
func (m *Machine) Transition(ctx context.Context, id, actorID string, next domain.ConversationStatus) (domain.Conversation, error) {
	conv, err := m.store.Get(ctx, id)
	if err != nil {
		return domain.Conversation{}, err
	}

	if err := conv.CheckTransition(actorID, next); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			m.log.Warn("invalid conversation transition", "conversation", id, "actor", actorID, "from", conv.Status, "to", next)
		}
		return domain.Conversation{}, err
	}

	if err := m.store.UpdateStatus(ctx, id, conv.Status, next); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			m.log.Warn("conversation changed concurrently", "conversation", id, "actor", actorID, "to", next)
		}
		return domain.Conversation{}, err
	}

	updated, err := m.store.Get(ctx, id)
	if err != nil {
		return domain.Conversation{}, err
	}

	if next == domain.ConversationRejected {
		m.syncCatalog(ctx, updated.ListingID)
	}
	if m.metrics != nil {
		m.metrics.TransitionsTotal.WithLabelValues(string(next)).Inc()
	}
	if err := m.publisher.Publish(ctx, events.SubjectConversationUpdated, events.ConversationStatusChanged{
		ConversationID: updated.ID,
		ListingID:      updated.ListingID,
		ActorID:        actorID,
		Status:         string(next),
		At:             updated.UpdatedAt,
	}); err != nil {
		m.log.Warn("publish conversation status failed", "conversation", id, "err", err)
	}

	m.log.Info("conversation transitioned", "conversation", id, "actor", actorID, "status", next)
	return updated, nil
}

// syncCatalog re-derives the flag from the store; another pair may still hold
// an open conversation on the same listing.
func (m *Machine) syncCatalog(ctx context.Context, listingID string) {
	if m.catalog == nil {
		return
	}
	open, err := m.store.OpenListingIDs(ctx, listingID)
	if err != nil {
		m.log.Warn("catalog flag refresh failed", "listing", listingID, "err", err)
		return
	}
	m.catalog.SetActiveConversation(listingID, open[listingID])
}
