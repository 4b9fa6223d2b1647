// Package matching turns an expression of interest into a deduplicated conversation.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oggyb/swap-market/internal/cache"
	"github.com/oggyb/swap-market/internal/catalog"
	"github.com/oggyb/swap-market/internal/domain"
	"github.com/oggyb/swap-market/internal/events"
	"github.com/oggyb/swap-market/internal/metrics"
	"github.com/oggyb/swap-market/internal/quota"
)

const (
	defaultLockTTL  = 5 * time.Second
	defaultLockWait = 2 * time.Second
	lockRetryEvery  = 25 * time.Millisecond
)

type ListingStore interface {
	Get(ctx context.Context, id string) (domain.Listing, error)
}

type ConversationStore interface {
	FindOpen(ctx context.Context, listingID, a, b string) (domain.Conversation, error)
	Create(ctx context.Context, c domain.Conversation) error
}

// Locker serializes interest on one (listing, pair) key across instances.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Deps are the collaborators of an Engine. Locker, Catalog, Publisher and Metrics are optional.
type Deps struct {
	Listings      ListingStore
	Conversations ConversationStore
	Wallet        quota.Wallet
	Guard         *quota.Guard
	Catalog       *catalog.Catalog
	Locker        Locker
	Publisher     events.Publisher
	Metrics       *metrics.MetricsManager
	Logger        *slog.Logger
}

type Engine struct {
	listings      ListingStore
	conversations ConversationStore
	wallet        quota.Wallet
	guard         *quota.Guard
	catalog       *catalog.Catalog
	locker        Locker
	publisher     events.Publisher
	metrics       *metrics.MetricsManager
	log           *slog.Logger

	now      func() time.Time
	newID    func() string
	lockTTL  time.Duration
	lockWait time.Duration
}

func NewEngine(d Deps) *Engine {
	e := &Engine{
		listings:      d.Listings,
		conversations: d.Conversations,
		wallet:        d.Wallet,
		guard:         d.Guard,
		catalog:       d.Catalog,
		locker:        d.Locker,
		publisher:     d.Publisher,
		metrics:       d.Metrics,
		log:           d.Logger,
		now:           func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID:         uuid.NewString,
		lockTTL:       defaultLockTTL,
		lockWait:      defaultLockWait,
	}
	if e.publisher == nil {
		e.publisher = events.NopPublisher{}
	}
	if e.guard == nil {
		e.guard = quota.NewGuard(quota.DefaultPolicy())
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

// Outcome of ExpressInterest. Created is false when an open conversation was re-used.
type Outcome struct {
	Conversation domain.Conversation
	Created      bool
	Entitlements *domain.Entitlements // set only when coins were debited
}

// ExpressInterest returns the open conversation between userID and the owner of
// listingID, creating and paying for it if none exists.
//
// Behavior:
//   - Interest in one's own listing fails with ErrSelfInterest.
//   - An existing non-rejected conversation for the pair is returned without charging.
//   - The quota guard runs before any mutation; a failing guard returns ErrQuotaExceeded.
//   - The swap cost is debited atomically; losing a spend race returns ErrInsufficientCoins.
//   - If the insert fails after the debit, the coins are refunded. A concurrent insert of
//     the same pair is resolved by refunding and returning the winner's conversation.
//   - On creation the catalog flag is set and conversation.matched is published.
func (e *Engine) ExpressInterest(ctx context.Context, userID, listingID string) (Outcome, error) {
	if userID == "" || listingID == "" {
		return Outcome{}, fmt.Errorf("%w: user and listing are required", domain.ErrValidation)
	}

	listing, err := e.listings.Get(ctx, listingID)
	if err != nil {
		return Outcome{}, err
	}
	if listing.OwnerID == userID {
		e.observe(metrics.OutcomeDenied)
		return Outcome{}, domain.ErrSelfInterest
	}

	key := domain.ConversationKey(listing.ID, userID, listing.OwnerID)
	unlock := e.lock(ctx, key)
	defer unlock()

	if existing, err := e.conversations.FindOpen(ctx, listing.ID, userID, listing.OwnerID); err == nil {
		e.observe(metrics.OutcomeExisting)
		return Outcome{Conversation: existing}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return Outcome{}, err
	}

	if listing.Status != domain.ListingActive {
		e.observe(metrics.OutcomeDenied)
		return Outcome{}, fmt.Errorf("%w: listing %s is %s", domain.ErrListingUnavailable, listing.ID, listing.Status)
	}

	ent, err := e.wallet.Entitlements(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.guard.Check(ent, quota.ActionSwap); err != nil {
		e.observe(metrics.OutcomeDenied)
		e.log.Info("swap denied by quota", "user", userID, "listing", listing.ID, "err", err)
		return Outcome{}, err
	}

	charge := e.guard.ChargeFor(ent, quota.ActionSwap, "swap request: "+listing.Title)
	after, err := e.wallet.Debit(ctx, userID, charge)
	if err != nil {
		e.observe(metrics.OutcomeDenied)
		e.log.Info("swap debit failed", "user", userID, "listing", listing.ID, "err", err)
		return Outcome{}, err
	}
	if e.metrics != nil {
		e.metrics.CoinDebitsTotal.WithLabelValues(string(quota.ActionSwap)).Add(float64(charge.Amount))
	}

	conv, err := domain.NewConversation(e.newID(), listing, userID, e.now())
	if err == nil {
		err = e.conversations.Create(ctx, conv)
	}
	if err != nil {
		e.refund(ctx, userID, charge)
		if errors.Is(err, domain.ErrDuplicate) {
			if existing, findErr := e.conversations.FindOpen(ctx, listing.ID, userID, listing.OwnerID); findErr == nil {
				e.observe(metrics.OutcomeExisting)
				return Outcome{Conversation: existing}, nil
			}
		}
		e.observe(metrics.OutcomeFailed)
		return Outcome{}, fmt.Errorf("create conversation: %w", err)
	}

	if e.catalog != nil {
		e.catalog.MarkActiveConversation(listing.ID)
	}
	e.observe(metrics.OutcomeCreated)
	if err := e.publisher.Publish(ctx, events.SubjectConversationMatched, events.ConversationMatched{
		ConversationID: conv.ID,
		ListingID:      listing.ID,
		OwnerID:        listing.OwnerID,
		InterestedID:   userID,
		At:             conv.CreatedAt,
	}); err != nil {
		e.log.Warn("publish conversation.matched failed", "conversation", conv.ID, "err", err)
	}

	e.log.Info("conversation matched", "conversation", conv.ID, "listing", listing.ID, "user", userID, "balance", after.CoinBalance)
	return Outcome{Conversation: conv, Created: true, Entitlements: &after}, nil
}

// lock takes the per-key lock when a Locker is configured. A lock that stays
// held past lockWait, or a Locker error, falls through to the store's unique
// key, which still rejects a second conversation.
func (e *Engine) lock(ctx context.Context, key string) func() {
	noop := func() {}
	if e.locker == nil {
		return noop
	}

	deadline := time.Now().Add(e.lockWait)
	for {
		release, err := e.locker.Lock(ctx, "interest:"+key, e.lockTTL)
		if err == nil {
			return func() {
				// release even if the request context is already done
				if err := release(context.WithoutCancel(ctx)); err != nil {
					e.log.Warn("lock release failed", "key", key, "err", err)
				}
			}
		}
		if !errors.Is(err, cache.ErrLockHeld) || time.Now().After(deadline) {
			e.log.Warn("proceeding without interest lock", "key", key, "err", err)
			return noop
		}
		select {
		case <-ctx.Done():
			return noop
		case <-time.After(lockRetryEvery):
		}
	}
}

func (e *Engine) refund(ctx context.Context, userID string, c quota.Charge) {
	if err := e.wallet.Refund(context.WithoutCancel(ctx), userID, c); err != nil {
		// the ledger shows the debit without its refund; support reconciles from there
		e.log.Error("refund failed", "user", userID, "amount", c.Amount, "action", c.Action, "err", err)
		return
	}
	if e.metrics != nil {
		e.metrics.CoinRefundsTotal.WithLabelValues(string(c.Action)).Add(float64(c.Amount))
	}
}

func (e *Engine) observe(outcome string) {
	if e.metrics != nil {
		e.metrics.InterestTotal.WithLabelValues(outcome).Inc()
	}
}
