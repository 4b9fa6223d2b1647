// Package quota decides whether an account may create a listing or start a swap.
package quota

import (
	"context"
	"fmt"

	"github.com/oggyb/swap-market/internal/domain"
)

// Action is a quota-gated operation.
type Action string

const (
	ActionListing Action = "listing"
	ActionSwap    Action = "swap"
)

// Policy holds the free-tier caps and coin prices.
type Policy struct {
	FreeMonthlyListings int
	FreeMonthlySwaps    int
	ListingCost         int64
	SwapCost            int64
}

func DefaultPolicy() Policy {
	return Policy{
		FreeMonthlyListings: 5,
		FreeMonthlySwaps:    10,
		ListingCost:         1,
		SwapCost:            2,
	}
}

// Charge describes one debit against an account.
// MonthlyCap is 0 when the account is not bound by a monthly counter.
type Charge struct {
	Action     Action
	Amount     int64
	MonthlyCap int
	Reason     string
}

// Wallet is the store-side account. Debit must check and subtract atomically
// with respect to concurrent debits on the same account.
type Wallet interface {
	Entitlements(ctx context.Context, userID string) (domain.Entitlements, error)
	Debit(ctx context.Context, userID string, c Charge) (domain.Entitlements, error)
	Refund(ctx context.Context, userID string, c Charge) error
}

// Guard is a stateless predicate over entitlements.
type Guard struct {
	policy Policy
}

func NewGuard(p Policy) *Guard {
	return &Guard{policy: p}
}

func (g *Guard) Policy() Policy { return g.policy }

// CanCreateListing requires both the monthly counter (free tier) and the coin balance to pass.
func (g *Guard) CanCreateListing(e domain.Entitlements) bool {
	return g.Check(e, ActionListing) == nil
}

// CanInitiateSwap requires both the monthly counter (free tier) and the coin balance to pass.
func (g *Guard) CanInitiateSwap(e domain.Entitlements) bool {
	return g.Check(e, ActionSwap) == nil
}

// Check explains why an action is not allowed.
func (g *Guard) Check(e domain.Entitlements, a Action) error {
	used, limit := g.counter(e, a)
	if !e.Premium() && used >= limit {
		return fmt.Errorf("%w: monthly %s limit of %d reached", domain.ErrQuotaExceeded, a, limit)
	}
	if cost := g.Cost(a); e.CoinBalance < cost {
		return fmt.Errorf("%w: %s costs %d coins, balance is %d", domain.ErrQuotaExceeded, a, cost, e.CoinBalance)
	}
	return nil
}

// Cost returns the coin price of an action.
func (g *Guard) Cost(a Action) int64 {
	if a == ActionListing {
		return g.policy.ListingCost
	}
	return g.policy.SwapCost
}

// ChargeFor builds the debit for an action. Premium accounts carry no cap.
func (g *Guard) ChargeFor(e domain.Entitlements, a Action, reason string) Charge {
	c := Charge{Action: a, Amount: g.Cost(a), Reason: reason}
	if !e.Premium() {
		_, c.MonthlyCap = g.counter(e, a)
	}
	return c
}

func (g *Guard) counter(e domain.Entitlements, a Action) (used, limit int) {
	if a == ActionListing {
		return e.MonthlyListingsUsed, g.policy.FreeMonthlyListings
	}
	return e.MonthlySwapsUsed, g.policy.FreeMonthlySwaps
}

// Debit is the pure form of a charge: it either returns the new entitlements
// or fails without touching the input.
func Debit(e domain.Entitlements, c Charge) (domain.Entitlements, error) {
	if c.Amount < 0 {
		return e, fmt.Errorf("%w: negative debit", domain.ErrValidation)
	}
	if e.CoinBalance < c.Amount {
		return e, fmt.Errorf("%w: balance %d, need %d", domain.ErrInsufficientCoins, e.CoinBalance, c.Amount)
	}
	switch c.Action {
	case ActionListing:
		if c.MonthlyCap > 0 && e.MonthlyListingsUsed >= c.MonthlyCap {
			return e, fmt.Errorf("%w: monthly listing cap", domain.ErrQuotaExceeded)
		}
		e.MonthlyListingsUsed++
	case ActionSwap:
		if c.MonthlyCap > 0 && e.MonthlySwapsUsed >= c.MonthlyCap {
			return e, fmt.Errorf("%w: monthly swap cap", domain.ErrQuotaExceeded)
		}
		e.MonthlySwapsUsed++
	}
	e.CoinBalance -= c.Amount
	return e, nil
}
