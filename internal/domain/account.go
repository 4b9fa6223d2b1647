package domain

// Tier is the membership level of an account.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Entitlements is the quota-relevant view of an account.
type Entitlements struct {
	UserID              string
	CoinBalance         int64
	MonthlyListingsUsed int
	MonthlySwapsUsed    int
	Tier                Tier
}

// Premium reports whether monthly counters are bypassed.
func (e Entitlements) Premium() bool {
	return e.Tier == TierPremium
}
