package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oggyb/swap-market/internal/db"
	"github.com/oggyb/swap-market/internal/domain"
	"github.com/oggyb/swap-market/internal/quota"
)

const (
	ledgerDebit  = "debit"
	ledgerRefund = "refund"
	ledgerCredit = "credit"
)

// AccountRepository owns coin balances, monthly counters and the coin ledger.
// It implements quota.Wallet.
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(database *gorm.DB) *AccountRepository {
	return &AccountRepository{db: database}
}

// Create inserts an account row, used by onboarding and seeding.
func (r *AccountRepository) Create(ctx context.Context, a db.Account) error {
	if a.Tier == "" {
		a.Tier = string(domain.TierFree)
	}
	return translate(r.db.WithContext(ctx).Create(&a).Error)
}

// Entitlements returns the quota view of an account.
func (r *AccountRepository) Entitlements(ctx context.Context, userID string) (domain.Entitlements, error) {
	var a db.Account
	if err := r.db.WithContext(ctx).First(&a, "user_id = ?", userID).Error; err != nil {
		return domain.Entitlements{}, translate(err)
	}
	return entitlementsFromRow(a), nil
}

// Debit subtracts coins and bumps the monthly counter in one conditional UPDATE.
//
// Behavior:
//   - The WHERE clause re-checks coin_balance >= amount (and the monthly cap when set),
//     so two concurrent debits can never drive the balance negative.
//   - A ledger row is written in the same transaction.
//   - Zero affected rows is classified as ErrInsufficientCoins or ErrQuotaExceeded.
func (r *AccountRepository) Debit(ctx context.Context, userID string, c quota.Charge) (domain.Entitlements, error) {
	if c.Amount < 0 {
		return domain.Entitlements{}, fmt.Errorf("%w: negative debit", domain.ErrValidation)
	}
	counter := counterColumn(c.Action)

	var out domain.Entitlements
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&db.Account{}).Where("user_id = ? AND coin_balance >= ?", userID, c.Amount)
		if c.MonthlyCap > 0 {
			q = q.Where(counter+" < ?", c.MonthlyCap)
		}
		res := q.Updates(map[string]interface{}{
			"coin_balance": gorm.Expr("coin_balance - ?", c.Amount),
			counter:        gorm.Expr(counter + " + 1"),
		})
		if res.Error != nil {
			return res.Error
		}

		var a db.Account
		if err := tx.First(&a, "user_id = ?", userID).Error; err != nil {
			return translate(err)
		}
		if res.RowsAffected == 0 {
			if a.CoinBalance < c.Amount {
				return fmt.Errorf("%w: balance %d, need %d", domain.ErrInsufficientCoins, a.CoinBalance, c.Amount)
			}
			return fmt.Errorf("%w: monthly %s cap of %d reached", domain.ErrQuotaExceeded, c.Action, c.MonthlyCap)
		}

		out = entitlementsFromRow(a)
		return r.writeLedger(tx, userID, ledgerDebit, c.Action, -c.Amount, a.CoinBalance, c.Reason)
	})
	if err != nil {
		return domain.Entitlements{}, err
	}
	return out, nil
}

// Refund compensates a previous Debit whose follow-up step failed.
func (r *AccountRepository) Refund(ctx context.Context, userID string, c quota.Charge) error {
	counter := counterColumn(c.Action)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.Account{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"coin_balance": gorm.Expr("coin_balance + ?", c.Amount),
				counter:        gorm.Expr("CASE WHEN " + counter + " > 0 THEN " + counter + " - 1 ELSE 0 END"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		var a db.Account
		if err := tx.First(&a, "user_id = ?", userID).Error; err != nil {
			return translate(err)
		}
		return r.writeLedger(tx, userID, ledgerRefund, c.Action, c.Amount, a.CoinBalance, "refund: "+c.Reason)
	})
}

// Credit adds purchased coins. The purchase itself happens elsewhere.
func (r *AccountRepository) Credit(ctx context.Context, userID string, amount int64, reason string) (domain.Entitlements, error) {
	if amount <= 0 {
		return domain.Entitlements{}, fmt.Errorf("%w: credit must be positive", domain.ErrValidation)
	}
	var out domain.Entitlements
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.Account{}).
			Where("user_id = ?", userID).
			Update("coin_balance", gorm.Expr("coin_balance + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		var a db.Account
		if err := tx.First(&a, "user_id = ?", userID).Error; err != nil {
			return translate(err)
		}
		out = entitlementsFromRow(a)
		return r.writeLedger(tx, userID, ledgerCredit, "", amount, a.CoinBalance, reason)
	})
	return out, err
}

// ResetMonthly zeroes the monthly counters of every account.
func (r *AccountRepository) ResetMonthly(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Account{}).
		Where("monthly_listings_used <> 0 OR monthly_swaps_used <> 0").
		Updates(map[string]interface{}{"monthly_listings_used": 0, "monthly_swaps_used": 0})
	return res.RowsAffected, res.Error
}

// Ledger returns the coin history of a user, newest first.
func (r *AccountRepository) Ledger(ctx context.Context, userID string) ([]db.CoinTransaction, error) {
	var rows []db.CoinTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

func (r *AccountRepository) writeLedger(tx *gorm.DB, userID, kind string, action quota.Action, amount, balance int64, reason string) error {
	return tx.Create(&db.CoinTransaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Kind:         kind,
		Action:       string(action),
		Amount:       amount,
		BalanceAfter: balance,
		Reason:       reason,
	}).Error
}

func counterColumn(a quota.Action) string {
	if a == quota.ActionListing {
		return "monthly_listings_used"
	}
	return "monthly_swaps_used"
}

func entitlementsFromRow(a db.Account) domain.Entitlements {
	return domain.Entitlements{
		UserID:              a.UserID,
		CoinBalance:         a.CoinBalance,
		MonthlyListingsUsed: a.MonthlyListingsUsed,
		MonthlySwapsUsed:    a.MonthlySwapsUsed,
		Tier:                domain.Tier(a.Tier),
	}
}
