package repository_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/swap-market/internal/db"
	"github.com/oggyb/swap-market/internal/domain"
	"github.com/oggyb/swap-market/internal/quota"
	"github.com/oggyb/swap-market/internal/repository"
)

func swapCharge(limit int) quota.Charge {
	return quota.Charge{Action: quota.ActionSwap, Amount: 2, MonthlyCap: limit, Reason: "swap request"}
}

func TestAccountDebitAndLedger(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAccountRepository(setupTestDB(t))
	require.NoError(t, repo.Create(ctx, db.Account{UserID: "u1", CoinBalance: 5}))

	e, err := repo.Debit(ctx, "u1", swapCharge(10))
	require.NoError(t, err)
	assert.Equal(t, int64(3), e.CoinBalance)
	assert.Equal(t, 1, e.MonthlySwapsUsed)
	assert.Equal(t, domain.TierFree, e.Tier)

	ledger, err := repo.Ledger(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, int64(-2), ledger[0].Amount)
	assert.Equal(t, int64(3), ledger[0].BalanceAfter)
}

func TestAccountDebitInsufficientCoins(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAccountRepository(setupTestDB(t))
	require.NoError(t, repo.Create(ctx, db.Account{UserID: "u1", CoinBalance: 1}))

	_, err := repo.Debit(ctx, "u1", swapCharge(10))
	assert.ErrorIs(t, err, domain.ErrInsufficientCoins)

	e, err := repo.Entitlements(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.CoinBalance)
	assert.Equal(t, 0, e.MonthlySwapsUsed)

	ledger, err := repo.Ledger(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, ledger)
}

func TestAccountDebitMonthlyCap(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAccountRepository(setupTestDB(t))
	require.NoError(t, repo.Create(ctx, db.Account{UserID: "u1", CoinBalance: 100, MonthlySwapsUsed: 10}))

	_, err := repo.Debit(ctx, "u1", swapCharge(10))
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)

	// no cap for premium charges
	_, err = repo.Debit(ctx, "u1", swapCharge(0))
	assert.NoError(t, err)
}

func TestAccountDebitUnknownUser(t *testing.T) {
	repo := repository.NewAccountRepository(setupTestDB(t))
	_, err := repo.Debit(context.Background(), "ghost", swapCharge(10))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAccountConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAccountRepository(setupTestDB(t))
	require.NoError(t, repo.Create(ctx, db.Account{UserID: "u1", CoinBalance: 7}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Debit(ctx, "u1", swapCharge(0)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	e, err := repo.Entitlements(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, int64(1), e.CoinBalance)
}

func TestAccountRefundRestoresBalanceAndCounter(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAccountRepository(setupTestDB(t))
	require.NoError(t, repo.Create(ctx, db.Account{UserID: "u1", CoinBalance: 4}))

	_, err := repo.Debit(ctx, "u1", swapCharge(10))
	require.NoError(t, err)
	require.NoError(t, repo.Refund(ctx, "u1", swapCharge(10)))

	e, err := repo.Entitlements(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), e.CoinBalance)
	assert.Equal(t, 0, e.MonthlySwapsUsed)

	ledger, err := repo.Ledger(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, ledger, 2)
}

func TestAccountCreditAndResetMonthly(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAccountRepository(setupTestDB(t))
	require.NoError(t, repo.Create(ctx, db.Account{UserID: "u1", MonthlyListingsUsed: 3, MonthlySwapsUsed: 2}))
	require.NoError(t, repo.Create(ctx, db.Account{UserID: "u2"}))

	e, err := repo.Credit(ctx, "u1", 20, "coin pack")
	require.NoError(t, err)
	assert.Equal(t, int64(20), e.CoinBalance)

	_, err = repo.Credit(ctx, "u1", 0, "nothing")
	assert.ErrorIs(t, err, domain.ErrValidation)

	n, err := repo.ResetMonthly(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	e, err = repo.Entitlements(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, e.MonthlyListingsUsed)
	assert.Zero(t, e.MonthlySwapsUsed)
}
