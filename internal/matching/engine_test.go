package matching_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/swap-market/internal/catalog"
	"github.com/oggyb/swap-market/internal/db"
	"github.com/oggyb/swap-market/internal/domain"
	"github.com/oggyb/swap-market/internal/events"
	"github.com/oggyb/swap-market/internal/matching"
	"github.com/oggyb/swap-market/internal/metrics"
	"github.com/oggyb/swap-market/internal/quota"
	"github.com/oggyb/swap-market/internal/repository"
	tu "github.com/oggyb/swap-market/internal/testutil"
)

type fixture struct {
	db       *gorm.DB
	listings *repository.ListingRepository
	convs    *repository.ConversationRepository
	accounts *repository.AccountRepository
	catalog  *catalog.Catalog
	rec      *events.Recorder
	metrics  *metrics.MetricsManager
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gdb := tu.NewDB(t)
	f := &fixture{
		db:       gdb,
		listings: repository.NewListingRepository(gdb),
		convs:    repository.NewConversationRepository(gdb),
		accounts: repository.NewAccountRepository(gdb),
		rec:      &events.Recorder{},
		metrics:  metrics.NewMetricsManager("test"),
	}
	f.catalog = catalog.New(f.listings, f.convs, nil, tu.Logger())
	return f
}

func (f *fixture) engine(t *testing.T, convs matching.ConversationStore, locker matching.Locker) *matching.Engine {
	t.Helper()
	if convs == nil {
		convs = f.convs
	}
	return matching.NewEngine(matching.Deps{
		Listings:      f.listings,
		Conversations: convs,
		Wallet:        f.accounts,
		Guard:         quota.NewGuard(quota.DefaultPolicy()),
		Catalog:       f.catalog,
		Locker:        locker,
		Publisher:     f.rec,
		Metrics:       f.metrics,
		Logger:        tu.Logger(),
	})
}

func (f *fixture) listing(t *testing.T, id, owner string, status domain.ListingStatus) domain.Listing {
	t.Helper()
	price := decimal.NewFromInt(10)
	l := domain.Listing{ID: id, Title: "Book " + id, Category: "Books", Price: &price, OwnerID: owner, Status: status, CreatedAt: time.Now().UTC()}
	require.NoError(t, f.listings.Create(context.Background(), l))
	return l
}

func (f *fixture) conversationCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&db.Conversation{}).Count(&n).Error)
	return n
}

type failingCreate struct {
	*repository.ConversationRepository
}

func (failingCreate) Create(context.Context, domain.Conversation) error {
	return errors.New("insert failed")
}

func TestExpressInterestCreatesAndCharges(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	tu.SeedAccount(t, f.db, "u1", 10, domain.TierFree)
	f.listing(t, "a", "u2", domain.ListingActive)
	require.NoError(t, f.catalog.Refresh(ctx))

	out, err := f.engine(t, nil, nil).ExpressInterest(ctx, "u1", "a")
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Equal(t, domain.ConversationMatched, out.Conversation.Status)
	assert.Equal(t, "u2", out.Conversation.OwnerID)
	require.NotNil(t, out.Entitlements)
	assert.Equal(t, int64(8), out.Entitlements.CoinBalance)
	assert.Equal(t, int64(8), tu.Balance(t, f.db, "u1"))

	l, ok := f.catalog.Get("a")
	require.True(t, ok)
	assert.True(t, l.HasActiveConversation())
	assert.Equal(t, []string{events.SubjectConversationMatched}, f.rec.Subjects())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.InterestTotal.WithLabelValues(metrics.OutcomeCreated)))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CoinDebitsTotal.WithLabelValues("swap")))
}

func TestExpressInterestTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	tu.SeedAccount(t, f.db, "u1", 10, domain.TierFree)
	f.listing(t, "a", "u2", domain.ListingActive)
	e := f.engine(t, nil, nil)

	first, err := e.ExpressInterest(ctx, "u1", "a")
	require.NoError(t, err)
	second, err := e.ExpressInterest(ctx, "u1", "a")
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Nil(t, second.Entitlements)
	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)
	assert.Equal(t, int64(1), f.conversationCount(t))
	assert.Equal(t, int64(8), tu.Balance(t, f.db, "u1"))
}

func TestExpressInterestInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	tu.SeedAccount(t, f.db, "u1", 1, domain.TierFree)
	f.listing(t, "a", "u2", domain.ListingActive)

	_, err := f.engine(t, nil, nil).ExpressInterest(ctx, "u1", "a")
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Equal(t, int64(0), f.conversationCount(t))
	assert.Equal(t, int64(1), tu.Balance(t, f.db, "u1"))
	assert.Empty(t, f.rec.Subjects())
}

func TestExpressInterestMonthlyCap(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	require.NoError(t, f.db.Create(&db.Account{UserID: "free", CoinBalance: 100, MonthlySwapsUsed: 10}).Error)
	require.NoError(t, f.db.Create(&db.Account{UserID: "prem", Tier: "premium", CoinBalance: 100, MonthlySwapsUsed: 10}).Error)
	f.listing(t, "a", "owner", domain.ListingActive)
	e := f.engine(t, nil, nil)

	_, err := e.ExpressInterest(ctx, "free", "a")
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)

	out, err := e.ExpressInterest(ctx, "prem", "a")
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Equal(t, int64(98), tu.Balance(t, f.db, "prem"))
}

func TestExpressInterestOwnListing(t *testing.T) {
	f := setup(t)
	tu.SeedAccount(t, f.db, "u2", 10, domain.TierFree)
	f.listing(t, "a", "u2", domain.ListingActive)

	_, err := f.engine(t, nil, nil).ExpressInterest(context.Background(), "u2", "a")
	assert.ErrorIs(t, err, domain.ErrSelfInterest)
	assert.Equal(t, int64(10), tu.Balance(t, f.db, "u2"))
}

func TestExpressInterestInactiveListing(t *testing.T) {
	f := setup(t)
	tu.SeedAccount(t, f.db, "u1", 10, domain.TierFree)
	f.listing(t, "p", "u2", domain.ListingPaused)

	_, err := f.engine(t, nil, nil).ExpressInterest(context.Background(), "u1", "p")
	assert.ErrorIs(t, err, domain.ErrListingUnavailable)
	assert.Equal(t, int64(10), tu.Balance(t, f.db, "u1"))

	_, err = f.engine(t, nil, nil).ExpressInterest(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExpressInterestRefundsWhenInsertFails(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	tu.SeedAccount(t, f.db, "u1", 10, domain.TierFree)
	f.listing(t, "a", "u2", domain.ListingActive)

	_, err := f.engine(t, failingCreate{f.convs}, nil).ExpressInterest(ctx, "u1", "a")
	require.Error(t, err)

	assert.Equal(t, int64(10), tu.Balance(t, f.db, "u1"))
	ent, err := f.accounts.Entitlements(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, ent.MonthlySwapsUsed)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CoinRefundsTotal.WithLabelValues("swap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.InterestTotal.WithLabelValues(metrics.OutcomeFailed)))
}

func TestExpressInterestAfterRejectionCreatesNewConversation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	tu.SeedAccount(t, f.db, "u1", 10, domain.TierFree)
	f.listing(t, "a", "u2", domain.ListingActive)
	e := f.engine(t, nil, nil)

	first, err := e.ExpressInterest(ctx, "u1", "a")
	require.NoError(t, err)
	require.NoError(t, f.convs.UpdateStatus(ctx, first.Conversation.ID, domain.ConversationMatched, domain.ConversationRejected))

	second, err := e.ExpressInterest(ctx, "u1", "a")
	require.NoError(t, err)
	assert.True(t, second.Created)
	assert.NotEqual(t, first.Conversation.ID, second.Conversation.ID)
	assert.Equal(t, int64(6), tu.Balance(t, f.db, "u1"))
}

func TestDifferentUsersGetSeparateConversations(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	tu.SeedAccount(t, f.db, "u1", 10, domain.TierFree)
	tu.SeedAccount(t, f.db, "u3", 10, domain.TierFree)
	f.listing(t, "a", "u2", domain.ListingActive)
	e := f.engine(t, nil, nil)

	a, err := e.ExpressInterest(ctx, "u1", "a")
	require.NoError(t, err)
	b, err := e.ExpressInterest(ctx, "u3", "a")
	require.NoError(t, err)
	assert.NotEqual(t, a.Conversation.ID, b.Conversation.ID)
	assert.Equal(t, int64(2), f.conversationCount(t))
}

func TestConcurrentInterestCreatesOneConversation(t *testing.T) {
	for _, withLock := range []bool{true, false} {
		name := "without lock"
		if withLock {
			name = "with lock"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := setup(t)
			tu.SeedAccount(t, f.db, "u1", 20, domain.TierFree)
			f.listing(t, "a", "u2", domain.ListingActive)

			var locker matching.Locker
			if withLock {
				rc, _ := tu.NewRedis(t)
				locker = rc
			}
			e := f.engine(t, nil, locker)

			var wg sync.WaitGroup
			ids := make([]string, 4)
			errs := make([]error, 4)
			for i := range ids {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					out, err := e.ExpressInterest(ctx, "u1", "a")
					ids[i], errs[i] = out.Conversation.ID, err
				}(i)
			}
			wg.Wait()

			for i := range ids {
				require.NoError(t, errs[i])
				assert.Equal(t, ids[0], ids[i])
			}
			assert.Equal(t, int64(1), f.conversationCount(t))
			assert.Equal(t, int64(18), tu.Balance(t, f.db, "u1"))
		})
	}
}
