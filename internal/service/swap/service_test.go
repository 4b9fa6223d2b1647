package swap_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/oggyb/swap-market/internal/app"
	"github.com/oggyb/swap-market/internal/config"
	"github.com/oggyb/swap-market/internal/criteria"
	"github.com/oggyb/swap-market/internal/domain"
	"github.com/oggyb/swap-market/internal/events"
	"github.com/oggyb/swap-market/internal/repository"
	"github.com/oggyb/swap-market/internal/service/discovery"
	"github.com/oggyb/swap-market/internal/service/swap"
	tu "github.com/oggyb/swap-market/internal/testutil"
)

func setupService(t *testing.T) (*swap.Service, *app.AppContext, *gorm.DB, *events.Recorder) {
	t.Helper()
	gdb := tu.NewDB(t)
	rc, _ := tu.NewRedis(t)
	appCtx := app.New(&config.Config{}, gdb, rc, tu.Logger())
	rec := &events.Recorder{}
	appCtx.Publisher = rec
	return swap.NewSwapService(appCtx), appCtx, gdb, rec
}

func addListing(t *testing.T, gdb *gorm.DB, id, owner, category string, price int64, age time.Duration) {
	t.Helper()
	p := decimal.NewFromInt(price)
	require.NoError(t, repository.NewListingRepository(gdb).Create(context.Background(), domain.Listing{
		ID:        id,
		Title:     id,
		Category:  category,
		Condition: "good",
		Price:     &p,
		OwnerID:   owner,
		Status:    domain.ListingActive,
		CreatedAt: time.Now().UTC().Add(-age).Truncate(time.Millisecond),
	}))
}

func TestExpressInterestCreatesAndCharges(t *testing.T) {
	svc, _, gdb, rec := setupService(t)
	ctx := context.Background()
	tu.SeedAccount(t, gdb, "u1", 10, domain.TierFree)
	addListing(t, gdb, "book", "u2", "Books", 10, 0)

	resp, err := svc.ExpressInterest(ctx, &swap.ExpressInterestRequest{UserID: "u1", ListingID: "book"})
	require.NoError(t, err)
	assert.True(t, resp.Created)
	assert.Equal(t, "matched", resp.Conversation.Status)
	assert.Equal(t, "u2", resp.Conversation.OwnerUserID)
	require.NotNil(t, resp.Entitlements)
	assert.Equal(t, int64(8), resp.Entitlements.CoinBalance)
	assert.Equal(t, 1, resp.Entitlements.MonthlySwapsUsed)

	again, err := svc.ExpressInterest(ctx, &swap.ExpressInterestRequest{UserID: "u1", ListingID: "book"})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, resp.Conversation.ID, again.Conversation.ID)
	assert.Equal(t, int64(8), tu.Balance(t, gdb, "u1"))

	assert.Equal(t, []string{events.SubjectConversationMatched}, rec.Subjects())
}

func TestExpressInterestErrors(t *testing.T) {
	svc, _, gdb, _ := setupService(t)
	ctx := context.Background()
	tu.SeedAccount(t, gdb, "poor", 1, domain.TierFree)
	tu.SeedAccount(t, gdb, "u2", 10, domain.TierFree)
	addListing(t, gdb, "book", "u2", "Books", 10, 0)

	_, err := svc.ExpressInterest(ctx, &swap.ExpressInterestRequest{UserID: "poor", ListingID: "book"})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	assert.Equal(t, int64(1), tu.Balance(t, gdb, "poor"))

	_, err = svc.ExpressInterest(ctx, &swap.ExpressInterestRequest{UserID: "u2", ListingID: "book"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = svc.ExpressInterest(ctx, &swap.ExpressInterestRequest{UserID: "u2", ListingID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = svc.ExpressInterest(ctx, &swap.ExpressInterestRequest{UserID: "u2"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestConversationTransitions(t *testing.T) {
	svc, appCtx, gdb, _ := setupService(t)
	ctx := context.Background()
	tu.SeedAccount(t, gdb, "u1", 10, domain.TierFree)
	tu.SeedAccount(t, gdb, "u3", 10, domain.TierFree)
	addListing(t, gdb, "book", "u2", "Books", 10, 0)
	require.NoError(t, appCtx.Catalog.Refresh(ctx))

	first, err := svc.ExpressInterest(ctx, &swap.ExpressInterestRequest{UserID: "u1", ListingID: "book"})
	require.NoError(t, err)
	second, err := svc.ExpressInterest(ctx, &swap.ExpressInterestRequest{UserID: "u3", ListingID: "book"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Conversation.ID, second.Conversation.ID)

	// only the owner rejects
	_, err = svc.RejectConversation(ctx, &swap.ConversationRequest{UserID: "u1", ConversationID: first.Conversation.ID})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = svc.RejectConversation(ctx, &swap.ConversationRequest{UserID: "u2", ConversationID: first.Conversation.ID})
	require.NoError(t, err)
	l, _ := appCtx.Catalog.Get("book")
	assert.True(t, l.HasActiveConversation(), "u3 still has an open conversation")

	_, err = svc.TransitionConversation(ctx, &swap.TransitionRequest{UserID: "u2", ConversationID: second.Conversation.ID, Status: "rejected"})
	require.NoError(t, err)
	l, _ = appCtx.Catalog.Get("book")
	assert.False(t, l.HasActiveConversation())

	_, err = svc.TransitionConversation(ctx, &swap.TransitionRequest{UserID: "u2", ConversationID: second.Conversation.ID, Status: "matched"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = svc.TransitionConversation(ctx, &swap.TransitionRequest{UserID: "u2", ConversationID: second.Conversation.ID, Status: "archived"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	// a rejected pair may start over and is charged again
	again, err := svc.ExpressInterest(ctx, &swap.ExpressInterestRequest{UserID: "u1", ListingID: "book"})
	require.NoError(t, err)
	assert.True(t, again.Created)
	assert.Equal(t, int64(6), tu.Balance(t, gdb, "u1"))
}

func TestListConversations(t *testing.T) {
	svc, _, gdb, _ := setupService(t)
	ctx := context.Background()
	tu.SeedAccount(t, gdb, "u1", 100, domain.TierPremium)
	for _, id := range []string{"a", "b", "c"} {
		addListing(t, gdb, id, "u2", "Books", 1, 0)
		_, err := svc.ExpressInterest(ctx, &swap.ExpressInterestRequest{UserID: "u1", ListingID: id})
		require.NoError(t, err)
	}

	page, err := svc.ListConversations(ctx, &swap.ListConversationsRequest{UserID: "u1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Conversations, 2)
	require.NotNil(t, page.NextPaginationToken)

	rest, err := svc.ListConversations(ctx, &swap.ListConversationsRequest{UserID: "u1", Limit: 2, PaginationToken: page.NextPaginationToken})
	require.NoError(t, err)
	assert.Len(t, rest.Conversations, 1)
	assert.Nil(t, rest.NextPaginationToken)

	owner, err := svc.ListConversations(ctx, &swap.ListConversationsRequest{UserID: "u2"})
	require.NoError(t, err)
	assert.Len(t, owner.Conversations, 3)

	_, err = svc.ListConversations(ctx, &swap.ListConversationsRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGetEntitlements(t *testing.T) {
	svc, _, gdb, _ := setupService(t)
	ctx := context.Background()
	tu.SeedAccount(t, gdb, "u1", 1, domain.TierFree)

	resp, err := svc.GetEntitlements(ctx, &swap.GetEntitlementsRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Entitlements.CoinBalance)
	assert.Equal(t, "free", resp.Entitlements.Tier)
	assert.True(t, resp.CanCreateListing)
	assert.False(t, resp.CanInitiateSwap)
	assert.Equal(t, int64(1), resp.ListingCost)
	assert.Equal(t, int64(2), resp.SwapCost)

	_, err = svc.GetEntitlements(ctx, &swap.GetEntitlementsRequest{UserID: "ghost"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

// TestBrowseInterestAndCompleteOverGRPC walks one swap through the wire API:
// discover, express interest, complete, then try to move a finished swap.
func TestBrowseInterestAndCompleteOverGRPC(t *testing.T) {
	_, appCtx, gdb, _ := setupService(t)
	ctx := context.Background()
	tu.SeedAccount(t, gdb, "U1", 10, domain.TierFree)
	addListing(t, gdb, "A", "U2", "Books", 10, time.Minute)
	addListing(t, gdb, "B", "U3", "Books", 200, 0)
	conn := tu.Dial(t, swap.NewRegistrar(appCtx), discovery.NewRegistrar(appCtx))

	category := "Books"
	var browse discovery.BrowseResponse
	require.NoError(t, conn.Invoke(ctx, "/"+discovery.ServiceName+"/Browse", &discovery.BrowseRequest{
		SessionID: "U1",
		Patch: &criteria.Patch{
			Category: &category,
			Price:    &criteria.PriceRange{Min: decimal.Zero, Max: decimal.NewFromInt(50)},
		},
	}, &browse))
	require.Len(t, browse.Listings, 1)
	assert.Equal(t, "A", browse.Listings[0].ID)

	var interest swap.ExpressInterestResponse
	require.NoError(t, conn.Invoke(ctx, "/"+swap.ServiceName+"/ExpressInterest",
		&swap.ExpressInterestRequest{UserID: "U1", ListingID: "A"}, &interest))
	assert.True(t, interest.Created)
	assert.Equal(t, "matched", interest.Conversation.Status)
	assert.Equal(t, int64(8), tu.Balance(t, gdb, "U1"))

	// the browse view now carries the conversation flag
	require.NoError(t, conn.Invoke(ctx, "/"+discovery.ServiceName+"/Browse", &discovery.BrowseRequest{SessionID: "U1"}, &browse))
	require.Len(t, browse.Listings, 1)
	assert.True(t, browse.Listings[0].HasActiveConversation)

	convID := interest.Conversation.ID
	var done swap.ConversationResponse
	require.NoError(t, conn.Invoke(ctx, "/"+swap.ServiceName+"/CompleteConversation",
		&swap.ConversationRequest{UserID: "U2", ConversationID: convID}, &done))
	assert.Equal(t, "completed", done.Conversation.Status)

	err := conn.Invoke(ctx, "/"+swap.ServiceName+"/RejectConversation",
		&swap.ConversationRequest{UserID: "U2", ConversationID: convID}, &done)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	err = conn.Invoke(ctx, "/"+swap.ServiceName+"/TransitionConversation",
		&swap.TransitionRequest{UserID: "U2", ConversationID: convID, Status: "matched"}, &done)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}
