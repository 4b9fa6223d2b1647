package rating_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/oggyb/swap-market/internal/app"
	"github.com/oggyb/swap-market/internal/config"
	"github.com/oggyb/swap-market/internal/domain"
	"github.com/oggyb/swap-market/internal/events"
	"github.com/oggyb/swap-market/internal/repository"
	"github.com/oggyb/swap-market/internal/service/rating"
	tu "github.com/oggyb/swap-market/internal/testutil"
)

func setupService(t *testing.T) (*rating.Service, *app.AppContext, *gorm.DB, *events.Recorder) {
	t.Helper()
	gdb := tu.NewDB(t)
	rc, _ := tu.NewRedis(t)
	cfg := &config.Config{}
	cfg.Discovery.RatingCacheTTL = time.Hour
	appCtx := app.New(cfg, gdb, rc, tu.Logger())
	rec := &events.Recorder{}
	appCtx.Publisher = rec
	return rating.NewRatingService(appCtx), appCtx, gdb, rec
}

// seedConversation stores a conversation between interested and owner in the given status.
func seedConversation(t *testing.T, gdb *gorm.DB, id, owner, interested string, st domain.ConversationStatus) {
	t.Helper()
	ctx := context.Background()
	l := domain.Listing{ID: "listing-" + id, Title: "Dune", OwnerID: owner}
	c, err := domain.NewConversation(id, l, interested, time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, err)

	repo := repository.NewConversationRepository(gdb)
	require.NoError(t, repo.Create(ctx, c))
	if st != domain.ConversationMatched {
		require.NoError(t, repo.UpdateStatus(ctx, id, domain.ConversationMatched, st))
	}
}

func TestRateUserAfterCompletedSwap(t *testing.T) {
	svc, _, gdb, rec := setupService(t)
	ctx := context.Background()
	seedConversation(t, gdb, "c1", "owner", "buyer", domain.ConversationCompleted)

	resp, err := svc.RateUser(ctx, &rating.RateUserRequest{UserID: "buyer", ConversationID: "c1", Score: 4, Comment: " smooth "})
	require.NoError(t, err)
	assert.Equal(t, "owner", resp.Rating.RatedUserID)
	assert.Equal(t, "smooth", resp.Rating.Comment)
	assert.Equal(t, "Dune", resp.Rating.ItemTitle)

	_, err = svc.RateUser(ctx, &rating.RateUserRequest{UserID: "owner", ConversationID: "c1", Score: 5})
	require.NoError(t, err)

	sum, err := svc.GetRatingSummary(ctx, &rating.SummaryRequest{UserID: "owner"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Count)
	assert.InDelta(t, 4.0, sum.Average, 1e-9)

	assert.Equal(t, []string{events.SubjectRatingCreated, events.SubjectRatingCreated}, rec.Subjects())
}

func TestRateUserRules(t *testing.T) {
	svc, _, gdb, _ := setupService(t)
	ctx := context.Background()
	seedConversation(t, gdb, "open", "owner", "buyer", domain.ConversationMatched)
	seedConversation(t, gdb, "done", "owner", "buyer", domain.ConversationCompleted)

	_, err := svc.RateUser(ctx, &rating.RateUserRequest{UserID: "buyer", ConversationID: "open", Score: 5})
	assert.Equal(t, codes.PermissionDenied, status.Code(err), "matched swaps cannot be rated yet")

	_, err = svc.RateUser(ctx, &rating.RateUserRequest{UserID: "stranger", ConversationID: "done", Score: 5})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = svc.RateUser(ctx, &rating.RateUserRequest{UserID: "buyer", ConversationID: "done", Score: 6})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = svc.RateUser(ctx, &rating.RateUserRequest{UserID: "buyer", ConversationID: "missing", Score: 5})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = svc.RateUser(ctx, &rating.RateUserRequest{UserID: "buyer", ConversationID: "done", Score: 5})
	require.NoError(t, err)
	_, err = svc.RateUser(ctx, &rating.RateUserRequest{UserID: "buyer", ConversationID: "done", Score: 1})
	assert.Equal(t, codes.PermissionDenied, status.Code(err), "one rating per swap")

	_, err = svc.RateUser(ctx, &rating.RateUserRequest{ConversationID: "done", Score: 5})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSummaryIsRefreshedAfterNewRating(t *testing.T) {
	svc, appCtx, gdb, _ := setupService(t)
	ctx := context.Background()
	seedConversation(t, gdb, "c1", "owner", "a", domain.ConversationCompleted)
	seedConversation(t, gdb, "c2", "owner", "b", domain.ConversationCompleted)

	_, err := svc.RateUser(ctx, &rating.RateUserRequest{UserID: "a", ConversationID: "c1", Score: 5})
	require.NoError(t, err)

	// warm the cache
	avg, err := appCtx.RatingAggregator().Averages(ctx, []string{"owner"})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, avg["owner"], 1e-9)

	_, err = svc.RateUser(ctx, &rating.RateUserRequest{UserID: "b", ConversationID: "c2", Score: 2})
	require.NoError(t, err)

	avg, err = appCtx.RatingAggregator().Averages(ctx, []string{"owner"})
	require.NoError(t, err)
	assert.InDelta(t, 3.5, avg["owner"], 1e-9)
}

func TestGetRatingSummaryUnrated(t *testing.T) {
	svc, _, _, _ := setupService(t)

	sum, err := svc.GetRatingSummary(context.Background(), &rating.SummaryRequest{UserID: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Count)
	assert.Zero(t, sum.Average)

	_, err = svc.GetRatingSummary(context.Background(), &rating.SummaryRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestListRatingsOverGRPC(t *testing.T) {
	_, appCtx, gdb, _ := setupService(t)
	seedConversation(t, gdb, "c1", "owner", "a", domain.ConversationCompleted)
	seedConversation(t, gdb, "c2", "owner", "b", domain.ConversationCompleted)
	conn := tu.Dial(t, rating.NewRegistrar(appCtx))
	ctx := context.Background()

	for _, r := range []*rating.RateUserRequest{
		{UserID: "a", ConversationID: "c1", Score: 5},
		{UserID: "b", ConversationID: "c2", Score: 3},
	} {
		var out rating.RateUserResponse
		require.NoError(t, conn.Invoke(ctx, "/"+rating.ServiceName+"/RateUser", r, &out))
	}

	var list rating.ListRatingsResponse
	require.NoError(t, conn.Invoke(ctx, "/"+rating.ServiceName+"/ListRatings", &rating.ListRatingsRequest{UserID: "owner"}, &list))
	require.Len(t, list.Ratings, 2)
	for _, r := range list.Ratings {
		assert.Equal(t, "owner", r.RatedUserID)
	}

	var sum rating.SummaryResponse
	require.NoError(t, conn.Invoke(ctx, "/"+rating.ServiceName+"/GetRatingSummary", &rating.SummaryRequest{UserID: "owner"}, &sum))
	assert.Equal(t, int64(2), sum.Count)
	assert.InDelta(t, 4.0, sum.Average, 1e-9)
}
