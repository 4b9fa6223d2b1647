package listing_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/oggyb/swap-market/internal/app"
	"github.com/oggyb/swap-market/internal/config"
	"github.com/oggyb/swap-market/internal/domain"
	"github.com/oggyb/swap-market/internal/events"
	"github.com/oggyb/swap-market/internal/service/listing"
	tu "github.com/oggyb/swap-market/internal/testutil"
)

type fixedGeocoder map[string]domain.Coordinates

func (g fixedGeocoder) Geocode(_ context.Context, address string) (domain.Coordinates, error) {
	if c, ok := g[strings.ToLower(address)]; ok {
		return c, nil
	}
	return domain.Coordinates{}, errors.New("no match")
}

// setupService wires a Listing service over SQLite with a recording publisher
// and a geocoder that only knows London.
func setupService(t *testing.T) (*listing.Service, *app.AppContext, *gorm.DB, *events.Recorder) {
	t.Helper()
	gdb := tu.NewDB(t)
	appCtx := app.New(&config.Config{}, gdb, nil, tu.Logger())
	rec := &events.Recorder{}
	appCtx.Publisher = rec
	appCtx.Geocoder = fixedGeocoder{"london": {Lat: 51.5072, Lon: -0.1276}}
	return listing.NewListingService(appCtx), appCtx, gdb, rec
}

func strPtr(s string) *string { return &s }

func createBook(t *testing.T, svc *listing.Service, owner, title string) string {
	t.Helper()
	resp, err := svc.CreateListing(context.Background(), &listing.CreateListingRequest{
		UserID:    owner,
		Title:     title,
		Category:  "Books",
		Condition: "good",
		Price:     strPtr("10"),
		Location:  "London",
	})
	require.NoError(t, err)
	return resp.Listing.ID
}

func TestCreateListingChargesAndGeocodes(t *testing.T) {
	svc, appCtx, gdb, rec := setupService(t)
	tu.SeedAccount(t, gdb, "u1", 3, domain.TierFree)

	resp, err := svc.CreateListing(context.Background(), &listing.CreateListingRequest{
		UserID:      "u1",
		Title:       "  Dune  ",
		Category:    "Books",
		Condition:   "good",
		Price:       strPtr("12.499"),
		Location:    "London",
		WantedItems: []string{"Vinyl", "vinyl", " ", "Lamp"},
	})
	require.NoError(t, err)

	l := resp.Listing
	assert.Equal(t, "Dune", l.Title)
	assert.Equal(t, "active", l.Status)
	assert.Equal(t, "12.5", l.Price.String())
	assert.Equal(t, []string{"Vinyl", "Lamp"}, l.WantedItems)
	require.NotNil(t, l.Coordinates)
	assert.InDelta(t, 51.5072, l.Coordinates.Lat, 1e-9)

	require.NotNil(t, resp.Entitlements)
	assert.Equal(t, int64(2), resp.Entitlements.CoinBalance)
	assert.Equal(t, 1, resp.Entitlements.MonthlyListingsUsed)
	assert.Equal(t, int64(2), tu.Balance(t, gdb, "u1"))

	_, ok := appCtx.Catalog.Get(l.ID)
	assert.True(t, ok, "new listing should be in the catalog")
	assert.Equal(t, []string{events.SubjectListingCreated}, rec.Subjects())
}

func TestCreateListingUnknownLocationKeepsListing(t *testing.T) {
	svc, _, gdb, _ := setupService(t)
	tu.SeedAccount(t, gdb, "u1", 3, domain.TierFree)

	resp, err := svc.CreateListing(context.Background(), &listing.CreateListingRequest{
		UserID: "u1", Title: "Lamp", Category: "Home", Location: "Atlantis",
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Listing.Coordinates)
	assert.Equal(t, "Atlantis", resp.Listing.Location)
}

func TestCreateListingValidation(t *testing.T) {
	svc, _, gdb, _ := setupService(t)
	tu.SeedAccount(t, gdb, "u1", 3, domain.TierFree)

	cases := map[string]*listing.CreateListingRequest{
		"missing title":    {UserID: "u1", Category: "Books"},
		"missing category": {UserID: "u1", Title: "Dune"},
		"negative price":   {UserID: "u1", Title: "Dune", Category: "Books", Price: strPtr("-1")},
		"bad price":        {UserID: "u1", Title: "Dune", Category: "Books", Price: strPtr("ten")},
		"missing user":     {Title: "Dune", Category: "Books"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateListing(context.Background(), req)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
	assert.Equal(t, int64(3), tu.Balance(t, gdb, "u1"), "rejected payloads must not charge")
}

func TestCreateListingQuotaDenied(t *testing.T) {
	svc, _, gdb, _ := setupService(t)
	tu.SeedAccount(t, gdb, "broke", 0, domain.TierFree)

	_, err := svc.CreateListing(context.Background(), &listing.CreateListingRequest{
		UserID: "broke", Title: "Dune", Category: "Books",
	})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	_, err = svc.CreateListing(context.Background(), &listing.CreateListingRequest{
		UserID: "ghost", Title: "Dune", Category: "Books",
	})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestCreateListingFreeMonthlyCap(t *testing.T) {
	svc, _, gdb, _ := setupService(t)
	tu.SeedAccount(t, gdb, "free", 100, domain.TierFree)
	tu.SeedAccount(t, gdb, "vip", 100, domain.TierPremium)

	for i := 0; i < 5; i++ {
		createBook(t, svc, "free", "book")
		createBook(t, svc, "vip", "book")
	}

	_, err := svc.CreateListing(context.Background(), &listing.CreateListingRequest{UserID: "free", Title: "one more", Category: "Books"})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	assert.Equal(t, int64(95), tu.Balance(t, gdb, "free"))

	_, err = svc.CreateListing(context.Background(), &listing.CreateListingRequest{UserID: "vip", Title: "one more", Category: "Books"})
	require.NoError(t, err)
	assert.Equal(t, int64(94), tu.Balance(t, gdb, "vip"))
}

func TestUpdateListingStatusLifecycle(t *testing.T) {
	svc, appCtx, gdb, rec := setupService(t)
	ctx := context.Background()
	tu.SeedAccount(t, gdb, "owner", 5, domain.TierFree)
	id := createBook(t, svc, "owner", "Dune")

	_, err := svc.UpdateListingStatus(ctx, &listing.UpdateStatusRequest{UserID: "intruder", ListingID: id, Status: "paused"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	resp, err := svc.UpdateListingStatus(ctx, &listing.UpdateStatusRequest{UserID: "owner", ListingID: id, Status: "paused"})
	require.NoError(t, err)
	assert.Equal(t, "paused", resp.Listing.Status)
	_, ok := appCtx.Catalog.Get(id)
	assert.False(t, ok, "paused listings leave the catalog")

	_, err = svc.UpdateListingStatus(ctx, &listing.UpdateStatusRequest{UserID: "owner", ListingID: id, Status: "active"})
	require.NoError(t, err)
	_, ok = appCtx.Catalog.Get(id)
	assert.True(t, ok)

	_, err = svc.UpdateListingStatus(ctx, &listing.UpdateStatusRequest{UserID: "owner", ListingID: id, Status: "completed"})
	require.NoError(t, err)

	_, err = svc.UpdateListingStatus(ctx, &listing.UpdateStatusRequest{UserID: "owner", ListingID: id, Status: "active"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = svc.UpdateListingStatus(ctx, &listing.UpdateStatusRequest{UserID: "owner", ListingID: id, Status: "sold"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	assert.Equal(t, []string{
		events.SubjectListingCreated,
		events.SubjectListingStatusChanged,
		events.SubjectListingStatusChanged,
		events.SubjectListingStatusChanged,
	}, rec.Subjects())
}

func TestRecordView(t *testing.T) {
	svc, _, gdb, _ := setupService(t)
	ctx := context.Background()
	tu.SeedAccount(t, gdb, "owner", 5, domain.TierFree)
	id := createBook(t, svc, "owner", "Dune")

	for i := 1; i <= 3; i++ {
		resp, err := svc.RecordView(ctx, &listing.RecordViewRequest{ListingID: id})
		require.NoError(t, err)
		assert.Equal(t, int64(i), resp.Views)
	}

	got, err := svc.GetListing(ctx, &listing.GetListingRequest{ListingID: id})
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Listing.Views)

	_, err = svc.RecordView(ctx, &listing.RecordViewRequest{ListingID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestRecordViewKeepsConcurrentConversationFlag(t *testing.T) {
	svc, appCtx, gdb, _ := setupService(t)
	ctx := context.Background()
	tu.SeedAccount(t, gdb, "owner", 5, domain.TierFree)
	id := createBook(t, svc, "owner", "Dune")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.RecordView(ctx, &listing.RecordViewRequest{ListingID: id})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			appCtx.Catalog.MarkActiveConversation(id)
		}()
	}
	wg.Wait()

	cached, ok := appCtx.Catalog.Get(id)
	require.True(t, ok)
	assert.True(t, cached.HasActiveConversation(), "a view bump must not write back a stale flag")
	assert.Equal(t, int64(20), cached.Views)
}

func TestLikeListingOpensConversationOnce(t *testing.T) {
	svc, _, gdb, _ := setupService(t)
	ctx := context.Background()
	tu.SeedAccount(t, gdb, "owner", 5, domain.TierFree)
	tu.SeedAccount(t, gdb, "fan", 10, domain.TierFree)
	id := createBook(t, svc, "owner", "Dune")

	first, err := svc.LikeListing(ctx, &listing.LikeRequest{UserID: "fan", ListingID: id})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, int64(1), first.Likes)
	assert.NotEmpty(t, first.ConversationID)

	again, err := svc.LikeListing(ctx, &listing.LikeRequest{UserID: "fan", ListingID: id})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, first.ConversationID, again.ConversationID)
	assert.Equal(t, int64(1), again.Likes)
	assert.Equal(t, int64(8), tu.Balance(t, gdb, "fan"), "only the first like is charged")

	got, err := svc.GetListing(ctx, &listing.GetListingRequest{ListingID: id})
	require.NoError(t, err)
	assert.True(t, got.Listing.HasActiveConversation)

	_, err = svc.LikeListing(ctx, &listing.LikeRequest{UserID: "owner", ListingID: id})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestDeleteListing(t *testing.T) {
	svc, appCtx, gdb, _ := setupService(t)
	ctx := context.Background()
	tu.SeedAccount(t, gdb, "owner", 5, domain.TierFree)
	id := createBook(t, svc, "owner", "Dune")

	_, err := svc.DeleteListing(ctx, &listing.DeleteListingRequest{UserID: "someone", ListingID: id})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = svc.DeleteListing(ctx, &listing.DeleteListingRequest{UserID: "owner", ListingID: id})
	require.NoError(t, err)
	_, ok := appCtx.Catalog.Get(id)
	assert.False(t, ok)

	_, err = svc.GetListing(ctx, &listing.GetListingRequest{ListingID: id})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestListingServiceOverGRPC(t *testing.T) {
	_, appCtx, gdb, _ := setupService(t)
	tu.SeedAccount(t, gdb, "u1", 3, domain.TierFree)
	conn := tu.Dial(t, listing.NewRegistrar(appCtx))

	var created listing.ListingResponse
	err := conn.Invoke(context.Background(), "/"+listing.ServiceName+"/CreateListing",
		&listing.CreateListingRequest{UserID: "u1", Title: "Dune", Category: "Books", Price: strPtr("7")}, &created)
	require.NoError(t, err)
	assert.Equal(t, "Dune", created.Listing.Title)

	var got listing.ListingResponse
	err = conn.Invoke(context.Background(), "/"+listing.ServiceName+"/GetListing",
		&listing.GetListingRequest{ListingID: created.Listing.ID}, &got)
	require.NoError(t, err)
	assert.Equal(t, created.Listing.ID, got.Listing.ID)
	assert.Equal(t, "7", got.Listing.Price.String())

	err = conn.Invoke(context.Background(), "/"+listing.ServiceName+"/GetListing",
		&listing.GetListingRequest{ListingID: "nope"}, &got)
	assert.Equal(t, codes.NotFound, status.Code(err))
}
