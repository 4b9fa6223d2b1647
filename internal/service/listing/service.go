package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oggyb/swap-market/internal/app"
	"github.com/oggyb/swap-market/internal/domain"
	svcErr "github.com/oggyb/swap-market/internal/errors"
	"github.com/oggyb/swap-market/internal/events"
	"github.com/oggyb/swap-market/internal/geo"
	"github.com/oggyb/swap-market/internal/matching"
	"github.com/oggyb/swap-market/internal/quota"
	"github.com/oggyb/swap-market/internal/repository"
	"github.com/oggyb/swap-market/internal/service/views"
)

const (
	maxTitleLength = 255
	maxImages      = 10
)

type CreateListingRequest struct {
	UserID      string   `json:"user_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Condition   string   `json:"condition"`
	Price       *string  `json:"price,omitempty"`
	Location    string   `json:"location"`
	Images      []string `json:"images"`
	WantedItems []string `json:"wanted_items"`
}

type ListingResponse struct {
	Listing      views.Listing       `json:"listing"`
	Entitlements *views.Entitlements `json:"entitlements,omitempty"`
}

type GetListingRequest struct {
	ListingID string `json:"listing_id"`
}

type UpdateStatusRequest struct {
	UserID    string `json:"user_id"`
	ListingID string `json:"listing_id"`
	Status    string `json:"status"`
}

type RecordViewRequest struct {
	ListingID string `json:"listing_id"`
}

type RecordViewResponse struct {
	Views int64 `json:"views"`
}

type LikeRequest struct {
	UserID    string `json:"user_id"`
	ListingID string `json:"listing_id"`
}

type LikeResponse struct {
	Likes          int64  `json:"likes"`
	ConversationID string `json:"conversation_id"`
	Created        bool   `json:"created"`
}

type DeleteListingRequest struct {
	UserID    string `json:"user_id"`
	ListingID string `json:"listing_id"`
}

type DeleteListingResponse struct{}

// Service implements the Listing gRPC API: quota-gated creation, owner status
// changes and engagement counters.
type Service struct {
	appCtx   *app.AppContext
	listings *repository.ListingRepository
	accounts *repository.AccountRepository
	engine   *matching.Engine
}

// NewListingService creates the Listing service with dependencies from AppContext.
func NewListingService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		listings: repository.NewListingRepository(appCtx.DB),
		accounts: repository.NewAccountRepository(appCtx.DB),
		engine:   appCtx.MatchingEngine(),
	}
}

// CreateListing posts a new item.
//
// Behavior:
//   - Validates the payload (title, category, non-negative price).
//   - The quota guard must pass; the listing cost and counter are debited atomically.
//   - The location text is geocoded best effort; failures leave coordinates empty.
//   - If the insert fails the debit is refunded.
//   - The new listing is added to the catalog and listing.created is published.
func (s *Service) CreateListing(ctx context.Context, req *CreateListingRequest) (*ListingResponse, error) {
	s.appCtx.Logger.Debug("CreateListing called", "user", req.UserID, "title", req.Title)

	l, err := s.newListing(req)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	ent, err := s.accounts.Entitlements(ctx, req.UserID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if err := s.appCtx.Guard.Check(ent, quota.ActionListing); err != nil {
		s.appCtx.Logger.Info("listing denied by quota", "user", req.UserID, "err", err)
		return nil, svcErr.Map(err)
	}
	charge := s.appCtx.Guard.ChargeFor(ent, quota.ActionListing, "new listing: "+l.Title)
	after, err := s.accounts.Debit(ctx, req.UserID, charge)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Metrics.CoinDebitsTotal.WithLabelValues(string(quota.ActionListing)).Add(float64(charge.Amount))

	l.Coordinates = geo.Locate(ctx, s.appCtx.Geocoder, l.Location)

	if err := s.listings.Create(ctx, l); err != nil {
		if rerr := s.accounts.Refund(context.WithoutCancel(ctx), req.UserID, charge); rerr != nil {
			s.appCtx.Logger.Error("refund failed", "user", req.UserID, "amount", charge.Amount, "err", rerr)
		} else {
			s.appCtx.Metrics.CoinRefundsTotal.WithLabelValues(string(quota.ActionListing)).Add(float64(charge.Amount))
		}
		return nil, svcErr.Map(err)
	}

	s.appCtx.Catalog.Upsert(l)
	s.appCtx.Metrics.ListingsCreated.Inc()
	if err := s.appCtx.Publisher.Publish(ctx, events.SubjectListingCreated, events.ListingCreated{
		ListingID: l.ID,
		OwnerID:   l.OwnerID,
		Category:  l.Category,
		At:        l.CreatedAt,
	}); err != nil {
		s.appCtx.Logger.Warn("publish listing.created failed", "listing", l.ID, "err", err)
	}

	s.appCtx.Logger.Info("listing created", "listing", l.ID, "owner", l.OwnerID, "geocoded", l.Coordinates != nil)
	e := views.FromEntitlements(after)
	return &ListingResponse{Listing: views.FromListing(l), Entitlements: &e}, nil
}

func (s *Service) newListing(req *CreateListingRequest) (domain.Listing, error) {
	title := strings.TrimSpace(req.Title)
	switch {
	case strings.TrimSpace(req.UserID) == "":
		return domain.Listing{}, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	case title == "":
		return domain.Listing{}, fmt.Errorf("%w: title is required", domain.ErrValidation)
	case len(title) > maxTitleLength:
		return domain.Listing{}, fmt.Errorf("%w: title is too long", domain.ErrValidation)
	case strings.TrimSpace(req.Category) == "":
		return domain.Listing{}, fmt.Errorf("%w: category is required", domain.ErrValidation)
	case len(req.Images) > maxImages:
		return domain.Listing{}, fmt.Errorf("%w: at most %d images", domain.ErrValidation, maxImages)
	}

	l := domain.Listing{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		Condition:   strings.TrimSpace(req.Condition),
		Location:    strings.TrimSpace(req.Location),
		Images:      req.Images,
		WantedItems: tags(req.WantedItems),
		OwnerID:     req.UserID,
		Status:      domain.ListingActive,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	if req.Price != nil && strings.TrimSpace(*req.Price) != "" {
		p, err := decimal.NewFromString(strings.TrimSpace(*req.Price))
		if err != nil {
			return domain.Listing{}, fmt.Errorf("%w: price %q is not a number", domain.ErrValidation, *req.Price)
		}
		if p.IsNegative() {
			return domain.Listing{}, fmt.Errorf("%w: price must not be negative", domain.ErrValidation)
		}
		p = p.Round(2)
		l.Price = &p
	}
	return l, nil
}

// tags trims and dedupes wanted items, keeping first-seen order.
func tags(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, t := range in {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// GetListing returns one listing, including its conversation flag when cached.
func (s *Service) GetListing(ctx context.Context, req *GetListingRequest) (*ListingResponse, error) {
	if req.ListingID == "" {
		return nil, svcErr.InvalidArgument("listing_id is required")
	}
	if l, ok := s.appCtx.Catalog.Get(req.ListingID); ok {
		return &ListingResponse{Listing: views.FromListing(l)}, nil
	}
	l, err := s.listings.Get(ctx, req.ListingID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &ListingResponse{Listing: views.FromListing(l)}, nil
}

// UpdateListingStatus lets the owner pause, resume, complete or withdraw a listing.
// Transitions out of completed and rejected fail with FailedPrecondition.
func (s *Service) UpdateListingStatus(ctx context.Context, req *UpdateStatusRequest) (*ListingResponse, error) {
	s.appCtx.Logger.Debug("UpdateListingStatus called", "user", req.UserID, "listing", req.ListingID, "status", req.Status)

	if req.UserID == "" || req.ListingID == "" {
		return nil, svcErr.InvalidArgument("user_id and listing_id are required")
	}
	next, err := domain.ParseListingStatus(req.Status)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	l, err := s.listings.UpdateStatus(ctx, req.ListingID, req.UserID, next)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			s.appCtx.Logger.Warn("invalid listing transition", "listing", req.ListingID, "to", next, "err", err)
		}
		return nil, svcErr.Map(err)
	}

	if next == domain.ListingActive {
		// back in discovery: re-derive the flag from the conversation store
		open, err := repository.NewConversationRepository(s.appCtx.DB).OpenListingIDs(ctx, l.ID)
		if err != nil {
			s.appCtx.Logger.Warn("conversation flag lookup failed", "listing", l.ID, "err", err)
		}
		l = l.WithActiveConversation(open[l.ID])
	}
	s.appCtx.Catalog.Upsert(l)

	if err := s.appCtx.Publisher.Publish(ctx, events.SubjectListingStatusChanged, events.ListingStatusChanged{
		ListingID: l.ID,
		Status:    string(l.Status),
		At:        time.Now().UTC(),
	}); err != nil {
		s.appCtx.Logger.Warn("publish listing status failed", "listing", l.ID, "err", err)
	}
	return &ListingResponse{Listing: views.FromListing(l)}, nil
}

// RecordView bumps the view counter.
func (s *Service) RecordView(ctx context.Context, req *RecordViewRequest) (*RecordViewResponse, error) {
	if req.ListingID == "" {
		return nil, svcErr.InvalidArgument("listing_id is required")
	}
	n, err := s.listings.IncrementViews(ctx, req.ListingID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Catalog.Update(req.ListingID, func(l *domain.Listing) {
		if n > l.Views {
			l.Views = n
		}
	})
	return &RecordViewResponse{Views: n}, nil
}

// LikeListing is the grid/list equivalent of a swipe-right.
//
// Behavior:
//   - Runs the same interest flow as ExpressInterest (quota, debit, dedupe).
//   - The like counter only moves when a new conversation was created, so
//     repeated likes by the same user are not counted twice.
func (s *Service) LikeListing(ctx context.Context, req *LikeRequest) (*LikeResponse, error) {
	s.appCtx.Logger.Debug("LikeListing called", "user", req.UserID, "listing", req.ListingID)

	if req.UserID == "" || req.ListingID == "" {
		return nil, svcErr.InvalidArgument("user_id and listing_id are required")
	}

	out, err := s.engine.ExpressInterest(ctx, req.UserID, req.ListingID)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &LikeResponse{ConversationID: out.Conversation.ID, Created: out.Created}
	if out.Created {
		likes, err := s.listings.IncrementLikes(ctx, req.ListingID)
		if err != nil {
			s.appCtx.Logger.Warn("like counter update failed", "listing", req.ListingID, "err", err)
		}
		resp.Likes = likes
		if err == nil {
			s.appCtx.Catalog.Update(req.ListingID, func(l *domain.Listing) {
				if likes > l.Likes {
					l.Likes = likes
				}
			})
		}
	} else if l, err := s.listings.Get(ctx, req.ListingID); err == nil {
		resp.Likes = l.Likes
	}
	return resp, nil
}

// DeleteListing removes a listing owned by the caller.
func (s *Service) DeleteListing(ctx context.Context, req *DeleteListingRequest) (*DeleteListingResponse, error) {
	if req.UserID == "" || req.ListingID == "" {
		return nil, svcErr.InvalidArgument("user_id and listing_id are required")
	}
	if err := s.listings.Delete(ctx, req.ListingID, req.UserID); err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Catalog.Remove(req.ListingID)
	return &DeleteListingResponse{}, nil
}
