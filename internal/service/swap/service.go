package swap

import (
	"context"
	"strings"

	"github.com/oggyb/swap-market/internal/app"
	"github.com/oggyb/swap-market/internal/conversation"
	"github.com/oggyb/swap-market/internal/domain"
	svcErr "github.com/oggyb/swap-market/internal/errors"
	"github.com/oggyb/swap-market/internal/matching"
	"github.com/oggyb/swap-market/internal/quota"
	"github.com/oggyb/swap-market/internal/repository"
	"github.com/oggyb/swap-market/internal/service/views"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type ExpressInterestRequest struct {
	UserID    string `json:"user_id"`
	ListingID string `json:"listing_id"`
}

type ExpressInterestResponse struct {
	Conversation views.Conversation  `json:"conversation"`
	Created      bool                `json:"created"`
	Entitlements *views.Entitlements `json:"entitlements,omitempty"`
}

type ConversationRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}

type TransitionRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
}

type ConversationResponse struct {
	Conversation views.Conversation `json:"conversation"`
}

type ListConversationsRequest struct {
	UserID          string  `json:"user_id"`
	IncludeRejected bool    `json:"include_rejected"`
	PaginationToken *string `json:"pagination_token,omitempty"`
	Limit           int     `json:"limit"`
}

type ListConversationsResponse struct {
	Conversations       []views.Conversation `json:"conversations"`
	NextPaginationToken *string              `json:"next_pagination_token,omitempty"`
}

type GetEntitlementsRequest struct {
	UserID string `json:"user_id"`
}

type GetEntitlementsResponse struct {
	Entitlements     views.Entitlements `json:"entitlements"`
	CanCreateListing bool               `json:"can_create_listing"`
	CanInitiateSwap  bool               `json:"can_initiate_swap"`
	ListingCost      int64              `json:"listing_cost"`
	SwapCost         int64              `json:"swap_cost"`
}

// Service implements the Swap gRPC API: interest, conversation lifecycle and
// the caller's quota view.
type Service struct {
	appCtx        *app.AppContext
	engine        *matching.Engine
	machine       *conversation.Machine
	conversations *repository.ConversationRepository
	accounts      *repository.AccountRepository
}

// NewSwapService creates the Swap service with dependencies from AppContext.
// Dependencies include:
//   - the matching engine (quota guard, wallet, shared catalog, optional Redis lock)
//   - the conversation state machine
//   - ConversationRepository and AccountRepository for read paths
func NewSwapService(appCtx *app.AppContext) *Service {
	conversations := repository.NewConversationRepository(appCtx.DB)
	return &Service{
		appCtx: appCtx,
		engine: appCtx.MatchingEngine(),
		machine: conversation.NewMachine(
			conversations,
			appCtx.Catalog,
			appCtx.Publisher,
			appCtx.Metrics,
			appCtx.Logger.With("component", "conversation"),
		),
		conversations: conversations,
		accounts:      repository.NewAccountRepository(appCtx.DB),
	}
}

// ExpressInterest is the swipe-right action.
//
// Behavior:
//   - Returns the existing open conversation for the pair without charging.
//   - Otherwise checks quota, debits the swap cost and creates a matched conversation.
//
// Example:
//
//	svc.ExpressInterest(ctx, &ExpressInterestRequest{UserID: "u1", ListingID: "l1"})
func (s *Service) ExpressInterest(ctx context.Context, req *ExpressInterestRequest) (*ExpressInterestResponse, error) {
	s.appCtx.Logger.Debug("ExpressInterest called", "user", req.UserID, "listing", req.ListingID)

	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.ListingID) == "" {
		return nil, svcErr.InvalidArgument("user_id and listing_id are required")
	}

	out, err := s.engine.ExpressInterest(ctx, req.UserID, req.ListingID)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &ExpressInterestResponse{
		Conversation: views.FromConversation(out.Conversation),
		Created:      out.Created,
	}
	if out.Entitlements != nil {
		e := views.FromEntitlements(*out.Entitlements)
		resp.Entitlements = &e
	}
	return resp, nil
}

// CompleteConversation marks a matched swap as done. Either participant may call it.
func (s *Service) CompleteConversation(ctx context.Context, req *ConversationRequest) (*ConversationResponse, error) {
	return s.transition(ctx, req.UserID, req.ConversationID, domain.ConversationCompleted)
}

// RejectConversation declines a matched swap. Only the item owner may call it.
func (s *Service) RejectConversation(ctx context.Context, req *ConversationRequest) (*ConversationResponse, error) {
	return s.transition(ctx, req.UserID, req.ConversationID, domain.ConversationRejected)
}

// TransitionConversation is the generic form taking the target status by name.
func (s *Service) TransitionConversation(ctx context.Context, req *TransitionRequest) (*ConversationResponse, error) {
	next, err := domain.ParseConversationStatus(req.Status)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return s.transition(ctx, req.UserID, req.ConversationID, next)
}

func (s *Service) transition(ctx context.Context, userID, conversationID string, next domain.ConversationStatus) (*ConversationResponse, error) {
	s.appCtx.Logger.Debug("conversation transition requested", "user", userID, "conversation", conversationID, "to", next)

	if userID == "" || conversationID == "" {
		return nil, svcErr.InvalidArgument("user_id and conversation_id are required")
	}
	c, err := s.machine.Transition(ctx, conversationID, userID, next)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &ConversationResponse{Conversation: views.FromConversation(c)}, nil
}

// ListConversations returns the caller's conversations, most recently updated first.
// Supports cursor-based pagination with pagination_token.
func (s *Service) ListConversations(ctx context.Context, req *ListConversationsRequest) (*ListConversationsResponse, error) {
	if req.UserID == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	convs, next, err := s.conversations.ListForUser(ctx, req.UserID, req.IncludeRejected, req.PaginationToken, limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &ListConversationsResponse{Conversations: make([]views.Conversation, 0, len(convs))}
	for _, c := range convs {
		resp.Conversations = append(resp.Conversations, views.FromConversation(c))
	}
	resp.NextPaginationToken = next
	return resp, nil
}

// GetEntitlements reports balance, counters and what the caller can afford right now.
func (s *Service) GetEntitlements(ctx context.Context, req *GetEntitlementsRequest) (*GetEntitlementsResponse, error) {
	if req.UserID == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}
	e, err := s.accounts.Entitlements(ctx, req.UserID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &GetEntitlementsResponse{
		Entitlements:     views.FromEntitlements(e),
		CanCreateListing: s.appCtx.Guard.CanCreateListing(e),
		CanInitiateSwap:  s.appCtx.Guard.CanInitiateSwap(e),
		ListingCost:      s.appCtx.Guard.Cost(quota.ActionListing),
		SwapCost:         s.appCtx.Guard.Cost(quota.ActionSwap),
	}, nil
}
