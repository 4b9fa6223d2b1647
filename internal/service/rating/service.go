package rating

import (
	"context"
	"strings"

	"github.com/oggyb/swap-market/internal/app"
	svcErr "github.com/oggyb/swap-market/internal/errors"
	"github.com/oggyb/swap-market/internal/ratings"
	"github.com/oggyb/swap-market/internal/service/views"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type RateUserRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Score          int    `json:"score"`
	Comment        string `json:"comment,omitempty"`
}

type RateUserResponse struct {
	Rating views.Rating `json:"rating"`
}

type SummaryRequest struct {
	UserID string `json:"user_id"`
}

type SummaryResponse struct {
	UserID  string  `json:"user_id"`
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

type ListRatingsRequest struct {
	UserID string `json:"user_id"`
	Limit  int    `json:"limit"`
}

type ListRatingsResponse struct {
	Ratings []views.Rating `json:"ratings"`
}

// Service implements the Rating gRPC API.
type Service struct {
	appCtx     *app.AppContext
	aggregator *ratings.Aggregator
}

func NewRatingService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx, aggregator: appCtx.RatingAggregator()}
}

// RateUser rates the counterpart of a completed conversation the caller took part in.
func (s *Service) RateUser(ctx context.Context, req *RateUserRequest) (*RateUserResponse, error) {
	s.appCtx.Logger.Debug("RateUser called", "user", req.UserID, "conversation", req.ConversationID, "score", req.Score)

	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.ConversationID) == "" {
		return nil, svcErr.InvalidArgument("user_id and conversation_id are required")
	}
	r, err := s.aggregator.Rate(ctx, req.UserID, req.ConversationID, req.Score, req.Comment)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &RateUserResponse{Rating: views.FromRating(r)}, nil
}

// GetRatingSummary returns the average and count. Unrated users get zeros.
func (s *Service) GetRatingSummary(ctx context.Context, req *SummaryRequest) (*SummaryResponse, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}
	sum, err := s.aggregator.Summary(ctx, req.UserID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &SummaryResponse{UserID: req.UserID, Average: sum.Average, Count: sum.Count}, nil
}

// ListRatings returns the ratings a user received, newest first.
func (s *Service) ListRatings(ctx context.Context, req *ListRatingsRequest) (*ListRatingsResponse, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	rs, err := s.aggregator.Received(ctx, req.UserID, limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	resp := &ListRatingsResponse{Ratings: make([]views.Rating, 0, len(rs))}
	for _, r := range rs {
		resp.Ratings = append(resp.Ratings, views.FromRating(r))
	}
	return resp, nil
}
