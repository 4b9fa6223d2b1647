// Package ratings serves owner rating averages to discovery and records new ratings.
package ratings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oggyb/swap-market/internal/cache"
	"github.com/oggyb/swap-market/internal/discovery"
	"github.com/oggyb/swap-market/internal/domain"
	"github.com/oggyb/swap-market/internal/events"
	"github.com/oggyb/swap-market/internal/metrics"
	"github.com/oggyb/swap-market/internal/repository"
)

type Aggregator struct {
	ratings       *repository.RatingRepository
	conversations *repository.ConversationRepository
	cache         *cache.RedisCache // optional
	ttl           time.Duration
	publisher     events.Publisher
	metrics       *metrics.MetricsManager
	log           *slog.Logger
}

func NewAggregator(
	ratings *repository.RatingRepository,
	conversations *repository.ConversationRepository,
	rc *cache.RedisCache,
	ttl time.Duration,
	publisher events.Publisher,
	m *metrics.MetricsManager,
	log *slog.Logger,
) *Aggregator {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Aggregator{
		ratings:       ratings,
		conversations: conversations,
		cache:         rc,
		ttl:           ttl,
		publisher:     publisher,
		metrics:       m,
		log:           log,
	}
}

// Averages returns the average rating of every rated user in userIDs.
// Users without ratings are absent so the discovery pipeline keeps their listings.
//
// Cache-first strategy:
//  1. One MGET against rating:avg:<user>.
//  2. Misses are loaded in one grouped query.
//  3. Loaded summaries (including zero-count ones) are written back with the TTL.
//
// Redis failures degrade to the database path.
func (a *Aggregator) Averages(ctx context.Context, userIDs []string) (discovery.Ratings, error) {
	ids := dedupe(userIDs)
	summaries := make(map[string]domain.RatingSummary, len(ids))
	misses := ids

	if a.cache != nil && len(ids) > 0 {
		hits, missed, err := a.cache.GetRatingSummaries(ctx, ids)
		if err != nil {
			a.log.Warn("rating cache read failed", "err", err)
		} else {
			summaries, misses = hits, missed
		}
	}

	if len(misses) > 0 {
		loaded, err := a.ratings.Summaries(ctx, misses)
		if err != nil {
			return nil, err
		}
		fill := make(map[string]domain.RatingSummary, len(misses))
		for _, id := range misses {
			s := loaded[id]
			fill[id] = s
			summaries[id] = s
		}
		if a.cache != nil {
			if err := a.cache.SetRatingSummaries(ctx, fill, a.ttl); err != nil {
				a.log.Warn("rating cache write failed", "err", err)
			}
		}
	}

	out := make(discovery.Ratings, len(summaries))
	for id, s := range summaries {
		if s.Count > 0 {
			out[id] = s.Average
		}
	}
	return out, nil
}

// Summary returns the aggregate for one user. Zero count means no ratings yet.
func (a *Aggregator) Summary(ctx context.Context, userID string) (domain.RatingSummary, error) {
	all, err := a.ratings.Summaries(ctx, []string{userID})
	if err != nil {
		return domain.RatingSummary{}, err
	}
	return all[userID], nil
}

// Received lists the ratings a user got, newest first.
func (a *Aggregator) Received(ctx context.Context, userID string, limit int) ([]domain.Rating, error) {
	return a.ratings.ListReceived(ctx, userID, limit)
}

// Rate records the rater's score for the counterpart of a completed conversation.
//
// Behavior:
//   - The rater must be a participant (ErrForbidden).
//   - The conversation must be completed (ErrRatingNotAllowed).
//   - One rating per rater per conversation (ErrRatingNotAllowed on repeat).
//   - The rated user's cached average is dropped.
func (a *Aggregator) Rate(ctx context.Context, raterID, conversationID string, score int, comment string) (domain.Rating, error) {
	conv, err := a.conversations.Get(ctx, conversationID)
	if err != nil {
		return domain.Rating{}, err
	}
	if !conv.HasParticipant(raterID) {
		return domain.Rating{}, fmt.Errorf("%w: %s is not part of conversation %s", domain.ErrForbidden, raterID, conversationID)
	}
	if conv.Status != domain.ConversationCompleted {
		return domain.Rating{}, fmt.Errorf("%w: conversation %s is %s", domain.ErrRatingNotAllowed, conversationID, conv.Status)
	}

	r := domain.Rating{
		ID:             uuid.NewString(),
		RatedUserID:    conv.Counterpart(raterID),
		RaterUserID:    raterID,
		ConversationID: conv.ID,
		Score:          score,
		Comment:        strings.TrimSpace(comment),
		ItemTitle:      conv.ItemTitle,
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := r.Validate(); err != nil {
		return domain.Rating{}, err
	}

	if err := a.ratings.Create(ctx, r); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return domain.Rating{}, fmt.Errorf("%w: already rated this swap", domain.ErrRatingNotAllowed)
		}
		return domain.Rating{}, err
	}

	if a.cache != nil {
		if err := a.cache.InvalidateRating(ctx, r.RatedUserID); err != nil {
			a.log.Warn("rating cache invalidation failed", "user", r.RatedUserID, "err", err)
		}
	}
	if a.metrics != nil {
		a.metrics.RatingsCreated.Inc()
	}
	if err := a.publisher.Publish(ctx, events.SubjectRatingCreated, events.RatingCreated{
		RatingID:    r.ID,
		RatedUserID: r.RatedUserID,
		Score:       r.Score,
		At:          r.CreatedAt,
	}); err != nil {
		a.log.Warn("publish rating.created failed", "err", err)
	}

	a.log.Info("rating recorded", "conversation", conv.ID, "rater", raterID, "rated", r.RatedUserID, "score", score)
	return r, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
