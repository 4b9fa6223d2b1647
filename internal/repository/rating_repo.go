package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/swap-market/internal/db"
	"github.com/oggyb/swap-market/internal/domain"
)

// RatingRepository stores ratings and computes per-user aggregates.
type RatingRepository struct {
	db *gorm.DB
}

func NewRatingRepository(database *gorm.DB) *RatingRepository {
	return &RatingRepository{db: database}
}

// Create inserts a rating. A second rating by the same rater for the same
// conversation fails with ErrDuplicate.
func (r *RatingRepository) Create(ctx context.Context, rt domain.Rating) error {
	row := db.Rating{
		ID:             rt.ID,
		RatedUserID:    rt.RatedUserID,
		RaterUserID:    rt.RaterUserID,
		ConversationID: rt.ConversationID,
		Score:          rt.Score,
		Comment:        rt.Comment,
		ItemTitle:      rt.ItemTitle,
		CreatedAt:      rt.CreatedAt,
	}
	return translate(r.db.WithContext(ctx).Create(&row).Error)
}

type ratingAggregate struct {
	RatedUserID string
	Average     float64
	Total       int64
}

// Summaries computes average and count for every requested user in one query.
// Users with no ratings are absent from the result.
func (r *RatingRepository) Summaries(ctx context.Context, userIDs []string) (map[string]domain.RatingSummary, error) {
	out := make(map[string]domain.RatingSummary, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var rows []ratingAggregate
	err := r.db.WithContext(ctx).
		Model(&db.Rating{}).
		Select("rated_user_id, AVG(score) AS average, COUNT(*) AS total").
		Where("rated_user_id IN ?", userIDs).
		Group("rated_user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.RatedUserID] = domain.RatingSummary{Average: row.Average, Count: row.Total}
	}
	return out, nil
}

// ListReceived returns the ratings a user received, newest first.
func (r *RatingRepository) ListReceived(ctx context.Context, userID string, limit int) ([]domain.Rating, error) {
	var rows []db.Rating
	err := r.db.WithContext(ctx).
		Where("rated_user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Rating, len(rows))
	for i, row := range rows {
		out[i] = domain.Rating{
			ID:             row.ID,
			RatedUserID:    row.RatedUserID,
			RaterUserID:    row.RaterUserID,
			ConversationID: row.ConversationID,
			Score:          row.Score,
			Comment:        row.Comment,
			ItemTitle:      row.ItemTitle,
			CreatedAt:      row.CreatedAt,
		}
	}
	return out, nil
}
