package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/swap-market/internal/db"
	"github.com/oggyb/swap-market/internal/domain"
	"github.com/oggyb/swap-market/internal/utils/pagination"
)

// ConversationRepository stores matched pairings and their lifecycle.
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(database *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: database}
}

// Create inserts a conversation.
//
// Behavior:
//   - Non-rejected conversations carry an active_key; the unique index makes a
//     second open conversation for the same listing and pair fail with ErrDuplicate.
func (r *ConversationRepository) Create(ctx context.Context, c domain.Conversation) error {
	row := conversationRow(c)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translate(err)
	}
	return nil
}

// Get loads a conversation by id.
func (r *ConversationRepository) Get(ctx context.Context, id string) (domain.Conversation, error) {
	var row db.Conversation
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return domain.Conversation{}, translate(err)
	}
	return conversationFromRow(row), nil
}

// FindOpen returns the non-rejected conversation for (listing, {a, b}), if any.
func (r *ConversationRepository) FindOpen(ctx context.Context, listingID, a, b string) (domain.Conversation, error) {
	var row db.Conversation
	err := r.db.WithContext(ctx).
		Where("active_key = ?", domain.ConversationKey(listingID, a, b)).
		First(&row).Error
	if err != nil {
		return domain.Conversation{}, translate(err)
	}
	return conversationFromRow(row), nil
}

// UpdateStatus performs a compare-and-set from -> to.
//
// Behavior:
//   - Zero affected rows means someone else moved the conversation first: ErrInvalidTransition.
//   - Moving to rejected releases the active_key so the pair can match again.
func (r *ConversationRepository) UpdateStatus(ctx context.Context, id string, from, to domain.ConversationStatus) error {
	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": r.db.NowFunc(),
	}
	if to == domain.ConversationRejected {
		updates["active_key"] = gorm.Expr("NULL")
	}

	res := r.db.WithContext(ctx).
		Model(&db.Conversation{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: conversation %s is no longer %s", domain.ErrInvalidTransition, id, from)
	}
	return nil
}

// OpenListingIDs returns the set of listing ids that have at least one
// non-rejected conversation, in a single query. With no ids it covers
// every active listing.
func (r *ConversationRepository) OpenListingIDs(ctx context.Context, listingIDs ...string) (map[string]bool, error) {
	query := r.db.WithContext(ctx).
		Model(&db.Conversation{}).
		Distinct().
		Where("conversations.active_key IS NOT NULL")

	if len(listingIDs) > 0 {
		query = query.Where("conversations.listing_id IN ?", listingIDs)
	} else {
		query = query.
			Joins("JOIN listings ON listings.id = conversations.listing_id").
			Where("listings.status = ?", string(domain.ListingActive))
	}

	var ids []string
	if err := query.Pluck("conversations.listing_id", &ids).Error; err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// ListForUser returns conversations the user participates in.
//
// Behavior:
//   - Ordered by updated_at DESC, id DESC.
//   - Rejected conversations are only included when includeRejected is set.
//   - Supports cursor-based pagination via paginationToken.
func (r *ConversationRepository) ListForUser(
	ctx context.Context,
	userID string,
	includeRejected bool,
	paginationToken *string,
	limit int,
) ([]domain.Conversation, *string, error) {
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	query := r.db.WithContext(ctx).
		Model(&db.Conversation{}).
		Where("(user1_id = ? OR user2_id = ?)", userID, userID).
		Order("updated_at DESC, id DESC").
		Limit(limit + 1)
	if !includeRejected {
		query = query.Where("status <> ?", string(domain.ConversationRejected))
	}

	// apply cursor
	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.UpdatedUnix).UTC()
		query = query.Where("(updated_at < ? OR (updated_at = ? AND id < ?))", ts, ts, cursor.ID)
	}

	var rows []db.Conversation
	if err := query.Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(rows) > limit {
		last := rows[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ID:          last.ID,
			UpdatedUnix: last.UpdatedAt.UnixMilli(),
		})
		nextToken = &token
		rows = rows[:limit]
	}

	out := make([]domain.Conversation, len(rows))
	for i, row := range rows {
		out[i] = conversationFromRow(row)
	}
	return out, nextToken, nil
}

func conversationRow(c domain.Conversation) db.Conversation {
	row := db.Conversation{
		ID:        c.ID,
		ListingID: c.ListingID,
		ItemTitle: c.ItemTitle,
		User1ID:   c.User1ID,
		User2ID:   c.User2ID,
		OwnerID:   c.OwnerID,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.Status != domain.ConversationRejected {
		key := c.Key()
		row.ActiveKey = &key
	}
	return row
}

func conversationFromRow(row db.Conversation) domain.Conversation {
	return domain.Conversation{
		ID:        row.ID,
		ListingID: row.ListingID,
		ItemTitle: row.ItemTitle,
		User1ID:   row.User1ID,
		User2ID:   row.User2ID,
		OwnerID:   row.OwnerID,
		Status:    domain.ConversationStatus(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
