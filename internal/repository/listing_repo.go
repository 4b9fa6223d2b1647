package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oggyb/swap-market/internal/db"
	"github.com/oggyb/swap-market/internal/domain"
)

// ListingRepository provides data access for listings.
type ListingRepository struct {
	db *gorm.DB
}

func NewListingRepository(database *gorm.DB) *ListingRepository {
	return &ListingRepository{db: database}
}

// Create inserts a new listing row.
func (r *ListingRepository) Create(ctx context.Context, l domain.Listing) error {
	row := listingRow(l)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translate(err)
	}
	return nil
}

// Get loads one listing. The conversation flag is not populated here.
func (r *ListingRepository) Get(ctx context.Context, id string) (domain.Listing, error) {
	var row db.Listing
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return domain.Listing{}, translate(err)
	}
	return listingFromRow(row), nil
}

// ListActive returns every listing in status active, newest first.
func (r *ListingRepository) ListActive(ctx context.Context) ([]domain.Listing, error) {
	var rows []db.Listing
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.ListingActive)).
		Order("created_at DESC, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Listing, len(rows))
	for i, row := range rows {
		out[i] = listingFromRow(row)
	}
	return out, nil
}

// UpdateStatus moves a listing along its lifecycle.
//
// Behavior:
//   - Only the owner may change the status (ErrForbidden).
//   - The update is conditional on the status read, so a concurrent change
//     surfaces as ErrInvalidTransition instead of being overwritten.
func (r *ListingRepository) UpdateStatus(ctx context.Context, id, ownerID string, next domain.ListingStatus) (domain.Listing, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return domain.Listing{}, err
	}
	if current.OwnerID != ownerID {
		return domain.Listing{}, fmt.Errorf("%w: listing %s belongs to another user", domain.ErrForbidden, id)
	}
	if !current.Status.CanTransitionTo(next) {
		return domain.Listing{}, fmt.Errorf("%w: listing %s -> %s", domain.ErrInvalidTransition, current.Status, next)
	}

	res := r.db.WithContext(ctx).
		Model(&db.Listing{}).
		Where("id = ? AND status = ?", id, string(current.Status)).
		Update("status", string(next))
	if res.Error != nil {
		return domain.Listing{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Listing{}, fmt.Errorf("%w: listing %s changed concurrently", domain.ErrInvalidTransition, id)
	}
	current.Status = next
	return current, nil
}

// IncrementViews bumps the monotonic view counter and returns the new value.
func (r *ListingRepository) IncrementViews(ctx context.Context, id string) (int64, error) {
	return r.increment(ctx, id, "views")
}

// IncrementLikes bumps the monotonic like counter and returns the new value.
func (r *ListingRepository) IncrementLikes(ctx context.Context, id string) (int64, error) {
	return r.increment(ctx, id, "likes")
}

func (r *ListingRepository) increment(ctx context.Context, id, column string) (int64, error) {
	var value int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.Listing{}).
			Where("id = ?", id).
			UpdateColumn(column, gorm.Expr(column+" + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return tx.Model(&db.Listing{}).Where("id = ?", id).Select(column).Scan(&value).Error
	})
	return value, err
}

// Delete removes a listing owned by ownerID.
func (r *ListingRepository) Delete(ctx context.Context, id, ownerID string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Delete(&db.Listing{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func listingRow(l domain.Listing) db.Listing {
	row := db.Listing{
		ID:          l.ID,
		OwnerID:     l.OwnerID,
		Title:       l.Title,
		Description: l.Description,
		Category:    l.Category,
		Condition:   l.Condition,
		Location:    l.Location,
		Images:      l.Images,
		WantedItems: l.WantedItems,
		Status:      string(l.Status),
		Views:       l.Views,
		Likes:       l.Likes,
		CreatedAt:   l.CreatedAt,
	}
	if l.Price != nil {
		row.Price = decimal.NullDecimal{Decimal: *l.Price, Valid: true}
	}
	if l.Coordinates != nil {
		lat, lon := l.Coordinates.Lat, l.Coordinates.Lon
		row.Latitude, row.Longitude = &lat, &lon
	}
	return row
}

func listingFromRow(row db.Listing) domain.Listing {
	l := domain.Listing{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Title:       row.Title,
		Description: row.Description,
		Category:    row.Category,
		Condition:   row.Condition,
		Location:    row.Location,
		Images:      row.Images,
		WantedItems: row.WantedItems,
		Status:      domain.ListingStatus(row.Status),
		Views:       row.Views,
		Likes:       row.Likes,
		CreatedAt:   row.CreatedAt,
	}
	if row.Price.Valid {
		p := row.Price.Decimal
		l.Price = &p
	}
	if row.Latitude != nil && row.Longitude != nil {
		l.Coordinates = &domain.Coordinates{Lat: *row.Latitude, Lon: *row.Longitude}
	}
	return l
}

// translate maps gorm errors onto domain sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", domain.ErrDuplicate, err)
	}
	return err
}
