package repository

import (
	"context"

	"parcelhop/internal/models"

	"gorm.io/gorm"
)

type ListingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// GetListing excludes soft-deleted listings.
func (r *ListingRepository) GetListing(ctx context.Context, id uint) (*models.DeliveryListing, error) {
	var l models.DeliveryListing
	err := conn(ctx, r.db).First(&l, id).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// UpdateListingStatus sets status and, when receiverID is non-nil, the
// receiving party.
func (r *ListingRepository) UpdateListingStatus(ctx context.Context, id uint, status string, receiverID *uint) error {
	updates := map[string]interface{}{"status": status}
	if receiverID != nil {
		updates["receiver_id"] = *receiverID
	}
	res := conn(ctx, r.db).Model(&models.DeliveryListing{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
