package repository

import (
	"context"
	"time"

	"parcelhop/internal/models"

	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return conn(ctx, r.db).Create(n).Error
}

func (r *NotificationRepository) ListByUserID(ctx context.Context, userID uint, limit, offset int) ([]models.Notification, error) {
	var list []models.Notification
	err := conn(ctx, r.db).Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&models.Notification{}).Where("user_id = ? AND read_at IS NULL", userID).Count(&n).Error
	return n, err
}

// MarkRead returns gorm.ErrRecordNotFound when the notification does not
// belong to userID. Marking an already read notification is a no-op.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID uint) error {
	var n models.Notification
	if err := conn(ctx, r.db).Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
		return err
	}
	if n.ReadAt != nil {
		return nil
	}
	return conn(ctx, r.db).Model(&n).Update("read_at", time.Now()).Error
}

// MarkAllRead stamps every unread notification of userID and reports how many changed.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := conn(ctx, r.db).Model(&models.Notification{}).Where("user_id = ? AND read_at IS NULL", userID).Update("read_at", time.Now())
	return res.RowsAffected, res.Error
}
