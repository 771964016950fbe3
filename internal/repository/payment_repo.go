package repository

import (
	"context"

	"parcelhop/internal/models"

	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	return conn(ctx, r.db).Create(p).Error
}

// GetByProviderRef looks a checkout up by the gateway's order reference.
func (r *PaymentRepository) GetByProviderRef(ctx context.Context, ref string) (*models.Payment, error) {
	var p models.Payment
	if err := conn(ctx, r.db).Where("provider_ref = ?", ref).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPendingForConversation returns the payer's open checkout, if any.
func (r *PaymentRepository) GetPendingForConversation(ctx context.Context, conversationID, userID uint) (*models.Payment, error) {
	var p models.Payment
	err := conn(ctx, r.db).Where("conversation_id = ? AND user_id = ? AND status = ?", conversationID, userID, "PENDING").
		Order("created_at DESC").First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) Update(ctx context.Context, p *models.Payment) error {
	return conn(ctx, r.db).Save(p).Error
}
