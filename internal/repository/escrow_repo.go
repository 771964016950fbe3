package repository

import (
	"context"
	"errors"
	"time"

	"parcelhop/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EscrowRepository struct {
	db *gorm.DB
}

func NewEscrowRepository(db *gorm.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

func (r *EscrowRepository) GetEscrow(ctx context.Context, conversationID uint) (*models.Escrow, error) {
	var e models.Escrow
	err := conn(ctx, r.db).Where("conversation_id = ?", conversationID).First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEscrowForUpdate locks the escrow row until the surrounding transaction ends.
func (r *EscrowRepository) GetEscrowForUpdate(ctx context.Context, conversationID uint) (*models.Escrow, error) {
	var e models.Escrow
	err := conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("conversation_id = ?", conversationID).First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EscrowRepository) CreateEscrow(ctx context.Context, e *models.Escrow) error {
	return conn(ctx, r.db).Create(e).Error
}

func (r *EscrowRepository) UpdateEscrow(ctx context.Context, e *models.Escrow) error {
	return conn(ctx, r.db).Save(e).Error
}

func (r *EscrowRepository) GetAttempts(ctx context.Context, conversationID, escrowID uint) (*models.CodeAttempt, error) {
	var a models.CodeAttempt
	err := conn(ctx, r.db).Where("conversation_id = ? AND escrow_id = ?", conversationID, escrowID).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// LoadAttemptsForUpdate locks the attempt row, creating it at zero on first use.
func (r *EscrowRepository) LoadAttemptsForUpdate(ctx context.Context, conversationID, escrowID uint) (*models.CodeAttempt, error) {
	db := conn(ctx, r.db)
	var a models.CodeAttempt
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("conversation_id = ? AND escrow_id = ?", conversationID, escrowID).First(&a).Error
	if err == nil {
		return &a, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	a = models.CodeAttempt{ConversationID: conversationID, EscrowID: escrowID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&a).Error; err != nil {
		return nil, err
	}
	// Another instance may have won the insert; read the row it created.
	err = db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("conversation_id = ? AND escrow_id = ?", conversationID, escrowID).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *EscrowRepository) SaveAttempts(ctx context.Context, a *models.CodeAttempt) error {
	a.UpdatedAt = time.Now()
	return conn(ctx, r.db).Model(&models.CodeAttempt{}).Where("id = ?", a.ID).Updates(map[string]interface{}{
		"attempts":       a.Attempts,
		"cooldown_until": a.CooldownUntil,
		"updated_at":     a.UpdatedAt,
	}).Error
}
