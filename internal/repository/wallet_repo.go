package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"parcelhop/internal/domain"
	"parcelhop/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrReferenceConflict = errors.New("reference already used for a different credit")
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error) {
	var w models.Wallet
	err := conn(ctx, r.db).Where("user_id = ?", userID).First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepository) GetOrCreate(ctx context.Context, userID uint) (*models.Wallet, error) {
	w, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	w = &models.Wallet{UserID: userID, BalanceCents: 0, Currency: domain.DefaultCurrency}
	if err := conn(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(w).Error; err != nil {
		return nil, err
	}
	return r.GetByUserID(ctx, userID)
}

// Credit posts a ledger line and raises the balance in one transaction. A
// second call with the same referenceID returns the original line and the
// current balance without crediting again.
func (r *WalletRepository) Credit(ctx context.Context, userID uint, amountCents int64, description, category, referenceID string, metadata map[string]interface{}) (*models.WalletTransaction, int64, error) {
	if amountCents <= 0 {
		return nil, 0, ErrInvalidAmount
	}
	if referenceID == "" {
		return nil, 0, errors.New("reference id is required")
	}
	meta := ""
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return nil, 0, fmt.Errorf("encode metadata: %w", err)
		}
		meta = string(b)
	}

	var (
		line    *models.WalletTransaction
		balance int64
	)
	err := withTx(ctx, r.db, func(tx *gorm.DB) error {
		w, err := lockWallet(tx, userID)
		if err != nil {
			return err
		}
		var existing models.WalletTransaction
		err = tx.Where("reference_id = ?", referenceID).First(&existing).Error
		if err == nil {
			if existing.UserID != userID || existing.AmountCents != amountCents {
				return ErrReferenceConflict
			}
			line, balance = &existing, w.BalanceCents
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		line = &models.WalletTransaction{
			UserID:      userID,
			AmountCents: amountCents,
			Description: description,
			Category:    category,
			ReferenceID: referenceID,
			Metadata:    meta,
		}
		if err := tx.Create(line).Error; err != nil {
			return err
		}
		balance = w.BalanceCents + amountCents
		return tx.Model(&models.Wallet{}).Where("id = ?", w.ID).Update("balance_cents", balance).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return line, balance, nil
}

// lockWallet returns the user's wallet row locked for update, creating it first if needed.
func lockWallet(tx *gorm.DB, userID uint) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&w).Error
	if err == nil {
		return &w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	w = models.Wallet{UserID: userID, Currency: domain.DefaultCurrency}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&w).Error; err != nil {
		return nil, err
	}
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepository) ListTransactions(ctx context.Context, userID uint, limit, offset int) ([]models.WalletTransaction, int64, error) {
	db := conn(ctx, r.db).Model(&models.WalletTransaction{}).Where("user_id = ?", userID)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.WalletTransaction
	err := conn(ctx, r.db).Where("user_id = ?", userID).Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}
