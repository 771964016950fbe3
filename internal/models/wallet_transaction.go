package models

import (
	"time"
)

// WalletTransaction is an append-only ledger line. ReferenceID is unique so a
// retried credit with the same reference is a no-op.
type WalletTransaction struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	AmountCents int64     `gorm:"not null" json:"amount_cents"` // positive = credit, negative = debit
	Description string    `gorm:"size:255" json:"description"`
	Category    string    `gorm:"size:30;not null;index" json:"category"`
	ReferenceID string    `gorm:"size:128;uniqueIndex;not null" json:"reference_id"`
	Metadata    string    `gorm:"type:text" json:"metadata"` // JSON
	CreatedAt   time.Time `json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
