package models

import "time"

// Escrow is the server-side projection of a conversation's payment message.
// The plaintext delivery code lives only in the payment message; the
// projection keeps a bcrypt hash for verification.
type Escrow struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	ConversationID        uint       `gorm:"uniqueIndex;not null" json:"conversation_id"`
	DeliveryID            uint       `gorm:"uniqueIndex;not null" json:"delivery_id"`
	PaymentMessageID      uint       `gorm:"not null" json:"payment_message_id"`
	PaidByID              uint       `gorm:"not null;index" json:"paid_by_id"`
	Amount                int64      `gorm:"not null" json:"amount"`
	NetAmount             int64      `gorm:"not null" json:"net_amount"`
	PlatformFee           int64      `gorm:"not null" json:"platform_fee"`
	Currency              string     `gorm:"size:3;not null" json:"currency"`
	CodeHash              string     `gorm:"size:100;not null" json:"-"`
	Status                string     `gorm:"size:32;not null;index" json:"status"`
	ProviderRef           string     `gorm:"size:128;index" json:"provider_ref"`
	SettledByID           *uint      `json:"settled_by_id,omitempty"`
	SettledAt             *time.Time `json:"settled_at,omitempty"`
	ConfirmationMessageID *uint      `json:"confirmation_message_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (Escrow) TableName() string {
	return "escrows"
}

// CodeAttempt is the authoritative wrong-code counter for one escrow.
type CodeAttempt struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	ConversationID uint       `gorm:"not null;uniqueIndex:idx_attempt_scope,priority:1" json:"conversation_id"`
	EscrowID       uint       `gorm:"not null;uniqueIndex:idx_attempt_scope,priority:2" json:"escrow_id"`
	Attempts       int        `gorm:"not null;default:0" json:"attempts"`
	CooldownUntil  *time.Time `json:"cooldown_until"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (CodeAttempt) TableName() string {
	return "code_attempts"
}
