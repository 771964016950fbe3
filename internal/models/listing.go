package models

import (
	"time"

	"parcelhop/internal/domain"

	"gorm.io/gorm"
)

// DeliveryListing is owned by the listings subsystem. The deal service only
// reads it and moves its status forward on payment and settlement.
type DeliveryListing struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Type       string         `gorm:"size:16;not null;index" json:"type"` // request | offer
	Price      int64          `gorm:"not null" json:"price"`
	Currency   string         `gorm:"size:3;default:'KES'" json:"currency"`
	SenderID   uint           `gorm:"not null;index" json:"sender_id"`
	Title      string         `gorm:"size:255" json:"title"`
	Status     string         `gorm:"size:32;not null;default:'open';index" json:"status"`
	ReceiverID *uint          `gorm:"index" json:"receiver_id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (DeliveryListing) TableName() string {
	return "delivery_listings"
}

func (l *DeliveryListing) IsRequest() bool { return l.Type == domain.ListingTypeRequest }
