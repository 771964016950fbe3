package models

import (
	"time"

	"parcelhop/internal/domain"
)

// Conversation is one chat about one delivery between the listing's sender
// (Owner) and the other party (Counterparty).
type Conversation struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	DeliveryID     uint      `gorm:"not null;index" json:"delivery_id"`
	OwnerID        uint      `gorm:"not null;index" json:"owner_id"`
	CounterpartyID uint      `gorm:"not null;index" json:"counterparty_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Listing DeliveryListing `gorm:"foreignKey:DeliveryID" json:"-"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c *Conversation) IsParticipant(userID uint) bool {
	return userID != 0 && (userID == c.OwnerID || userID == c.CounterpartyID)
}

// PayerID returns who funds the escrow: the sender of a request listing, or
// the counterparty of a traveler's offer listing.
func (c *Conversation) PayerID(listingType string) uint {
	if listingType == domain.ListingTypeRequest {
		return c.OwnerID
	}
	return c.CounterpartyID
}

// DelivererID is the participant that is not the payer.
func (c *Conversation) DelivererID(listingType string) uint {
	if c.PayerID(listingType) == c.OwnerID {
		return c.CounterpartyID
	}
	return c.OwnerID
}

// RoleOf returns domain.RolePayer, domain.RoleDeliverer or "" for outsiders.
func (c *Conversation) RoleOf(userID uint, listingType string) string {
	switch {
	case !c.IsParticipant(userID):
		return ""
	case userID == c.PayerID(listingType):
		return domain.RolePayer
	default:
		return domain.RoleDeliverer
	}
}

// ChatMessage is an append-only entry in a conversation feed. Deal messages
// carry a JSON envelope in Content; plain chat carries text.
type ChatMessage struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"not null;index:idx_feed,priority:1" json:"conversation_id"`
	SenderID       uint      `gorm:"not null;index" json:"sender_id"`
	MessageType    string    `gorm:"size:32;not null;index" json:"message_type"`
	Content        string    `gorm:"type:text" json:"content"`
	ReplyToID      *uint     `gorm:"index" json:"reply_to_id,omitempty"`
	CreatedAt      time.Time `gorm:"index:idx_feed,priority:2" json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
