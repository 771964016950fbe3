package repository

import (
	"context"

	"parcelhop/internal/models"

	"gorm.io/gorm"
)

// ConversationRepository is the conversation feed: conversations and their
// append-only messages.
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) GetConversation(ctx context.Context, id uint) (*models.Conversation, error) {
	var c models.Conversation
	err := conn(ctx, r.db).First(&c, id).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListForUser returns the conversations userID takes part in, newest first.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID uint, limit int) ([]models.Conversation, error) {
	var list []models.Conversation
	err := conn(ctx, r.db).Where("owner_id = ? OR counterparty_id = ?", userID, userID).
		Order("updated_at DESC").Limit(limit).Find(&list).Error
	return list, err
}

// AppendMessage inserts m; rows in chat_messages are never updated.
func (r *ConversationRepository) AppendMessage(ctx context.Context, m *models.ChatMessage) error {
	db := conn(ctx, r.db)
	if err := db.Create(m).Error; err != nil {
		return err
	}
	return db.Model(&models.Conversation{}).Where("id = ?", m.ConversationID).
		Update("updated_at", m.CreatedAt).Error
}

// ListMessages returns the feed in append order.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID uint) ([]models.ChatMessage, error) {
	var list []models.ChatMessage
	err := conn(ctx, r.db).Where("conversation_id = ?", conversationID).
		Order("id ASC").Find(&list).Error
	return list, err
}

func (r *ConversationRepository) GetMessage(ctx context.Context, id uint) (*models.ChatMessage, error) {
	var m models.ChatMessage
	err := conn(ctx, r.db).First(&m, id).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}
