package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"parcelhop/internal/models"
	"parcelhop/internal/repository"
)

// Pusher delivers a push to one device token. *FCMService implements it.
type Pusher interface {
	SendToUser(ctx context.Context, fcmToken string, notifType, title, body string, data map[string]interface{}) error
}

// NotificationService persists deal notifications and pushes them to the
// recipient's device. It implements deal.Notifier.
type NotificationService struct {
	repo     *repository.NotificationRepository
	userRepo *repository.UserRepository
	push     Pusher
}

func NewNotificationService(repo *repository.NotificationRepository, userRepo *repository.UserRepository, push Pusher) *NotificationService {
	return &NotificationService{repo: repo, userRepo: userRepo, push: push}
}

func (s *NotificationService) Notify(userID uint, notifType, title, body string, data map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var dataJSON string
	if data != nil {
		b, _ := json.Marshal(data)
		dataJSON = string(b)
	}
	err := s.repo.Create(ctx, &models.Notification{
		UserID: userID,
		Type:   notifType,
		Title:  title,
		Body:   body,
		Data:   dataJSON,
	})
	if err != nil {
		return err
	}
	s.sendPush(ctx, userID, notifType, title, body, data)
	return nil
}

func (s *NotificationService) sendPush(ctx context.Context, userID uint, notifType, title, body string, data map[string]interface{}) {
	if s.push == nil || s.userRepo == nil {
		return
	}
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil || u == nil || u.FCMToken == "" {
		return
	}
	if err := s.push.SendToUser(ctx, u.FCMToken, notifType, title, body, data); err != nil {
		log.Printf("[notify] push %s to user %d failed: %v", notifType, userID, err)
	}
}

// NotifyCheckoutFailed tells the payer their gateway checkout did not complete.
func (s *NotificationService) NotifyCheckoutFailed(userID, conversationID uint, reference string) error {
	return s.Notify(userID, "CHECKOUT_FAILED", "Payment failed", "Your payment did not go through. You can try again from the conversation.",
		map[string]interface{}{"conversation_id": conversationID, "reference": reference})
}
