package service

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Undelivered deal pushes are dropped after pushTTL.
const pushTTL = 6 * time.Hour

// FCMService delivers deal notifications through Firebase Cloud Messaging.
type FCMService struct {
	client *messaging.Client
}

// NewFCMService returns nil when no service account is configured or the
// Firebase app cannot be initialised.
func NewFCMService(serviceAccountPath string) *FCMService {
	if serviceAccountPath == "" {
		return nil
	}
	ctx := context.Background()
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(serviceAccountPath))
	if err != nil {
		log.Printf("[FCM] init app: %v", err)
		return nil
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		log.Printf("[FCM] messaging client: %v", err)
		return nil
	}
	return &FCMService{client: client}
}

// SendToUser implements Pusher. Notifications for one conversation share a
// collapse key and thread so the device shows the latest deal event only.
func (s *FCMService) SendToUser(ctx context.Context, fcmToken string, notifType, title, body string, data map[string]interface{}) error {
	if s == nil || fcmToken == "" {
		return nil
	}
	payload := pushData(notifType, data)
	thread := "conversation-" + payload["conversation_id"]
	ttl := pushTTL
	msg := &messaging.Message{
		Token:        fcmToken,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         payload,
		Android: &messaging.AndroidConfig{
			Priority:     "high",
			CollapseKey:  thread,
			TTL:          &ttl,
			Notification: &messaging.AndroidNotification{Sound: "default", Tag: thread},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default", ThreadID: thread},
			},
		},
	}
	if _, err := s.client.Send(ctx, msg); err != nil {
		log.Printf("[FCM] send %s: %v", notifType, err)
		return err
	}
	return nil
}

// pushData flattens notification data to the string map FCM requires.
// Integers are formatted in base 10; anything else is JSON encoded.
func pushData(notifType string, data map[string]interface{}) map[string]string {
	out := map[string]string{"type": notifType}
	for k, v := range data {
		switch val := v.(type) {
		case string:
			out[k] = val
		case uint:
			out[k] = strconv.FormatUint(uint64(val), 10)
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}
