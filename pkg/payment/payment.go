package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// CheckoutRequest asks the gateway to collect AmountCents from the payer for
// one conversation.
type CheckoutRequest struct {
	UserID         uint
	ConversationID uint
	AmountCents    int64
	Currency       string
	IdempotencyKey string
	Description    string
	ExpiresIn      time.Duration
	OrderID        string // echoed back by the gateway as the webhook reference
	CustomerEmail  string
	CallbackURL    string
}

type CheckoutResponse struct {
	Reference   string
	Status      string
	CheckoutURL string
	ExpiresAt   time.Time
}

type Provider interface {
	Name() string
	InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error)
}

// Sign returns the hex HMAC-SHA256 of body, as sent in X-Webhook-Signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares signature against Sign(secret, body) in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(Sign(secret, body)))
}
