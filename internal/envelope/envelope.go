// Package envelope defines the typed deal payloads that travel as JSON in the
// content of a generic chat message. The JSON field names are the wire
// format shared with existing clients and must not change.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"parcelhop/internal/domain"
	"parcelhop/internal/models"

	"github.com/shopspring/decimal"
)

// Content discriminators (the "type" field inside the JSON content).
const (
	TypeOffer                = "offer"
	TypePayment              = "payment"
	TypeDeliveryConfirmation = "deliveryConfirmation"
)

const (
	OfferStatusAccepted = "accepted"
	OfferStatusRejected = "rejected"
)

const (
	PaymentStatusCompleted = "completed"
	PaymentStatusPending   = "pending"
)

var (
	ErrUnknownType  = errors.New("envelope: unknown content type")
	ErrTypeMismatch = errors.New("envelope: content type does not match")
)

type Offer struct {
	Type          string `json:"type"`
	DeliveryID    uint   `json:"deliveryId"`
	OriginalPrice int64  `json:"originalPrice"`
	Price         int64  `json:"price"`
	Currency      string `json:"currency"`
	Message       string `json:"message,omitempty"`
	Status        string `json:"status,omitempty"`
}

// Pending reports whether the offer content carries no response status.
func (o *Offer) Pending() bool { return o.Status == "" }

// DeltaPercent is the change of Price against the list price, in percent,
// rounded to one decimal. Counter-offers always compare to the list price.
func (o *Offer) DeltaPercent() decimal.Decimal {
	if o.OriginalPrice == 0 {
		return decimal.Zero
	}
	diff := decimal.NewFromInt(o.Price - o.OriginalPrice)
	return diff.Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(o.OriginalPrice)).Round(1)
}

// Payment is the escrow record. DeliveryCode is always present in storage;
// omitempty only applies to redacted copies rendered to non-payers.
type Payment struct {
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	NetAmount    int64     `json:"netAmount"`
	PlatformFee  int64     `json:"platformFee"`
	Currency     string    `json:"currency"`
	DeliveryCode string    `json:"deliveryCode,omitempty"`
	PaidBy       string    `json:"paidBy"`
	PaidByID     uint      `json:"paidById"`
	Status       string    `json:"status"`
	PaidAt       time.Time `json:"paidAt"`
}

// Balanced checks amount = netAmount + platformFee.
func (p *Payment) Balanced() bool {
	return p.Amount == p.NetAmount+p.PlatformFee
}

type DeliveryConfirmation struct {
	Type                string    `json:"type"`
	DeliveryID          uint      `json:"deliveryId"`
	ConfirmedByID       uint      `json:"confirmedById"`
	ConfirmedAt         time.Time `json:"confirmedAt"`
	GrossAmount         int64     `json:"grossAmount"`
	PlatformFee         int64     `json:"platformFee"`
	PaymentAmount       int64     `json:"paymentAmount"`
	CreditTransactionID uint      `json:"creditTransactionId"`
	NewBalance          int64     `json:"newBalance"`
}

// Encode marshals a payload into message content.
func Encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("envelope: encode: %w", err)
	}
	return string(b), nil
}

// Decode returns *Offer, *Payment or *DeliveryConfirmation depending on the
// content's type discriminator.
func Decode(content string) (any, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(content), &head); err != nil {
		return nil, fmt.Errorf("envelope: decode: %w", err)
	}
	var v any
	switch head.Type {
	case TypeOffer:
		v = &Offer{}
	case TypePayment:
		v = &Payment{}
	case TypeDeliveryConfirmation:
		v = &DeliveryConfirmation{}
	default:
		return nil, ErrUnknownType
	}
	if err := json.Unmarshal([]byte(content), v); err != nil {
		return nil, fmt.Errorf("envelope: decode %s: %w", head.Type, err)
	}
	return v, nil
}

func DecodeOffer(content string) (*Offer, error) {
	v, err := Decode(content)
	if err != nil {
		return nil, err
	}
	o, ok := v.(*Offer)
	if !ok {
		return nil, ErrTypeMismatch
	}
	return o, nil
}

func DecodePayment(content string) (*Payment, error) {
	v, err := Decode(content)
	if err != nil {
		return nil, err
	}
	p, ok := v.(*Payment)
	if !ok {
		return nil, ErrTypeMismatch
	}
	return p, nil
}

func DecodeDeliveryConfirmation(content string) (*DeliveryConfirmation, error) {
	v, err := Decode(content)
	if err != nil {
		return nil, err
	}
	d, ok := v.(*DeliveryConfirmation)
	if !ok {
		return nil, ErrTypeMismatch
	}
	return d, nil
}

// IsDealMessage reports whether a chat message type carries an envelope.
func IsDealMessage(messageType string) bool {
	switch messageType {
	case domain.MessageTypeOffer, domain.MessageTypeOfferAccepted, domain.MessageTypeOfferRejected,
		domain.MessageTypePayment, domain.MessageTypeDeliveryConfirmation:
		return true
	}
	return false
}

// ForViewer returns the message as viewerID may see it. The delivery code in
// a payment message is stripped for everyone but the payer; if the content
// cannot be decoded it is dropped entirely.
func ForViewer(m models.ChatMessage, viewerID uint) models.ChatMessage {
	if m.MessageType != domain.MessageTypePayment {
		return m
	}
	p, err := DecodePayment(m.Content)
	if err != nil {
		m.Content = ""
		return m
	}
	if p.PaidByID == viewerID {
		return m
	}
	p.DeliveryCode = ""
	content, err := Encode(p)
	if err != nil {
		content = ""
	}
	m.Content = content
	return m
}

// ForViewerAll applies ForViewer to a whole feed.
func ForViewerAll(list []models.ChatMessage, viewerID uint) []models.ChatMessage {
	out := make([]models.ChatMessage, len(list))
	for i, m := range list {
		out[i] = ForViewer(m, viewerID)
	}
	return out
}
