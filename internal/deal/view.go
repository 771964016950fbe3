package deal

import (
	"context"
	"strings"
	"unicode/utf8"

	"parcelhop/internal/domain"
	"parcelhop/internal/envelope"
	"parcelhop/internal/models"

	"github.com/shopspring/decimal"
)

const maxTextLen = 2000

const (
	PaymentUnpaid               = "unpaid"
	PaymentAwaitingConfirmation = "awaiting_confirmation"
	PaymentSettled              = "settled"
)

// feedState is what a single pass over the feed tells us about the deal.
type feedState struct {
	pendingOffer    *models.ChatMessage
	pending         *envelope.Offer
	responded       map[uint]bool
	paymentMsg      *models.ChatMessage
	payment         *envelope.Payment
	confirmationMsg *models.ChatMessage
	confirmation    *envelope.DeliveryConfirmation
}

func scanFeed(msgs []models.ChatMessage) feedState {
	st := feedState{responded: make(map[uint]bool)}
	for i := range msgs {
		m := &msgs[i]
		switch m.MessageType {
		case domain.MessageTypeOfferAccepted, domain.MessageTypeOfferRejected:
			if m.ReplyToID != nil {
				st.responded[*m.ReplyToID] = true
			}
		case domain.MessageTypePayment:
			if st.paymentMsg == nil {
				if p, err := envelope.DecodePayment(m.Content); err == nil {
					st.paymentMsg, st.payment = m, p
				}
			}
		case domain.MessageTypeDeliveryConfirmation:
			if st.confirmationMsg == nil {
				if c, err := envelope.DecodeDeliveryConfirmation(m.Content); err == nil {
					st.confirmationMsg, st.confirmation = m, c
				}
			}
		}
	}
	// The newest offer without a response is the pending one.
	for i := len(msgs) - 1; i >= 0; i-- {
		m := &msgs[i]
		if m.MessageType != domain.MessageTypeOffer || st.responded[m.ID] {
			continue
		}
		o, err := envelope.DecodeOffer(m.Content)
		if err != nil || !o.Pending() {
			continue
		}
		st.pendingOffer, st.pending = m, o
		break
	}
	return st
}

// PendingOffer is an unanswered counter-offer as shown in the deal view.
type PendingOffer struct {
	MessageID     uint            `json:"message_id"`
	AuthorID      uint            `json:"author_id"`
	OriginalPrice int64           `json:"original_price"`
	Price         int64           `json:"price"`
	DeltaPercent  decimal.Decimal `json:"delta_percent"`
	Message       string          `json:"message,omitempty"`
}

type EscrowView struct {
	Amount       int64  `json:"amount"`
	NetAmount    int64  `json:"net_amount"`
	PlatformFee  int64  `json:"platform_fee"`
	Currency     string `json:"currency"`
	PaidByID     uint   `json:"paid_by_id"`
	DeliveryCode string `json:"delivery_code,omitempty"`
}

// DealView is the derived state of a conversation's deal for one viewer.
type DealView struct {
	ConversationID uint                           `json:"conversation_id"`
	DeliveryID     uint                           `json:"delivery_id"`
	Role           string                         `json:"role"`
	ListingPrice   int64                          `json:"listing_price"`
	AgreedPrice    int64                          `json:"agreed_price"`
	Currency       string                         `json:"currency"`
	PendingOffer   *PendingOffer                  `json:"pending_offer,omitempty"`
	PaymentStatus  string                         `json:"payment_status"`
	DeliveryStatus string                         `json:"delivery_status"`
	Escrow         *EscrowView                    `json:"escrow,omitempty"`
	Confirmation   *envelope.DeliveryConfirmation `json:"confirmation,omitempty"`
	CodeNotice     *Notice                        `json:"code_notice,omitempty"`
}

// Messages returns the conversation feed as viewerID may see it.
func (s *Service) Messages(ctx context.Context, conversationID, viewerID uint) ([]models.ChatMessage, error) {
	conv, _, err := s.participant(ctx, conversationID, viewerID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.feed.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, transientError("load messages", err)
	}
	return envelope.ForViewerAll(msgs, viewerID), nil
}

// View derives the deal state from the feed, with the escrow projection only
// consulted for the attempt notice.
func (s *Service) View(ctx context.Context, conversationID, viewerID uint) (*DealView, error) {
	conv, listing, err := s.participant(ctx, conversationID, viewerID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.feed.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, transientError("load messages", err)
	}
	st := scanFeed(msgs)

	currency := listing.Currency
	if currency == "" {
		currency = s.currency
	}
	v := &DealView{
		ConversationID: conv.ID,
		DeliveryID:     listing.ID,
		Role:           conv.RoleOf(viewerID, listing.Type),
		ListingPrice:   listing.Price,
		AgreedPrice:    AgreedPrice(msgs, listing),
		Currency:       currency,
		PaymentStatus:  PaymentUnpaid,
		DeliveryStatus: listing.Status,
	}
	if v.DeliveryStatus == "" {
		v.DeliveryStatus = domain.ListingStatusOpen
	}
	if st.pending != nil && st.payment == nil {
		v.PendingOffer = &PendingOffer{
			MessageID:     st.pendingOffer.ID,
			AuthorID:      st.pendingOffer.SenderID,
			OriginalPrice: st.pending.OriginalPrice,
			Price:         st.pending.Price,
			DeltaPercent:  st.pending.DeltaPercent(),
			Message:       st.pending.Message,
		}
	}
	if st.payment == nil {
		return v, nil
	}

	v.PaymentStatus = PaymentAwaitingConfirmation
	v.Escrow = &EscrowView{
		Amount:      st.payment.Amount,
		NetAmount:   st.payment.NetAmount,
		PlatformFee: st.payment.PlatformFee,
		Currency:    st.payment.Currency,
		PaidByID:    st.payment.PaidByID,
	}
	if viewerID == st.payment.PaidByID {
		v.Escrow.DeliveryCode = st.payment.DeliveryCode
	}
	if st.confirmation != nil {
		v.PaymentStatus = PaymentSettled
		v.Confirmation = st.confirmation
		return v, nil
	}

	if viewerID != st.payment.PaidByID {
		escrow, err := s.escrowFor(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		if escrow != nil {
			n := Notice{Kind: NoticeNone}
			a, err := s.escrows.GetAttempts(ctx, conv.ID, escrow.ID)
			if err == nil && a != nil {
				n = NoticeFor(AttemptState{Attempts: a.Attempts, CooldownUntil: a.CooldownUntil}, s.now())
			}
			v.CodeNotice = &n
		}
	}
	return v, nil
}

// PostText appends a plain chat message.
func (s *Service) PostText(ctx context.Context, conversationID, senderID uint, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationError("message cannot be empty")
	}
	if utf8.RuneCountInString(text) > maxTextLen {
		return nil, validationError("message is too long")
	}
	conv, _, err := s.participant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	m := &models.ChatMessage{
		ConversationID: conv.ID,
		SenderID:       senderID,
		MessageType:    domain.MessageTypeText,
		Content:        text,
	}
	if err := s.feed.AppendMessage(ctx, m); err != nil {
		return nil, transientError("append message", err)
	}
	s.publish(m)
	return m, nil
}
