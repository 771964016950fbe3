package deal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"parcelhop/internal/domain"
	"parcelhop/internal/envelope"
	"parcelhop/internal/metrics"
	"parcelhop/internal/models"

	"gorm.io/gorm"
)

const maxOfferNoteLen = 500

const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

// SubmitOffer appends a counter-offer. originalPrice is always the listing's
// current price, never a previous counter.
func (s *Service) SubmitOffer(ctx context.Context, conversationID, authorID uint, price int64, note string) (*models.ChatMessage, error) {
	if price <= 0 {
		return nil, validationError("price must be a positive amount")
	}
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > maxOfferNoteLen {
		return nil, validationError(fmt.Sprintf("message must be at most %d characters", maxOfferNoteLen))
	}

	mu := s.conversationLock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	conv, listing, err := s.participant(ctx, conversationID, authorID)
	if err != nil {
		return nil, err
	}
	escrow, err := s.escrowFor(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if escrow != nil {
		return nil, conflictError(MsgAlreadyPaid)
	}
	msgs, err := s.feed.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, transientError("load messages", err)
	}
	if st := scanFeed(msgs); st.pendingOffer != nil {
		return nil, conflictError(MsgOfferPending)
	}

	currency := listing.Currency
	if currency == "" {
		currency = s.currency
	}
	content, err := envelope.Encode(envelope.Offer{
		Type:          envelope.TypeOffer,
		DeliveryID:    listing.ID,
		OriginalPrice: listing.Price,
		Price:         price,
		Currency:      currency,
		Message:       note,
	})
	if err != nil {
		return nil, err
	}
	m := &models.ChatMessage{
		ConversationID: conv.ID,
		SenderID:       authorID,
		MessageType:    domain.MessageTypeOffer,
		Content:        content,
	}
	if err := s.feed.AppendMessage(ctx, m); err != nil {
		return nil, transientError("append offer", err)
	}
	metrics.OffersTotal.WithLabelValues("submit").Inc()
	s.publish(m)
	other := conv.OwnerID
	if other == authorID {
		other = conv.CounterpartyID
	}
	s.notify(other, domain.NotifyOfferReceived, "New offer", s.displayName(ctx, authorID)+" proposed a new price",
		map[string]interface{}{"conversation_id": conv.ID, "message_id": m.ID, "price": price})
	return m, nil
}

// RespondToOffer appends an accepted/rejected copy of the referenced offer.
// The responder must be the other participant, and each offer can be
// answered once.
func (s *Service) RespondToOffer(ctx context.Context, conversationID, responderID, offerMessageID uint, action string) (*models.ChatMessage, error) {
	var status, msgType, notifType, title string
	switch action {
	case ActionAccept:
		status, msgType, notifType, title = envelope.OfferStatusAccepted, domain.MessageTypeOfferAccepted, domain.NotifyOfferAccepted, "Offer accepted"
	case ActionReject:
		status, msgType, notifType, title = envelope.OfferStatusRejected, domain.MessageTypeOfferRejected, domain.NotifyOfferRejected, "Offer declined"
	default:
		return nil, validationError("action must be accept or reject")
	}

	mu := s.conversationLock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	conv, _, err := s.participant(ctx, conversationID, responderID)
	if err != nil {
		return nil, err
	}
	offerMsg, err := s.feed.GetMessage(ctx, offerMessageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("offer not found")
		}
		return nil, transientError("load offer", err)
	}
	if offerMsg.ConversationID != conv.ID {
		return nil, notFoundError("offer not found")
	}
	if offerMsg.MessageType != domain.MessageTypeOffer {
		return nil, validationError("referenced message is not an offer")
	}
	if offerMsg.SenderID == responderID {
		return nil, validationError("you cannot respond to your own offer")
	}
	escrow, err := s.escrowFor(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if escrow != nil {
		return nil, conflictError(MsgAlreadyPaid)
	}
	msgs, err := s.feed.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, transientError("load messages", err)
	}
	if scanFeed(msgs).responded[offerMsg.ID] {
		return nil, conflictError(MsgOfferResolved)
	}

	offer, err := envelope.DecodeOffer(offerMsg.Content)
	if err != nil {
		return nil, transientError("decode offer", err)
	}
	offer.Status = status
	content, err := envelope.Encode(offer)
	if err != nil {
		return nil, err
	}
	replyTo := offerMsg.ID
	m := &models.ChatMessage{
		ConversationID: conv.ID,
		SenderID:       responderID,
		MessageType:    msgType,
		Content:        content,
		ReplyToID:      &replyTo,
	}
	if err := s.feed.AppendMessage(ctx, m); err != nil {
		return nil, transientError("append offer response", err)
	}
	metrics.OffersTotal.WithLabelValues(action).Inc()
	s.publish(m)
	s.notify(offerMsg.SenderID, notifType, title, s.displayName(ctx, responderID)+" responded to your offer",
		map[string]interface{}{"conversation_id": conv.ID, "message_id": m.ID, "offer_message_id": offerMsg.ID})
	return m, nil
}

// AgreedPrice scans newest to oldest for an accepted offer; without one the
// listing price applies. Plain text messages are never considered.
func AgreedPrice(msgs []models.ChatMessage, listing *models.DeliveryListing) int64 {
	if o := lastAcceptedOffer(msgs); o != nil {
		return o.Price
	}
	return listing.Price
}

func lastAcceptedOffer(msgs []models.ChatMessage) *envelope.Offer {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.MessageType != domain.MessageTypeOfferAccepted && m.MessageType != domain.MessageTypeOffer {
			continue
		}
		o, err := envelope.DecodeOffer(m.Content)
		if err != nil {
			continue
		}
		if o.Status == envelope.OfferStatusAccepted {
			return o
		}
	}
	return nil
}
