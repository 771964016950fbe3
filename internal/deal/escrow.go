package deal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"parcelhop/internal/domain"
	"parcelhop/internal/envelope"
	"parcelhop/internal/metrics"
	"parcelhop/internal/models"

	"gorm.io/gorm"
)

// EscrowRequest is what the payment gateway reports once the payer's funds
// are in custody.
type EscrowRequest struct {
	ConversationID uint
	PayerID        uint
	GrossAmount    int64
	ProviderRef    string
}

type EscrowReceipt struct {
	Escrow  *models.Escrow
	Message *models.ChatMessage
	Payment *envelope.Payment
}

// CheckoutQuote returns what the payer must pay right now: the agreed price
// in the ledger currency. It fails if the caller is not the payer or the
// conversation is already paid.
func (s *Service) CheckoutQuote(ctx context.Context, conversationID, payerID uint) (int64, string, error) {
	conv, listing, err := s.participant(ctx, conversationID, payerID)
	if err != nil {
		return 0, "", err
	}
	if conv.PayerID(listing.Type) != payerID {
		return 0, "", forbiddenError("only the paying party can check out")
	}
	escrow, err := s.escrowFor(ctx, conv.ID)
	if err != nil {
		return 0, "", err
	}
	if escrow != nil {
		return 0, "", conflictError(MsgAlreadyPaid)
	}
	msgs, err := s.feed.ListMessages(ctx, conv.ID)
	if err != nil {
		return 0, "", transientError("load messages", err)
	}
	currency := listing.Currency
	if currency == "" {
		currency = s.currency
	}
	return AgreedPrice(msgs, listing), currency, nil
}

// CreateEscrow records the payment message and its projection. Exactly one
// escrow may exist per conversation; a second call is a conflict.
func (s *Service) CreateEscrow(ctx context.Context, req EscrowRequest) (*EscrowReceipt, error) {
	if req.GrossAmount <= 0 {
		return nil, validationError("amount must be positive")
	}

	mu := s.conversationLock(req.ConversationID)
	mu.Lock()
	defer mu.Unlock()

	conv, listing, err := s.participant(ctx, req.ConversationID, req.PayerID)
	if err != nil {
		return nil, err
	}
	if conv.PayerID(listing.Type) != req.PayerID {
		return nil, forbiddenError("only the paying party can fund the escrow")
	}

	code, err := GenerateDeliveryCode()
	if err != nil {
		return nil, err
	}
	codeHash, err := hashCode(code, s.codeCost)
	if err != nil {
		return nil, err
	}
	fee, net := splitGross(s.fees, req.GrossAmount)
	currency := listing.Currency
	if currency == "" {
		currency = s.currency
	}
	payment := &envelope.Payment{
		Type:         envelope.TypePayment,
		Amount:       req.GrossAmount,
		NetAmount:    net,
		PlatformFee:  fee,
		Currency:     currency,
		DeliveryCode: code,
		PaidBy:       s.displayName(ctx, req.PayerID),
		PaidByID:     req.PayerID,
		Status:       envelope.PaymentStatusCompleted,
		PaidAt:       s.now().UTC(),
	}
	if !payment.Balanced() {
		return nil, fmt.Errorf("fee split does not balance: %d != %d + %d", payment.Amount, payment.NetAmount, payment.PlatformFee)
	}
	content, err := envelope.Encode(payment)
	if err != nil {
		return nil, err
	}

	var (
		msg    *models.ChatMessage
		escrow *models.Escrow
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.escrows.GetEscrowForUpdate(ctx, conv.ID); err == nil {
			return conflictError(MsgAlreadyPaid)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		msg = &models.ChatMessage{
			ConversationID: conv.ID,
			SenderID:       req.PayerID,
			MessageType:    domain.MessageTypePayment,
			Content:        content,
		}
		if err := s.feed.AppendMessage(ctx, msg); err != nil {
			return err
		}
		escrow = &models.Escrow{
			ConversationID:   conv.ID,
			DeliveryID:       listing.ID,
			PaymentMessageID: msg.ID,
			PaidByID:         req.PayerID,
			Amount:           payment.Amount,
			NetAmount:        payment.NetAmount,
			PlatformFee:      payment.PlatformFee,
			Currency:         currency,
			CodeHash:         codeHash,
			Status:           domain.EscrowStatusAwaitingConfirmation,
			ProviderRef:      req.ProviderRef,
		}
		return s.escrows.CreateEscrow(ctx, escrow)
	})
	if err != nil {
		if KindOf(err) != "" {
			return nil, err
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, conflictError(MsgAlreadyPaid)
		}
		return nil, transientError("record escrow", err)
	}
	metrics.EscrowsCreated.Inc()
	log.Printf("[escrow] conversation %d funded by user %d: gross=%d fee=%d net=%d ref=%s",
		conv.ID, req.PayerID, payment.Amount, payment.PlatformFee, payment.NetAmount, req.ProviderRef)

	if err := s.listings.UpdateListingStatus(ctx, listing.ID, domain.ListingStatusAwaitingConfirmation, nil); err != nil {
		log.Printf("[escrow] listing %d status update failed: %v", listing.ID, err)
	}
	s.publish(msg)
	s.audit(ctx, req.PayerID, "escrow_created", "conversation", strconv.FormatUint(uint64(conv.ID), 10),
		map[string]interface{}{"amount": payment.Amount, "platform_fee": fee, "provider_ref": req.ProviderRef})
	s.notify(conv.DelivererID(listing.Type), domain.NotifyPaymentEscrowed, "Payment secured",
		"Payment is held in escrow. Collect the delivery code at hand-off to get paid.",
		map[string]interface{}{"conversation_id": conv.ID, "net_amount": net})
	return &EscrowReceipt{Escrow: escrow, Message: msg, Payment: payment}, nil
}
