package deal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"parcelhop/internal/domain"
	"parcelhop/internal/envelope"
	"parcelhop/internal/metrics"
	"parcelhop/internal/models"

	"gorm.io/gorm"
)

// Settlement is the outcome of a verified delivery code.
type Settlement struct {
	Escrow       *models.Escrow
	Message      *models.ChatMessage
	Confirmation *envelope.DeliveryConfirmation
	Transaction  *models.WalletTransaction
	NewBalance   int64
}

// SettlementReference is the ledger reference for a delivery's payout. It is
// stable so a retried credit cannot pay twice.
func SettlementReference(deliveryID uint) string {
	return fmt.Sprintf("DELIVERY-CONFIRM-%d", deliveryID)
}

// VerifyDeliveryCode runs the code guard and, on a match, settles the escrow:
// the net amount is credited to the verifier and the confirmation message is
// appended in one transaction. The listing is moved to delivered afterwards
// on a best-effort basis.
//
// A wrong code returns a validation *Error whose Notice carries the warning;
// the fifth wrong code of a cycle and every submission during a cooldown
// return a lockout *Error with RetryAfter.
func (s *Service) VerifyDeliveryCode(ctx context.Context, conversationID, verifierID uint, code, proofPhotoURL string) (*Settlement, error) {
	mu := s.conversationLock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	conv, listing, err := s.participant(ctx, conversationID, verifierID)
	if err != nil {
		return nil, err
	}
	escrow, err := s.escrowFor(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if escrow == nil {
		return nil, notFoundError("no escrowed payment for this conversation")
	}
	if verifierID == escrow.PaidByID {
		return nil, forbiddenError(MsgPayerCannotSettle)
	}
	if escrow.Status == domain.EscrowStatusSettled {
		metrics.SettlementsTotal.WithLabelValues("conflict").Inc()
		return nil, conflictError(MsgAlreadyConfirmed)
	}
	if err := validateCodeFormat(code); err != nil {
		metrics.CodeAttemptsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	var (
		result   *Settlement
		outcome  error // guard outcome that must not roll back the counter
		lockedUp bool
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := s.escrows.GetEscrowForUpdate(ctx, conv.ID)
		if err != nil {
			return err
		}
		if e.Status == domain.EscrowStatusSettled {
			return conflictError(MsgAlreadyConfirmed)
		}
		a, err := s.escrows.LoadAttemptsForUpdate(ctx, conv.ID, e.ID)
		if err != nil {
			return err
		}
		now := s.now()
		state := AttemptState{Attempts: a.Attempts, CooldownUntil: a.CooldownUntil}
		if state.Locked(now) {
			metrics.CodeAttemptsTotal.WithLabelValues("locked").Inc()
			outcome = lockoutError(NoticeFor(state, now), state.RetryAfter(now))
			return nil
		}

		ok, err := codeMatches(e.CodeHash, code)
		if err != nil {
			return err
		}
		if !ok {
			next := RecordMiss(state, now)
			a.Attempts, a.CooldownUntil = next.Attempts, next.CooldownUntil
			if err := s.escrows.SaveAttempts(ctx, a); err != nil {
				return err
			}
			metrics.CodeAttemptsTotal.WithLabelValues("miss").Inc()
			n := NoticeFor(next, now)
			if next.Locked(now) {
				metrics.CodeLockouts.Inc()
				lockedUp = true
				outcome = lockoutError(n, next.RetryAfter(now))
			} else {
				outcome = wrongCodeError(n)
			}
			return nil
		}
		metrics.CodeAttemptsTotal.WithLabelValues("match").Inc()

		result, err = s.settle(ctx, e, a, listing.ID, verifierID, proofPhotoURL, now)
		return err
	})
	if err != nil {
		if KindOf(err) == KindConflict {
			metrics.SettlementsTotal.WithLabelValues("conflict").Inc()
			return nil, err
		}
		if KindOf(err) != "" {
			return nil, err
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("no escrowed payment for this conversation")
		}
		return nil, transientError("verify delivery code", err)
	}
	if outcome != nil {
		if lockedUp {
			s.afterLockout(ctx, conv, escrow, verifierID, outcome)
		}
		return nil, outcome
	}

	metrics.SettlementsTotal.WithLabelValues("settled").Inc()
	metrics.SettledNetAmount.Add(float64(result.Escrow.NetAmount))
	log.Printf("[settle] conversation %d delivery %d settled: net=%d credited to user %d (tx %d)",
		conv.ID, listing.ID, result.Escrow.NetAmount, verifierID, result.Transaction.ID)

	receiver := verifierID
	if err := s.listings.UpdateListingStatus(ctx, listing.ID, domain.ListingStatusDelivered, &receiver); err != nil {
		log.Printf("[settle] listing %d not marked delivered after settlement: %v", listing.ID, err)
		s.audit(ctx, verifierID, "listing_status_update_failed", "delivery_listing", strconv.FormatUint(uint64(listing.ID), 10),
			map[string]interface{}{"status": domain.ListingStatusDelivered, "error": err.Error()})
	}
	s.publish(result.Message)
	s.audit(ctx, verifierID, "delivery_confirmed", "conversation", strconv.FormatUint(uint64(conv.ID), 10),
		map[string]interface{}{"gross": result.Escrow.Amount, "net": result.Escrow.NetAmount, "wallet_tx": result.Transaction.ID})
	s.notify(escrow.PaidByID, domain.NotifyDeliveryConfirmed, "Delivery confirmed",
		"Your delivery was confirmed and the escrowed payment was released.",
		map[string]interface{}{"conversation_id": conv.ID})
	s.notify(verifierID, domain.NotifyDeliveryConfirmed, "Payment received",
		"The delivery payout was credited to your wallet.",
		map[string]interface{}{"conversation_id": conv.ID, "amount_cents": result.Escrow.NetAmount})
	return result, nil
}

// settle must run inside the verification transaction.
func (s *Service) settle(ctx context.Context, e *models.Escrow, a *models.CodeAttempt, deliveryID, verifierID uint, proofPhotoURL string, now time.Time) (*Settlement, error) {
	meta := map[string]interface{}{
		"conversation_id": e.ConversationID,
		"delivery_id":     deliveryID,
		"gross_amount":    e.Amount,
		"platform_fee":    e.PlatformFee,
	}
	if proofPhotoURL != "" {
		meta["proof_photo_url"] = proofPhotoURL
	}
	wtx, balance, err := s.ledger.Credit(ctx, verifierID, e.NetAmount,
		fmt.Sprintf("Delivery payout for delivery #%d", deliveryID),
		domain.WalletTxCategoryDeliveryEarning, SettlementReference(deliveryID), meta)
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("ledger_error").Inc()
		return nil, transientError("wallet credit failed", err)
	}

	confirmation := &envelope.DeliveryConfirmation{
		Type:                envelope.TypeDeliveryConfirmation,
		DeliveryID:          deliveryID,
		ConfirmedByID:       verifierID,
		ConfirmedAt:         now.UTC(),
		GrossAmount:         e.Amount,
		PlatformFee:         e.PlatformFee,
		PaymentAmount:       e.NetAmount,
		CreditTransactionID: wtx.ID,
		NewBalance:          balance,
	}
	content, err := envelope.Encode(confirmation)
	if err != nil {
		return nil, err
	}
	msg := &models.ChatMessage{
		ConversationID: e.ConversationID,
		SenderID:       verifierID,
		MessageType:    domain.MessageTypeDeliveryConfirmation,
		Content:        content,
	}
	if err := s.feed.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	settledAt := now
	e.Status = domain.EscrowStatusSettled
	e.SettledByID = &verifierID
	e.SettledAt = &settledAt
	e.ConfirmationMessageID = &msg.ID
	if err := s.escrows.UpdateEscrow(ctx, e); err != nil {
		return nil, err
	}
	reset := Reset()
	a.Attempts, a.CooldownUntil = reset.Attempts, reset.CooldownUntil
	if err := s.escrows.SaveAttempts(ctx, a); err != nil {
		return nil, err
	}
	return &Settlement{Escrow: e, Message: msg, Confirmation: confirmation, Transaction: wtx, NewBalance: balance}, nil
}

func (s *Service) afterLockout(ctx context.Context, conv *models.Conversation, escrow *models.Escrow, verifierID uint, outcome error) {
	var e *Error
	if !errors.As(outcome, &e) || e.Notice == nil {
		return
	}
	log.Printf("[guard] conversation %d escrow %d locked for %s after wrong codes by user %d",
		conv.ID, escrow.ID, e.RetryAfter.Round(time.Minute), verifierID)
	s.audit(ctx, verifierID, "delivery_code_lockout", "conversation", strconv.FormatUint(uint64(conv.ID), 10),
		map[string]interface{}{"cooldown_until": e.Notice.CooldownUntil})
	s.notify(escrow.PaidByID, domain.NotifyCodeLockout, "Delivery code locked",
		"Several incorrect delivery codes were entered for your delivery.",
		map[string]interface{}{"conversation_id": conv.ID})
}
