package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"parcelhop/config"
	"parcelhop/internal/deal"
	"parcelhop/internal/domain"
	"parcelhop/internal/middleware"
	"parcelhop/internal/models"
	"parcelhop/internal/repository"
	"parcelhop/internal/service"
	"parcelhop/pkg/payment"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type PaymentWebhookHandler struct {
	svc         *deal.Service
	paymentRepo *repository.PaymentRepository
	auditRepo   *repository.AuditLogRepository
	notifSvc    *service.NotificationService
	cfg         *config.Config
}

func NewPaymentWebhookHandler(svc *deal.Service, paymentRepo *repository.PaymentRepository, auditRepo *repository.AuditLogRepository, notifSvc *service.NotificationService, cfg *config.Config) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{svc: svc, paymentRepo: paymentRepo, auditRepo: auditRepo, notifSvc: notifSvc, cfg: cfg}
}

// Handle expects JSON { "reference": "...", "status": "COMPLETED" | "FAILED" }
// signed with X-Webhook-Signature. A completed checkout creates the escrow
// for the amount that was actually charged. Anything the gateway should not
// retry is acknowledged with 200.
func (h *PaymentWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	switch secret := h.cfg.Payment.WebhookSecret; {
	case secret != "":
		if !payment.VerifySignature(secret, body, c.GetHeader("X-Webhook-Signature")) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
	case h.cfg.IsProduction():
		// Unsigned callbacks are never trusted in production.
		log.Printf("[webhook] rejected: PAYMENT_WEBHOOK_SECRET is not set")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "webhook signing not configured"})
		return
	}
	var payload struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if payload.Reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference required"})
		return
	}
	ctx := middleware.RequestContext(c)
	p, err := h.paymentRepo.GetByProviderRef(ctx, payload.Reference)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "lookup failed"})
			return
		}
		log.Printf("[webhook] unknown reference %s", payload.Reference)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	if p.Status != domain.PaymentStatusPending {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	switch strings.ToUpper(payload.Status) {
	case domain.PaymentStatusCompleted:
		if err := h.escrowPayment(ctx, p); err != nil {
			log.Printf("[webhook] %s: escrow not recorded, asking gateway to retry: %v", p.ProviderRef, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "retry later"})
			return
		}
		now := time.Now()
		p.Status = domain.PaymentStatusCompleted
		p.CompletedAt = &now
		if err := h.paymentRepo.Update(ctx, p); err != nil {
			log.Printf("[webhook] %s: status update failed: %v", p.ProviderRef, err)
		}
		h.auditRepo.Record(ctx, &p.UserID, "payment_completed", "payment", p.ProviderRef,
			map[string]interface{}{"conversation_id": p.ConversationID, "amount": p.AmountCents})
	case domain.PaymentStatusFailed:
		p.Status = domain.PaymentStatusFailed
		if err := h.paymentRepo.Update(ctx, p); err != nil {
			log.Printf("[webhook] %s: status update failed: %v", p.ProviderRef, err)
		}
		if h.notifSvc != nil {
			if err := h.notifSvc.NotifyCheckoutFailed(p.UserID, p.ConversationID, p.ProviderRef); err != nil {
				log.Printf("[webhook] %s: failed-checkout notification not stored: %v", p.ProviderRef, err)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// escrowPayment funds the conversation's escrow from a completed checkout.
// Only transient failures are returned; a checkout that cannot be escrowed,
// including one opened at a price that has since been renegotiated, is
// audited as payment_unescrowed so it can be refunded.
func (h *PaymentWebhookHandler) escrowPayment(ctx context.Context, p *models.Payment) error {
	agreed, _, err := h.svc.CheckoutQuote(ctx, p.ConversationID, p.UserID)
	switch {
	case deal.IsKind(err, deal.KindTransient):
		return err
	case err == nil && agreed != p.AmountCents:
		log.Printf("[webhook] %s: charged %d but the agreed price is now %d", p.ProviderRef, p.AmountCents, agreed)
		h.auditRepo.Record(ctx, &p.UserID, "payment_unescrowed", "payment", p.ProviderRef,
			map[string]interface{}{"conversation_id": p.ConversationID, "amount": p.AmountCents, "agreed_price": agreed, "error": "price changed after checkout"})
		return nil
	}

	_, err = h.svc.CreateEscrow(ctx, deal.EscrowRequest{
		ConversationID: p.ConversationID,
		PayerID:        p.UserID,
		GrossAmount:    p.AmountCents,
		ProviderRef:    p.ProviderRef,
	})
	switch {
	case err == nil:
	case deal.IsKind(err, deal.KindTransient):
		return err
	default:
		log.Printf("[webhook] %s: completed checkout could not be escrowed: %v", p.ProviderRef, err)
		h.auditRepo.Record(ctx, &p.UserID, "payment_unescrowed", "payment", p.ProviderRef,
			map[string]interface{}{"conversation_id": p.ConversationID, "amount": p.AmountCents, "error": err.Error()})
	}
	return nil
}
