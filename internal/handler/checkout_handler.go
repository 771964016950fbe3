package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"parcelhop/config"
	"parcelhop/internal/deal"
	"parcelhop/internal/domain"
	"parcelhop/internal/middleware"
	"parcelhop/internal/models"
	"parcelhop/internal/repository"
	"parcelhop/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CheckoutHandler opens a gateway checkout for a conversation's agreed price.
// The escrow itself is created by the payment webhook once the gateway
// reports the checkout completed.
type CheckoutHandler struct {
	cfg         *config.Config
	svc         *deal.Service
	paymentRepo *repository.PaymentRepository
	userRepo    *repository.UserRepository
	provider    payment.Provider
}

func NewCheckoutHandler(cfg *config.Config, svc *deal.Service, paymentRepo *repository.PaymentRepository, userRepo *repository.UserRepository, provider payment.Provider) *CheckoutHandler {
	return &CheckoutHandler{cfg: cfg, svc: svc, paymentRepo: paymentRepo, userRepo: userRepo, provider: provider}
}

func (h *CheckoutHandler) Initiate(c *gin.Context) {
	payerID := middleware.GetUserID(c)
	convID, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := middleware.RequestContext(c)
	amount, currency, err := h.svc.CheckoutQuote(ctx, convID, payerID)
	if err != nil {
		respondError(c, err)
		return
	}

	// Re-use an open checkout for the same amount instead of charging twice.
	if p, err := h.paymentRepo.GetPendingForConversation(ctx, convID, payerID); err == nil {
		if p.AmountCents == amount && p.ExpiresAt != nil && p.ExpiresAt.After(time.Now()) {
			c.JSON(http.StatusOK, checkoutBody(p))
			return
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payment lookup failed"})
		return
	}

	orderID := fmt.Sprintf("parcelhop-%s", uuid.New().String())
	var email string
	if u, err := h.userRepo.GetByID(ctx, payerID); err == nil {
		email = u.Email
	}
	resp, err := h.provider.InitiateCheckout(ctx, payment.CheckoutRequest{
		UserID:         payerID,
		ConversationID: convID,
		AmountCents:    amount,
		Currency:       currency,
		IdempotencyKey: orderID,
		OrderID:        orderID,
		Description:    "Delivery payment for conversation " + strconv.FormatUint(uint64(convID), 10),
		ExpiresIn:      h.cfg.Payment.PaymentExpiry,
		CustomerEmail:  email,
	})
	if err != nil {
		log.Printf("[checkout] conversation %d: gateway error: %v", convID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
		return
	}
	expiresAt := resp.ExpiresAt
	p := &models.Payment{
		UserID:         payerID,
		ConversationID: convID,
		AmountCents:    amount,
		Currency:       currency,
		Provider:       h.provider.Name(),
		ProviderRef:    resp.Reference,
		Status:         domain.PaymentStatusPending,
		IdempotencyKey: orderID,
		CheckoutURL:    resp.CheckoutURL,
		ExpiresAt:      &expiresAt,
	}
	if err := h.paymentRepo.Create(ctx, p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payment create failed"})
		return
	}
	log.Printf("[checkout] conversation %d: order %s opened for %d %s", convID, orderID, amount, currency)
	c.JSON(http.StatusCreated, checkoutBody(p))
}

func checkoutBody(p *models.Payment) gin.H {
	return gin.H{
		"order_id":       p.ProviderRef,
		"amount":         p.AmountCents,
		"currency":       p.Currency,
		"checkout_url":   p.CheckoutURL,
		"payment_status": p.Status,
		"expires_at":     p.ExpiresAt,
	}
}
