package handler

import (
	"net/http"

	"parcelhop/internal/deal"
	"parcelhop/internal/envelope"
	"parcelhop/internal/middleware"

	"github.com/gin-gonic/gin"
)

type DealHandler struct {
	svc *deal.Service
}

func NewDealHandler(svc *deal.Service) *DealHandler {
	return &DealHandler{svc: svc}
}

// GetMessages returns the conversation feed, redacted for the caller.
func (h *DealHandler) GetMessages(c *gin.Context) {
	userID := middleware.GetUserID(c)
	convID, ok := idParam(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.Messages(middleware.RequestContext(c), convID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": list})
}

func (h *DealHandler) PostMessage(c *gin.Context) {
	userID := middleware.GetUserID(c)
	convID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := h.svc.PostText(middleware.RequestContext(c), convID, userID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": m})
}

// GetDeal returns the derived deal state for the caller.
func (h *DealHandler) GetDeal(c *gin.Context) {
	userID := middleware.GetUserID(c)
	convID, ok := idParam(c, "id")
	if !ok {
		return
	}
	v, err := h.svc.View(middleware.RequestContext(c), convID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *DealHandler) SubmitOffer(c *gin.Context) {
	userID := middleware.GetUserID(c)
	convID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Price   int64  `json:"price" binding:"required"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price is required"})
		return
	}
	m, err := h.svc.SubmitOffer(middleware.RequestContext(c), convID, userID, req.Price, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	offer, _ := envelope.DecodeOffer(m.Content)
	resp := gin.H{"message": m, "offer": offer}
	if offer != nil {
		resp["delta_percent"] = offer.DeltaPercent()
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *DealHandler) RespondToOffer(c *gin.Context) {
	userID := middleware.GetUserID(c)
	convID, ok := idParam(c, "id")
	if !ok {
		return
	}
	msgID, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	var req struct {
		Action string `json:"action" binding:"required,oneof=accept reject"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be accept or reject"})
		return
	}
	m, err := h.svc.RespondToOffer(middleware.RequestContext(c), convID, userID, msgID, req.Action)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": m})
}

// VerifyDeliveryCode settles the escrow when the deliverer presents the right code.
func (h *DealHandler) VerifyDeliveryCode(c *gin.Context) {
	userID := middleware.GetUserID(c)
	convID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Code          string `json:"code" binding:"required"`
		ProofPhotoURL string `json:"proof_photo_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	res, err := h.svc.VerifyDeliveryCode(middleware.RequestContext(c), convID, userID, req.Code, req.ProofPhotoURL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":        res.Message,
		"confirmation":   res.Confirmation,
		"transaction_id": res.Transaction.ID,
		"new_balance":    res.NewBalance,
	})
}
