package handler

import (
	"errors"
	"net/http"
	"strconv"

	"parcelhop/internal/middleware"
	"parcelhop/internal/repository"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	inboxPageSize    = 20
	inboxMaxPageSize = 100
)

// NotificationHandler serves the caller's inbox of persisted deal notifications.
type NotificationHandler struct {
	notifications *repository.NotificationRepository
}

func NewNotificationHandler(notifications *repository.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List returns the inbox newest first together with the unread total.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(inboxPageSize)))
	if err != nil || limit <= 0 || limit > inboxMaxPageSize {
		limit = inboxPageSize
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	ctx := c.Request.Context()
	inbox, err := h.notifications.ListByUserID(ctx, userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notifications unavailable"})
		return
	}
	unread, err := h.notifications.CountUnread(ctx, userID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notifications unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": inbox, "unread_count": unread, "limit": limit, "offset": offset})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	err := h.notifications.MarkRead(c.Request.Context(), id, middleware.GetUserID(c))
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notifications unavailable"})
	default:
		c.Status(http.StatusNoContent)
	}
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	n, err := h.notifications.MarkAllRead(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notifications unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}
