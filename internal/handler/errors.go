package handler

import (
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"

	"parcelhop/internal/deal"

	"github.com/gin-gonic/gin"
)

// respondError maps the deal error taxonomy onto HTTP.
func respondError(c *gin.Context, err error) {
	var de *deal.Error
	if !errors.As(err, &de) {
		log.Printf("[http] %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	body := gin.H{"error": de.Message, "kind": de.Kind}
	if de.Notice != nil {
		body["notice"] = de.Notice
	}
	status := http.StatusInternalServerError
	switch de.Kind {
	case deal.KindValidation:
		status = http.StatusBadRequest
	case deal.KindNotFound:
		status = http.StatusNotFound
	case deal.KindForbidden:
		status = http.StatusForbidden
	case deal.KindConflict:
		status = http.StatusConflict
	case deal.KindLockout:
		secs := int(math.Ceil(de.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(secs))
		body["retry_after_seconds"] = secs
		status = http.StatusTooManyRequests
	case deal.KindTransient:
		log.Printf("[http] %s %s transient: %v", c.Request.Method, c.FullPath(), err)
		body["retryable"] = true
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, body)
}

// idParam parses a positive numeric path parameter, writing a 400 if it is not one.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}
