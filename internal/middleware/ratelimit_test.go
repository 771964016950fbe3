package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimitPerRouteAndCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid == "7" {
			c.Set("user_id", uint(7))
		}
		c.Next()
	})
	r.Use(RateLimit(NewInMemoryRateLimiter(2, time.Minute)))
	r.GET("/a", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/b", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	get := func(path, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if user != "" {
			req.Header.Set("X-Test-User", user)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, get("/a", "").Code)
	assert.Equal(t, http.StatusNoContent, get("/a", "").Code)
	w := get("/a", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// Other routes and authenticated callers have their own budget.
	assert.Equal(t, http.StatusNoContent, get("/b", "").Code)
	assert.Equal(t, http.StatusNoContent, get("/a", "7").Code)
}
