package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"parcelhop/config"
	"parcelhop/internal/auth"
	"parcelhop/internal/deal"
	"parcelhop/internal/ws"

	"github.com/gin-gonic/gin"
)

// UpgradeConversationWS upgrades to a websocket for one conversation; query:
// token, conversation_id. The caller must be a participant. The socket gets
// the redacted history first, then every appended message. Inbound frames of
// type "message" are posted as text.
func UpgradeConversationWS(cfg *config.JWTConfig, hub *ws.ConversationHub, svc *deal.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		convIDStr := c.Query("conversation_id")
		if token == "" || convIDStr == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token and conversation_id required"})
			return
		}
		claims, err := auth.ParseAccessToken(cfg, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		id, err := strconv.ParseUint(convIDStr, 10, 64)
		if err != nil || id == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation_id"})
			return
		}
		convID := uint(id)
		history, err := svc.Messages(c.Request.Context(), convID, claims.UserID)
		if err != nil {
			respondError(c, err)
			return
		}

		conn, err := ws.Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		client := ws.NewClient(claims.UserID)
		hub.Join(convID, client)
		defer func() {
			hub.Leave(convID, client)
			client.Close()
		}()
		if data, err := json.Marshal(ws.Event{Type: "history", Messages: history}); err == nil {
			client.Send <- data
		}

		ctx := c.Request.Context()
		ws.Serve(conn, client, func(raw []byte) {
			var in struct {
				Type    string `json:"type"`
				Content string `json:"content"`
			}
			if json.Unmarshal(raw, &in) != nil || in.Type != "message" {
				return
			}
			if _, err := svc.PostText(ctx, convID, claims.UserID, in.Content); err != nil {
				if data, mErr := json.Marshal(ws.Event{Type: "error", Error: err.Error()}); mErr == nil {
					select {
					case client.Send <- data:
					default:
					}
				}
			}
		})
	}
}
