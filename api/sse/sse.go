package sse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/venloapp/questlock/server/cache"
	"github.com/venloapp/questlock/server/config"
	mw "github.com/venloapp/questlock/server/middleware"
	"github.com/venloapp/questlock/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const announceChannel = "announce"

// Handler streams quest events to the client over server-sent events. The
// engine publishes to "quest:<charID>" on every transition, so the app can
// show live phase changes and settled outcomes without polling.
type Handler struct {
	pubsub cache.PubSub
	c      cache.Cache
	db     *gorm.DB
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, c cache.Cache, db *gorm.DB, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, c: c, db: db, sec: sec, logger: logger}
}

// ServeSSE handles GET /sse?token=<jwt>.
// EventSource cannot set headers, so the JWT arrives as a query parameter.
func (h *Handler) ServeSSE(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := h.c.Exists(ctx, mw.SessionKey(claims.ID))
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session revoked"})
		return
	}

	// A client may connect before its character exists; it then receives
	// announcements only and reconnects after the first /api/character call.
	channels := []string{announceChannel}
	var char model.Character
	err = h.db.Where("account_id = ?", claims.AccountID).First(&char).Error
	if err == nil {
		channels = append(channels, fmt.Sprintf("quest:%d", char.ID))
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, channels...)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			event := "quest"
			if msg.Channel == announceChannel {
				event = "announce"
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

// Announce publishes an operator announcement to every connected client.
func (h *Handler) Announce(ctx context.Context, message string) error {
	return h.pubsub.Publish(ctx, announceChannel, message)
}
