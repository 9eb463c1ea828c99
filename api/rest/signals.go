package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/venloapp/questlock/server/game/engine"
	"github.com/venloapp/questlock/server/game/reward"
	mw "github.com/venloapp/questlock/server/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SignalHandler ingests device lock-state reports. The phone client posts
// every LOCKED/UNLOCKED broadcast with the wall-clock timestamp at which it
// fired; the server judges quests purely from those timestamps.
type SignalHandler struct {
	db     *gorm.DB
	curve  reward.Curve
	mgr    *engine.Manager
	logger *zap.Logger
}

// NewSignalHandler creates a new SignalHandler.
func NewSignalHandler(db *gorm.DB, curve reward.Curve, mgr *engine.Manager, logger *zap.Logger) *SignalHandler {
	return &SignalHandler{db: db, curve: curve, mgr: mgr, logger: logger}
}

type signalRequest struct {
	Kind string `json:"kind" binding:"required,oneof=locked unlocked"`
	AtMs int64  `json:"at_ms" binding:"required,gt=0"`
}

type signalBatchRequest struct {
	Signals []signalRequest `json:"signals" binding:"required,min=1,max=256,dive"`
}

// Report handles POST /api/signals.
func (h *SignalHandler) Report(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	char, err := characterFor(h.db, h.curve, mw.GetAccountID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	eng, err := h.mgr.Engine(c.Request.Context(), char.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	switch req.Kind {
	case "locked":
		eng.OnLocked(c.Request.Context(), req.AtMs)
		c.JSON(http.StatusOK, gin.H{"status": eng.Status()})
	case "unlocked":
		st, err := eng.OnUnlocked(c.Request.Context(), req.AtMs)
		switch {
		case errors.Is(err, engine.ErrMissingLockTimestamp):
			// Unlock with no recorded lock: nothing to judge. Accepted but
			// has no effect.
			c.JSON(http.StatusAccepted, gin.H{"ignored": true, "status": st})
		case err != nil:
			h.logger.Warn("unlock reconciliation error",
				zap.Int64("char_id", char.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed", "status": st})
		default:
			c.JSON(http.StatusOK, gin.H{"status": st})
		}
	}
}

// ReportBatch handles POST /api/signals/batch: the backlog a phone queued
// while offline, replayed in order. Individual signals that carry nothing to
// judge are skipped, not errors; the response is the slot status after the
// whole batch.
func (h *SignalHandler) ReportBatch(c *gin.Context) {
	var req signalBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	char, err := characterFor(h.db, h.curve, mw.GetAccountID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	sigs := make([]engine.Signal, len(req.Signals))
	for i, s := range req.Signals {
		sigs[i] = engine.Signal{Kind: engine.SignalKind(s.Kind), AtMs: s.AtMs}
	}
	st, err := h.mgr.DeliverBatch(c.Request.Context(), char.ID, sigs)
	if err != nil {
		h.logger.Warn("signal batch delivery failed",
			zap.Int64("char_id", char.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivered": len(sigs), "status": st})
}
