package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/venloapp/questlock/server/game/engine"
	"github.com/venloapp/questlock/server/journal"
	mw "github.com/venloapp/questlock/server/middleware"
	"github.com/venloapp/questlock/server/model"
	"github.com/venloapp/questlock/server/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db      *gorm.DB
	mgr     *engine.Manager
	sched   *scheduler.Scheduler
	journal *journal.Service
	logger  *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	db *gorm.DB,
	mgr *engine.Manager,
	sched *scheduler.Scheduler,
	j *journal.Service,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{db: db, mgr: mgr, sched: sched, journal: j, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"loaded_engines":  h.mgr.Count(),
		"scheduler_tasks": h.sched.ListTickers(),
	})
}

// ListEngines returns the live quest slot of every loaded engine.
// GET /api/admin/engines
func (h *AdminHandler) ListEngines(c *gin.Context) {
	snap := h.mgr.Snapshot()
	c.JSON(http.StatusOK, gin.H{"engines": snap, "count": len(snap)})
}

// ForceFail settles a character's in-flight quest as failed. Operator escape
// hatch for slots wedged by bad client clocks.
// POST /api/admin/chars/:id/fail
func (h *AdminHandler) ForceFail(c *gin.Context) {
	charID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	eng, err := h.mgr.Engine(c.Request.Context(), charID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	out, err := eng.FailQuest(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no quest in flight"})
		return
	}
	h.journal.RecordAdmin(mw.GetTraceID(c), charID, "admin_force_fail", out)
	h.logger.Info("admin force-failed quest",
		zap.Int64("char_id", charID), zap.String("quest_id", out.QuestID))
	c.JSON(http.StatusOK, gin.H{"outcome": out})
}

// BanAccount bans or unbans an account.
// POST /api/admin/accounts/:id/ban
func (h *AdminHandler) BanAccount(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Ban bool `json:"ban"`
	}
	_ = c.ShouldBindJSON(&req)

	status := model.AccountActive
	if req.Ban {
		status = model.AccountBanned
	}
	result := h.db.Model(&model.Account{}).Where("id = ?", accountID).Update("status", status)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	h.journal.RecordAdmin(mw.GetTraceID(c), 0, "admin_ban", gin.H{"account_id": accountID, "ban": req.Ban})
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
