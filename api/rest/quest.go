package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/venloapp/questlock/server/game/catalog"
	"github.com/venloapp/questlock/server/game/engine"
	"github.com/venloapp/questlock/server/game/reward"
	"github.com/venloapp/questlock/server/journal"
	mw "github.com/venloapp/questlock/server/middleware"
	"github.com/venloapp/questlock/server/model"
	"gorm.io/gorm"
)

// QuestHandler exposes the quest lifecycle over REST.
type QuestHandler struct {
	db      *gorm.DB
	curve   reward.Curve
	cat     *catalog.Catalog
	mgr     *engine.Manager
	journal *journal.Service
}

// NewQuestHandler creates a new QuestHandler.
func NewQuestHandler(db *gorm.DB, curve reward.Curve, cat *catalog.Catalog, mgr *engine.Manager, j *journal.Service) *QuestHandler {
	return &QuestHandler{db: db, curve: curve, cat: cat, mgr: mgr, journal: j}
}

// engineFor resolves the caller's character and its quest engine.
func (h *QuestHandler) engineFor(c *gin.Context) (*model.Character, *engine.Engine, bool) {
	accountID := mw.GetAccountID(c)
	char, err := characterFor(h.db, h.curve, accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, nil, false
	}
	eng, err := h.mgr.Engine(c.Request.Context(), char.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, nil, false
	}
	return char, eng, true
}

type templateView struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	DurationMinutes float64 `json:"duration_minutes"`
	RewardXP        int     `json:"reward_xp"`
	POISlug         string  `json:"poi_slug,omitempty"`
}

// List handles GET /api/quests.
func (h *QuestHandler) List(c *gin.Context) {
	tpls := h.cat.All()
	out := make([]templateView, 0, len(tpls))
	for _, tpl := range tpls {
		out = append(out, templateView{
			ID:              tpl.ID,
			Title:           tpl.Title,
			Description:     tpl.Description,
			DurationMinutes: tpl.DurationMinutes,
			RewardXP:        tpl.RewardXP,
			POISlug:         tpl.POISlug,
		})
	}
	c.JSON(http.StatusOK, gin.H{"quests": out})
}

// Current handles GET /api/quests/current.
func (h *QuestHandler) Current(c *gin.Context) {
	_, eng, ok := h.engineFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, eng.Status())
}

type startQuestRequest struct {
	QuestID   string `json:"quest_id" binding:"required"`
	Immediate bool   `json:"immediate"`
}

// Start handles POST /api/quests/start. By default the quest waits for the
// first lock signal; immediate=true starts the timer right away.
func (h *QuestHandler) Start(c *gin.Context) {
	var req startQuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, eng, ok := h.engineFor(c)
	if !ok {
		return
	}
	st, err := eng.StartQuest(c.Request.Context(), req.QuestID, req.Immediate)
	switch {
	case errors.Is(err, engine.ErrUnknownQuest):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown quest"})
	case errors.Is(err, engine.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "a quest is already in progress"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusOK, st)
	}
}

// Acknowledge handles POST /api/quests/acknowledge. Acknowledging a completed
// outcome grants its XP; acknowledging an empty slot is a harmless no-op.
func (h *QuestHandler) Acknowledge(c *gin.Context) {
	_, eng, ok := h.engineFor(c)
	if !ok {
		return
	}
	res, err := eng.AcknowledgeOutcome(c.Request.Context())
	switch {
	case errors.Is(err, engine.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "no outcome to acknowledge"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reward grant failed, retry"})
	case res == nil:
		c.JSON(http.StatusOK, gin.H{"acknowledged": false})
	default:
		c.JSON(http.StatusOK, gin.H{"acknowledged": true, "outcome": res.Outcome, "progress": res.Progress})
	}
}

// Abandon handles POST /api/quests/abandon: the player gives up, which settles
// the quest as a failure.
func (h *QuestHandler) Abandon(c *gin.Context) {
	_, eng, ok := h.engineFor(c)
	if !ok {
		return
	}
	out, err := eng.AbandonQuest(c.Request.Context())
	switch {
	case errors.Is(err, engine.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "no quest to abandon"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusOK, gin.H{"outcome": out})
	}
}

// History handles GET /api/quests/history: the character's recent transition
// journal, newest first.
func (h *QuestHandler) History(c *gin.Context) {
	char, err := characterFor(h.db, h.curve, mw.GetAccountID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := h.journal.Recent(c.Request.Context(), char.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": rows})
}
