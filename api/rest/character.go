package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/venloapp/questlock/server/game/reward"
	mw "github.com/venloapp/questlock/server/middleware"
	"github.com/venloapp/questlock/server/model"
	"gorm.io/gorm"
)

// CharacterHandler handles character REST endpoints. Each account has exactly
// one character, created with defaults the first time it is read.
type CharacterHandler struct {
	db    *gorm.DB
	curve reward.Curve
}

// NewCharacterHandler creates a new CharacterHandler.
func NewCharacterHandler(db *gorm.DB, curve reward.Curve) *CharacterHandler {
	return &CharacterHandler{db: db, curve: curve}
}

// characterFor loads the account's character, creating the default persona on
// first use.
func characterFor(db *gorm.DB, curve reward.Curve, accountID int64) (*model.Character, error) {
	var char model.Character
	err := db.Where("account_id = ?", accountID).First(&char).Error
	if err == nil {
		return &char, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var acc model.Account
	if err := db.First(&acc, accountID).Error; err != nil {
		return nil, err
	}
	char = model.Character{
		AccountID: accountID,
		Name:      acc.Username,
		Archetype: "wanderer",
		Level:     1,
		CurrentXP: 0,
		XPToNext:  curve.Threshold(1),
	}
	if err := db.Create(&char).Error; err != nil {
		if isUniqueViolation(err) {
			// Concurrent first read created it already.
			if err := db.Where("account_id = ?", accountID).First(&char).Error; err != nil {
				return nil, err
			}
			return &char, nil
		}
		return nil, err
	}
	return &char, nil
}

// Me handles GET /api/character.
func (h *CharacterHandler) Me(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	char, err := characterFor(h.db, h.curve, accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, char)
}

type updateCharacterRequest struct {
	Name      string `json:"name"      binding:"omitempty,min=1,max=32"`
	Archetype string `json:"archetype" binding:"omitempty,max=32"`
}

// Update handles PUT /api/character.
func (h *CharacterHandler) Update(c *gin.Context) {
	accountID := mw.GetAccountID(c)

	var req updateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == "" && req.Archetype == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	char, err := characterFor(h.db, h.curve, accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Archetype != "" {
		updates["archetype"] = req.Archetype
	}
	if err := h.db.Model(char).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, char)
}

// Locations handles GET /api/character/locations: the points of interest the
// character has revealed through completed quests.
func (h *CharacterHandler) Locations(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	char, err := characterFor(h.db, h.curve, accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	var locs []model.RevealedLocation
	if err := h.db.Where("char_id = ?", char.ID).Order("id").Find(&locs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"locations": locs, "count": len(locs)})
}
