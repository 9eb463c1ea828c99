package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/venloapp/questlock/server/cache"
	"github.com/venloapp/questlock/server/config"
	mw "github.com/venloapp/questlock/server/middleware"
	"github.com/venloapp/questlock/server/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	bcryptCost   = 12
	cacheTimeout = 2 * time.Second
)

// AuthHandler owns the sign-in surface for the phone client. Sessions are
// bound to the device install that opened them: a device holds at most one
// live session, and a fresh sign-in from the same device revokes the one
// it replaces, so a reinstalled app never leaves working tokens behind.
type AuthHandler struct {
	db    *gorm.DB
	cache cache.Cache
	sec   config.SecurityConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, c cache.Cache, sec config.SecurityConfig) *AuthHandler {
	return &AuthHandler{db: db, cache: c, sec: sec}
}

type loginRequest struct {
	Username string `json:"username" binding:"required,min=2,max=32"`
	Password string `json:"password" binding:"required,min=8,max=64"`
	DeviceID string `json:"device_id" binding:"required,min=8,max=64"`
}

// Login handles POST /api/auth/login. The first sign-in for a username
// creates the account.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var acc model.Account
	err := h.db.Where("username = ?", req.Username).First(&acc).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		hash, hashErr := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
		if hashErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		acc = model.Account{
			Username:     req.Username,
			PasswordHash: string(hash),
			Status:       model.AccountActive,
		}
		if createErr := h.db.Create(&acc).Error; createErr != nil {
			if isUniqueViolation(createErr) {
				// Two devices raced the same new username.
				c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
			}
			return
		}
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	default:
		if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if acc.Status == model.AccountBanned {
			c.JSON(http.StatusForbidden, gin.H{"error": "account banned"})
			return
		}
	}

	token, claims, err := h.openSession(c.Request.Context(), acc.ID, req.DeviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return
	}

	// Best-effort sign-in bookkeeping for support lookups.
	now := time.Now()
	_ = h.db.Model(&acc).Updates(map[string]interface{}{
		"last_seen_at":   now,
		"last_device_id": req.DeviceID,
	}).Error

	c.JSON(http.StatusOK, gin.H{
		"token":         token,
		"expires_at_ms": claims.ExpiresAt.UnixMilli(),
		"account_id":    acc.ID,
	})
}

// Logout handles POST /api/auth/logout: revokes the session and the device
// binding that points at it.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := mw.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), cacheTimeout)
	defer cancel()
	_ = h.cache.Del(ctx,
		mw.SessionKey(claims.ID),
		mw.DeviceKey(claims.AccountID, claims.DeviceID))
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh: rotates the device's session to a
// fresh token. The old token dies with its session.
func (h *AuthHandler) Refresh(c *gin.Context) {
	claims := mw.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	token, newClaims, err := h.openSession(c.Request.Context(), claims.AccountID, claims.DeviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":         token,
		"expires_at_ms": newClaims.ExpiresAt.UnixMilli(),
	})
}

// openSession issues a token for the account on the given device and
// revokes whatever session that device held before: one live session per
// device.
func (h *AuthHandler) openSession(reqCtx context.Context, accountID int64, deviceID string) (string, *mw.Claims, error) {
	token, claims, err := mw.GenerateToken(accountID, deviceID, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		return "", nil, err
	}

	ctx, cancel := context.WithTimeout(reqCtx, cacheTimeout)
	defer cancel()

	devKey := mw.DeviceKey(accountID, deviceID)
	if prev, getErr := h.cache.Get(ctx, devKey); getErr == nil && prev != "" {
		_ = h.cache.Del(ctx, mw.SessionKey(prev))
	}
	if err := h.cache.Set(ctx, mw.SessionKey(claims.ID), deviceID, h.sec.JWTTTLH); err != nil {
		return "", nil, err
	}
	_ = h.cache.Set(ctx, devKey, claims.ID, h.sec.JWTTTLH)
	return token, claims, nil
}

// isUniqueViolation reports whether err is a duplicate-key error from any
// supported driver.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
