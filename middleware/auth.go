package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/venloapp/questlock/server/cache"
	"github.com/venloapp/questlock/server/config"
)

const claimsKey = "auth_claims"

// SessionKey is the cache key marking a live session, addressed by the
// token's JWT ID rather than the token itself.
func SessionKey(jti string) string { return "session:" + jti }

// DeviceKey maps an account's device install to its current session ID. A
// fresh sign-in from the same device looks up this key to revoke the
// session it is replacing.
func DeviceKey(accountID int64, deviceID string) string {
	return fmt.Sprintf("device:%d:%s", accountID, deviceID)
}

// Auth validates the Bearer token and requires its session to still be
// live. Logout, token refresh, and a newer sign-in from the same device all
// revoke the session, which invalidates the token before it expires.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := BearerToken(ctx)
		if tokenStr == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		live, err := c.Exists(cacheCtx, SessionKey(claims.ID))
		if err != nil || !live {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session revoked"})
			return
		}

		ctx.Set(claimsKey, claims)
		ctx.Next()
	}
}

// BearerToken extracts the raw bearer token from the Authorization header,
// or "" when absent.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// GetClaims returns the validated token claims, or nil outside Auth.
func GetClaims(c *gin.Context) *Claims {
	if v, ok := c.Get(claimsKey); ok {
		return v.(*Claims)
	}
	return nil
}

// GetAccountID returns the authenticated account ID, or 0.
func GetAccountID(c *gin.Context) int64 {
	if cl := GetClaims(c); cl != nil {
		return cl.AccountID
	}
	return 0
}

// GetDeviceID returns the device the session is bound to, or "".
func GetDeviceID(c *gin.Context) string {
	if cl := GetClaims(c); cl != nil {
		return cl.DeviceID
	}
	return ""
}
