package rest_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venloapp/questlock/server/model"
)

func TestLogin_AutoRegister(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/auth/login", map[string]string{
		"username":  "alice",
		"password":  "pass1234",
		"device_id": "device-alice-01",
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.NotEmpty(t, resp["token"])
	assert.NotZero(t, resp["account_id"])
	assert.NotZero(t, resp["expires_at_ms"])

	var acc model.Account
	require.NoError(t, e.db.Where("username = ?", "alice").First(&acc).Error)
	assert.Equal(t, model.AccountActive, acc.Status)
	assert.Equal(t, "device-alice-01", acc.LastDeviceID)
	assert.NotNil(t, acc.LastSeenAt)
}

func TestLogin_WrongPassword(t *testing.T) {
	e := newEnv(t)
	e.login(t, "bob")

	w := e.do(http.MethodPost, "/api/auth/login", map[string]string{
		"username":  "bob",
		"password":  "wrongpass99",
		"device_id": "device-bob-01",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_SecondTime(t *testing.T) {
	e := newEnv(t)
	e.login(t, "carol")
	e.login(t, "carol")
}

func TestLogin_BannedAccount(t *testing.T) {
	e := newEnv(t)
	e.login(t, "dave")
	require.NoError(t, e.db.Model(&model.Account{}).
		Where("username = ?", "dave").Update("status", model.AccountBanned).Error)

	w := e.do(http.MethodPost, "/api/auth/login", map[string]string{
		"username":  "dave",
		"password":  "pass1234",
		"device_id": "device-dave-01",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLogin_Validation(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/auth/login", map[string]string{
		"username":  "x", // too short
		"password":  "pass1234",
		"device_id": "device-x-000001",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A sign-in without its device install ID cannot be session-bound.
	w = e.do(http.MethodPost, "/api/auth/login", map[string]string{
		"username": "grace",
		"password": "pass1234",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_SameDeviceRevokesPreviousSession(t *testing.T) {
	e := newEnv(t)
	first := e.loginFrom(t, "heidi", "device-heidi-01")
	second := e.loginFrom(t, "heidi", "device-heidi-01")
	require.NotEqual(t, first, second)

	// The reinstall (same device) killed the old session; the new one works.
	w := e.do(http.MethodGet, "/api/character", nil, "Authorization", "Bearer "+first)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w2 := e.do(http.MethodGet, "/api/character", nil, "Authorization", "Bearer "+second)
	assert.Equal(t, http.StatusOK, w2.Code)
}

func TestLogin_DifferentDevicesHoldIndependentSessions(t *testing.T) {
	e := newEnv(t)
	phone := e.loginFrom(t, "ivan", "device-ivan-phone")
	tablet := e.loginFrom(t, "ivan", "device-ivan-tablet")

	w := e.do(http.MethodGet, "/api/character", nil, "Authorization", "Bearer "+phone)
	assert.Equal(t, http.StatusOK, w.Code)
	w2 := e.do(http.MethodGet, "/api/character", nil, "Authorization", "Bearer "+tablet)
	assert.Equal(t, http.StatusOK, w2.Code)
}

func TestLogout_InvalidatesSession(t *testing.T) {
	e := newEnv(t)
	token := e.login(t, "erin")

	w := e.do(http.MethodPost, "/api/auth/logout", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)

	w2 := e.do(http.MethodPost, "/api/auth/logout", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
}

func TestRefresh_RotatesToken(t *testing.T) {
	e := newEnv(t)
	token := e.login(t, "frank")

	w := e.do(http.MethodPost, "/api/auth/refresh", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	newToken := resp["token"].(string)
	require.NotEmpty(t, newToken)
	assert.NotZero(t, resp["expires_at_ms"])

	// Old token is dead, new one works.
	w2 := e.do(http.MethodGet, "/api/character", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
	w3 := e.do(http.MethodGet, "/api/character", nil, "Authorization", "Bearer "+newToken)
	assert.Equal(t, http.StatusOK, w3.Code)
}

func TestProtectedRoute_RequiresToken(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/api/quests", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
