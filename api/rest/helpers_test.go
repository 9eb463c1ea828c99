package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/venloapp/questlock/server/api/rest"
	"github.com/venloapp/questlock/server/cache"
	"github.com/venloapp/questlock/server/config"
	"github.com/venloapp/questlock/server/game/catalog"
	"github.com/venloapp/questlock/server/game/engine"
	"github.com/venloapp/questlock/server/game/reward"
	"github.com/venloapp/questlock/server/journal"
	mw "github.com/venloapp/questlock/server/middleware"
	"github.com/venloapp/questlock/server/scheduler"
	"github.com/venloapp/questlock/server/store"
	"github.com/venloapp/questlock/server/testutil"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testAdminKey = "test-admin-key"

type env struct {
	db      *gorm.DB
	cache   cache.Cache
	sec     config.SecurityConfig
	mgr     *engine.Manager
	journal *journal.Service
	router  *gin.Engine
}

// newEnv wires the full REST surface the way main does, on in-memory
// backends.
func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := testutil.NopLogger()
	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: 72 * time.Hour}
	curve := reward.DefaultCurve

	cat, err := catalog.Seed()
	require.NoError(t, err)

	jsvc := journal.New(db, logger)
	t.Cleanup(func() { jsvc.Stop(context.Background()) })

	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	mgr := engine.NewManager(engine.Options{
		DB:       db,
		Store:    store.NewGormStore(db),
		Catalog:  cat,
		Ledger:   reward.NewLedger(db, curve, logger),
		Journal:  jsvc,
		Notifier: ps,
		Sched:    sched,
		Logger:   logger,
	}, time.Hour)
	t.Cleanup(mgr.Close)

	authHandler := rest.NewAuthHandler(db, c, sec)
	charHandler := rest.NewCharacterHandler(db, curve)
	questHandler := rest.NewQuestHandler(db, curve, cat, mgr, jsvc)
	signalHandler := rest.NewSignalHandler(db, curve, mgr, logger)
	adminHandler := rest.NewAdminHandler(db, mgr, sched, jsvc, logger)

	r := gin.New()
	r.Use(mw.TraceID())
	r.POST("/api/auth/login", authHandler.Login)

	authed := r.Group("/api", mw.Auth(sec, c))
	{
		authed.POST("/auth/logout", authHandler.Logout)
		authed.POST("/auth/refresh", authHandler.Refresh)
		authed.GET("/character", charHandler.Me)
		authed.PUT("/character", charHandler.Update)
		authed.GET("/character/locations", charHandler.Locations)
		authed.GET("/quests", questHandler.List)
		authed.GET("/quests/current", questHandler.Current)
		authed.POST("/quests/start", questHandler.Start)
		authed.POST("/quests/acknowledge", questHandler.Acknowledge)
		authed.POST("/quests/abandon", questHandler.Abandon)
		authed.GET("/quests/history", questHandler.History)
		authed.POST("/signals", signalHandler.Report)
		authed.POST("/signals/batch", signalHandler.ReportBatch)
	}

	admin := r.Group("/api/admin", rest.AdminAuth(testAdminKey))
	{
		admin.GET("/metrics", adminHandler.Metrics)
		admin.GET("/engines", adminHandler.ListEngines)
		admin.POST("/chars/:id/fail", adminHandler.ForceFail)
		admin.POST("/accounts/:id/ban", adminHandler.BanAccount)
	}

	return &env{db: db, cache: c, sec: sec, mgr: mgr, journal: jsvc, router: r}
}

func (e *env) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) login(t *testing.T, username string) string {
	t.Helper()
	return e.loginFrom(t, username, "device-"+username+"-01")
}

// loginFrom signs in from a specific device install, for tests exercising
// the one-session-per-device binding.
func (e *env) loginFrom(t *testing.T, username, deviceID string) string {
	t.Helper()
	w := e.do(http.MethodPost, "/api/auth/login", map[string]string{
		"username":  username,
		"password":  "pass1234",
		"device_id": deviceID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["token"].(string)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}
