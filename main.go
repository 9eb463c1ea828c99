package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	apirest "github.com/venloapp/questlock/server/api/rest"
	"github.com/venloapp/questlock/server/api/sse"
	"github.com/venloapp/questlock/server/cache"
	"github.com/venloapp/questlock/server/config"
	dbadapter "github.com/venloapp/questlock/server/db"
	"github.com/venloapp/questlock/server/game/catalog"
	"github.com/venloapp/questlock/server/game/engine"
	"github.com/venloapp/questlock/server/game/reward"
	"github.com/venloapp/questlock/server/journal"
	mw "github.com/venloapp/questlock/server/middleware"
	"github.com/venloapp/questlock/server/model"
	"github.com/venloapp/questlock/server/scheduler"
	"github.com/venloapp/questlock/server/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Transition journal ----
	journalSvc := journal.New(db, logger)
	defer journalSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Quest catalog / rewards / engines ----
	cat, err := catalog.Seed()
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	curve := reward.Curve{Base: cfg.Game.XPBase, Growth: cfg.Game.XPGrowth}
	ledger := reward.NewLedger(db, curve, logger)

	mgr := engine.NewManager(engine.Options{
		DB:           db,
		Store:        store.NewGormStore(db),
		Catalog:      cat,
		Ledger:       ledger,
		Journal:      journalSvc,
		Notifier:     pubsub,
		Sched:        sched,
		TickInterval: cfg.Game.TickInterval,
		SignalBuf:    cfg.Game.SignalBuf,
		Logger:       logger,
	}, cfg.Game.EngineIdleTTL)
	defer mgr.Close()

	sched.AddTicker("engine_sweep", cfg.Game.EngineIdleTTL/2, mgr.SweepIdle)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	charH := apirest.NewCharacterHandler(db, curve)
	questH := apirest.NewQuestHandler(db, curve, cat, mgr, journalSvc)
	signalH := apirest.NewSignalHandler(db, curve, mgr, logger)
	adminH := apirest.NewAdminHandler(db, mgr, sched, journalSvc, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		charG := api.Group("/character")
		charG.Use(mw.Auth(cfg.Security, c))
		charG.GET("", charH.Me)
		charG.PUT("", charH.Update)
		charG.GET("/locations", charH.Locations)

		questsG := api.Group("/quests")
		questsG.Use(mw.Auth(cfg.Security, c))
		questsG.GET("", questH.List)
		questsG.GET("/current", questH.Current)
		questsG.POST("/start", questH.Start)
		questsG.POST("/acknowledge", questH.Acknowledge)
		questsG.POST("/abandon", questH.Abandon)
		questsG.GET("/history", questH.History)

		api.POST("/signals", mw.Auth(cfg.Security, c), signalH.Report)
		api.POST("/signals/batch", mw.Auth(cfg.Security, c), signalH.ReportBatch)

		adminG := api.Group("/admin")
		adminG.Use(apirest.AdminAuth(cfg.Server.AdminKey), mw.IPWhitelist(cfg.Server.AdminIPs))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/engines", adminH.ListEngines)
		adminG.POST("/chars/:id/fail", adminH.ForceFail)
		adminG.POST("/accounts/:id/ban", adminH.BanAccount)
	}

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, db, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
