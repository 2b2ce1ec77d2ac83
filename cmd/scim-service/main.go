// Package main is the entry point for the SCIM service, a SCIM 2.0
// provisioning endpoint backed by PostgreSQL.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scimgate/scimgate/internal/common/config"
	"github.com/scimgate/scimgate/internal/common/database"
	"github.com/scimgate/scimgate/internal/common/logger"
	"github.com/scimgate/scimgate/internal/common/middleware"
	"github.com/scimgate/scimgate/internal/health"
	"github.com/scimgate/scimgate/internal/scim"
	"github.com/scimgate/scimgate/internal/server"
	"github.com/scimgate/scimgate/internal/store"
)

var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
)

func main() {
	log := logger.New()
	defer log.Sync()

	log.Info("Starting SCIM service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", CommitHash),
	)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	st := store.NewPostgres(db.Pool)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := st.Migrate(ctx); err != nil {
		cancel()
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	cancel()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(logger.GinMiddleware(log))
	router.Use(middleware.PrometheusMetrics("scim-service"))

	router.GET("/metrics", middleware.MetricsHandler())

	handler := scim.NewHandler(st, log, scim.Config{
		BearerToken:      cfg.BearerToken,
		BaseURL:          cfg.BaseURL,
		BasePath:         cfg.BasePath,
		DocumentationURI: cfg.DocumentationURI,
	})
	handler.RegisterRoutes(router)

	healthService := health.NewHealthService(log)
	healthService.SetVersion(Version)
	healthService.RegisterCheck(health.NewStoreChecker(st))
	healthService.RegisterStandardRoutes(router, "")
	router.GET("/ready", healthService.ReadyHandler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	graceful := server.New(server.Config{
		Server:          httpServer,
		Logger:          log,
		Shutdownables:   []server.Shutdownable{server.CloseDB(db)},
		ShutdownTimeout: 30 * time.Second,
	})

	if err := graceful.ListenAndServe(); err != nil {
		log.Fatal("Server error", zap.Error(err))
	}

	log.Info("Server exited")
}
