package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/api/handlers"
	"github.com/roadwarden/roadwarden/internal/api/middleware"
	"github.com/roadwarden/roadwarden/internal/config"
	"github.com/roadwarden/roadwarden/internal/database"
	"github.com/roadwarden/roadwarden/internal/logger"
	"github.com/roadwarden/roadwarden/internal/metrics"
	"github.com/roadwarden/roadwarden/internal/services"
)

// Register migrates the schema, wires the service graph and mounts every
// route, including the traffic gate that fronts all of them.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config) error {
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	// Service graph. The evaluator is shared by the live gate and the
	// inspector harness; they differ only in their data source.
	classifier := services.NewClassifierService(db)
	capture := services.NewCaptureService(db, classifier, cfg.IgnorePatterns)
	membership := services.NewMembershipService(db)
	evaluator := services.NewEvaluatorService(db, membership)
	notify := services.NewNotifyService(db, cfg)
	roadblocks := services.NewRoadblockService(db, evaluator, notify, cfg)
	inspector := services.NewInspectorService(db, evaluator)
	importer := services.NewImportService(db)
	retention := services.NewRetentionService(db, cfg)

	if err := retention.Start(); err != nil {
		return fmt.Errorf("start retention scheduler: %w", err)
	}
	logger.WithFields(map[string]interface{}{
		"schedule": cfg.TruncateSchedule,
	}).Info("Retention scheduler started")

	// The gate fronts every route not excluded by the ignore patterns.
	router.Use(middleware.MemberResolver(db, cfg.JWTSecret))
	router.Use(middleware.Gate(capture, roadblocks, cfg))

	router.GET("/api/v1/health", handlers.HealthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")

	memberHandler := handlers.NewMemberHandler(db, capture, cfg.JWTSecret)
	api.POST("/auth/login", memberHandler.Login)
	api.POST("/auth/logout", memberHandler.Logout)
	api.GET("/members", memberHandler.List)
	api.POST("/members", memberHandler.Create)
	api.GET("/groups", memberHandler.ListGroups)
	api.POST("/groups", memberHandler.CreateGroup)

	ruleHandler := handlers.NewRuleHandler(db, inspector)
	api.GET("/rules", ruleHandler.List)
	api.POST("/rules", ruleHandler.Create)
	api.GET("/rules/:id", ruleHandler.Get)
	api.PUT("/rules/:id", ruleHandler.Update)
	api.DELETE("/rules/:id", ruleHandler.Delete)
	api.POST("/rules/:id/inspect", ruleHandler.Inspect)

	requestTypeHandler := handlers.NewRequestTypeHandler(db)
	api.GET("/request-types", requestTypeHandler.List)
	api.POST("/request-types", requestTypeHandler.Create)
	api.GET("/request-types/:id", requestTypeHandler.Get)
	api.PUT("/request-types/:id", requestTypeHandler.Update)
	api.DELETE("/request-types/:id", requestTypeHandler.Delete)
	api.GET("/ip-rules", requestTypeHandler.ListIPRules)
	api.POST("/ip-rules", requestTypeHandler.CreateIPRule)
	api.DELETE("/ip-rules/:id", requestTypeHandler.DeleteIPRule)

	roadblockHandler := handlers.NewRoadblockHandler(roadblocks)
	api.GET("/roadblocks", roadblockHandler.List)
	api.GET("/roadblocks/:id", roadblockHandler.Get)
	api.PUT("/roadblocks/:id/override", roadblockHandler.Override)

	importHandler := handlers.NewImportHandler(importer)
	api.POST("/import/request-types", importHandler.RequestTypes)
	api.POST("/import/url-rules", importHandler.URLRules)
	api.POST("/import/rules", importHandler.Rules)
	api.POST("/import/inspectors", importHandler.Inspectors)

	notificationHandler := handlers.NewNotificationHandler(notify)
	api.GET("/notifications", notificationHandler.List)
	api.POST("/notifications/:id/read", notificationHandler.MarkAsRead)
	api.POST("/notifications/read-all", notificationHandler.MarkAllAsRead)

	providerHandler := handlers.NewNotificationProviderHandler(notify)
	api.GET("/notifications/providers", providerHandler.List)
	api.POST("/notifications/providers", providerHandler.Create)
	api.PUT("/notifications/providers/:id", providerHandler.Update)
	api.DELETE("/notifications/providers/:id", providerHandler.Delete)
	api.POST("/notifications/providers/test", providerHandler.Test)

	systemHandler := handlers.NewSystemHandler(retention)
	api.GET("/system/version", systemHandler.Version)
	api.POST("/system/truncate", systemHandler.Truncate)

	return nil
}
