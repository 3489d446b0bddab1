package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"healthtrends-server/internal/config"
	"healthtrends-server/internal/handlers"
	"healthtrends-server/internal/identity"
	"healthtrends-server/internal/middleware"
	"healthtrends-server/internal/models"
	"healthtrends-server/internal/queue"
	"healthtrends-server/internal/utils"
)

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, db *gorm.DB, cfg *config.Config, q queue.Queue, idp identity.Client, keys utils.KeySource, logger *zap.Logger) {
	// Initialize handlers
	ingestHandler := handlers.NewIngestHandler(q, logger)
	labHandler := handlers.NewLabHandler(db)
	catalogHandler := handlers.NewCatalogHandler(db)
	patientHandler := handlers.NewPatientHandler(db)
	adminHandler := handlers.NewAdminHandler(idp, logger)
	trendsHandler := handlers.NewTrendsHandler(db, cfg.Analytics, logger)

	// Public routes (no authentication required)
	// The ingestion gateway sits behind its own edge; it validates the
	// payload, not the caller.
	router.POST("/ingest", ingestHandler.SubmitResult)

	// Authenticated routes
	private := router.Group("/")
	private.Use(middleware.AuthMiddleware(cfg, keys)) // Apply bearer authentication middleware
	{
		catalogRoutes := private.Group("/catalog")
		{
			// Everyone authenticated may read the catalog
			catalogRoutes.GET("/tests", catalogHandler.ListTestTypes)

			// Admin-only catalog management
			adminCatalog := catalogRoutes.Group("")
			adminCatalog.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
			{
				adminCatalog.POST("/tests", catalogHandler.CreateTestType)
				adminCatalog.DELETE("/tests/:code", catalogHandler.DeleteTestType)
				adminCatalog.POST("/tests/sync", catalogHandler.SyncCatalog)
			}
		}

		patientRoutes := private.Group("/patients")
		{
			// Patients upsert their own profile; the subject claim is the key
			patientRoutes.POST("/profile", patientHandler.UpdateProfile)

			// Combined listing (with ghost tagging) for clinical staff
			patientRoutes.GET("", middleware.RoleAuthMiddleware(models.RoleDoctor, models.RoleLab, models.RoleAdmin), patientHandler.ListPatients)
		}

		labRoutes := private.Group("/lab")
		labRoutes.Use(middleware.RoleAuthMiddleware(models.RoleLab, models.RoleAdmin))
		{
			// Privileged synchronous ingestion path, bypasses the queue
			labRoutes.POST("/upload-results", labHandler.UploadResults)
			labRoutes.DELETE("/delete-results", labHandler.DeleteResults)
		}

		adminRoutes := private.Group("/admin")
		adminRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
		{
			adminRoutes.POST("/assign-role", adminHandler.AssignRole)
			adminRoutes.DELETE("/patients/:patient_id", patientHandler.DeletePatient)
		}

		// Analytics (ownership checks inside the handlers)
		trendRoutes := private.Group("/trends/patient/:patient_id")
		{
			trendRoutes.GET("/available_tests", trendsHandler.AvailableTests)
			trendRoutes.GET("/trends/:test_code", trendsHandler.GetTrends)
			trendRoutes.GET("/monthly-trends/:test_code", trendsHandler.MonthlyTrends)
			trendRoutes.GET("/risk-analysis/:test_code", trendsHandler.RiskAnalysis)
		}
		private.GET("/patient/:patient_id/dashboard", trendsHandler.Dashboard)
	}

	// Simple health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "UP"})
	})
}
