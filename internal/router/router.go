// internal/router/router.go
package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/javajoker/partner-catalog/internal/config"
	"github.com/javajoker/partner-catalog/internal/feed"
	"github.com/javajoker/partner-catalog/internal/handlers"
	"github.com/javajoker/partner-catalog/internal/metrics"
	"github.com/javajoker/partner-catalog/internal/middleware"
	"github.com/javajoker/partner-catalog/internal/services"
	"github.com/javajoker/partner-catalog/internal/utils"
)

// Services is shared by the HTTP layer and the background tasks.
type Services struct {
	Auth         *services.AuthService
	Partner      *services.PartnerService
	Notification *services.NotificationService
	Admin        *services.AdminService
}

func NewServices(db *gorm.DB, cfg *config.Config) (*Services, error) {
	var archive services.FeedArchiver
	if cfg.Feed.ArchiveEnabled {
		storageService, err := services.NewStorageService(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize feed archive: %w", err)
		}
		archive = storageService
	}

	catalogService := services.NewCatalogService(db)
	fetcher := feed.NewHTTPFetcher(cfg.Feed)

	return &Services{
		Auth:         services.NewAuthService(db, cfg),
		Partner:      services.NewPartnerService(db, fetcher, catalogService, archive),
		Notification: services.NewNotificationService(cfg),
		Admin:        services.NewAdminService(db),
	}, nil
}

func Initialize(db *gorm.DB, cfg *config.Config, svc *Services) *gin.Engine {
	authHandler := handlers.NewAuthHandler(svc.Auth)
	partnerHandler := handlers.NewPartnerHandler(svc.Partner)
	adminHandler := handlers.NewAdminHandler(svc.Admin)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	r.Use(middleware.I18nMiddleware(cfg.I18n.DefaultLocale))
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	r.GET("/health", func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"version": "1.0.0",
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
		}

		// Gate: identity, then role. URL checks happen in the pipeline.
		partner := v1.Group("/partner")
		partner.Use(middleware.AuthRequired(), middleware.ShopRequired())
		{
			partner.POST("/update", middleware.FeedUpdateRateLimit(), partnerHandler.Update)
			partner.GET("/state", partnerHandler.GetState)
			partner.POST("/state", partnerHandler.SetState)
			partner.GET("/offers", partnerHandler.ListOffers)
			partner.GET("/imports", partnerHandler.ListImports)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.GET("/dashboard/stats", adminHandler.GetDashboardStats)
			admin.GET("/users", adminHandler.GetUsers)
			admin.PUT("/users/:id/status", adminHandler.UpdateUserStatus)
			admin.GET("/imports", adminHandler.GetImports)
		}
	}

	return r
}
