package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/classbook/internal/config"
	"github.com/stemsi/classbook/internal/handler"
	"github.com/stemsi/classbook/internal/middleware"
	"github.com/stemsi/classbook/internal/response"
	"github.com/stemsi/classbook/internal/service"
)

// imageMaxAge is the public cache lifetime of class images.
const imageMaxAge = 3600

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Class      *handler.ClassHandler
	Enrollment *handler.EnrollmentHandler
	Catalog    *handler.CatalogHandler
	System     *handler.SystemHandler
	WS         *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background work owned by middlewares.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.GinMode != gin.ReleaseMode {
		router.Use(gin.Logger())
	}

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	// ─── 0. Public Group (No Auth) ─────────────────────────────────────
	signupLimiter := middleware.NewRateLimiter(ctx, cfg.SignupRatePerMinute, time.Minute)

	publicAPI := router.Group("/api/v1/public")
	{
		publicAPI.GET("/classes", handlers.Class.ListClasses)
		publicAPI.GET("/classes/:id", handlers.Class.GetClass)
		publicAPI.GET("/classes/:id/image", middleware.CacheControl(imageMaxAge), handlers.Class.GetImage)
		publicAPI.GET("/classes/:id/occurrences", handlers.Class.ListOccurrences)
		publicAPI.GET("/classes/:id/availability", handlers.Enrollment.GetAvailability)
		publicAPI.GET("/classes/:id/calendar.ics", handlers.Class.GetCalendar)

		publicAPI.POST("/signups", signupLimiter.Middleware(), handlers.Enrollment.Signup)
	}

	// ─── WebSocket (No Auth) ──────────────────────────────────────────
	wsGroup := router.Group("/ws/v1/public")
	{
		wsGroup.GET("/classes/:id/availability", handlers.WS.AvailabilityStream)
	}

	// ─── 1. Auth Group ─────────────────────────────────────────────────
	loginLimiter := middleware.NewRateLimiter(ctx, cfg.SignupRatePerMinute, time.Minute)

	auth := router.Group("/api/v1/auth")
	auth.Use(loginLimiter.Middleware())
	{
		auth.POST("/admin/login", handlers.Auth.AdminLogin)
	}

	// ─── 2. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService), middleware.NoStore())
	{
		// Classes
		adminAPI.POST("/classes", handlers.Class.CreateClass)
		adminAPI.PUT("/classes/:id", handlers.Class.UpdateClass)
		adminAPI.DELETE("/classes/:id", handlers.Class.DeleteClass)

		// Attendance
		adminAPI.GET("/classes/:id/enrollments", handlers.Enrollment.ListEnrollments)
		adminAPI.GET("/classes/:id/attendance", handlers.Enrollment.GetAttendance)
		adminAPI.GET("/classes/:id/attendance.xlsx", handlers.Enrollment.ExportAttendance)

		// Catalog order
		adminAPI.GET("/catalog", handlers.Catalog.GetCatalog)
		adminAPI.PUT("/catalog/order", handlers.Catalog.ReorderCatalog)
		adminAPI.POST("/catalog/swap", handlers.Catalog.SwapCatalog)
	}

	return router
}
