package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/dropgate/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig carries the cross-cutting router settings
type RouterConfig struct {
	APIKey   string
	Logger   *zap.Logger
	Gatherer prometheus.Gatherer // nil disables /metrics
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, adminGate *service.AdminGate, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(RequestLogger(logger), gin.Recovery())

	handlers := NewAuthHandlers(authService, adminGate, logger)
	apiKey := APIKeyMiddleware(cfg.APIKey)

	// Auth routes
	auth := router.Group("/auth", apiKey)
	{
		auth.POST("/verify", handlers.Verify)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
	}

	// Protected API routes
	api := router.Group("/api", apiKey, AuthMiddleware(authService, handlers))
	{
		api.GET("/me", handlers.Me)
		api.GET("/authorize", handlers.Authorize)
	}

	admin := router.Group("/admin", apiKey)
	{
		admin.POST("/login", handlers.AdminLogin)
	}

	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	return router
}
