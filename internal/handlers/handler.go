package handlers

import (
	"net/http"

	"tv_bridge/internal/logger"
	"tv_bridge/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	metrics  http.Handler
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// WithMetrics exposes h on GET /metrics.
func (h *Handler) WithMetrics(metrics http.Handler) *Handler {
	h.metrics = metrics
	return h
}

// InitRoutes builds and returns the Gin router with all routes registered.
// Anything not routed below is treated as a power bridge request.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", h.health)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	h.registerAPIRoutes(router)

	router.GET("/ws", h.wsConnect)

	router.NoRoute(h.powerBridge)

	return router
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/state", h.getState)
		api.GET("/logs", h.tokenMiddleware, h.getLogs)
	}
}
