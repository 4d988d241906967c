// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"makino-adapter/internal/config"
	"makino-adapter/internal/database"
	"makino-adapter/internal/handler"
	"makino-adapter/internal/middleware"
	"makino-adapter/internal/service"
	"makino-adapter/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config    *config.Config
	logger    *zap.Logger
	db        *database.DB
	redis     redis.UniversalClient
	service   *service.AdapterService
	websocket *handler.WebSocketHandler
	gatherer  prometheus.Gatherer
}

// NewRouter creates a new router instance. db and rdb are nil when disabled.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	rdb redis.UniversalClient,
	adapterService *service.AdapterService,
	wsHandler *handler.WebSocketHandler,
	gatherer prometheus.Gatherer,
) *Router {
	return &Router{
		config:    config,
		logger:    logger,
		db:        db,
		redis:     rdb,
		service:   adapterService,
		websocket: wsHandler,
		gatherer:  gatherer,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if r.config.App.Environment == "test" {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Server))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.service, r.db, r.redis, r.config, r.logger)
	toolHandler := handler.NewToolHandler(r.service, r.logger)
	machineHandler := handler.NewMachineHandler(r.service, r.logger)

	healthHandler.RegisterRoutes(router)

	apiV1 := router.Group("/api/v1")
	toolHandler.RegisterRoutes(apiV1)
	machineHandler.RegisterRoutes(apiV1)

	if r.websocket != nil {
		r.addWebSocketRoutes(router, apiV1)
	}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully")
}

// addWebSocketRoutes sets up WebSocket routes
func (r *Router) addWebSocketRoutes(router *gin.Engine, api *gin.RouterGroup) {
	r.websocket.RegisterRoutes(router.Group("/ws"))

	api.GET("/ws/stats", func(c *gin.Context) {
		utils.SuccessResponse(c, http.StatusOK, "Connection stats retrieved successfully", r.websocket.GetConnectionStats())
	})
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
