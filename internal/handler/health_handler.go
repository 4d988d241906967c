// internal/handler/health_handler.go
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"makino-adapter/internal/config"
	"makino-adapter/internal/database"
	"makino-adapter/internal/service"
	"makino-adapter/internal/utils"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	service   *service.AdapterService
	db        *database.DB
	redis     redis.UniversalClient
	config    *config.Config
	startedAt time.Time
	logger    *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler. db and rdb are nil when disabled.
func NewHealthHandler(svc *service.AdapterService, db *database.DB, rdb redis.UniversalClient, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		service:   svc,
		db:        db,
		redis:     rdb,
		config:    config,
		startedAt: time.Now(),
		logger:    utils.NewServiceLogger(logger, "health-handler"),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health", h.HealthCheck)
	router.GET("/health/ready", h.ReadinessCheck)
	router.GET("/health/live", h.LivenessCheck)
}

// HealthCheck performs general health check
// @Summary Health check
// @Description Get overall service health including controller session, database and cache
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Service is healthy"
// @Failure 503 {object} HealthResponse "Service is unhealthy"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).String(),
		Checks:    make(map[string]CheckResult),
	}

	status := h.service.Status()
	controller := CheckResult{
		Status: "healthy",
		Data: map[string]interface{}{
			"backend":        status.Backend,
			"prox_connected": status.Session.ProXConnected,
			"prox_version":   status.Session.ProXVersion,
			"cnc_connected":  status.Session.CncConnected,
			"tool_count":     status.ToolCount,
		},
	}
	if !status.LastRefresh.IsZero() {
		controller.Data["last_refresh"] = status.LastRefresh
	}
	if status.LastError != "" {
		// The last good snapshot is still served
		controller.Status = "degraded"
		controller.Message = status.LastError
	}
	health.Checks["controller"] = controller

	if h.db != nil {
		if err := h.db.Health(ctx); err != nil {
			health.Status = "unhealthy"
			health.Checks["database"] = CheckResult{Status: "unhealthy", Message: err.Error()}
		} else {
			stats := h.db.Stats()
			health.Checks["database"] = CheckResult{
				Status:  "healthy",
				Message: "Database connection OK",
				Data: map[string]interface{}{
					"open_connections": stats.OpenConnections,
					"in_use":           stats.InUse,
					"idle":             stats.Idle,
				},
			}
		}
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			health.Status = "unhealthy"
			health.Checks["redis"] = CheckResult{Status: "unhealthy", Message: err.Error()}
		} else {
			health.Checks["redis"] = CheckResult{Status: "healthy", Message: "Redis connection OK"}
		}
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		h.logger.Warn("Health check failed", zap.Any("checks", health.Checks))
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// ReadinessCheck reports ready once a snapshot is published
// @Summary Readiness check
// @Description Ready when tool data can be served
// @Tags Health
// @Produce json
// @Success 200 {object} object{status=string,timestamp=string} "Service is ready"
// @Failure 503 {object} object{status=string,reason=string} "Service is not ready"
// @Router /health/ready [get]
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if h.service.Snapshot() == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "no tool data snapshot published yet",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck for Kubernetes liveness probe
// @Summary Liveness check
// @Description Check if service is alive
// @Tags Health
// @Produce json
// @Success 200 {object} object{status=string,timestamp=string} "Service is alive"
// @Router /health/live [get]
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
