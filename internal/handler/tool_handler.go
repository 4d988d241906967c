// internal/handler/tool_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"makino-adapter/internal/service"
	"makino-adapter/internal/utils"
	"makino-adapter/pkg/link"
)

// ToolHandler handles tool data HTTP requests
type ToolHandler struct {
	service *service.AdapterService
	logger  *utils.ServiceLogger
}

// NewToolHandler creates a new tool handler
func NewToolHandler(svc *service.AdapterService, logger *zap.Logger) *ToolHandler {
	return &ToolHandler{
		service: svc,
		logger:  utils.NewServiceLogger(logger, "tool-handler"),
	}
}

// RegisterRoutes registers tool data routes
func (h *ToolHandler) RegisterRoutes(router *gin.RouterGroup) {
	tools := router.Group("/tools")
	{
		tools.GET("", h.GetSnapshot)
		tools.POST("/refresh", h.Refresh)
		tools.GET("/count", h.GetCount)
		tools.GET("/positions", h.GetPositions)
		tools.GET("/history", h.GetHistory)
		tools.GET("/properties", h.GetProperties)
		tools.PUT("/items/:item", h.SetItem)
		tools.POST("/clear", h.ClearTools)
	}
}

// WriteItemRequest writes one item to a list of positions
type WriteItemRequest struct {
	Positions []link.ToolPosition `json:"positions" binding:"required"`
	Values    []int32             `json:"values" binding:"required"`
}

// ClearToolsRequest clears the tools of a list of positions
type ClearToolsRequest struct {
	Positions []link.ToolPosition `json:"positions" binding:"required"`
}

// GetSnapshot returns the last good snapshot
// @Summary Get tool data
// @Description Get the last published tool data snapshot
// @Tags Tools
// @Produce json
// @Param tool_number query string false "Only return the records of one tool number"
// @Success 200 {object} utils.APIResponse{data=model.ToolLifeData} "Snapshot retrieved successfully"
// @Failure 404 {object} utils.APIResponse "No snapshot published yet"
// @Router /tools [get]
func (h *ToolHandler) GetSnapshot(c *gin.Context) {
	data := h.service.Snapshot()
	if data == nil {
		respondError(c, h.service, "No tool data available", service.ErrNoSnapshot)
		return
	}

	if toolNumber := c.Query("tool_number"); toolNumber != "" {
		utils.SuccessResponse(c, http.StatusOK, "Tool records retrieved successfully", gin.H{
			"protocol_version": data.ProtocolVersion,
			"acquired_at":      data.AcquiredAt,
			"tools":            data.FindByToolNumber(toolNumber),
		})
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Snapshot retrieved successfully", data)
}

// Refresh runs one acquisition cycle
// @Summary Refresh tool data
// @Description Acquire the tool data from the controller and publish a new snapshot
// @Tags Tools
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.ToolLifeData} "Snapshot refreshed"
// @Failure 502 {object} utils.APIResponse "Controller error"
// @Failure 503 {object} utils.APIResponse "Connection attempt delayed"
// @Router /tools/refresh [post]
func (h *ToolHandler) Refresh(c *gin.Context) {
	data, err := h.service.Poll(c.Request.Context())
	if err != nil {
		h.logger.Warn("Refresh request failed", zap.Error(err))
		respondError(c, h.service, "Failed to refresh tool data", err)
		return
	}

	message := "Snapshot refreshed"
	if data.Warning() != nil {
		message = "Snapshot refreshed with missing fields"
	}
	utils.SuccessResponse(c, http.StatusOK, message, data)
}

// GetCount returns the number of registered tools
// @Summary Registered tool number
// @Tags Tools
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{count=int}} "Tool count"
// @Router /tools/count [get]
func (h *ToolHandler) GetCount(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Tool count retrieved successfully", gin.H{
		"count": h.service.RegisteredToolNumber(),
	})
}

// GetPositions returns the position labels of the snapshot
// @Summary Tool positions
// @Tags Tools
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{positions=[]string}} "Tool positions"
// @Router /tools/positions [get]
func (h *ToolHandler) GetPositions(c *gin.Context) {
	positions := h.service.Positions()
	utils.SuccessResponse(c, http.StatusOK, "Tool positions retrieved successfully", gin.H{
		"positions": positions,
		"count":     len(positions),
	})
}

// GetHistory lists stored snapshots
// @Summary Snapshot history
// @Tags Tools
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Success 200 {object} utils.APIResponse{data=object{snapshots=[]repository.SnapshotSummary,total=int}} "Snapshot history"
// @Failure 501 {object} utils.APIResponse "History disabled"
// @Router /tools/history [get]
func (h *ToolHandler) GetHistory(c *gin.Context) {
	page := queryInt(c, "page", 1)
	perPage := queryInt(c, "per_page", 20)
	if perPage > 100 {
		perPage = 100
	}

	snapshots, total, err := h.service.History(c.Request.Context(), perPage, (page-1)*perPage)
	if err != nil {
		respondError(c, h.service, "Failed to list snapshots", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Snapshot history retrieved successfully", gin.H{
		"snapshots": snapshots,
		"total":     total,
		"page":      page,
		"per_page":  perPage,
	})
}

// GetProperties dumps every readable item
// @Summary Raw item dump
// @Description Read every known item of every position, for diagnostics
// @Tags Tools
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.ItemProperties} "Item values"
// @Failure 502 {object} utils.APIResponse "Controller error"
// @Router /tools/properties [get]
func (h *ToolHandler) GetProperties(c *gin.Context) {
	props, err := h.service.Properties(c.Request.Context())
	if err != nil {
		respondError(c, h.service, "Failed to read item properties", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Item properties retrieved successfully", props)
}

// SetItem writes one tool data item
// @Summary Write tool data item
// @Description Write one item code to a list of positions. Codes below 100 are tool items, the others cutter items.
// @Tags Tools
// @Accept json
// @Produce json
// @Param item path int true "Item code"
// @Param request body WriteItemRequest true "Positions and values"
// @Success 200 {object} utils.APIResponse "Item written"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 502 {object} utils.APIResponse "Controller error"
// @Router /tools/items/{item} [put]
func (h *ToolHandler) SetItem(c *gin.Context) {
	code, err := strconv.ParseInt(c.Param("item"), 10, 32)
	if err != nil || code < 0 {
		utils.ValidationErrorResponse(c, map[string]string{"item": "must be a non-negative item code"})
		return
	}

	var req WriteItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	item := link.ItemCode(code)
	if err := h.service.SetToolItem(c.Request.Context(), item, req.Positions, req.Values, c.GetString("request_id")); err != nil {
		h.logger.Error("Tool data write failed", zap.Int32("item", int32(item)), zap.Error(err))
		respondError(c, h.service, "Failed to write tool data", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Tool data written", gin.H{
		"item":      int32(item),
		"positions": len(req.Positions),
	})
}

// ClearTools clears the data of tools
// @Summary Clear tool data
// @Tags Tools
// @Accept json
// @Produce json
// @Param request body ClearToolsRequest true "Positions to clear"
// @Success 200 {object} utils.APIResponse "Tool data cleared"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Router /tools/clear [post]
func (h *ToolHandler) ClearTools(c *gin.Context) {
	var req ClearToolsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.service.ClearToolData(c.Request.Context(), req.Positions, c.GetString("request_id")); err != nil {
		respondError(c, h.service, "Failed to clear tool data", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Tool data cleared", gin.H{"positions": len(req.Positions)})
}

// queryInt parses a positive integer query parameter
func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
