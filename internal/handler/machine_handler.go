// internal/handler/machine_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"makino-adapter/internal/service"
	"makino-adapter/internal/utils"
)

// MachineHandler serves machine state and session requests
type MachineHandler struct {
	service *service.AdapterService
	logger  *utils.ServiceLogger
}

// NewMachineHandler creates a new machine handler
func NewMachineHandler(svc *service.AdapterService, logger *zap.Logger) *MachineHandler {
	return &MachineHandler{
		service: svc,
		logger:  utils.NewServiceLogger(logger, "machine-handler"),
	}
}

// RegisterRoutes registers machine routes
func (h *MachineHandler) RegisterRoutes(router *gin.RouterGroup) {
	machine := router.Group("/machine")
	{
		machine.GET("", h.GetState)
		machine.GET("/spindle-tool", h.GetSpindleTool)
		machine.GET("/pallet", h.GetPallet)
		machine.GET("/mcode", h.GetMCode)
		machine.GET("/alarms", h.GetAlarms)
	}
	router.GET("/session", h.GetSession)
}

// GetState returns the machine values of the last poll
// @Summary Machine state
// @Description Spindle tool, pallet and M code read during the last poll
// @Tags Machine
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.MachineState} "Machine state"
// @Failure 404 {object} utils.APIResponse "No poll yet"
// @Router /machine [get]
func (h *MachineHandler) GetState(c *gin.Context) {
	state := h.service.MachineState()
	if state == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "No machine state available", nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Machine state retrieved successfully", state)
}

// GetSpindleTool reads the spindle tool
// @Summary Spindle tool
// @Tags Machine
// @Produce json
// @Success 200 {object} utils.APIResponse{data=link.SpindleTool} "Spindle tool"
// @Failure 502 {object} utils.APIResponse "Controller error"
// @Router /machine/spindle-tool [get]
func (h *MachineHandler) GetSpindleTool(c *gin.Context) {
	tool, err := h.service.SpindleTool(c.Request.Context())
	if err != nil {
		respondError(c, h.service, "Failed to read the spindle tool", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Spindle tool retrieved successfully", gin.H{
		"tool_number": tool.PTN,
		"tool":        tool,
	})
}

// GetPallet reads the pallet on the machine table
// @Summary Pallet number
// @Tags Machine
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{pallet=int}} "Pallet number"
// @Failure 502 {object} utils.APIResponse "Controller error"
// @Router /machine/pallet [get]
func (h *MachineHandler) GetPallet(c *gin.Context) {
	pallet, err := h.service.PalletNumber(c.Request.Context())
	if err != nil {
		respondError(c, h.service, "Failed to read the pallet number", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Pallet number retrieved successfully", gin.H{"pallet": pallet})
}

// GetMCode reads the modal M code of the Cnc side
// @Summary Modal M code
// @Description The current block code is only set when the M code was requested in the block being executed
// @Tags Machine
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{last=int,current_block=int,requested=bool}} "M code"
// @Failure 502 {object} utils.APIResponse "Controller error"
// @Router /machine/mcode [get]
func (h *MachineHandler) GetMCode(c *gin.Context) {
	code, err := h.service.MCode(c.Request.Context())
	if err != nil {
		respondError(c, h.service, "Failed to read the M code", err)
		return
	}

	data := gin.H{
		"last":      code.Code,
		"requested": code.Requested,
	}
	if code.Requested {
		data["current_block"] = code.Code
	}
	utils.SuccessResponse(c, http.StatusOK, "M code retrieved successfully", data)
}

// GetAlarms reads the active machine and Cnc alarms
// @Summary Active alarms
// @Description Raw alarm numbers and properties of both channels. A channel that cannot be read is listed in errors.
// @Tags Machine
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.AlarmList} "Alarms"
// @Failure 502 {object} utils.APIResponse "Controller error"
// @Failure 503 {object} utils.APIResponse "Reconnect delayed"
// @Router /machine/alarms [get]
func (h *MachineHandler) GetAlarms(c *gin.Context) {
	alarms, err := h.service.Alarms(c.Request.Context())
	if err != nil {
		respondError(c, h.service, "Failed to read the alarms", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Alarms retrieved successfully", alarms)
}

// GetSession returns the connection status
// @Summary Session status
// @Tags Machine
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.Status} "Session status"
// @Router /session [get]
func (h *MachineHandler) GetSession(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Session status retrieved successfully", h.service.Status())
}
