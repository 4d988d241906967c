// internal/handler/errors.go
package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"makino-adapter/internal/service"
	"makino-adapter/internal/utils"
	"makino-adapter/pkg/link"
)

// statusFor maps adapter errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, link.ErrRetryDelayed):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrNoSnapshot):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidWrite):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrMCodeNotRequested):
		return http.StatusConflict
	case errors.Is(err, service.ErrHistoryDisabled), errors.Is(err, link.ErrNotSupported):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, link.ErrNoValidVersion),
		errors.Is(err, link.ErrConnectFailed),
		errors.Is(err, link.ErrDisconnect),
		errors.Is(err, link.ErrFatalAcquire),
		errors.Is(err, link.ErrNoData):
		return http.StatusBadGateway
	}
	var le *link.Error
	if errors.As(err, &le) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes the error envelope. A throttled request carries Retry-After.
func respondError(c *gin.Context, svc *service.AdapterService, message string, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable && svc != nil {
		next := svc.Status().Session.NextProXAttempt
		seconds := int(math.Ceil(time.Until(next).Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
	}
	utils.ErrorResponse(c, status, message, err)
}
