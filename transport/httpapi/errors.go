package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	goIAM "github.com/MrEthical07/goIAM"
	"github.com/MrEthical07/goIAM/internal/logging"
)

// StatusFor maps an Engine error onto an HTTP status. Order matters: the
// classed errors also match ErrUnauthorized.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, goIAM.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, goIAM.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, goIAM.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, goIAM.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, goIAM.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, goIAM.ErrBackendUnavailable), errors.Is(err, goIAM.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

// writeError renders err. Server-side failures are logged and their text is
// replaced with a generic message.
func (h *Handler) writeError(c *gin.Context, op string, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			slog.String("op", op),
			logging.Err(err),
		)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	c.AbortWithStatusJSON(status, errorResponse{Code: codeFor(status), Message: msg})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Code: codeFor(http.StatusBadRequest), Message: err.Error()})
}
