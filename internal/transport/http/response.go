package httptransport

import (
	"github.com/gin-gonic/gin"

	"chorus-server-go/internal/platform/errors"
)

// APIResponse is the envelope every JSON endpoint replies with.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

// RespondSuccess writes a success envelope.
func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}

	resp := APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

// RespondError writes a failure envelope.
func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	resp := APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

// RespondKindError maps a pipeline error onto an HTTP status by its kind.
func RespondKindError(c *gin.Context, err error) {
	status := statusForKind(errors.KindOf(err))
	RespondError(c, status, err.Error(), nil)
}

func statusForKind(kind errors.Kind) int {
	switch kind {
	case errors.KindInvalidRequest, errors.KindValidationFailed:
		return 400
	case errors.KindNotFound:
		return 404
	case errors.KindAlreadyTerminal:
		return 409
	case errors.KindQuotaExceeded:
		return 429
	case errors.KindAllProvidersExhausted, errors.KindSynthesisFailed:
		return 502
	case errors.KindProviderUnavailable, errors.KindNoEligibleProvider:
		return 503
	default:
		return 500
	}
}
