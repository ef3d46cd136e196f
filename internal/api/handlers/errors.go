package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
)

// Error codes shared across handlers
const (
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInvalidID      = "INVALID_ID"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// SendBadRequest sends a 400 Bad Request error
func SendBadRequest(c *gin.Context, code, message string, details ...map[string]interface{}) {
	var det map[string]interface{}
	if len(details) > 0 {
		det = details[0]
	}
	c.JSON(http.StatusBadRequest, entities.ErrorResponse{
		Code:    code,
		Message: message,
		Details: det,
	})
}

// SendUnauthorized sends a 401 Unauthorized error
func SendUnauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, entities.ErrorResponse{
		Code:    ErrCodeUnauthorized,
		Message: message,
	})
}

// SendForbidden sends a 403 Forbidden error
func SendForbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, entities.ErrorResponse{
		Code:    ErrCodeForbidden,
		Message: message,
	})
}

// SendNotFound sends a 404 Not Found error
func SendNotFound(c *gin.Context, code, message string) {
	c.JSON(http.StatusNotFound, entities.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// SendInternalError sends a 500 Internal Server Error
func SendInternalError(c *gin.Context, code, message string) {
	c.JSON(http.StatusInternalServerError, entities.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// respondDomainError maps an error from the domain layer onto the HTTP
// error contract: validation 400, signature 401, authz 403, missing 404,
// conflicts 409, provider transient 503, everything else 500.
func respondDomainError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, domainerrors.ErrInvalidInput),
		errors.Is(err, domainerrors.ErrBusinessRule):
		status = http.StatusBadRequest
	case errors.Is(err, domainerrors.ErrInvalidSignature),
		errors.Is(err, domainerrors.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domainerrors.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domainerrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domainerrors.ErrConflict),
		errors.Is(err, domainerrors.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, domainerrors.ErrRateLimit):
		status = http.StatusTooManyRequests
	case errors.Is(err, domainerrors.ErrProviderUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domainerrors.ErrProviderRejected):
		status = http.StatusBadGateway
	case errors.Is(err, domainerrors.ErrInvariant):
		status = http.StatusInternalServerError
	}

	code := domainerrors.GetErrorCode(err)
	if code == "" {
		code = ErrCodeInternalError
	}

	message := err.Error()
	var domainErr *domainerrors.DomainError
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}
	if status == http.StatusInternalServerError {
		// never leak internals
		message = "Internal server error"
	}

	c.JSON(status, entities.ErrorResponse{
		Code:    code,
		Message: message,
		Details: domainerrors.GetErrorDetails(err),
	})
}
