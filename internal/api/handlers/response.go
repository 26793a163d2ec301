package handlers

import (
	"errors"
	"net/http"

	domain "signup-service/internal/domain/signup"
	"signup-service/internal/service"
	"signup-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// RetryAfterSeconds is sent with 503 responses when optimistic retries ran
// out.
const RetryAfterSeconds = "1"

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEventNotFound),
		errors.Is(err, domain.ErrSlotNotFound),
		errors.Is(err, domain.ErrSignUpNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrNotOnWaitlist):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSignUpsDisabled),
		errors.Is(err, domain.ErrSignUpsNotOpen),
		errors.Is(err, domain.ErrSignUpsClosed),
		errors.Is(err, domain.ErrNoEligibleSlot),
		errors.Is(err, domain.ErrAlreadySignedUp),
		errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidEvent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRetriesExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrOrderFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", RetryAfterSeconds)
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		logger.WithError(err).Error("Request failed")
		message = "Internal server error"
	}

	c.JSON(status, APIResponse{
		Success: false,
		Message: message,
	})
}

func respondBadRequest(c *gin.Context, message string, errs interface{}) {
	c.JSON(http.StatusBadRequest, APIResponse{
		Success: false,
		Message: message,
		Errors:  errs,
	})
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondBadRequest(c, "Invalid "+name+" format", nil)
		return uuid.Nil, false
	}
	return id, true
}
