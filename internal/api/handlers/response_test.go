package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "signup-service/internal/domain/signup"
	"signup-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrEventNotFound, http.StatusNotFound},
		{domain.ErrSignUpNotFound, http.StatusNotFound},
		{domain.ErrNotOnWaitlist, http.StatusNotFound},
		{domain.ErrSignUpsClosed, http.StatusConflict},
		{domain.ErrNoEligibleSlot, http.StatusConflict},
		{service.ErrEmailTaken, http.StatusConflict},
		{fmt.Errorf("%w: title is required", domain.ErrInvalidEvent), http.StatusUnprocessableEntity},
		{domain.ErrPermissionDenied, http.StatusForbidden},
		{fmt.Errorf("%w: %w", domain.ErrRetriesExhausted, domain.ErrVersionConflict), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: provider down", domain.ErrOrderFailed), http.StatusBadGateway},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestRespondError_RetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondError(c, fmt.Errorf("%w: %w", domain.ErrRetriesExhausted, domain.ErrVersionConflict))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, RetryAfterSeconds, w.Header().Get("Retry-After"))
}

func TestRespondError_HidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondError(c, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}
