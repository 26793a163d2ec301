package handlers

import (
	"errors"
	"io"
	"net/http"

	"signup-service/internal/api/middleware"
	domain "signup-service/internal/domain/signup"
	serviceInterfaces "signup-service/internal/interfaces/service"
	"signup-service/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SignUpHandler exposes the sign-up engine over HTTP.
type SignUpHandler struct {
	signUpService serviceInterfaces.SignUpService
}

func NewSignUpHandler(signUpService serviceInterfaces.SignUpService) *SignUpHandler {
	return &SignUpHandler{signUpService: signUpService}
}

// SignUpRequest optionally names the user to act for. Omitted means the
// acting user signs up themselves.
type SignUpRequest struct {
	UserID string `json:"user_id" validate:"omitempty,uuid"`
}

// AvailabilityResponse is returned by GET /events/:id/availability.
type AvailabilityResponse struct {
	EventID      uuid.UUID           `json:"event_id"`
	UserID       *uuid.UUID          `json:"user_id,omitempty"`
	Availability domain.Availability `json:"availability"`
}

// WaitlistPositionResponse is returned by GET /events/:id/waitlist-position.
type WaitlistPositionResponse struct {
	EventID  uuid.UUID `json:"event_id"`
	UserID   uuid.UUID `json:"user_id"`
	Position int       `json:"position"`
}

// CreateEvent handles POST /events
func (h *SignUpHandler) CreateEvent(c *gin.Context) {
	actor, _ := middleware.ActorID(c)

	var req serviceInterfaces.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request format", err.Error())
		return
	}
	if err := validator.ValidateStruct(&req); err != nil {
		respondBadRequest(c, "Validation failed", validator.FormatValidationError(err))
		return
	}

	event, err := h.signUpService.CreateEvent(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, APIResponse{
		Success: true,
		Message: "Event created successfully",
		Data:    event,
	})
}

// GetEvent handles GET /events/:id
func (h *SignUpHandler) GetEvent(c *gin.Context) {
	eventID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	event, err := h.signUpService.GetEvent(c.Request.Context(), eventID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    event,
	})
}

// SignUp handles POST /events/:id/sign-up
func (h *SignUpHandler) SignUp(c *gin.Context) {
	eventID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	actor, userID, ok := h.bindTarget(c)
	if !ok {
		return
	}

	signUp, err := h.signUpService.SignUp(c.Request.Context(), actor, userID, eventID)
	if err != nil {
		respondError(c, err)
		return
	}

	message := "Signed up successfully"
	if signUp.ParticipationStatus == domain.StatusOnWaitlist {
		message = "Added to the waiting list"
	}
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: message,
		Data:    signUp,
	})
}

// RetractSignUp handles POST /events/:id/retract
func (h *SignUpHandler) RetractSignUp(c *gin.Context) {
	eventID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	actor, userID, ok := h.bindTarget(c)
	if !ok {
		return
	}

	signUp, err := h.signUpService.RetractSignUp(c.Request.Context(), actor, userID, eventID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Sign-up retracted",
		Data:    signUp,
	})
}

// RemoveSignUp handles DELETE /sign-ups/:id
func (h *SignUpHandler) RemoveSignUp(c *gin.Context) {
	signUpID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	actor, _ := middleware.ActorID(c)

	signUp, err := h.signUpService.RemoveSignUp(c.Request.Context(), actor, signUpID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Sign-up removed",
		Data:    signUp,
	})
}

// GetAvailability handles GET /events/:id/availability. The user is the
// user_id query parameter, else the acting user; with neither the answer is
// for an anonymous visitor.
func (h *SignUpHandler) GetAvailability(c *gin.Context) {
	eventID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var userID *uuid.UUID
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondBadRequest(c, "Invalid user_id format", nil)
			return
		}
		userID = &id
	} else if actor, ok := middleware.ActorID(c); ok {
		userID = &actor
	}

	availability, err := h.signUpService.GetSignUpAvailability(c.Request.Context(), userID, eventID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data: AvailabilityResponse{
			EventID:      eventID,
			UserID:       userID,
			Availability: availability,
		},
	})
}

// GetWaitlistPosition handles GET /events/:id/waitlist-position
func (h *SignUpHandler) GetWaitlistPosition(c *gin.Context) {
	eventID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	userID, _ := middleware.ActorID(c)
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondBadRequest(c, "Invalid user_id format", nil)
			return
		}
		userID = id
	}

	position, err := h.signUpService.GetApproximatePositionOnWaitingList(c.Request.Context(), userID, eventID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data: WaitlistPositionResponse{
			EventID:  eventID,
			UserID:   userID,
			Position: position,
		},
	})
}

// ListSignUps handles GET /events/:id/sign-ups?status=
func (h *SignUpHandler) ListSignUps(c *gin.Context) {
	eventID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	actor, _ := middleware.ActorID(c)

	var status *domain.ParticipationStatus
	if raw := c.Query("status"); raw != "" {
		s := domain.ParticipationStatus(raw)
		if !s.Valid() {
			respondBadRequest(c, "Invalid status", nil)
			return
		}
		status = &s
	}

	signUps, err := h.signUpService.ListSignUps(c.Request.Context(), actor, eventID, status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    signUps,
	})
}

// GetStats handles GET /events/:id/stats
func (h *SignUpHandler) GetStats(c *gin.Context) {
	eventID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	actor, _ := middleware.ActorID(c)

	stats, err := h.signUpService.GetSignUpStats(c.Request.Context(), actor, eventID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    stats,
	})
}

// bindTarget resolves the acting user and the user acted for. An empty body
// is allowed.
func (h *SignUpHandler) bindTarget(c *gin.Context) (actor, userID uuid.UUID, ok bool) {
	actor, _ = middleware.ActorID(c)

	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(c, "Invalid request format", err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	if err := validator.ValidateStruct(&req); err != nil {
		respondBadRequest(c, "Validation failed", validator.FormatValidationError(err))
		return uuid.Nil, uuid.Nil, false
	}

	userID = actor
	if req.UserID != "" {
		userID = uuid.MustParse(req.UserID)
	}
	return actor, userID, true
}
