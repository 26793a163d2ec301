package handlers

import (
	"net/http"
	"strconv"

	"signup-service/internal/domain/user"
	"signup-service/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	userService user.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService user.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// AddMemberRequest grants a user a role in the organization from the path.
type AddMemberRequest struct {
	UserID string    `json:"user_id" validate:"required,uuid"`
	Role   user.Role `json:"role" validate:"required,oneof=MEMBER ADMIN"`
}

// CreateUser handles POST /users
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req user.CreateUserRequest

	// Bind JSON request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request format", err.Error())
		return
	}

	// Validate request
	if err := validator.ValidateStruct(&req); err != nil {
		respondBadRequest(c, "Validation failed", validator.FormatValidationError(err))
		return
	}

	created, err := h.userService.CreateUser(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, APIResponse{
		Success: true,
		Message: "User created successfully",
		Data:    created,
	})
}

// GetUser handles GET /users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	found, err := h.userService.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    found,
	})
}

// ListUsers handles GET /users
func (h *UserHandler) ListUsers(c *gin.Context) {
	// Parse query parameters
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	users, err := h.userService.ListUsers(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    users,
	})
}

// AddMember handles POST /organizations/:id/members
func (h *UserHandler) AddMember(c *gin.Context) {
	orgID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request format", err.Error())
		return
	}
	if err := validator.ValidateStruct(&req); err != nil {
		respondBadRequest(c, "Validation failed", validator.FormatValidationError(err))
		return
	}

	// validated as uuid above
	userID := uuid.MustParse(req.UserID)
	if err := h.userService.AddMember(c.Request.Context(), orgID, userID, req.Role); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, APIResponse{
		Success: true,
		Message: "Member added successfully",
		Data: user.OrganizationMember{
			OrganizationID: orgID,
			UserID:         userID,
			Role:           req.Role,
		},
	})
}
