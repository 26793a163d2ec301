package service

import (
	"context"
	"errors"
	"fmt"

	domain "signup-service/internal/domain/signup"
	"signup-service/internal/domain/user"
	"signup-service/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrEmailTaken    = errors.New("user with this email already exists")
	ErrUsernameTaken = errors.New("user with this username already exists")
)

// userService implements the UserService interface
type userService struct {
	userRepo   user.UserRepository
	memberRepo user.MembershipRepository
}

// NewUserService creates a new user service
func NewUserService(userRepo user.UserRepository, memberRepo user.MembershipRepository) user.UserService {
	return &userService{
		userRepo:   userRepo,
		memberRepo: memberRepo,
	}
}

// CreateUser creates a new user
func (s *userService) CreateUser(ctx context.Context, req *user.CreateUserRequest) (*user.User, error) {
	logger.Info("Creating user with username: %s", req.Username)

	// Check if user already exists by email
	existingUser, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err == nil && existingUser != nil {
		return nil, ErrEmailTaken
	}

	// Check if user already exists by username
	existingUser, err = s.userRepo.GetByUsername(ctx, req.Username)
	if err == nil && existingUser != nil {
		return nil, ErrUsernameTaken
	}

	u := user.NewUser(req.Username, req.Email, req.FirstName, req.LastName, req.GraduationYear)

	if err := s.userRepo.Create(ctx, u); err != nil {
		logger.Error("Failed to create user: %v", err)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger.Info("User created successfully with ID: %s", u.ID)
	return u, nil
}

// GetUser retrieves a user by ID
func (s *userService) GetUser(ctx context.Context, id uuid.UUID) (*user.User, error) {
	logger.Debug("Getting user with ID: %s", id)

	u, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		logger.Error("Failed to get user: %v", err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if u == nil {
		return nil, domain.ErrUserNotFound
	}

	return u, nil
}

// ListUsers retrieves a list of users
func (s *userService) ListUsers(ctx context.Context, limit, offset int) ([]*user.User, error) {
	logger.Debug("Listing users with limit: %d, offset: %d", limit, offset)

	users, err := s.userRepo.List(ctx, limit, offset)
	if err != nil {
		logger.Error("Failed to list users: %v", err)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

// AddMember grants a user a role in an organization
func (s *userService) AddMember(ctx context.Context, organizationID, userID uuid.UUID, role user.Role) error {
	if role != user.RoleMember && role != user.RoleAdmin {
		return fmt.Errorf("unknown role %q", role)
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}

	member := &user.OrganizationMember{
		OrganizationID: organizationID,
		UserID:         userID,
		Role:           role,
	}
	if err := s.memberRepo.AddMember(ctx, member); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	logger.Info("User %s added to organization %s as %s", userID, organizationID, role)
	return nil
}
