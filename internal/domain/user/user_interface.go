package user

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, error)
}

// MembershipRepository answers organization role questions.
type MembershipRepository interface {
	AddMember(ctx context.Context, member *OrganizationMember) error
	HasRole(ctx context.Context, userID, organizationID uuid.UUID, role Role) (bool, error)
}

// UserService defines the interface for user business logic
type UserService interface {
	CreateUser(ctx context.Context, req *CreateUserRequest) (*User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*User, error)
	AddMember(ctx context.Context, organizationID, userID uuid.UUID, role Role) error
}
