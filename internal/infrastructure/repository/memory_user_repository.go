package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"signup-service/internal/domain/user"

	"github.com/google/uuid"
)

// memoryUserRepository is an in-memory implementation of UserRepository for
// tests and demo runs
type memoryUserRepository struct {
	users map[uuid.UUID]*user.User
	mutex sync.RWMutex
}

// NewMemoryUserRepository creates an empty in-memory user repository
func NewMemoryUserRepository() user.UserRepository {
	return &memoryUserRepository{
		users: make(map[uuid.UUID]*user.User),
	}
}

// NewMockUserRepository creates an in-memory user repository seeded with
// sample users
func NewMockUserRepository() user.UserRepository {
	repo := &memoryUserRepository{
		users: make(map[uuid.UUID]*user.User),
	}
	repo.seedData()
	return repo
}

// Create creates a new user
func (r *memoryUserRepository) Create(ctx context.Context, u *user.User) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if _, exists := r.users[u.ID]; exists {
		return errors.New("user already exists")
	}

	for _, existing := range r.users {
		if existing.Email == u.Email {
			return errors.New("email already exists")
		}
		if existing.Username == u.Username {
			return errors.New("username already exists")
		}
	}

	r.users[u.ID] = u
	return nil
}

// GetByID retrieves a user by ID
func (r *memoryUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.users[id], nil
}

// GetByEmail retrieves a user by email
func (r *memoryUserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

// GetByUsername retrieves a user by username
func (r *memoryUserRepository) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

// List retrieves users ordered by creation time with pagination
func (r *memoryUserRepository) List(ctx context.Context, limit, offset int) ([]*user.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	all := make([]*user.User, 0, len(r.users))
	for _, u := range r.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	if offset >= len(all) {
		return []*user.User{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

// seedData adds some sample users for demonstration
func (r *memoryUserRepository) seedData() {
	graduation := time.Now().Year() + 2
	sampleUsers := []*user.User{
		{
			ID:             uuid.New(),
			Username:       "john_doe",
			Email:          "john.doe@example.com",
			FirstName:      "John",
			LastName:       "Doe",
			GraduationYear: &graduation,
			CreatedAt:      time.Now().Add(-24 * time.Hour),
			UpdatedAt:      time.Now().Add(-24 * time.Hour),
		},
		{
			ID:        uuid.New(),
			Username:  "jane_smith",
			Email:     "jane.smith@example.com",
			FirstName: "Jane",
			LastName:  "Smith",
			CreatedAt: time.Now().Add(-12 * time.Hour),
			UpdatedAt: time.Now().Add(-12 * time.Hour),
		},
		{
			ID:          uuid.New(),
			Username:    "bob_wilson",
			Email:       "bob.wilson@example.com",
			FirstName:   "Bob",
			LastName:    "Wilson",
			IsSuperUser: true,
			CreatedAt:   time.Now().Add(-6 * time.Hour),
			UpdatedAt:   time.Now().Add(-1 * time.Hour),
		},
	}

	for _, u := range sampleUsers {
		r.users[u.ID] = u
	}
}

type memoryMembershipRepository struct {
	roles map[[2]uuid.UUID]user.Role
	mutex sync.RWMutex
}

// NewMemoryMembershipRepository creates an empty in-memory membership
// repository
func NewMemoryMembershipRepository() user.MembershipRepository {
	return &memoryMembershipRepository{
		roles: make(map[[2]uuid.UUID]user.Role),
	}
}

func (r *memoryMembershipRepository) AddMember(ctx context.Context, member *user.OrganizationMember) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.roles[[2]uuid.UUID{member.OrganizationID, member.UserID}] = member.Role
	return nil
}

func (r *memoryMembershipRepository) HasRole(ctx context.Context, userID, organizationID uuid.UUID, role user.Role) (bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	held, ok := r.roles[[2]uuid.UUID{organizationID, userID}]
	return ok && held.Includes(role), nil
}
