package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signup-service/internal/domain/user"
	interfaces "signup-service/internal/interfaces/infrastructure"
	"signup-service/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository implements UserRepository using GORM
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new GORM user repository
func NewUserRepository(db *gorm.DB) user.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	return r.findOne(ctx, "username = ?", username)
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*user.User, error) {
	var users []*user.User
	err := r.db.WithContext(ctx).Order("created_at ASC").Limit(limit).Offset(offset).Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...interface{}) (*user.User, error) {
	var u user.User
	err := r.db.WithContext(ctx).Where(query, args...).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// CachedUserRepository serves GetByID from a cache in front of another
// repository. Other lookups pass through.
type CachedUserRepository struct {
	user.UserRepository
	cache interfaces.CacheService
	ttl   time.Duration
}

// NewCachedUserRepository wraps next with a read-through cache
func NewCachedUserRepository(next user.UserRepository, cache interfaces.CacheService, ttl time.Duration) user.UserRepository {
	return &CachedUserRepository{
		UserRepository: next,
		cache:          cache,
		ttl:            ttl,
	}
}

func userCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("user:%s", id)
}

func (r *CachedUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	var cached user.User
	err := r.cache.GetJSON(ctx, userCacheKey(id), &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, interfaces.ErrCacheMiss) {
		logger.WithError(err).WithField("user_id", id).Warn("User cache read failed")
	}

	u, err := r.UserRepository.GetByID(ctx, id)
	if err != nil || u == nil {
		return u, err
	}
	if err := r.cache.SetJSON(ctx, userCacheKey(id), u, r.ttl); err != nil {
		logger.WithError(err).WithField("user_id", id).Warn("User cache write failed")
	}
	return u, nil
}

func (r *CachedUserRepository) Create(ctx context.Context, u *user.User) error {
	if err := r.UserRepository.Create(ctx, u); err != nil {
		return err
	}
	return r.cache.Delete(ctx, userCacheKey(u.ID))
}

// MembershipRepository implements MembershipRepository using GORM
type MembershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository creates a new GORM membership repository
func NewMembershipRepository(db *gorm.DB) user.MembershipRepository {
	return &MembershipRepository{db: db}
}

// AddMember inserts or replaces the membership role
func (r *MembershipRepository) AddMember(ctx context.Context, member *user.OrganizationMember) error {
	return r.db.WithContext(ctx).Save(member).Error
}

// HasRole reports whether the user holds role (or a role implying it) in
// the organization
func (r *MembershipRepository) HasRole(ctx context.Context, userID, organizationID uuid.UUID, role user.Role) (bool, error) {
	var member user.OrganizationMember
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND organization_id = ?", userID, organizationID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return member.Role.Includes(role), nil
}
