package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a member who can sign up for events.
type User struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Username       string    `json:"username" gorm:"uniqueIndex;not null"`
	Email          string    `json:"email" gorm:"uniqueIndex;not null"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	GraduationYear *int      `json:"graduation_year,omitempty"`
	IsSuperUser    bool      `json:"is_super_user" gorm:"not null;default:false"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Role is an organization membership role.
type Role string

const (
	RoleMember Role = "MEMBER"
	RoleAdmin  Role = "ADMIN"
)

// Includes reports whether holding r grants want. ADMIN implies MEMBER.
func (r Role) Includes(want Role) bool {
	if r == want {
		return true
	}
	return r == RoleAdmin && want == RoleMember
}

// OrganizationMember links a user to an organization with a role.
type OrganizationMember struct {
	OrganizationID uuid.UUID `json:"organization_id" gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey"`
	Role           Role      `json:"role" gorm:"type:text;not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// CreateUserRequest represents the request to create a user
type CreateUserRequest struct {
	Username       string `json:"username" validate:"required,min=3,max=50"`
	Email          string `json:"email" validate:"required,email"`
	FirstName      string `json:"first_name" validate:"required,min=1,max=50"`
	LastName       string `json:"last_name" validate:"required,min=1,max=50"`
	GraduationYear *int   `json:"graduation_year,omitempty" validate:"omitempty,min=1900,max=2200"`
}

// NewUser creates a new user with generated ID and timestamps
func NewUser(username, email, firstName, lastName string, graduationYear *int) *User {
	now := time.Now()
	return &User{
		ID:             uuid.New(),
		Username:       username,
		Email:          email,
		FirstName:      firstName,
		LastName:       lastName,
		GraduationYear: graduationYear,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// FullName returns the full name of the user
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// GradeYear derives the current grade year from the graduation year. The
// academic year runs August through July, and a student in their final
// (fifth) year graduates at its end. Nil when no graduation year is known.
func (u *User) GradeYear(now time.Time) *int {
	if u.GraduationYear == nil {
		return nil
	}
	academicYearEnd := now.Year()
	if now.Month() >= time.August {
		academicYearEnd++
	}
	grade := 5 - (*u.GraduationYear - academicYearEnd)
	return &grade
}
