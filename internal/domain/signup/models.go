package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event is a sign-up target. A nil Capacity means the event is not
// capacity-tracked and has no waitlist.
type Event struct {
	ID                uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID    uuid.UUID  `json:"organization_id" gorm:"type:uuid;not null;index"`
	Title             string     `json:"title" gorm:"not null"`
	Capacity          *int       `json:"capacity" gorm:"check:capacity >= 0"`
	RemainingCapacity *int       `json:"remaining_capacity" gorm:"check:remaining_capacity >= 0 AND remaining_capacity <= capacity"`
	Version           int        `json:"version" gorm:"not null;default:1"`
	SignUpsEnabled    bool       `json:"sign_ups_enabled" gorm:"not null;default:false"`
	SignUpsStartAt    *time.Time `json:"sign_ups_start_at"`
	SignUpsEndAt      *time.Time `json:"sign_ups_end_at"`
	ProductRef        *string    `json:"product_ref,omitempty"`
	CreatedAt         time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	Slots             []Slot     `json:"slots,omitempty" gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE"`
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// IsCapacityTracked reports whether remaining capacity is enforced.
func (e *Event) IsCapacityTracked() bool {
	return e.Capacity != nil
}

// IsTicketed reports whether confirmation requires an order.
func (e *Event) IsTicketed() bool {
	return e.ProductRef != nil && *e.ProductRef != ""
}

// HasRemainingCapacity is true for untracked events and for tracked events
// with at least one free spot.
func (e *Event) HasRemainingCapacity() bool {
	if !e.IsCapacityTracked() {
		return true
	}
	return e.RemainingCapacity != nil && *e.RemainingCapacity > 0
}

// Slot is a capacity partition of an event, optionally restricted to a set
// of grade years.
type Slot struct {
	ID                uuid.UUID                `json:"id" gorm:"type:uuid;primaryKey"`
	EventID           uuid.UUID                `json:"event_id" gorm:"type:uuid;not null;index"`
	Name              string                   `json:"name"`
	Capacity          int                      `json:"capacity" gorm:"not null;check:capacity >= 0"`
	RemainingCapacity int                      `json:"remaining_capacity" gorm:"not null;check:remaining_capacity >= 0 AND remaining_capacity <= capacity"`
	Version           int                      `json:"version" gorm:"not null;default:1"`
	GradeYears        datatypes.JSONSlice[int] `json:"grade_years"`
	CreatedAt         time.Time                `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time                `json:"updated_at" gorm:"autoUpdateTime"`
}

func (s *Slot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// AcceptsGradeYear reports whether a user with the given grade year may take
// this slot. Users without a grade year only fit unrestricted slots.
func (s *Slot) AcceptsGradeYear(gradeYear *int) bool {
	if len(s.GradeYears) == 0 {
		return true
	}
	if gradeYear == nil {
		return false
	}
	return slices.Contains(s.GradeYears, *gradeYear)
}

// ParticipationStatus is the lifecycle state of a sign-up.
type ParticipationStatus string

const (
	StatusOnWaitlist ParticipationStatus = "ON_WAITLIST"
	StatusConfirmed  ParticipationStatus = "CONFIRMED"
	StatusRetracted  ParticipationStatus = "RETRACTED"
	StatusRemoved    ParticipationStatus = "REMOVED"
)

// IsTerminal is true for states a sign-up never leaves.
func (s ParticipationStatus) IsTerminal() bool {
	return s == StatusRetracted || s == StatusRemoved
}

func (s ParticipationStatus) Valid() bool {
	switch s {
	case StatusOnWaitlist, StatusConfirmed, StatusRetracted, StatusRemoved:
		return true
	}
	return false
}

// SignUp is one registration attempt of a user for an event. At most one
// sign-up per (user, event) is Active at any time; history rows stay.
type SignUp struct {
	ID                  uuid.UUID           `json:"id" gorm:"type:uuid;primaryKey"`
	UserID              uuid.UUID           `json:"user_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_sign_ups_active_user_event,where:active = true"`
	EventID             uuid.UUID           `json:"event_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_sign_ups_active_user_event,where:active = true"`
	SlotID              *uuid.UUID          `json:"slot_id,omitempty" gorm:"type:uuid;index"`
	ParticipationStatus ParticipationStatus `json:"participation_status" gorm:"type:text;not null;index"`
	Active              bool                `json:"active" gorm:"not null;default:true"`
	Version             int                 `json:"version" gorm:"not null;default:1"`
	CreatedAt           time.Time           `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt           time.Time           `json:"updated_at" gorm:"autoUpdateTime"`
}

func (s *SignUp) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// ParticipationState is the typed view of a sign-up's status. Exactly one of
// the variants below implements it.
type ParticipationState interface {
	Status() ParticipationStatus
}

type Waitlisted struct{}

// Confirmed carries the occupied slot. SlotID is nil only for events that
// have no slots.
type Confirmed struct {
	SlotID *uuid.UUID
}

type Retracted struct{}

type Removed struct{}

func (Waitlisted) Status() ParticipationStatus { return StatusOnWaitlist }
func (Confirmed) Status() ParticipationStatus  { return StatusConfirmed }
func (Retracted) Status() ParticipationStatus  { return StatusRetracted }
func (Removed) Status() ParticipationStatus    { return StatusRemoved }

// State decodes the stored status columns into a ParticipationState.
func (s *SignUp) State() ParticipationState {
	switch s.ParticipationStatus {
	case StatusConfirmed:
		return Confirmed{SlotID: s.SlotID}
	case StatusRetracted:
		return Retracted{}
	case StatusRemoved:
		return Removed{}
	default:
		return Waitlisted{}
	}
}

// IsLive is true while the sign-up is the user's current registration.
func (s *SignUp) IsLive() bool {
	return s.Active && !s.ParticipationStatus.IsTerminal()
}

// Availability is what a user would get from signing up right now.
type Availability string

const (
	AvailabilityDisabled          Availability = "DISABLED"
	AvailabilityNotOpen           Availability = "NOT_OPEN"
	AvailabilityClosed            Availability = "CLOSED"
	AvailabilityConfirmed         Availability = "CONFIRMED"
	AvailabilityOnWaitlist        Availability = "ON_WAITLIST"
	AvailabilityAvailable         Availability = "AVAILABLE"
	AvailabilityWaitlistAvailable Availability = "WAITLIST_AVAILABLE"
	AvailabilityUnavailable       Availability = "UNAVAILABLE"
)

// Order is the local record of an order placed for a ticketed sign-up.
type Order struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	EventID    uuid.UUID `json:"event_id" gorm:"type:uuid;not null;index"`
	ProductRef string    `json:"product_ref" gorm:"not null"`
	Status     string    `json:"status" gorm:"not null;default:PENDING"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// EventStats summarises the sign-ups of an event.
type EventStats struct {
	EventID           uuid.UUID   `json:"event_id" db:"event_id"`
	Capacity          *int        `json:"capacity" db:"capacity"`
	RemainingCapacity *int        `json:"remaining_capacity" db:"remaining_capacity"`
	Confirmed         int         `json:"confirmed" db:"confirmed"`
	OnWaitlist        int         `json:"on_waitlist" db:"on_waitlist"`
	Retracted         int         `json:"retracted" db:"retracted"`
	Removed           int         `json:"removed" db:"removed"`
	Slots             []SlotStats `json:"slots" db:"-"`
}

// SlotStats is the occupancy of one slot.
type SlotStats struct {
	SlotID            uuid.UUID `json:"slot_id" db:"slot_id"`
	Name              string    `json:"name" db:"name"`
	Capacity          int       `json:"capacity" db:"capacity"`
	RemainingCapacity int       `json:"remaining_capacity" db:"remaining_capacity"`
	Confirmed         int       `json:"confirmed" db:"confirmed"`
}
