package domain

import "errors"

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrSlotNotFound     = errors.New("slot not found")
	ErrSignUpNotFound   = errors.New("sign-up not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrSignUpsDisabled  = errors.New("sign-ups are disabled for this event")
	ErrSignUpsNotOpen   = errors.New("sign-ups have not opened yet")
	ErrSignUpsClosed    = errors.New("sign-ups are closed")
	ErrNoEligibleSlot   = errors.New("no slot is open to the user's grade year")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotOnWaitlist    = errors.New("user is not on the waiting list")
	ErrInvalidEvent     = errors.New("invalid event definition")

	// ErrRetriesExhausted is returned when optimistic conflicts persisted for
	// the whole retry budget. The caller should retry the request later.
	ErrRetriesExhausted = errors.New("too many concurrent updates, try again later")
	ErrOrderFailed      = errors.New("order creation failed")

	// Outcomes of the capacity primitives. Neither escapes the service.
	ErrCapacityExhausted = errors.New("no remaining capacity")
	ErrVersionConflict   = errors.New("concurrent modification detected")
	ErrAlreadySignedUp   = errors.New("user already has an active sign-up")
	ErrNotPromotable     = errors.New("sign-up is no longer waiting")
)
