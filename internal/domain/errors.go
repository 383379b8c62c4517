package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Streak errors
	ErrInvalidFreezeUse = errors.New("cannot use a freeze right now")
	ErrMalformedState   = errors.New("streak state violates an invariant")

	// Title ladder errors
	ErrInvalidLadder = errors.New("invalid title ladder")

	// XP errors
	ErrInvalidXPAmount = errors.New("xp amount must be positive")
	ErrInvalidXPSource = errors.New("unknown xp source")

	// Input errors
	ErrInvalidUserID = errors.New("invalid user id")
	ErrInvalidDate   = errors.New("invalid date, want YYYY-MM-DD")

	// Store errors
	ErrVersionConflict = errors.New("streak state was modified concurrently")
)

// FreezeReason explains why a freeze was refused.
type FreezeReason string

const (
	FreezeNoStreak    FreezeReason = "no_streak"     // nothing to protect
	FreezeNoGap       FreezeReason = "no_gap"        // no day has been missed yet
	FreezeGapTooLarge FreezeReason = "gap_too_large" // more than one day missed
	FreezeNoTokens    FreezeReason = "no_freezes"    // allotment used up
)

// FreezeError is returned when UseFreeze preconditions do not hold.
// It unwraps to ErrInvalidFreezeUse.
type FreezeError struct {
	Reason FreezeReason
}

func (e *FreezeError) Error() string {
	return fmt.Sprintf("%s (%s)", ErrInvalidFreezeUse.Error(), e.Reason)
}

func (e *FreezeError) Unwrap() error { return ErrInvalidFreezeUse }
