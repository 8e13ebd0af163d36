package domain

import (
	"errors"
	"fmt"
	"time"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency. Typed errors below
// wrap a sentinel so callers can match with errors.Is and still read details
// with errors.As.

var (
	// Input errors
	ErrInvalidInput = errors.New("invalid input")
	ErrUnknownTier  = errors.New("unknown reward tier")

	// Claim errors
	ErrNotEligible    = errors.New("not eligible for reward tier")
	ErrAlreadyClaimed = errors.New("reward tier already claimed")

	// Lookup errors
	ErrUserNotFound  = errors.New("user not found")
	ErrClaimNotFound = errors.New("claim not found")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// InvalidInputError reports malformed counts or a malformed tier definition.
// It is never retried.
type InvalidInputError struct {
	Field  string
	Reason string
	Cause  error
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrInvalidInput, e.Cause}
	}
	return []error{ErrInvalidInput}
}

// Invalid is shorthand for building an InvalidInputError.
func Invalid(field, format string, args ...any) error {
	return &InvalidInputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// UnknownTier reports a tier ID missing from the tier table.
func UnknownTier(id TierID) error {
	return &InvalidInputError{Field: "tier", Reason: fmt.Sprintf("unknown reward tier %s", id), Cause: ErrUnknownTier}
}

// ValueChanged reports an attempt to rewrite a member's enrollment value.
func ValueChanged(userID string, have, got float64) error {
	return Invalid("value", "member %q enrolled at %v, value cannot change to %v", userID, have, got)
}

// NotEligibleError is returned when a claim is attempted before the tier's
// freshly recomputed progress reaches 100%.
type NotEligibleError struct {
	UserID   string
	TierID   TierID
	Progress float64
	Missing  *MissingRequirement
}

func (e *NotEligibleError) Error() string {
	msg := fmt.Sprintf("user %q not eligible for tier %s (progress %.2f%%)", e.UserID, e.TierID, e.Progress)
	if e.Missing != nil {
		msg += ": " + e.Missing.String()
	}
	return msg
}

func (e *NotEligibleError) Unwrap() error { return ErrNotEligible }

// AlreadyClaimedError signals that the claim is already settled. Callers
// retrying a claim should treat it as success, not as a failure.
type AlreadyClaimedError struct {
	UserID    string
	TierID    TierID
	ClaimedAt time.Time
}

func (e *AlreadyClaimedError) Error() string {
	if e.ClaimedAt.IsZero() {
		return fmt.Sprintf("user %q already claimed tier %s", e.UserID, e.TierID)
	}
	return fmt.Sprintf("user %q already claimed tier %s at %s", e.UserID, e.TierID, e.ClaimedAt.UTC().Format(time.RFC3339))
}

func (e *AlreadyClaimedError) Unwrap() error { return ErrAlreadyClaimed }

// StorageUnavailableError wraps a transient storage failure (connectivity,
// contention) so the caller can decide whether to retry.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() []error { return []error{ErrStorageUnavailable, e.Err} }

// IsSettled reports whether err means the claim already exists.
func IsSettled(err error) bool {
	return errors.Is(err, ErrAlreadyClaimed)
}
