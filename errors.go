package credits

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("credits: not found")
	ErrAlreadyExists = errors.New("credits: already exists")

	// Request validation errors
	ErrInvalidParams = errors.New("credits: invalid params")
	ErrInvalidAmount = errors.New("credits: invalid amount")

	// Consumption errors
	ErrInsufficientCredits = errors.New("credits: insufficient credits")

	// Entity-specific not-found errors
	ErrBalanceNotFound = errors.New("credits: balance not found")
	ErrEntryNotFound   = errors.New("credits: entry not found")
	ErrAccountNotFound = errors.New("credits: account not found")

	// Catalog errors. Grant paths treat an unconfigured plan as a
	// logged no-op; this sentinel exists for callers that resolve
	// plans directly.
	ErrPlanNotConfigured = errors.New("credits: plan not configured")

	// Store errors
	ErrStoreClosed     = errors.New("credits: store is closed")
	ErrMigrationFailed = errors.New("credits: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("credits: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBalanceNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrAccountNotFound)
}

// IsInvalidRequest returns true if the error is a caller-side
// validation failure. These are programmer or configuration errors and
// must not be retried.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidParams) || errors.Is(err, ErrInvalidAmount)
}

// IsInsufficientCredits returns true if a consume exceeded the balance.
func IsInsufficientCredits(err error) bool {
	return errors.Is(err, ErrInsufficientCredits)
}
