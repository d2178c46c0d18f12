package domain

import "errors"

var (
	// ErrDuplicateName is returned when the user already has a query with that name
	ErrDuplicateName = errors.New("a query with this name already exists")

	// ErrDuplicateKeyword is returned when the user already has a query with that keyword
	ErrDuplicateKeyword = errors.New("a query with this keyword already exists")

	// ErrQuotaExceeded is returned when the user already holds the maximum number of queries
	ErrQuotaExceeded = errors.New("query quota exceeded")

	// ErrQueryNotFound is returned when no query matches the given id or name
	ErrQueryNotFound = errors.New("query not found")

	// ErrItemNotFound is returned when the marketplace has no such item
	ErrItemNotFound = errors.New("item not found")

	// ErrUserUnreachable means the user no longer exists or cannot be resolved
	ErrUserUnreachable = errors.New("user unreachable")

	// ErrDeliveryFailed means a direct message could not be delivered on any path
	ErrDeliveryFailed = errors.New("notification delivery failed")

	// ErrCycleRunning is returned when a tracking cycle is already in progress
	ErrCycleRunning = errors.New("tracking cycle already running")

	// ErrTrackerStopped is returned when a cycle is requested after shutdown began
	ErrTrackerStopped = errors.New("tracker stopped")

	// ErrPermissionDenied is returned when a user runs an admin-only command
	ErrPermissionDenied = errors.New("permission denied")
)

// ValidationError describes invalid search or query input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
