package sessiondedup

import "errors"

var (
	// ErrDeviceNotFound is returned when a termination target is not the
	// canonical session of any device in the snapshot.
	ErrDeviceNotFound = errors.New("sessiondedup: device not found")

	// ErrCurrentSessionIsTarget is returned when a caller tries to terminate
	// the device it is using. Nothing is deleted.
	ErrCurrentSessionIsTarget = errors.New("sessiondedup: refusing to terminate the current session")

	// ErrCurrentSessionNotFound is returned by TerminateOtherDevices when the
	// caller's own session is not a canonical session in the snapshot.
	// Nothing is deleted.
	ErrCurrentSessionNotFound = errors.New("sessiondedup: current session not found")

	// ErrInvalidRetention is returned by Cleanup for a negative age.
	ErrInvalidRetention = errors.New("sessiondedup: retention must not be negative")

	// ErrUserRequired is returned when an operation is called without an owner.
	ErrUserRequired = errors.New("sessiondedup: user id required")
)
