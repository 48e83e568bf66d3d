package sessiondedup

// DeviceInfo is the device signal carried by one request.
type DeviceInfo struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
}

// TouchRequest describes one authenticated request for the activity hook.
type TouchRequest struct {
	UserID    string
	SessionID string
	Device    DeviceInfo

	// Live is set when the request came from a reactive UI transport.
	Live bool
}

// TerminationResult reports what a termination removed.
type TerminationResult struct {
	// SessionIDs are the sessions a delete was issued for.
	SessionIDs []string `json:"session_ids"`

	// Deleted is the number of rows the store actually removed. It can be
	// lower than len(SessionIDs) when another request deleted some first.
	Deleted int64 `json:"deleted"`
}

// CleanupResult reports the work done by one Cleanup run.
type CleanupResult struct {
	// Expired is the number of sessions removed for inactivity.
	Expired int64 `json:"expired"`

	// Duplicates is the number of non-canonical sessions removed.
	Duplicates int64 `json:"duplicates"`

	// Users is the number of owners whose deduplication completed.
	Users int `json:"users"`

	// Failures lists owners whose deduplication failed; they are retried
	// on the next run.
	Failures []UserFailure `json:"-"`
}

// UserFailure records an isolated per-user cleanup failure.
type UserFailure struct {
	UserID string
	Err    error
}

func (f UserFailure) Error() string {
	return "user " + f.UserID + ": " + f.Err.Error()
}

func (f UserFailure) Unwrap() error { return f.Err }
