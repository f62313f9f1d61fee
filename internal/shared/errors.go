package shared

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Auth flow errors. The user has to run login again.
	ErrAuthDenied   = fmt.Errorf("authorization denied")
	ErrAuthTimeout  = fmt.Errorf("authorization timed out")
	ErrAuthProtocol = fmt.Errorf("authorization protocol error")

	// Credential errors
	ErrNotFound       = fmt.Errorf("account not logged in")
	ErrReauthRequired = fmt.Errorf("re-authentication required")
	ErrUnauthorized   = fmt.Errorf("request unauthorized")
	ErrStorageIO      = fmt.Errorf("credential storage failure")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrRateLimitExceeded  = fmt.Errorf("rate limit retries exhausted")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// IsFatal reports whether err must stop a running transfer.
//
// Every later write would fail the same way, so the engine gives up on the remaining plan.
func IsFatal(err error) bool {
	return errors.Is(err, ErrReauthRequired) ||
		errors.Is(err, ErrRateLimitExceeded) ||
		errors.Is(err, ErrStorageIO)
}
