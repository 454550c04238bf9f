package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Store errors
	//
	// ErrNotFound is returned for both missing records and records the caller does not own,
	// so callers cannot probe for the existence of other users' data.
	ErrNotFound     = fmt.Errorf("not found")
	ErrConflict     = fmt.Errorf("conflict")
	ErrInvalidInput = fmt.Errorf("invalid input")

	// Provider errors
	ErrNoLyricsFound       = fmt.Errorf("no lyrics found")
	ErrProviderUnavailable = fmt.Errorf("lyrics provider unavailable")
	ErrProviderTimeout     = fmt.Errorf("lyrics provider timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// CLI errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
