package monitor

import "errors"

// Monitor errors.
var (
	ErrFailureNotFound = errors.New("sync failure not found")
	ErrInvalidWindow   = errors.New("invalid time window")
)
