package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")
	// ErrNoDecision means every oracle model variant failed; a normal,
	// loggable "no trade today" outcome rather than a fault.
	ErrNoDecision = errors.New("no decision from oracle")
)
