package service

import "errors"

// Sentinel errors returned (wrapped) by every state machine operation. The
// HTTP layer maps them to response codes with errors.Is.
var (
	// ErrNotFound: the transaction or listing does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden: the acting user is not the required party.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState: the operation is not valid for the current status.
	// Also the outcome a racing caller sees after losing a transition.
	ErrInvalidState = errors.New("invalid transaction state")
	// ErrDeadlineExpired: the deadline passed, so a forced transition was
	// applied instead of the requested one.
	ErrDeadlineExpired = errors.New("confirmation deadline expired")
	// ErrValidation: the request itself is invalid (e.g. buying one's own listing).
	ErrValidation = errors.New("validation failed")
	// ErrGateway: the payment provider call failed; local state reflects only
	// confirmed provider outcomes.
	ErrGateway = errors.New("payment gateway failure")
)
