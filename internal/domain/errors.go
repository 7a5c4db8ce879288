package domain

import "errors"

var (
	// Request errors
	ErrValidation          = errors.New("validation failed")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrBackToNotAllowed    = errors.New("back-to URL not allowed")
	ErrAuthorizationDenied = errors.New("authorization denied by provider")

	// Credential errors
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence failure")

	// Provider errors
	ErrProviderNotFound  = errors.New("provider not found")
	ErrDuplicateProvider = errors.New("duplicate provider registration")
	ErrUpstreamExchange  = errors.New("upstream token exchange failed")

	// State token errors
	ErrInvalidState   = errors.New("invalid state token")
	ErrExpiredState   = errors.New("expired state token")
	ErrMalformedState = errors.New("malformed state token")
	ErrStateReplayed  = errors.New("state token already used")

	// Config errors
	ErrMissingConfig = errors.New("missing required configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// IsStateError reports whether err is any of the state token failures.
func IsStateError(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrExpiredState) ||
		errors.Is(err, ErrMalformedState) ||
		errors.Is(err, ErrStateReplayed)
}
