// Package common defines shared constants and sentinel errors used across
// the CryptoVote server layers. Callers should use errors.Is to match these
// values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrTokenCollision  = errors.New("token collision")

	// Service-level errors (generic/internal flow control).
	ErrorUnauthorized = errors.New("unauthorized")

	// Account errors.
	ErrValidation            = errors.New("validation error")
	ErrAlreadyExists         = errors.New("already exists")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrIdentityNotFound      = errors.New("identity not found")
	ErrAlreadyClaimed        = errors.New("faucet already claimed")

	// Passkey ceremony errors.
	ErrChallengeMissing   = errors.New("challenge missing or invalid")
	ErrInvalidHandle      = errors.New("invalid matric number")
	ErrNoCredentials      = errors.New("no passkeys registered")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrVerificationFailed = errors.New("verification failed")

	// Collaborator errors (email, faucet). The primary mutation is kept.
	ErrDownstream = errors.New("downstream failure")

	ErrRateLimited = errors.New("too many requests")

	// Token lifecycle errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// ValidationError describes a malformed request field. It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError is a shorthand for &ValidationError{...}.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
