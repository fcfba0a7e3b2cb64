package auth

import (
	"errors"

	"github.com/PhilHem/gamepanel/backend/twofactor"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoPendingChallenge = errors.New("no pending two-factor challenge")
	ErrInvalidCode        = errors.New("invalid two-factor code")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrValidation         = errors.New("validation failed")

	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrAlreadyEnabled       = errors.New("two-factor authentication already enabled")
	ErrNotEnabled           = errors.New("two-factor authentication not enabled")
	ErrEnrollmentNotStarted = errors.New("two-factor enrollment not started")

	// ErrSecretUnavailable is re-exported so callers only need this package.
	ErrSecretUnavailable = twofactor.ErrSecretUnavailable
)

// User-facing messages.
const (
	msgInvalidCredentials = "These credentials do not match our records."
	msgInvalidCode        = "The provided two-factor authentication code was invalid."
	msgInvalidPassword    = "The provided password is incorrect."
)

// FieldError is a failure attributable to one form field. It unwraps to one
// of the package sentinels.
type FieldError struct {
	Field   string
	Message string
	Err     error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func fieldErr(field, message string, err error) *FieldError {
	return &FieldError{Field: field, Message: message, Err: err}
}
