package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken covers malformed, badly signed, expired, revoked and
	// wrong issuer/audience tokens alike.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrIdentityNotFound means the token was valid but the user is gone or deactivated.
	ErrIdentityNotFound = errors.New("auth: identity not found")
	// ErrPermissionDenied means the role hierarchy forbids the action.
	ErrPermissionDenied = errors.New("auth: permission denied")
	// ErrScopeMisconfigured means the actor's role requires a unit id it does not carry.
	ErrScopeMisconfigured = errors.New("auth: scope misconfigured")
	// ErrInvalidCredentials covers both unknown usernames and wrong passwords.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	ErrInvalidInput = errors.New("auth: invalid input")
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
)

func invalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func deniedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermissionDenied, fmt.Sprintf(format, args...))
}
