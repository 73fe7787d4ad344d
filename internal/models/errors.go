package models

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means no session resolves to a user.
	ErrUnauthenticated = errors.New("not logged in")
	// ErrStaleSession means the session names a user that no longer exists.
	// It matches ErrUnauthenticated under errors.Is.
	ErrStaleSession = fmt.Errorf("%w: session refers to an unknown user", ErrUnauthenticated)
	// ErrDuplicateUser is returned when an identity is already registered.
	ErrDuplicateUser = errors.New("user already exists")
	// ErrInvalidCredentials is returned when login fails.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrExpenseNotFound is returned when an expense id or position does not exist.
	ErrExpenseNotFound = errors.New("expense not found")
)

// ValidationError reports bad user input. Operations that return it have not
// written anything.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}
