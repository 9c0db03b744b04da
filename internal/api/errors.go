package api

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is the one error class that must reach the user: no
// local fallback can substitute for a valid credential.
var ErrUnauthorized = errors.New("unauthorized: please log in again")

// StatusError is a non-2xx backend response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Body)
}

// IsAuthError reports whether err is a credential failure rather than an
// ordinary transport failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
