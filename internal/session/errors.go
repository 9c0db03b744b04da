package session

import "errors"

var (
	// ErrSessionComplete is returned on any attempt to submit a message
	// after the session reached its terminal phase.
	ErrSessionComplete = errors.New("session already complete")

	// ErrNotEligible is returned when completion is requested before the
	// conversation shows enough engagement.
	ErrNotEligible = errors.New("session not eligible for completion")
)
