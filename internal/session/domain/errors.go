package domain

import "errors"

var (
	ErrInvalidIdentity = errors.New("invalid_identity")
	ErrInvalidConn     = errors.New("invalid_connection")
	ErrInvalidMessage  = errors.New("invalid_message")

	// ErrSessionConflict is the defined rejection for a login while the
	// identity already holds a live connection.
	ErrSessionConflict = errors.New("session_conflict")
	ErrDeliveryFailed  = errors.New("delivery_failed")
)

func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidIdentity) ||
		errors.Is(err, ErrInvalidConn) ||
		errors.Is(err, ErrInvalidMessage)
}
