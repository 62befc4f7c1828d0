package model

import "errors"

var (
	// ErrNameRequired is returned when a join request carries no user name.
	ErrNameRequired = errors.New("user name is required")

	// ErrAlreadyJoined is returned when a connection that already has a session joins again.
	ErrAlreadyJoined = errors.New("connection already joined")

	// ErrNotJoined is returned when a draw or clear arrives on a connection without a session.
	ErrNotJoined = errors.New("connection has not joined")

	// ErrMalformedShape is returned when a draw request is missing fields or carries invalid values.
	ErrMalformedShape = errors.New("malformed shape")

	// ErrForeignShapeID is returned when a shape id is already owned by a different author.
	ErrForeignShapeID = errors.New("shape id belongs to another author")

	// ErrSessionNotFound is returned when a session record is not found.
	ErrSessionNotFound = errors.New("session not found")
)
