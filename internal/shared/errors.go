package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrActorRequired indicates a transition invoked without actor identity.
	ErrActorRequired = errors.New("actor identity required")
)
