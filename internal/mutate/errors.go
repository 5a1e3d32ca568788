package mutate

import (
	"errors"
	"fmt"
)

// ErrTransportFailure wraps every error returned while submitting a command. Local proposal
// state is never touched when it is returned.
var ErrTransportFailure = errors.New("transport failure")

var ErrNothingToSubmit = errors.New("nothing to submit")

type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

type LockedError struct {
	Index int
}

func (e LockedError) Error() string {
	// Keep this generic; CLI/TUI can wrap with more specific phrasing.
	return fmt.Sprintf("assignable %d is locked", e.Index)
}
