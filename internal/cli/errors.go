package cli

import (
	"errors"
	"fmt"

	"staging-cli/internal/mutate"
	"staging-cli/internal/render"
	"staging-cli/internal/store"
	"staging-cli/internal/transport"
)

type noServerError struct {
	workspace string
}

func (e noServerError) Error() string {
	return fmt.Sprintf("no server configured for workspace %q (pass --server or run `staging config use %s --server URL`)", e.workspace, e.workspace)
}

func errNoServer(workspace string) error {
	return noServerError{workspace: workspace}
}

// describeError adds a hint to errors a user can act on.
func describeError(err error) string {
	var (
		fe *transport.FailureError
		se *transport.StatusError
	)
	switch {
	case errors.Is(err, store.ErrNoSnapshot):
		return err.Error()
	case errors.Is(err, transport.ErrNotAllowed):
		return err.Error() + " (the server refused the command; check STAGING_COOKIE)"
	case errors.As(err, &fe):
		return "server rejected the command: " + fe.Message
	case errors.As(err, &se):
		return err.Error()
	case errors.Is(err, mutate.ErrNothingToSubmit):
		return err.Error() + " (the proposed details match the committed ones)"
	case errors.Is(err, render.ErrInvalidConstraintDetails):
		return "not submitted: " + err.Error()
	default:
		return err.Error()
	}
}
