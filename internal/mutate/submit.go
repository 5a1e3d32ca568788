package mutate

import (
	"context"
	"fmt"

	"staging-cli/internal/model"
)

// Commander sends one command to the server of record and decodes the response contents
// into out. transport.Client implements it.
type Commander interface {
	SendCommand(ctx context.Context, cmd model.Command, out any) error
}

// Submit sends a staging mutation and returns the server's delta. Errors are wrapped with
// ErrTransportFailure and are never retried.
func Submit(ctx context.Context, c Commander, cmd model.Command) (model.Delta, error) {
	var d model.Delta
	if err := c.SendCommand(ctx, cmd, &d); err != nil {
		return model.Delta{}, fmt.Errorf("%w: %s %s: %w", ErrTransportFailure, cmd.Action, directiveOf(cmd), err)
	}
	return d, nil
}

// Fetch runs the view command for a full reload.
func Fetch(ctx context.Context, c Commander) (model.StagingData, error) {
	var contents model.OperationContents
	if err := c.SendCommand(ctx, View(), &contents); err != nil {
		return model.StagingData{}, fmt.Errorf("%w: view: %w", ErrTransportFailure, err)
	}
	return contents.UpdateData, nil
}

func directiveOf(cmd model.Command) string {
	if p, ok := cmd.Parameters.(model.StagingParams); ok {
		return string(p.Type)
	}
	return string(cmd.Context)
}
