package mutate

import (
	"strconv"

	"staging-cli/internal/model"
	"staging-cli/internal/render"
)

func liveAssignable(m *render.Model, index int) (*render.RenderedAssignable, error) {
	ra, ok := m.Assignable(index)
	if !ok {
		return nil, NotFoundError{Kind: "assignable", ID: strconv.Itoa(index)}
	}
	return ra, nil
}

func stagingCommand(action model.Action, p model.StagingParams) model.Command {
	return model.Command{Action: action, Context: model.ContextStaging, Parameters: p}
}

// Assign builds the command that assigns worker to an assignable. Locked assignables are
// refused before anything is sent.
func Assign(m *render.Model, index, worker int) (model.Command, error) {
	ra, err := liveAssignable(m, index)
	if err != nil {
		return model.Command{}, err
	}
	if ra.IsLocked() {
		return model.Command{}, LockedError{Index: index}
	}
	w := worker
	return stagingCommand(model.ActionModify, model.StagingParams{
		Type:      model.DirectiveAssign,
		StagingID: &index,
		WorkerID:  &w,
	}), nil
}

// Unassign clears the worker. Unassigning an unassigned assignable is still sent; the server
// decides whether it is a no-op.
func Unassign(m *render.Model, index int) (model.Command, error) {
	ra, err := liveAssignable(m, index)
	if err != nil {
		return model.Command{}, err
	}
	if ra.IsLocked() {
		return model.Command{}, LockedError{Index: index}
	}
	return stagingCommand(model.ActionModify, model.StagingParams{
		Type:      model.DirectiveUnassign,
		StagingID: &index,
	}), nil
}

func Lock(m *render.Model, indices ...int) (model.Command, error) {
	return lockCommand(m, model.DirectiveLock, indices)
}

func Unlock(m *render.Model, indices ...int) (model.Command, error) {
	return lockCommand(m, model.DirectiveUnlock, indices)
}

// lockCommand sends one index as a modify and several as a bulk_modify.
func lockCommand(m *render.Model, d model.Directive, indices []int) (model.Command, error) {
	if len(indices) == 0 {
		return model.Command{}, ErrNothingToSubmit
	}
	for _, idx := range indices {
		if _, err := liveAssignable(m, idx); err != nil {
			return model.Command{}, err
		}
	}
	if len(indices) == 1 {
		idx := indices[0]
		return stagingCommand(model.ActionModify, model.StagingParams{Type: d, StagingID: &idx}), nil
	}
	return stagingCommand(model.ActionBulkModify, model.StagingParams{
		Type:       d,
		StagingIDs: model.NormalizeMembers(indices),
	}), nil
}

// ModifyConstraint builds the command that writes a constraint's current details. Invalid
// details, or a MatchOne whose to-match assignable is not live in r, block submission with
// render.ErrInvalidConstraintDetails.
func ModifyConstraint(r render.Resolver, c *render.Constraint) (model.Command, error) {
	if err := c.ValidateIn(r); err != nil {
		return model.Command{}, err
	}
	if !c.HasProposedDetails() {
		return model.Command{}, ErrNothingToSubmit
	}
	idx := c.Index()
	data := c.CurrentData()
	return stagingCommand(model.ActionModify, model.StagingParams{
		Type:      model.DirectiveModifyConstraint,
		StagingID: &idx,
		Data:      &data,
	}), nil
}

// View builds the full-reload command.
func View() model.Command {
	return model.Command{Action: model.ActionView, Context: model.ContextStaging, Parameters: struct{}{}}
}
