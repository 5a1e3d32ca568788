package model

import (
	"encoding/json"
	"strings"
)

type Action string

const (
	ActionNew        Action = "new"
	ActionModify     Action = "modify"
	ActionBulkModify Action = "bulk_modify"
	ActionDelete     Action = "delete"
	ActionView       Action = "view"
)

type CommandContext string

const ContextStaging CommandContext = "staging"

// Directive selects what a staging modify command does.
type Directive string

const (
	DirectiveAssign           Directive = "assign"
	DirectiveUnassign         Directive = "unassign"
	DirectiveModifyConstraint Directive = "modify_constraint"
	DirectiveLock             Directive = "lock"
	DirectiveUnlock           Directive = "unlock"
)

type StagingParams struct {
	Type       Directive         `json:"type"`
	StagingID  *int              `json:"staging_id,omitempty"`
	StagingIDs []int             `json:"staging_ids,omitempty"`
	WorkerID   *int              `json:"worker_id,omitempty"`
	Data       *ConstraintRecord `json:"data,omitempty"`
}

// Command is the request body sent to the server of record.
type Command struct {
	Action     Action         `json:"action"`
	Context    CommandContext `json:"context"`
	Parameters any            `json:"parameters"`
}

// Delta is the server's minimal response to a staging mutation.
type Delta struct {
	Updates   Snapshot          `json:"updates"`
	Deletions Deletions         `json:"deletions"`
	Messages  []json.RawMessage `json:"messages,omitempty"`
}

type Deletions struct {
	Assignables []int `json:"assignables,omitempty"`
	Constraints []int `json:"constraints,omitempty"`
}

// MessageText renders a server message for display. String messages are unquoted; anything
// else is returned as raw JSON.
func MessageText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// OperationContents wraps the payload of a view command.
type OperationContents struct {
	UpdateType string      `json:"update_type"`
	UpdateData StagingData `json:"update_data"`
}

// HighlightMode names a selection group. An entity carries exactly the mode of the group
// holding it, or HighlightNone.
type HighlightMode int

const (
	HighlightNone HighlightMode = iota
	HighlightPrimary
	HighlightSecondary
	HighlightProposed
	HighlightCommit
)

func (m HighlightMode) String() string {
	switch m {
	case HighlightNone:
		return "none"
	case HighlightPrimary:
		return "primary_selected"
	case HighlightSecondary:
		return "secondary_selected"
	case HighlightProposed:
		return "proposed"
	case HighlightCommit:
		return "commit"
	default:
		return "unknown"
	}
}

type EntityKind int

const (
	EntityAssignable EntityKind = iota
	EntityConstraint
)

func (k EntityKind) String() string {
	if k == EntityConstraint {
		return "constraint"
	}
	return "assignable"
}
