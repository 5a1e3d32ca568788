package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// Snapshot is the server's view of the staging area.
//
// Assignables are keyed by epoch day (decimal string, as sent on the wire) and then by
// assignable index. Indices are unique across the whole snapshot.
type Snapshot struct {
	Assignables map[string]map[int]AssignableRecord `json:"assignables"`
	Constraints map[int]ConstraintRecord            `json:"constraints"`
	Summaries   map[int]SummaryRecord               `json:"summaries"`
}

// AssignableRecord is one schedulable unit. Field names match the wire shape.
type AssignableRecord struct {
	TypeID     int   `json:"t"`
	WorkerID   *int  `json:"w,omitempty"`
	Locked     bool  `json:"l"`
	Candidates []int `json:"c,omitempty"`
}

// AssignedWorker returns the worker id, if any. Negative ids are treated as unassigned.
func (a AssignableRecord) AssignedWorker() (int, bool) {
	if a.WorkerID == nil || *a.WorkerID < 0 {
		return 0, false
	}
	return *a.WorkerID, true
}

func (a AssignableRecord) Clone() AssignableRecord {
	out := a
	if a.WorkerID != nil {
		w := *a.WorkerID
		out.WorkerID = &w
	}
	out.Candidates = slices.Clone(a.Candidates)
	return out
}

// SummaryRecord carries display-only worker counts.
type SummaryRecord struct {
	WorkerMin      int `json:"worker_min"`
	WorkerMax      int `json:"worker_max"`
	WorkerAssigned int `json:"worker_assigned"`
	WorkerActive   int `json:"worker_active"`
}

type ConstraintClass int

const (
	ConstraintMatchOne     ConstraintClass = 0
	ConstraintSingleWorker ConstraintClass = 1
)

func (c ConstraintClass) String() string {
	switch c {
	case ConstraintMatchOne:
		return "match_one"
	case ConstraintSingleWorker:
		return "single_worker"
	default:
		return fmt.Sprintf("constraint_class(%d)", int(c))
	}
}

// AssignmentMember is a (type, day offset) template relative to some anchor date.
type AssignmentMember struct {
	TypeID    int `json:"assignment_type_id"`
	DayOffset int `json:"day_offset"`
}

func compareMembers(a, b AssignmentMember) int {
	if a.TypeID != b.TypeID {
		return a.TypeID - b.TypeID
	}
	return a.DayOffset - b.DayOffset
}

type MatchOneDetails struct {
	ToMatch    *int               `json:"m,omitempty"`
	Candidates []AssignmentMember `json:"c"`
}

type SingleWorkerDetails struct {
	Members []int `json:"s"`
}

// ConstraintRecord is a tagged union: exactly one of the detail pointers is set, selected by Class.
type ConstraintRecord struct {
	Class        ConstraintClass
	MatchOne     *MatchOneDetails
	SingleWorker *SingleWorkerDetails
}

func NewMatchOne(toMatch *int, candidates []AssignmentMember) ConstraintRecord {
	d := &MatchOneDetails{Candidates: slices.Clone(candidates)}
	if toMatch != nil {
		m := *toMatch
		d.ToMatch = &m
	}
	if d.Candidates == nil {
		d.Candidates = []AssignmentMember{}
	}
	return ConstraintRecord{Class: ConstraintMatchOne, MatchOne: d}
}

func NewSingleWorker(members []int) ConstraintRecord {
	return ConstraintRecord{Class: ConstraintSingleWorker, SingleWorker: &SingleWorkerDetails{Members: NormalizeMembers(members)}}
}

// NormalizeMembers returns a sorted, deduplicated copy.
func NormalizeMembers(in []int) []int {
	out := slices.Clone(in)
	sort.Ints(out)
	out = slices.Compact(out)
	if out == nil {
		out = []int{}
	}
	return out
}

// Clone deep-copies the record.
func (c ConstraintRecord) Clone() ConstraintRecord {
	out := ConstraintRecord{Class: c.Class}
	switch c.Class {
	case ConstraintMatchOne:
		if c.MatchOne != nil {
			r := NewMatchOne(c.MatchOne.ToMatch, c.MatchOne.Candidates)
			out.MatchOne = r.MatchOne
		}
	case ConstraintSingleWorker:
		if c.SingleWorker != nil {
			out.SingleWorker = &SingleWorkerDetails{Members: slices.Clone(c.SingleWorker.Members)}
			if out.SingleWorker.Members == nil {
				out.SingleWorker.Members = []int{}
			}
		}
	}
	return out
}

// Equal compares semantically: SingleWorker members as sets, MatchOne candidates as multisets.
func (c ConstraintRecord) Equal(o ConstraintRecord) bool {
	if c.Class != o.Class {
		return false
	}
	switch c.Class {
	case ConstraintMatchOne:
		a, b := c.MatchOne, o.MatchOne
		if a == nil || b == nil {
			return a == b
		}
		if (a.ToMatch == nil) != (b.ToMatch == nil) {
			return false
		}
		if a.ToMatch != nil && *a.ToMatch != *b.ToMatch {
			return false
		}
		if len(a.Candidates) != len(b.Candidates) {
			return false
		}
		x := slices.Clone(a.Candidates)
		y := slices.Clone(b.Candidates)
		slices.SortFunc(x, compareMembers)
		slices.SortFunc(y, compareMembers)
		return slices.Equal(x, y)
	case ConstraintSingleWorker:
		a, b := c.SingleWorker, o.SingleWorker
		if a == nil || b == nil {
			return a == b
		}
		return slices.Equal(NormalizeMembers(a.Members), NormalizeMembers(b.Members))
	default:
		return false
	}
}

type constraintWire struct {
	T ConstraintClass `json:"t"`
	D json.RawMessage `json:"d"`
}

func (c ConstraintRecord) MarshalJSON() ([]byte, error) {
	var d any
	switch c.Class {
	case ConstraintMatchOne:
		d = c.MatchOne
	case ConstraintSingleWorker:
		d = c.SingleWorker
	default:
		return nil, fmt.Errorf("marshal constraint: unknown class %d", int(c.Class))
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return json.Marshal(constraintWire{T: c.Class, D: raw})
}

func (c *ConstraintRecord) UnmarshalJSON(b []byte) error {
	var w constraintWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := ConstraintRecord{Class: w.T}
	switch w.T {
	case ConstraintMatchOne:
		var d MatchOneDetails
		if len(w.D) > 0 && string(w.D) != "null" {
			if err := json.Unmarshal(w.D, &d); err != nil {
				return fmt.Errorf("match_one details: %w", err)
			}
		}
		if d.Candidates == nil {
			d.Candidates = []AssignmentMember{}
		}
		out.MatchOne = &d
	case ConstraintSingleWorker:
		var d SingleWorkerDetails
		if len(w.D) > 0 && string(w.D) != "null" {
			if err := json.Unmarshal(w.D, &d); err != nil {
				return fmt.Errorf("single_worker details: %w", err)
			}
		}
		d.Members = NormalizeMembers(d.Members)
		out.SingleWorker = &d
	default:
		// Unknown classes are kept so the render builder can report and drop them.
	}
	*c = out
	return nil
}

// AssignmentType is one row of the assignment type table.
type AssignmentType struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

// ScheduleTemplate groups assignment members and constraints that are added together.
// Constraint member indices refer to positions in AssignmentMembers.
type ScheduleTemplate struct {
	ID                int                `json:"id"`
	Name              string             `json:"name"`
	AssignmentMembers []AssignmentMember `json:"assignment_members"`
	ConstraintMembers []ConstraintRecord `json:"constraint_members,omitempty"`
}

// StagingData is the full payload of a staging view.
type StagingData struct {
	Data              Snapshot           `json:"data"`
	AssignmentTypes   []AssignmentType   `json:"assignment_types"`
	ScheduleTemplates []ScheduleTemplate `json:"schedule_template_types"`
	Commitable        []int              `json:"commitable,omitempty"`
}

// Clone copies the top-level maps; records are values and are shared safely.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Assignables: make(map[string]map[int]AssignableRecord, len(s.Assignables)),
		Constraints: make(map[int]ConstraintRecord, len(s.Constraints)),
		Summaries:   make(map[int]SummaryRecord, len(s.Summaries)),
	}
	for k, v := range s.Assignables {
		out.Assignables[k] = v
	}
	for k, v := range s.Constraints {
		out.Constraints[k] = v
	}
	for k, v := range s.Summaries {
		out.Summaries[k] = v
	}
	return out
}

// AssignableCount counts records across all days.
func (s Snapshot) AssignableCount() int {
	n := 0
	for _, day := range s.Assignables {
		n += len(day)
	}
	return n
}
