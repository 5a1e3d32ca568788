package mutate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"staging-cli/internal/calendar"
	"staging-cli/internal/model"
)

func baseSnapshot() model.Snapshot {
	return model.Snapshot{
		Assignables: map[string]map[int]model.AssignableRecord{
			"18999": {1: {TypeID: 1}, 2: {TypeID: 2}},
			"19001": {3: {TypeID: 1}},
		},
		Constraints: map[int]model.ConstraintRecord{
			0: model.NewSingleWorker([]int{1, 2}),
		},
		Summaries: map[int]model.SummaryRecord{4: {WorkerMin: 1}},
	}
}

func TestMerge_NewDayBucketLeavesOthersUntouched(t *testing.T) {
	s := baseSnapshot()
	d := model.Delta{Updates: model.Snapshot{Assignables: map[string]map[int]model.AssignableRecord{
		"19000": {7: {TypeID: 1, WorkerID: intPtr(5)}},
	}}}

	out, warnings := Merge(s, d)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if _, ok := out.Assignables["19000"][7]; !ok {
		t.Fatalf("expected day 19000 to hold 7; got %v", out.Assignables)
	}
	if _, ok := s.Assignables["19000"]; ok {
		t.Fatalf("input snapshot was modified")
	}
	if len(out.Assignables["18999"]) != 2 || len(out.Assignables["19001"]) != 1 {
		t.Fatalf("other days changed: %v", out.Assignables)
	}
	// Untouched days are shared, not copied.
	out.Assignables["18999"][9] = model.AssignableRecord{}
	if _, ok := s.Assignables["18999"][9]; !ok {
		t.Fatalf("expected untouched day to be shared")
	}
}

func TestMerge_UpsertMovesIndexBetweenDays(t *testing.T) {
	s := baseSnapshot()
	d := model.Delta{Updates: model.Snapshot{Assignables: map[string]map[int]model.AssignableRecord{
		"19001": {2: {TypeID: 2, Locked: true}},
	}}}
	out, _ := Merge(s, d)

	if _, ok := out.Assignables["18999"][2]; ok {
		t.Fatalf("expected 2 to leave its old day")
	}
	if rec := out.Assignables["19001"][2]; !rec.Locked {
		t.Fatalf("expected updated record; got %+v", rec)
	}
	if _, ok := s.Assignables["18999"][2]; !ok {
		t.Fatalf("input snapshot was modified")
	}
	if n := out.AssignableCount(); n != 3 {
		t.Fatalf("expected 3 assignables; got %d", n)
	}
}

func TestMerge_DeletionsDropKeysAndEmptyDays(t *testing.T) {
	s := baseSnapshot()
	d := model.Delta{
		Deletions: model.Deletions{Assignables: []int{3, 42}, Constraints: []int{0}},
		Updates: model.Snapshot{
			Summaries: map[int]model.SummaryRecord{4: {WorkerMin: 2}},
		},
	}
	out, _ := Merge(s, d)

	if _, ok := out.Assignables["19001"]; ok {
		t.Fatalf("expected empty day to be dropped")
	}
	if _, ok := out.Constraints[0]; ok {
		t.Fatalf("expected constraint 0 deleted")
	}
	if out.Summaries[4].WorkerMin != 2 {
		t.Fatalf("expected summary upsert; got %+v", out.Summaries[4])
	}
	if len(s.Constraints) != 1 || len(s.Assignables) != 2 {
		t.Fatalf("input snapshot was modified")
	}
}

func TestMerge_EquivalentDayKeysShareABucket(t *testing.T) {
	s := baseSnapshot()
	d := model.Delta{Updates: model.Snapshot{Assignables: map[string]map[int]model.AssignableRecord{
		"019001": {8: {TypeID: 1}},
		"bogus":  {9: {TypeID: 1}},
	}}}
	out, warnings := Merge(s, d)
	if len(warnings) != 1 || !errors.Is(warnings[0], calendar.ErrMalformedDate) {
		t.Fatalf("expected one malformed date warning; got %v", warnings)
	}
	if len(out.Assignables["19001"]) != 2 {
		t.Fatalf("expected 8 merged into 19001; got %v", out.Assignables)
	}
}

func TestMerge_DecodesServerDelta(t *testing.T) {
	raw := `{
		"updates": {
			"assignables": {"19000": {"7": {"t": 3, "w": 12, "l": false}}},
			"constraints": {"5": {"t": 0, "d": {"m": 7, "c": [{"assignment_type_id": 3, "day_offset": 1}]}}},
			"summaries": {}
		},
		"deletions": {"assignables": [1], "constraints": []},
		"messages": ["assigned", {"code": 3}]
	}`
	var d model.Delta
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, _ := Merge(baseSnapshot(), d)
	if w, ok := out.Assignables["19000"][7].AssignedWorker(); !ok || w != 12 {
		t.Fatalf("expected worker 12; got %v %v", w, ok)
	}
	if c := out.Constraints[5]; c.Class != model.ConstraintMatchOne || *c.MatchOne.ToMatch != 7 {
		t.Fatalf("unexpected constraint: %+v", c)
	}
	if _, ok := out.Assignables["18999"][1]; ok {
		t.Fatalf("expected 1 deleted")
	}
	if got := model.MessageText(d.Messages[0]); got != "assigned" {
		t.Fatalf("unexpected message: %q", got)
	}
}

type fakeCommander struct {
	err  error
	resp string
	sent []model.Command
}

func (f *fakeCommander) SendCommand(_ context.Context, cmd model.Command, out any) error {
	f.sent = append(f.sent, cmd)
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.resp), out)
}

func TestSubmit_WrapsTransportErrors(t *testing.T) {
	boom := errors.New("connection refused")
	fc := &fakeCommander{err: boom}
	cmd, _ := Assign(testModel(t), 1, 3)

	_, err := Submit(context.Background(), fc, cmd)
	if !errors.Is(err, ErrTransportFailure) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport failure; got %v", err)
	}
	if len(fc.sent) != 1 {
		t.Fatalf("expected exactly one attempt; got %d", len(fc.sent))
	}
}

func TestSubmit_And_Fetch_DecodeResponses(t *testing.T) {
	fc := &fakeCommander{resp: `{"updates": {"assignables": {}}, "deletions": {"assignables": [3]}}`}
	cmd, _ := Lock(testModel(t), 1)
	d, err := Submit(context.Background(), fc, cmd)
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if len(d.Deletions.Assignables) != 1 {
		t.Fatalf("unexpected delta: %+v", d)
	}

	fc = &fakeCommander{resp: `{"update_type": "staging", "update_data": {"data": {"assignables": {"19000": {"1": {"t": 1}}}}, "assignment_types": [{"id": 1, "name": "Day", "priority": 1}]}}`}
	data, err := Fetch(context.Background(), fc)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if data.Data.AssignableCount() != 1 || len(data.AssignmentTypes) != 1 {
		t.Fatalf("unexpected staging data: %+v", data)
	}
	if fc.sent[0].Action != model.ActionView {
		t.Fatalf("expected view action; got %s", fc.sent[0].Action)
	}
}
