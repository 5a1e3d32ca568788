package render

import (
	"fmt"
	"sort"
	"strings"

	"staging-cli/internal/model"
)

// TypeOrder orders assignment types within one priority block.
type TypeOrder func(a, b model.AssignmentType) int

// ByName orders alphabetically (case-insensitive), then by id.
func ByName(a, b model.AssignmentType) int {
	if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
		return c
	}
	return a.ID - b.ID
}

// TypeTable resolves assignment type ids to names and priorities.
type TypeTable struct {
	byID  map[int]model.AssignmentType
	ids   []int
	order TypeOrder
}

func NewTypeTable(types []model.AssignmentType, order TypeOrder) *TypeTable {
	if order == nil {
		order = ByName
	}
	t := &TypeTable{byID: make(map[int]model.AssignmentType, len(types)), order: order}
	for _, at := range types {
		if _, dup := t.byID[at.ID]; !dup {
			t.ids = append(t.ids, at.ID)
		}
		t.byID[at.ID] = at
	}
	return t
}

// Get returns the type; unknown ids resolve to a placeholder with priority 0.
func (t *TypeTable) Get(id int) (model.AssignmentType, bool) {
	if t != nil {
		if at, ok := t.byID[id]; ok {
			return at, true
		}
	}
	return model.AssignmentType{ID: id, Name: fmt.Sprintf("#%d", id)}, false
}

func (t *TypeTable) Priority(id int) int {
	at, _ := t.Get(id)
	return at.Priority
}

func (t *TypeTable) Name(id int) string {
	at, _ := t.Get(id)
	return at.Name
}

// Compare orders two type ids with the table's ordering.
func (t *TypeTable) Compare(a, b int) int {
	order := ByName
	if t != nil && t.order != nil {
		order = t.order
	}
	ta, _ := t.Get(a)
	tb, _ := t.Get(b)
	return order(ta, tb)
}

// IDs returns type ids in table order.
func (t *TypeTable) IDs() []int {
	if t == nil {
		return nil
	}
	return append([]int(nil), t.ids...)
}

// TypesOfPriority returns the known type ids with the given priority, sorted.
func (t *TypeTable) TypesOfPriority(priority int) []int {
	var out []int
	for _, id := range t.IDs() {
		if t.byID[id].Priority == priority {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return t.Compare(out[i], out[j]) < 0 })
	return out
}

type TemplateTable struct {
	byID map[int]model.ScheduleTemplate
}

func NewTemplateTable(templates []model.ScheduleTemplate) *TemplateTable {
	t := &TemplateTable{byID: make(map[int]model.ScheduleTemplate, len(templates))}
	for _, st := range templates {
		t.byID[st.ID] = st
	}
	return t
}

func (t *TemplateTable) Get(id int) (model.ScheduleTemplate, bool) {
	if t == nil {
		return model.ScheduleTemplate{}, false
	}
	st, ok := t.byID[id]
	return st, ok
}
