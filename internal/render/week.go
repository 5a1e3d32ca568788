package render

import (
	"fmt"
	"sort"
	"time"

	"staging-cli/internal/calendar"
)

// Week holds the assignables of one calendar week bucketed by (weekday, type).
type Week struct {
	index   int
	sunday  time.Time
	types   *TypeTable
	buckets [calendar.DaysPerWeek]map[int][]*RenderedAssignable
}

func newWeek(index int, sunday time.Time, types *TypeTable) *Week {
	w := &Week{index: index, sunday: sunday, types: types}
	for i := range w.buckets {
		w.buckets[i] = map[int][]*RenderedAssignable{}
	}
	return w
}

func (w *Week) Index() int { return w.index }

func (w *Week) Sunday() time.Time { return w.sunday }

// EndDate is the Saturday of the week.
func (w *Week) EndDate() time.Time { return calendar.AddDays(w.sunday, calendar.DaysPerWeek-1) }

func (w *Week) ContainsDate(d time.Time) bool {
	diff := calendar.DaysBetween(w.sunday, d)
	return diff >= 0 && diff < calendar.DaysPerWeek
}

func (w *Week) String() string {
	return calendar.ShortString(w.sunday) + " - " + calendar.ShortString(w.EndDate())
}

// Add appends ra to its (weekday, type) bucket. Dates outside the week are rejected.
func (w *Week) Add(ra *RenderedAssignable) error {
	day := calendar.DaysBetween(w.sunday, ra.date)
	if day < 0 || day >= calendar.DaysPerWeek {
		return fmt.Errorf("assignable %s on %s is outside week %s", ra.ref, ra.date.Format(time.DateOnly), w)
	}
	w.buckets[day][ra.TypeID()] = append(w.buckets[day][ra.TypeID()], ra)
	return nil
}

// Bucket returns a copy of one (weekday, type) bucket.
func (w *Week) Bucket(weekday time.Weekday, typeID int) []*RenderedAssignable {
	return append([]*RenderedAssignable(nil), w.buckets[weekday][typeID]...)
}

// Assignables returns every entry in the week, ordered with CompareAssignables.
func (w *Week) Assignables() []*RenderedAssignable {
	var out []*RenderedAssignable
	for _, day := range w.buckets {
		for _, b := range day {
			out = append(out, b...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return CompareAssignables(out[i], out[j]) < 0 })
	return out
}

func (w *Week) Len() int {
	n := 0
	for _, day := range w.buckets {
		for _, b := range day {
			n += len(b)
		}
	}
	return n
}

// Clone copies the bucket maps and slices. The RenderedAssignables themselves are shared.
func (w *Week) Clone() *Week {
	out := &Week{index: w.index, sunday: w.sunday, types: w.types}
	for i, day := range w.buckets {
		out.buckets[i] = make(map[int][]*RenderedAssignable, len(day))
		for typeID, b := range day {
			out.buckets[i][typeID] = append([]*RenderedAssignable(nil), b...)
		}
	}
	return out
}

// RowSpan is a contiguous block of grid rows.
type RowSpan struct {
	Start int `json:"start"`
	Count int `json:"count"`
}

type PrioritySpan struct {
	Priority int `json:"priority"`
	RowSpan
}

type TypeSpan struct {
	TypeID   int    `json:"type_id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	RowSpan
}

// Layout is the dense grid produced by Week.Render.
type Layout struct {
	RowCount      int                                         `json:"row_count"`
	Cells         [][calendar.DaysPerWeek]*RenderedAssignable `json:"-"`
	PrioritySpans []PrioritySpan                              `json:"priority_row_spans"`
	TypeSpans     []TypeSpan                                  `json:"type_row_spans"`
	Dates         [calendar.DaysPerWeek]time.Time             `json:"-"`
}

// Cell returns the entry at (row, weekday), or nil.
func (l Layout) Cell(row int, weekday time.Weekday) *RenderedAssignable {
	if row < 0 || row >= len(l.Cells) || weekday < 0 || int(weekday) >= calendar.DaysPerWeek {
		return nil
	}
	return l.Cells[row][weekday]
}

// Render packs the buckets into rows: priorities descending, types within a priority by the
// type table's order, each type taking as many rows as its fullest weekday bucket. Entries keep
// their bucket insertion order.
func (w *Week) Render() Layout {
	var l Layout
	for i := range l.Dates {
		l.Dates[i] = calendar.AddDays(w.sunday, i)
	}

	maxCount := map[int]int{}
	byPriority := map[int][]int{}
	for _, day := range w.buckets {
		for typeID, b := range day {
			if len(b) == 0 {
				continue
			}
			if _, seen := maxCount[typeID]; !seen {
				p := w.types.Priority(typeID)
				byPriority[p] = append(byPriority[p], typeID)
			}
			if len(b) > maxCount[typeID] {
				maxCount[typeID] = len(b)
			}
		}
	}

	priorities := make([]int, 0, len(byPriority))
	for p := range byPriority {
		priorities = append(priorities, p)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(priorities)))

	row := 0
	for _, p := range priorities {
		typeIDs := byPriority[p]
		sort.Slice(typeIDs, func(i, j int) bool { return w.types.Compare(typeIDs[i], typeIDs[j]) < 0 })
		pspan := PrioritySpan{Priority: p, RowSpan: RowSpan{Start: row}}
		for _, typeID := range typeIDs {
			n := maxCount[typeID]
			l.TypeSpans = append(l.TypeSpans, TypeSpan{
				TypeID:   typeID,
				Name:     w.types.Name(typeID),
				Priority: p,
				RowSpan:  RowSpan{Start: row, Count: n},
			})
			for k := 0; k < n; k++ {
				l.Cells = append(l.Cells, [calendar.DaysPerWeek]*RenderedAssignable{})
			}
			for weekday, day := range w.buckets {
				for k, ra := range day[typeID] {
					l.Cells[row+k][weekday] = ra
				}
			}
			row += n
			pspan.Count += n
		}
		l.PrioritySpans = append(l.PrioritySpans, pspan)
	}
	l.RowCount = row
	return l
}
