package render

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RefKind separates the index spaces an assignable can live in. Proposed and unavailable
// refs can never collide with live snapshot indices.
type RefKind uint8

const (
	RefLive RefKind = iota
	// RefProposed marks ghosts injected by the overlay for a pending addition.
	RefProposed
	// RefUnavailable marks MatchOne templates with no live match. Owner is the constraint
	// index and Index the template position.
	RefUnavailable
)

type Ref struct {
	Kind  RefKind
	Index int
	Owner int
}

func LiveRef(index int) Ref { return Ref{Kind: RefLive, Index: index} }

func ProposedRef(n int) Ref { return Ref{Kind: RefProposed, Index: n} }

func UnavailableRef(constraint, slot int) Ref {
	return Ref{Kind: RefUnavailable, Index: slot, Owner: constraint}
}

func (r Ref) IsLive() bool { return r.Kind == RefLive }

func (r Ref) String() string {
	switch r.Kind {
	case RefProposed:
		return fmt.Sprintf("proposed %d", r.Index)
	case RefUnavailable:
		return fmt.Sprintf("unavailable %d/%d", r.Owner, r.Index)
	default:
		return fmt.Sprintf("%d", r.Index)
	}
}

// ParseRef is the inverse of Ref.String.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "proposed "):
		n, err := strconv.Atoi(strings.TrimPrefix(s, "proposed "))
		if err != nil {
			return Ref{}, fmt.Errorf("invalid proposed ref %q", s)
		}
		return ProposedRef(n), nil
	case strings.HasPrefix(s, "unavailable "):
		owner, slot, ok := strings.Cut(strings.TrimPrefix(s, "unavailable "), "/")
		c, err1 := strconv.Atoi(owner)
		k, err2 := strconv.Atoi(slot)
		if !ok || err1 != nil || err2 != nil {
			return Ref{}, fmt.Errorf("invalid unavailable ref %q", s)
		}
		return UnavailableRef(c, k), nil
	default:
		n, err := strconv.Atoi(s)
		if err != nil {
			return Ref{}, fmt.Errorf("invalid assignable ref %q", s)
		}
		return LiveRef(n), nil
	}
}

func (r Ref) less(o Ref) bool {
	if r.Kind != o.Kind {
		return r.Kind < o.Kind
	}
	if r.Owner != o.Owner {
		return r.Owner < o.Owner
	}
	return r.Index < o.Index
}

type RefSet map[Ref]struct{}

func NewRefSet(refs ...Ref) RefSet {
	s := make(RefSet, len(refs))
	for _, r := range refs {
		s[r] = struct{}{}
	}
	return s
}

func (s RefSet) Add(r Ref) { s[r] = struct{}{} }

func (s RefSet) Has(r Ref) bool {
	_, ok := s[r]
	return ok
}

// Sorted returns live refs first, by index.
func (s RefSet) Sorted() []Ref {
	out := make([]Ref, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// LiveIndices returns the sorted snapshot indices in the set.
func (s RefSet) LiveIndices() []int {
	var out []int
	for r := range s {
		if r.IsLive() {
			out = append(out, r.Index)
		}
	}
	sort.Ints(out)
	return out
}

func (s RefSet) Equal(o RefSet) bool {
	if len(s) != len(o) {
		return false
	}
	for r := range s {
		if !o.Has(r) {
			return false
		}
	}
	return true
}
