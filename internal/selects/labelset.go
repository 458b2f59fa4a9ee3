package selects

import (
	"maps"
	"slices"
	"strings"
)

// LabelSet is a set of labels. The zero value is an empty, read-only set;
// use NewLabelSet or make before adding.
type LabelSet map[SelectInstance]struct{}

func NewLabelSet(labels ...SelectInstance) LabelSet {
	ls := make(LabelSet, len(labels))
	for _, l := range labels {
		ls.Add(l)
	}
	return ls
}

func (ls LabelSet) Add(l SelectInstance) { ls[l] = struct{}{} }

func (ls LabelSet) Has(l SelectInstance) bool {
	_, ok := ls[l]
	return ok
}

func (ls LabelSet) Clone() LabelSet {
	if ls == nil {
		return LabelSet{}
	}
	return maps.Clone(ls)
}

// Union adds every label of o to ls.
func (ls LabelSet) Union(o LabelSet) {
	for l := range o {
		ls.Add(l)
	}
}

// Intersect removes from ls every label that is not in o.
func (ls LabelSet) Intersect(o LabelSet) {
	for l := range ls {
		if !o.Has(l) {
			delete(ls, l)
		}
	}
}

// Subtract removes every label of o from ls.
func (ls LabelSet) Subtract(o LabelSet) {
	for l := range o {
		delete(ls, l)
	}
}

// SubsetOf reports whether every label of ls is in o.
func (ls LabelSet) SubsetOf(o LabelSet) bool {
	for l := range ls {
		if !o.Has(l) {
			return false
		}
	}
	return true
}

// Filter returns the labels of the given kind.
func (ls LabelSet) Filter(kind Kind) LabelSet {
	out := LabelSet{}
	for l := range ls {
		if l.ID.Kind == kind {
			out.Add(l)
		}
	}
	return out
}

// Sorted returns the labels in canonical order.
func (ls LabelSet) Sorted() []SelectInstance {
	return slices.SortedFunc(maps.Keys(ls), SelectInstance.Compare)
}

// IDs returns the sorted, distinct dimensions referenced by ls.
func (ls LabelSet) IDs() []SelectID {
	ids := make([]SelectID, 0, len(ls))
	for l := range ls {
		ids = append(ids, l.ID)
	}
	slices.SortFunc(ids, SelectID.Compare)
	return slices.Compact(ids)
}

// Value returns the value ls holds for id, if any.
func (ls LabelSet) Value(id SelectID) (string, bool) {
	for l := range ls {
		if l.ID == id {
			return l.Value, true
		}
	}
	return "", false
}

func (ls LabelSet) String() string {
	sorted := ls.Sorted()
	parts := make([]string, len(sorted))
	for i, l := range sorted {
		parts[i] = l.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
