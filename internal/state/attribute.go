// Package state accumulates per-configuration observations of every target
// and reduces each attribute to unconditional values plus the fewest
// conditional branches that reproduce what was observed.
package state

import (
	"maps"
	"slices"
	"strings"

	"github.com/qobs-build/hermetic/internal/selects"
)

// Coverage is what the tracker learned about the whole configuration sweep.
type Coverage struct {
	// Groups are complete label sets of one dimension: every observed os,
	// every observed arch, the declared values of each custom select.
	Groups []selects.LabelSet
	// Defaults are the default labels of the custom selects.
	Defaults selects.LabelSet
}

// Row is one branch of a select: the values of the node's dimensions, in
// node order, and the attribute values selected by them.
type Row struct {
	Key     []string
	Default bool
	Values  []string
}

// SelectNode is one conditional over a sorted list of dimensions.
type SelectNode struct {
	IDs  []selects.SelectID
	Rows []Row
}

func (n *SelectNode) add(key []string, value string) {
	for i := range n.Rows {
		if slices.Equal(n.Rows[i].Key, key) {
			if !slices.Contains(n.Rows[i].Values, value) {
				n.Rows[i].Values = append(n.Rows[i].Values, value)
			}
			return
		}
	}
	n.Rows = append(n.Rows, Row{Key: key, Values: []string{value}})
}

// finalize sorts the rows and appends the default branch
func (n *SelectNode) finalize() {
	for i := range n.Rows {
		slices.Sort(n.Rows[i].Values)
	}
	slices.SortFunc(n.Rows, func(a, b Row) int { return slices.Compare(a.Key, b.Key) })
	n.Rows = append(n.Rows, Row{Default: true, Values: []string{}})
}

// Values returns every value any row selects, sorted
func (n *SelectNode) Values() []string {
	var out []string
	for _, r := range n.Rows {
		out = append(out, r.Values...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// AttributeNode holds every observation of one attribute of one target.
type AttributeNode struct {
	common map[string]bool
	// grouped holds, per value, one label set per configuration it was
	// observed in
	grouped map[string][]selects.LabelSet
	// allLabels is the union of grouped[value]
	allLabels map[string]selects.LabelSet
	// customCommon is the intersection of the custom labels of grouped[value]
	customCommon map[string]selects.LabelSet

	nodes        []*SelectNode
	consolidated bool
}

func NewAttributeNode() *AttributeNode {
	return &AttributeNode{
		common:       make(map[string]bool),
		grouped:      make(map[string][]selects.LabelSet),
		allLabels:    make(map[string]selects.LabelSet),
		customCommon: make(map[string]selects.LabelSet),
	}
}

// AddCommonValues records values that hold in every configuration.
func (a *AttributeNode) AddCommonValues(values ...string) {
	for _, v := range values {
		a.common[v] = true
	}
}

// AddConditionalValues records values observed in a configuration with the
// given labels.
func (a *AttributeNode) AddConditionalValues(labels selects.LabelSet, values ...string) {
	for _, v := range values {
		a.grouped[v] = append(a.grouped[v], labels.Clone())

		if all, ok := a.allLabels[v]; ok {
			all.Union(labels)
		} else {
			a.allLabels[v] = labels.Clone()
		}

		custom := labels.Filter(selects.KindCustom)
		if cc, ok := a.customCommon[v]; ok {
			cc.Intersect(custom)
		} else {
			a.customCommon[v] = custom
		}
	}
}

// Remove forgets every observation of value. It has no effect after
// Consolidate.
func (a *AttributeNode) Remove(value string) {
	if a.consolidated {
		return
	}
	delete(a.common, value)
	delete(a.grouped, value)
	delete(a.allLabels, value)
	delete(a.customCommon, value)
}

// Consolidate reduces the observations to common values and select nodes.
// Only the first call has an effect.
func (a *AttributeNode) Consolidate(cov Coverage) {
	if a.consolidated {
		return
	}
	a.consolidated = true

	byIDs := make(map[string]*SelectNode)
	for _, v := range slices.Sorted(maps.Keys(a.grouped)) {
		if a.common[v] {
			continue
		}

		occurrences := make([]selects.LabelSet, len(a.grouped[v]))
		for i, o := range a.grouped[v] {
			occurrences[i] = o.Clone()
		}

		// a dimension whose every value is seen with v cannot tell
		// configurations with v from those without it
		union := a.allLabels[v]
		for _, g := range cov.Groups {
			if len(g) == 0 || !g.SubsetOf(union) {
				continue
			}
			for _, o := range occurrences {
				o.Subtract(g)
			}
		}

		// a custom default shared by every occurrence is implied
		for l := range a.customCommon[v] {
			if !cov.Defaults.Has(l) {
				continue
			}
			for _, o := range occurrences {
				delete(o, l)
			}
		}

		// one occurrence without a remaining predicate makes v hold
		// everywhere. Requiring every occurrence to be empty differs only
		// when configurations carry different dimensions, and would then
		// select v away from a configuration that observed it unconditionally.
		if slices.ContainsFunc(occurrences, func(o selects.LabelSet) bool { return len(o) == 0 }) {
			a.common[v] = true
			continue
		}

		for _, o := range occurrences {
			ids := o.IDs()
			key := idsKey(ids)
			node, ok := byIDs[key]
			if !ok {
				node = &SelectNode{IDs: ids}
				byIDs[key] = node
			}
			tuple := make([]string, len(ids))
			for i, id := range ids {
				tuple[i], _ = o.Value(id)
			}
			node.add(tuple, v)
		}
	}

	a.nodes = slices.Collect(maps.Values(byIDs))
	slices.SortFunc(a.nodes, func(x, y *SelectNode) int {
		return slices.CompareFunc(x.IDs, y.IDs, selects.SelectID.Compare)
	})
	for _, n := range a.nodes {
		n.finalize()
	}
}

func idsKey(ids []selects.SelectID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.Kind.String() + "/" + id.String()
	}
	return strings.Join(parts, ",")
}

// CommonValues returns the unconditional values, sorted
func (a *AttributeNode) CommonValues() []string {
	return slices.Sorted(maps.Keys(a.common))
}

// SelectNodes returns the conditionals, ordered by their dimensions. It is
// empty before Consolidate.
func (a *AttributeNode) SelectNodes() []*SelectNode {
	return a.nodes
}

// Values returns every value the attribute can take, sorted
func (a *AttributeNode) Values() []string {
	values := a.CommonValues()
	for v := range a.grouped {
		values = append(values, v)
	}
	slices.Sort(values)
	return slices.Compact(values)
}

func (a *AttributeNode) Empty() bool {
	return len(a.common) == 0 && len(a.grouped) == 0
}
