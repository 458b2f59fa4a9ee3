// Package selects models the dimensions a build configuration can vary
// along and the labels that describe one concrete configuration.
package selects

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrInvalidSelect = errors.New("invalid select")

// Kind is the kind of a configuration dimension. The order of the
// constants is the canonical order of dimensions in emitted selects.
type Kind int

const (
	KindOS Kind = iota
	KindArch
	KindCustom
	KindToolchain
)

func (k Kind) String() string {
	switch k {
	case KindOS:
		return "os"
	case KindArch:
		return "arch"
	case KindCustom:
		return "custom"
	case KindToolchain:
		return "toolchain"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// SelectID identifies one configuration dimension. It carries no value.
type SelectID struct {
	Kind      Kind
	Namespace string
	Variable  string
}

var (
	OS        = SelectID{Kind: KindOS}
	Arch      = SelectID{Kind: KindArch}
	Toolchain = SelectID{Kind: KindToolchain}
)

// Custom returns the id of a project defined switch.
func Custom(namespace, variable string) SelectID {
	return SelectID{Kind: KindCustom, Namespace: namespace, Variable: variable}
}

func (id SelectID) Compare(o SelectID) int {
	return cmp.Or(
		cmp.Compare(id.Kind, o.Kind),
		cmp.Compare(id.Namespace, o.Namespace),
		cmp.Compare(id.Variable, o.Variable),
	)
}

func (id SelectID) String() string {
	if id.Kind == KindCustom {
		return id.Namespace + "." + id.Variable
	}
	return id.Kind.String()
}

// Is returns the label of this dimension with the given value.
func (id SelectID) Is(value string) SelectInstance {
	return SelectInstance{ID: id, Value: value}
}

// SelectInstance is a label: one dimension fixed to one value, e.g. os:linux.
type SelectInstance struct {
	ID    SelectID
	Value string
}

func (s SelectInstance) Compare(o SelectInstance) int {
	return cmp.Or(s.ID.Compare(o.ID), cmp.Compare(s.Value, o.Value))
}

func (s SelectInstance) String() string {
	return s.ID.String() + ":" + s.Value
}

// Parse parses the text form of a label:
//
//	os:linux
//	arch:aarch64
//	toolchain:clang
//	mesa.gallium_drivers:iris
func Parse(s string) (SelectInstance, error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return SelectInstance{}, fmt.Errorf("%w %q: expected <dimension>:<value>", ErrInvalidSelect, s)
	}
	dim, value := s[:i], s[i+1:]

	switch dim {
	case "os":
		return OS.Is(value), nil
	case "arch":
		return Arch.Is(value), nil
	case "toolchain":
		return Toolchain.Is(value), nil
	}

	j := strings.LastIndexByte(dim, '.')
	if j <= 0 || j == len(dim)-1 {
		return SelectInstance{}, fmt.Errorf("%w %q: custom dimensions are written <namespace>.<variable>", ErrInvalidSelect, s)
	}
	return Custom(dim[:j], dim[j+1:]).Is(value), nil
}

// CustomSelect declares the full domain of a custom dimension.
type CustomSelect struct {
	ID      SelectID
	Values  []string
	Default string
}

// Labels returns one label per possible value.
func (c CustomSelect) Labels() LabelSet {
	ls := make(LabelSet, len(c.Values))
	for _, v := range c.Values {
		ls.Add(c.ID.Is(v))
	}
	return ls
}

func (c CustomSelect) DefaultLabel() SelectInstance {
	return c.ID.Is(c.Default)
}

func (c CustomSelect) Validate() error {
	if c.ID.Kind != KindCustom || c.ID.Namespace == "" || c.ID.Variable == "" {
		return fmt.Errorf("%w: custom select needs a namespace and a name", ErrInvalidSelect)
	}
	if len(c.Values) == 0 {
		return fmt.Errorf("%w: %s has no possible values", ErrInvalidSelect, c.ID)
	}
	if !slices.Contains(c.Values, c.Default) {
		return fmt.Errorf("%w: default %q of %s is not one of %v", ErrInvalidSelect, c.Default, c.ID, c.Values)
	}
	return nil
}
