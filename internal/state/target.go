package state

import (
	"maps"
	"slices"

	"github.com/qobs-build/hermetic/internal/extract"
)

// Kind is the closed set of target kinds. The order is the emission order.
type Kind int

const (
	KindFileGroup Kind = iota
	KindIncludeDirectory
	KindFlag
	KindCustomTarget
	KindPythonTarget
	KindStaticLibrary
	KindSharedLibrary
	KindExecutable
)

func (k Kind) String() string {
	switch k {
	case KindFileGroup:
		return "file group"
	case KindIncludeDirectory:
		return "include directory"
	case KindFlag:
		return "flag"
	case KindCustomTarget:
		return "custom target"
	case KindPythonTarget:
		return "python target"
	case KindStaticLibrary:
		return "static library"
	case KindSharedLibrary:
		return "shared library"
	case KindExecutable:
		return "executable"
	default:
		return "unknown"
	}
}

// Attribute names
const (
	AttrSrcs             = "srcs"
	AttrOuts             = "outs"
	AttrTools            = "tools"
	AttrDirs             = "dirs"
	AttrCFlags           = "cflags"
	AttrCppFlags         = "cppflags"
	AttrLinkFlags        = "ldflags"
	AttrGeneratedHeaders = "generated_headers"
	AttrGeneratedSources = "generated_sources"
	AttrHeaderLibs       = "header_libs"
	AttrStaticLibs       = "static_libs"
	AttrWholeStaticLibs  = "whole_static_libs"
	AttrSharedLibs       = "shared_libs"
	AttrFlags            = "flags"
)

// Target is the ecosystem independent state of one target across every
// configuration.
type Target struct {
	Kind   Kind
	Name   string
	Subdir string

	Native     bool
	InstallDir string
	// Main is the entry point of a python target
	Main string
	// Custom is the record every configuration agreed on, for custom
	// targets only
	Custom *extract.CustomTarget

	attrs map[string]*AttributeNode
	// every install dir and python main observed, sorted
	installDirs []string
	mains       []string
}

func NewTarget(kind Kind, name, subdir string) *Target {
	return &Target{
		Kind:   kind,
		Name:   name,
		Subdir: subdir,
		attrs:  make(map[string]*AttributeNode),
	}
}

// ConvertTarget is a target as one ecosystem sees it. Ecosystems compose
// *Target with what they need for rendering.
type ConvertTarget interface {
	State() *Target
	Finish(cov Coverage)
}

func (t *Target) State() *Target { return t }

// Attr returns the named attribute, creating it on first use.
func (t *Target) Attr(name string) *AttributeNode {
	a, ok := t.attrs[name]
	if !ok {
		a = NewAttributeNode()
		t.attrs[name] = a
	}
	return a
}

// Lookup returns the named attribute if any value was ever recorded for it.
func (t *Target) Lookup(name string) (*AttributeNode, bool) {
	a, ok := t.attrs[name]
	if !ok || a.Empty() {
		return nil, false
	}
	return a, true
}

// AttrNames returns the names of the non-empty attributes, sorted
func (t *Target) AttrNames() []string {
	var names []string
	for _, name := range slices.Sorted(maps.Keys(t.attrs)) {
		if !t.attrs[name].Empty() {
			names = append(names, name)
		}
	}
	return names
}

func observe(seen []string, v string) []string {
	i, found := slices.BinarySearch(seen, v)
	if found {
		return seen
	}
	return slices.Insert(seen, i, v)
}

// Finish consolidates every attribute.
func (t *Target) Finish(cov Coverage) {
	for _, a := range t.attrs {
		a.Consolidate(cov)
	}
}
