package config

import (
	"fmt"
	"maps"
	"slices"
)

type DependencyKind int

const (
	SharedLibrary DependencyKind = iota
	StaticLibrary
	HeaderLibrary
	Program
)

func (k DependencyKind) String() string {
	switch k {
	case SharedLibrary:
		return "shared_libraries"
	case StaticLibrary:
		return "static_libraries"
	case HeaderLibrary:
		return "header_libraries"
	case Program:
		return "programs"
	default:
		return "unknown"
	}
}

// DependencyTable maps external dependency names to what they are called
// in the destination tree.
type DependencyTable struct {
	SharedLibraries map[string]DependencyEntry `toml:"shared_libraries"`
	StaticLibraries map[string]DependencyEntry `toml:"static_libraries"`
	HeaderLibraries map[string]DependencyEntry `toml:"header_libraries"`
	Programs        map[string]DependencyEntry `toml:"programs"`
}

type DependencyEntry struct {
	TargetName string            `toml:"target_name"`
	Version    string            `toml:"version"`
	ConfigTool map[string]string `toml:"configtool"`
	PkgConfig  map[string]string `toml:"pkgconfig"`
}

// Dependency is a resolved entry of the table
type Dependency struct {
	Name string
	Kind DependencyKind
	DependencyEntry
}

// Variable looks a variable up the way a build description would: pkg-config
// first, then the config tool.
func (d Dependency) Variable(name string) (string, bool) {
	if v, ok := d.PkgConfig[name]; ok {
		return v, true
	}
	v, ok := d.ConfigTool[name]
	return v, ok
}

func (t *DependencyTable) sections() []map[string]DependencyEntry {
	return []map[string]DependencyEntry{
		SharedLibrary: t.SharedLibraries,
		StaticLibrary: t.StaticLibraries,
		HeaderLibrary: t.HeaderLibraries,
		Program:       t.Programs,
	}
}

func (t *DependencyTable) Lookup(name string) (Dependency, bool) {
	if t == nil {
		return Dependency{}, false
	}
	for kind, section := range t.sections() {
		if entry, ok := section[name]; ok {
			if entry.TargetName == "" {
				entry.TargetName = name
			}
			return Dependency{Name: name, Kind: DependencyKind(kind), DependencyEntry: entry}, true
		}
	}
	return Dependency{}, false
}

// All returns every dependency, sorted by name
func (t *DependencyTable) All() []Dependency {
	if t == nil {
		return nil
	}
	var names []string
	for _, section := range t.sections() {
		names = append(names, slices.Collect(maps.Keys(section))...)
	}
	slices.Sort(names)
	deps := make([]Dependency, 0, len(names))
	for _, name := range slices.Compact(names) {
		d, _ := t.Lookup(name)
		deps = append(deps, d)
	}
	return deps
}

func (t *DependencyTable) Validate() error {
	seen := make(map[string]DependencyKind)
	for kind, section := range t.sections() {
		for name := range section {
			if prev, ok := seen[name]; ok {
				return fmt.Errorf("%w: dependency %q is listed in both %s and %s", ErrInvalidConfig, name, prev, DependencyKind(kind))
			}
			seen[name] = DependencyKind(kind)
		}
	}
	return nil
}
