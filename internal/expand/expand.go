// Package expand turns a project's option dimensions and toolchain lists
// into the full list of configurations the build description is evaluated
// under.
package expand

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/qobs-build/hermetic/internal/config"
	"github.com/qobs-build/hermetic/internal/msg"
	"github.com/qobs-build/hermetic/internal/selects"
)

var ErrUndeclaredSelect = errors.New("variant selects an undeclared custom dimension")

// OptionsInstance is one combination of option values together with the
// labels that are active under it.
type OptionsInstance struct {
	Options map[string]any
	Labels  selects.LabelSet
}

// Configuration is one point of the configuration space: an options
// instance evaluated with one host and one build toolchain.
type Configuration struct {
	Name           string
	Project        string // name of the [configurations.*] section
	Options        map[string]any
	HostToolchain  string
	BuildToolchain string
	Host           config.Toolchain
	Build          config.Toolchain
	// Labels are the option labels plus the host machine's os and arch.
	Labels selects.LabelSet
	// NativeLabels are the option labels plus the build machine's os and
	// arch; they tag targets that run during the build.
	NativeLabels selects.LabelSet
}

type Options struct {
	Static          map[string]any
	Variable        map[string][]config.Variant
	Selects         []selects.CustomSelect
	HostToolchains  []string
	BuildToolchains []string
	Toolchains      *config.ToolchainConfig
}

type variant struct {
	option string
	value  any
	label  selects.SelectInstance
}

// ExpandOptions computes the options instances of one project
// configuration.
func ExpandOptions(static map[string]any, variable map[string][]config.Variant, customs []selects.CustomSelect) ([]OptionsInstance, error) {
	defaults := selects.LabelSet{}
	declared := make(map[selects.SelectID]selects.CustomSelect, len(customs))
	for _, cs := range customs {
		defaults.Add(cs.DefaultLabel())
		declared[cs.ID] = cs
	}

	if len(customs) == 0 {
		return []OptionsInstance{{Options: maps.Clone(static), Labels: selects.LabelSet{}}}, nil
	}
	if len(variable) == 0 {
		return []OptionsInstance{{Options: maps.Clone(static), Labels: defaults}}, nil
	}

	// parse every variant up front, in a stable option order
	names := slices.Sorted(maps.Keys(variable))
	layers := make([][]variant, 0, len(names))
	for _, name := range names {
		layer := make([]variant, 0, len(variable[name]))
		for _, v := range variable[name] {
			label, err := selects.Parse(v.Select)
			if err != nil {
				return nil, fmt.Errorf("option %q: %w", name, err)
			}
			// os, arch and toolchain come from the toolchains
			if label.ID.Kind != selects.KindCustom {
				return nil, fmt.Errorf("option %q: %w: %s is not a custom select", name, selects.ErrInvalidSelect, label)
			}
			cs, ok := declared[label.ID]
			if !ok {
				return nil, fmt.Errorf("option %q: %w: %s", name, ErrUndeclaredSelect, label.ID)
			}
			if !slices.Contains(cs.Values, label.Value) {
				return nil, fmt.Errorf("option %q: %w: %q is not a possible value of %s", name, selects.ErrInvalidSelect, label.Value, label.ID)
			}
			layer = append(layer, variant{option: name, value: v.Value, label: label})
		}
		layers = append(layers, layer)
	}

	// cartesian product, built layer by layer
	combos := [][]variant{nil}
	for _, layer := range layers {
		next := make([][]variant, 0, len(combos)*len(layer))
		for _, prev := range combos {
			for _, v := range layer {
				next = append(next, append(slices.Clip(prev), v))
			}
		}
		combos = next
	}

	instances := make([]OptionsInstance, 0, len(combos))
	for _, combo := range combos {
		inst, ok := resolve(static, combo, customs)
		if !ok {
			msg.Debug("skipping contradictory option combination %s", describe(combo))
			continue
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// resolve overrides the static options with the chosen variants and
// collects their labels. Custom selects no variant touched contribute their
// default label. It reports false when two variants pin the same dimension
// to different values.
func resolve(static map[string]any, combo []variant, customs []selects.CustomSelect) (OptionsInstance, bool) {
	inst := OptionsInstance{Options: maps.Clone(static), Labels: selects.LabelSet{}}
	if inst.Options == nil {
		inst.Options = make(map[string]any)
	}

	touched := make(map[selects.SelectID]string)
	for _, v := range combo {
		if prev, ok := touched[v.label.ID]; ok && prev != v.label.Value {
			return OptionsInstance{}, false
		}
		touched[v.label.ID] = v.label.Value
		inst.Options[v.option] = v.value
		inst.Labels.Add(v.label)
	}
	for _, cs := range customs {
		if _, ok := touched[cs.ID]; !ok {
			inst.Labels.Add(cs.DefaultLabel())
		}
	}
	return inst, true
}

func describe(combo []variant) string {
	parts := make([]string, len(combo))
	for i, v := range combo {
		parts[i] = v.option + "=" + v.label.String()
	}
	return strings.Join(parts, ",")
}

// Expand computes every configuration of one project configuration:
// options instances x host toolchains x build toolchains.
func Expand(o Options) ([]Configuration, error) {
	if len(o.HostToolchains) == 0 || len(o.BuildToolchains) == 0 {
		return nil, fmt.Errorf("%w: need at least one host and one build toolchain", config.ErrInvalidConfig)
	}

	instances, err := ExpandOptions(o.Static, o.Variable, o.Selects)
	if err != nil {
		return nil, err
	}

	var configs []Configuration
	for _, inst := range instances {
		for _, hostName := range o.HostToolchains {
			host, err := o.Toolchains.Get(hostName)
			if err != nil {
				return nil, err
			}
			for _, buildName := range o.BuildToolchains {
				build, err := o.Toolchains.Get(buildName)
				if err != nil {
					return nil, err
				}

				labels := inst.Labels.Clone()
				labels.Union(host.Labels())
				native := inst.Labels.Clone()
				native.Union(build.Labels())
				configs = append(configs, Configuration{
					Options:        inst.Options,
					HostToolchain:  hostName,
					BuildToolchain: buildName,
					Host:           host,
					Build:          build,
					Labels:         labels,
					NativeLabels:   native,
				})
			}
		}
	}
	return configs, nil
}

// FromProject expands the named [configurations.*] sections of a project, or
// all of them in name order when names is empty.
func FromProject(b *config.Bundle, names ...string) ([]Configuration, error) {
	customs, err := b.Project.Selects()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		names = b.Project.ConfigurationNames()
	}

	var all []Configuration
	for _, name := range names {
		section, ok := b.Project.Configurations[name]
		if !ok {
			return nil, fmt.Errorf("%w: no configuration named %q (have %s)", config.ErrInvalidConfig, name, strings.Join(b.Project.ConfigurationNames(), ", "))
		}
		configs, err := Expand(Options{
			Static:          section.StaticOptions,
			Variable:        section.VariableOptions,
			Selects:         customs,
			HostToolchains:  section.Toolchains.HostToolchains,
			BuildToolchains: section.Toolchains.BuildToolchains,
			Toolchains:      b.Toolchains,
		})
		if err != nil {
			return nil, fmt.Errorf("configuration %q: %w", name, err)
		}
		for i := range configs {
			configs[i].Project = name
			configs[i].Name = configName(name, configs[i])
		}
		all = append(all, configs...)
	}
	return all, nil
}

func configName(project string, c Configuration) string {
	var sb strings.Builder
	sb.WriteString(project)
	sb.WriteString(":")
	sb.WriteString(c.HostToolchain)
	if c.BuildToolchain != c.HostToolchain {
		sb.WriteString("+")
		sb.WriteString(c.BuildToolchain)
	}
	for _, l := range c.Labels.Filter(selects.KindCustom).Sorted() {
		sb.WriteString(" ")
		sb.WriteString(l.String())
	}
	return sb.String()
}
