package config

import (
	"fmt"
	"maps"
	"slices"

	"github.com/qobs-build/hermetic/internal/selects"
)

const DefaultDescriptionFile = "hermetic.toml"

// ProjectConfig is the top level project document
type ProjectConfig struct {
	Project        ProjectSection                  `toml:"project"`
	CustomSelects  []CustomSelectSection           `toml:"custom_selects"`
	Configurations map[string]ConfigurationSection `toml:"configurations"`
}

// ProjectSection defines the [project] section
type ProjectSection struct {
	Name               string                            `toml:"name"`
	DescriptionFile    string                            `toml:"description_file"`
	Copyright          string                            `toml:"copyright"`
	SoongNamePrefix    string                            `toml:"soong_name_prefix"`
	BazelConfigPackage string                            `toml:"bazel_config_package"`
	Paths              PathsSection                      `toml:"paths"`
	Rename             map[string]string                 `toml:"rename"`
	Workarounds        map[string]CustomTargetWorkaround `toml:"custom_target_workarounds"`
}

// PathsSection tells the emitters what the symbolic path tokens stand for
// in the destination tree.
type PathsSection struct {
	ProjectDir string `toml:"project_dir"`
	InstallDir string `toml:"install_dir"`
	BuildDir   string `toml:"build_dir"`
	GenDir     string `toml:"gen_dir"`
}

// CustomTargetWorkaround adjusts how one generated-file rule is converted
type CustomTargetWorkaround struct {
	NoSplit           bool     `toml:"no_split"`
	ExportIncludeDirs []string `toml:"export_include_dirs"`
}

// CustomSelectSection defines one [[custom_selects]] entry
type CustomSelectSection struct {
	Namespace      string   `toml:"namespace"`
	Name           string   `toml:"name"`
	PossibleValues []string `toml:"possible_values"`
	DefaultValue   string   `toml:"default_value"`
}

// ConfigurationSection defines a [configurations.*] section
type ConfigurationSection struct {
	Toolchains      ToolchainsSection    `toml:"toolchains"`
	StaticOptions   map[string]any       `toml:"static_options"`
	VariableOptions map[string][]Variant `toml:"variable_options"`
}

type ToolchainsSection struct {
	HostToolchains  []string `toml:"host_toolchains"`
	BuildToolchains []string `toml:"build_toolchains"`
}

// Variant is one value a variable option can take, together with the label
// that is active when it is chosen.
type Variant struct {
	Value  any    `toml:"value"`
	Select string `toml:"select"`
}

func (c *ProjectConfig) ConfigurationNames() []string {
	return slices.Sorted(maps.Keys(c.Configurations))
}

// Selects returns the declared custom dimensions in declaration order.
func (c *ProjectConfig) Selects() ([]selects.CustomSelect, error) {
	out := make([]selects.CustomSelect, 0, len(c.CustomSelects))
	seen := make(map[selects.SelectID]bool)
	for _, s := range c.CustomSelects {
		cs := selects.CustomSelect{
			ID:      selects.Custom(s.Namespace, s.Name),
			Values:  s.PossibleValues,
			Default: s.DefaultValue,
		}
		if err := cs.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if seen[cs.ID] {
			return nil, fmt.Errorf("%w: custom select %s declared twice", ErrInvalidConfig, cs.ID)
		}
		seen[cs.ID] = true
		out = append(out, cs)
	}
	return out, nil
}

// DescriptionFileName returns the per-directory build description file name
func (c *ProjectConfig) DescriptionFileName() string {
	if c.Project.DescriptionFile != "" {
		return c.Project.DescriptionFile
	}
	return DefaultDescriptionFile
}

// Validate checks the fields a conversion cannot run without
func (c *ProjectConfig) Validate() error {
	if c.Project.Name == "" {
		return fmt.Errorf("%w: [project] name is required", ErrInvalidConfig)
	}
	if len(c.Configurations) == 0 {
		return fmt.Errorf("%w: at least one [configurations.*] section is required", ErrInvalidConfig)
	}
	for _, name := range c.ConfigurationNames() {
		cfg := c.Configurations[name]
		if len(cfg.Toolchains.HostToolchains) == 0 {
			return fmt.Errorf("%w: configuration %q has no host_toolchains", ErrInvalidConfig, name)
		}
		if len(cfg.Toolchains.BuildToolchains) == 0 {
			return fmt.Errorf("%w: configuration %q has no build_toolchains", ErrInvalidConfig, name)
		}
		for opt, variants := range cfg.VariableOptions {
			if len(variants) == 0 {
				return fmt.Errorf("%w: variable option %q of configuration %q has no variants", ErrInvalidConfig, opt, name)
			}
			for _, v := range variants {
				if v.Select == "" {
					return fmt.Errorf("%w: variable option %q of configuration %q has a variant without select", ErrInvalidConfig, opt, name)
				}
			}
		}
	}
	if _, err := c.Selects(); err != nil {
		return err
	}
	return nil
}
