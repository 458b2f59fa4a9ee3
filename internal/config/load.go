// Package config reads the documents that drive a conversion: the project
// config, the toolchain definitions and the external dependency table.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	ProjectConfigFile   = "config.toml"
	ToolchainConfigFile = "toolchains.toml"
	DependenciesFile    = "dependencies.toml"
)

// Files names the three documents of a conversion
type Files struct {
	Config       string
	Toolchain    string
	Dependencies string
}

// ResolveShortcut maps a named project to its conventional config triple
// under root.
func ResolveShortcut(root, project string) Files {
	dir := filepath.Join(root, project)
	return Files{
		Config:       filepath.Join(dir, ProjectConfigFile),
		Toolchain:    filepath.Join(dir, ToolchainConfigFile),
		Dependencies: filepath.Join(dir, DependenciesFile),
	}
}

// Bundle holds every parsed document
type Bundle struct {
	Project      *ProjectConfig
	Toolchains   *ToolchainConfig
	Dependencies *DependencyTable
}

// decode strictly decodes one TOML document into dst
func decode(rdr io.Reader, name string, dst any) error {
	dec := toml.NewDecoder(rdr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			return fmt.Errorf("%w: %s:\n%s", ErrInvalidConfig, name, derr.String())
		}
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			return fmt.Errorf("%w: %s:\n%s", ErrInvalidConfig, name, serr.String())
		}
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
	}
	return nil
}

func decodeFile(path string, dst any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return decode(bufio.NewReader(f), path, dst)
}

func ParseProjectConfig(rdr io.Reader, name string) (*ProjectConfig, error) {
	cfg := new(ProjectConfig)
	if err := decode(rdr, name, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ParseToolchainConfig(rdr io.Reader, name string) (*ToolchainConfig, error) {
	cfg := new(ToolchainConfig)
	if err := decode(rdr, name, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ParseDependencyTable(rdr io.Reader, name string) (*DependencyTable, error) {
	table := new(DependencyTable)
	if err := decode(rdr, name, table); err != nil {
		return nil, err
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// Load reads and validates all three documents. The dependency table is
// optional: an empty path yields an empty table.
func Load(files Files) (*Bundle, error) {
	b := &Bundle{
		Project:      new(ProjectConfig),
		Toolchains:   new(ToolchainConfig),
		Dependencies: new(DependencyTable),
	}

	if err := decodeFile(files.Config, b.Project); err != nil {
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}
	if err := b.Project.Validate(); err != nil {
		return nil, err
	}

	if err := decodeFile(files.Toolchain, b.Toolchains); err != nil {
		return nil, fmt.Errorf("failed to read toolchain config: %w", err)
	}
	if err := b.Toolchains.Validate(); err != nil {
		return nil, err
	}

	if files.Dependencies != "" {
		if err := decodeFile(files.Dependencies, b.Dependencies); err != nil {
			return nil, fmt.Errorf("failed to read dependency table: %w", err)
		}
		if err := b.Dependencies.Validate(); err != nil {
			return nil, err
		}
	}

	// every toolchain a configuration names must exist
	for _, name := range b.Project.ConfigurationNames() {
		tcs := b.Project.Configurations[name].Toolchains
		for _, tc := range append(append([]string{}, tcs.HostToolchains...), tcs.BuildToolchains...) {
			if _, err := b.Toolchains.Get(tc); err != nil {
				return nil, fmt.Errorf("configuration %q: %w", name, err)
			}
		}
	}

	return b, nil
}
