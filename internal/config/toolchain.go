package config

import (
	"fmt"

	"github.com/qobs-build/hermetic/internal/selects"
)

// ToolchainConfig is the toolchain document
type ToolchainConfig struct {
	Toolchains map[string]Toolchain `toml:"toolchains"`
}

// Toolchain defines a [toolchains.*] section
type Toolchain struct {
	HostMachine Machine  `toml:"host_machine"`
	C           string   `toml:"c"`
	Cpp         string   `toml:"cpp"`
	CArgs       []string `toml:"c_args"`
	CppArgs     []string `toml:"cpp_args"`
	LinkArgs    []string `toml:"link_args"`
}

// Machine describes the machine a toolchain produces code for
type Machine struct {
	System    string `toml:"system"`
	CPUFamily string `toml:"cpu_family"`
	CPU       string `toml:"cpu"`
	Endian    string `toml:"endian"`
}

// Labels returns the os and arch labels of the toolchain's host machine
func (t Toolchain) Labels() selects.LabelSet {
	return selects.NewLabelSet(
		selects.OS.Is(t.HostMachine.System),
		selects.Arch.Is(t.HostMachine.CPUFamily),
	)
}

func (c *ToolchainConfig) Get(name string) (Toolchain, error) {
	tc, ok := c.Toolchains[name]
	if !ok {
		return Toolchain{}, fmt.Errorf("%w: unknown toolchain %q", ErrInvalidConfig, name)
	}
	return tc, nil
}

func (c *ToolchainConfig) Validate() error {
	for name, tc := range c.Toolchains {
		if tc.HostMachine.System == "" || tc.HostMachine.CPUFamily == "" {
			return fmt.Errorf("%w: toolchain %q needs host_machine.system and host_machine.cpu_family", ErrInvalidConfig, name)
		}
	}
	return nil
}
