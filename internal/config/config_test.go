package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qobs-build/hermetic/internal/selects"
)

const projectTOML = `
[project]
name = "mesa"
copyright = "Copyright 2024 The Mesa Authors"
soong_name_prefix = "mesa_"

[project.paths]
project_dir = "external/mesa"

[project.rename]
libglapi = "libglapi_mesa"

[project.custom_target_workarounds.u_format_table]
no_split = true

[[custom_selects]]
namespace = "mesa"
name = "platform"
possible_values = ["x11", "wayland"]
default_value = "x11"

[configurations.linux]
static_options = { buildtype = "release", shared-glapi = true }

[configurations.linux.toolchains]
host_toolchains = ["linux_x86_64", "linux_aarch64"]
build_toolchains = ["linux_x86_64"]

[configurations.linux.variable_options]
platforms = [
  { value = ["x11"], select = "mesa.platform:x11" },
  { value = ["wayland"], select = "mesa.platform:wayland" },
]
`

const toolchainTOML = `
[toolchains.linux_x86_64]
c = "clang"
cpp = "clang++"
host_machine = { system = "linux", cpu_family = "x86_64", cpu = "x86_64", endian = "little" }

[toolchains.linux_aarch64]
c = "clang"
host_machine = { system = "linux", cpu_family = "aarch64", cpu = "armv8", endian = "little" }
`

const depsTOML = `
[shared_libraries.zlib]
target_name = "libz"
version = "1.2.13"

[static_libraries.expat]
target_name = "libexpat"
pkgconfig = { prefix = "/usr" }

[header_libraries.vulkan]
target_name = "vulkan_headers"

[programs.python3]
`

func TestParseProjectConfig(t *testing.T) {
	cfg, err := ParseProjectConfig(strings.NewReader(projectTOML), "config.toml")
	require.NoError(t, err)

	assert.Equal(t, "mesa", cfg.Project.Name)
	assert.Equal(t, DefaultDescriptionFile, cfg.DescriptionFileName())
	assert.Equal(t, []string{"linux"}, cfg.ConfigurationNames())
	assert.True(t, cfg.Project.Workarounds["u_format_table"].NoSplit)
	assert.Equal(t, "libglapi_mesa", cfg.Project.Rename["libglapi"])

	linux := cfg.Configurations["linux"]
	assert.Equal(t, []string{"linux_x86_64", "linux_aarch64"}, linux.Toolchains.HostToolchains)
	assert.Equal(t, "release", linux.StaticOptions["buildtype"])
	require.Len(t, linux.VariableOptions["platforms"], 2)
	assert.Equal(t, "mesa.platform:wayland", linux.VariableOptions["platforms"][1].Select)

	sels, err := cfg.Selects()
	require.NoError(t, err)
	require.Len(t, sels, 1)
	assert.Equal(t, selects.Custom("mesa", "platform"), sels[0].ID)
	assert.Equal(t, "x11", sels[0].Default)
}

func TestParseProjectConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", projectTOML + "\n[bogus]\nx = 1\n"},
		{"missing name", strings.Replace(projectTOML, `name = "mesa"`, "", 1)},
		{"no configurations", "[project]\nname = \"x\"\n"},
		{"bad default", strings.Replace(projectTOML, `default_value = "x11"`, `default_value = "gbm"`, 1)},
		{"syntax", "[project\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProjectConfig(strings.NewReader(tt.doc), "config.toml")
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestToolchainLabels(t *testing.T) {
	cfg, err := ParseToolchainConfig(strings.NewReader(toolchainTOML), "toolchains.toml")
	require.NoError(t, err)

	tc, err := cfg.Get("linux_aarch64")
	require.NoError(t, err)
	assert.Equal(t, selects.NewLabelSet(selects.OS.Is("linux"), selects.Arch.Is("aarch64")), tc.Labels())

	_, err = cfg.Get("windows")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDependencyTable(t *testing.T) {
	table, err := ParseDependencyTable(strings.NewReader(depsTOML), "dependencies.toml")
	require.NoError(t, err)

	zlib, ok := table.Lookup("zlib")
	require.True(t, ok)
	assert.Equal(t, SharedLibrary, zlib.Kind)
	assert.Equal(t, "libz", zlib.TargetName)
	assert.Equal(t, "1.2.13", zlib.Version)

	expat, ok := table.Lookup("expat")
	require.True(t, ok)
	assert.Equal(t, StaticLibrary, expat.Kind)
	prefix, ok := expat.Variable("prefix")
	assert.True(t, ok)
	assert.Equal(t, "/usr", prefix)

	py, ok := table.Lookup("python3")
	require.True(t, ok)
	assert.Equal(t, Program, py.Kind)
	assert.Equal(t, "python3", py.TargetName, "target name defaults to the dependency name")

	_, ok = table.Lookup("libdrm")
	assert.False(t, ok)

	names := []string{}
	for _, d := range table.All() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"expat", "python3", "vulkan", "zlib"}, names)
}

func TestDependencyTableDuplicate(t *testing.T) {
	doc := depsTOML + "\n[header_libraries.zlib]\n"
	_, err := ParseDependencyTable(strings.NewReader(doc), "dependencies.toml")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadShortcut(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "mesa")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile), []byte(projectTOML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ToolchainConfigFile), []byte(toolchainTOML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DependenciesFile), []byte(depsTOML), 0o644))

	b, err := Load(ResolveShortcut(root, "mesa"))
	require.NoError(t, err)
	assert.Equal(t, "mesa", b.Project.Project.Name)
	assert.Len(t, b.Toolchains.Toolchains, 2)
	assert.Len(t, b.Dependencies.All(), 4)
}

func TestLoadUnknownToolchain(t *testing.T) {
	root := t.TempDir()
	files := ResolveShortcut(root, "p")
	require.NoError(t, os.MkdirAll(filepath.Dir(files.Config), 0o755))
	require.NoError(t, os.WriteFile(files.Config, []byte(projectTOML), 0o644))
	require.NoError(t, os.WriteFile(files.Toolchain, []byte("[toolchains.linux_x86_64]\nhost_machine = { system = \"linux\", cpu_family = \"x86_64\" }\n"), 0o644))
	files.Dependencies = ""

	_, err := Load(files)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(ResolveShortcut(t.TempDir(), "nothing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
