package gen

import (
	"io"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qobs-build/hermetic/internal/config"
	"github.com/qobs-build/hermetic/internal/expand"
	"github.com/qobs-build/hermetic/internal/extract"
	"github.com/qobs-build/hermetic/internal/msg"
	"github.com/qobs-build/hermetic/internal/selects"
)

func project() *config.ProjectConfig {
	p := &config.ProjectConfig{}
	p.Project.Name = "mesa"
	p.Project.SoongNamePrefix = "mesa_"
	p.Project.Copyright = "Copyright 2024 The Mesa Authors\nSPDX-License-Identifier: MIT"
	return p
}

var platform = selects.CustomSelect{
	ID:      selects.Custom("mesa", "platform"),
	Values:  []string{"wayland", "x11"},
	Default: "x11",
}

func hostLabels(os, arch string, extra ...selects.SelectInstance) selects.LabelSet {
	ls := selects.NewLabelSet(selects.OS.Is(os), selects.Arch.Is(arch))
	for _, l := range extra {
		ls.Add(l)
	}
	return ls
}

// 2 OS x 2 ARCH, native targets always run on linux x86_64
var grid = []expand.Configuration{
	{Name: "linux-x86_64", Labels: hostLabels("linux", "x86_64"), NativeLabels: hostLabels("linux", "x86_64")},
	{Name: "linux-aarch64", Labels: hostLabels("linux", "aarch64"), NativeLabels: hostLabels("linux", "x86_64")},
	{Name: "android-x86_64", Labels: hostLabels("android", "x86_64"), NativeLabels: hostLabels("linux", "x86_64")},
	{Name: "android-aarch64", Labels: hostLabels("android", "aarch64"), NativeLabels: hostLabels("linux", "x86_64")},
}

// records builds what a small project extracts to under cfg: libfoo with
// a linux-only source, a generated header, a flag set, a native tool, and
// a custom target whose command differs per OS.
func records(cfg expand.Configuration) *extract.Records {
	os, _ := cfg.Labels.Value(selects.OS)
	arch, _ := cfg.Labels.Value(selects.Arch)

	cflags := []string{"-DFOO", "-I@@PROJECT_DIR@@/include"}
	srcs := []string{"bar.c"}
	if os == "linux" {
		cflags = append(cflags, "-D_GNU_SOURCE")
		srcs = append(srcs, "foo.c")
		if arch == "x86_64" {
			srcs = append(srcs, "simd.c")
		}
	}
	if cfg.Labels.Has(platform.ID.Is("wayland")) {
		srcs = append(srcs, "wayland.c")
	}

	return &extract.Records{
		Flags: []extract.Flag{{Name: "libfoo_flags", CFlags: cflags}},
		CustomTargets: []extract.CustomTarget{
			{
				Name: "table",
				Srcs: []string{"table.in"},
				Outs: []string{"table.h"},
				Command: []extract.CommandToken{
					{Kind: extract.TokenLiteral, Value: "cp"},
					{Kind: extract.TokenInput, Value: "table.in"},
					{Kind: extract.TokenOutput, Value: "table.h"},
				},
				ExportIncludeDirs: []string{"."},
			},
			{
				Name: "version",
				Outs: []string{"version.h"},
				Command: []extract.CommandToken{
					{Kind: extract.TokenLiteral, Value: "--os=" + os},
				},
				Capture: true,
			},
		},
		StaticLibraries: []extract.StaticLibrary{{BuildTarget: extract.BuildTarget{
			Name:             "libfoo",
			Srcs:             srcs,
			GeneratedHeaders: []string{"table"},
			SharedLibs:       []string{"libz"},
			Flags:            []string{"libfoo_flags"},
		}}},
		Executables: []extract.Executable{{BuildTarget: extract.BuildTarget{
			Name:       "tool",
			Srcs:       []string{"tool.c"},
			StaticLibs: []string{"libfoo"},
			Native:     true,
		}}},
	}
}

func run(t *testing.T, g Generator, configs []expand.Configuration) map[string]string {
	t.Helper()
	return runWith(t, g, configs, records)
}

func runWith(t *testing.T, g Generator, configs []expand.Configuration, recs func(expand.Configuration) *extract.Records) map[string]string {
	t.Helper()
	out := msg.Out
	msg.Out = io.Discard
	t.Cleanup(func() { msg.Out = out })

	for _, cfg := range configs {
		g.BeginConfig(cfg)
		g.AddConfig(recs(cfg))
	}
	g.Finish()
	files, err := g.Generate()
	require.NoError(t, err)

	m := make(map[string]string, len(files))
	for _, f := range files {
		m[f.Path] = f.Content
	}
	return m
}

// platforms sweeps the platform custom select on one machine
func platforms() []expand.Configuration {
	var configs []expand.Configuration
	for _, v := range platform.Values {
		ls := hostLabels("linux", "x86_64", platform.ID.Is(v))
		configs = append(configs, expand.Configuration{Name: v, Labels: ls, NativeLabels: ls})
	}
	return configs
}

// divergent builds libfoo on a shared library and a custom target that
// both differ per OS
func divergent(cfg expand.Configuration) *extract.Records {
	os, _ := cfg.Labels.Value(selects.OS)
	installDir := "@@INSTALL_DIR@@/lib/egl"
	if os == "linux" {
		installDir = "@@INSTALL_DIR@@/lib/dri"
	}
	return &extract.Records{
		CustomTargets: []extract.CustomTarget{{
			Name:    "gen",
			Outs:    []string{os + ".h"},
			Command: []extract.CommandToken{{Kind: extract.TokenOutput, Value: os + ".h"}},
		}},
		SharedLibraries: []extract.SharedLibrary{{BuildTarget: extract.BuildTarget{
			Name:       "libgl",
			Srcs:       []string{"gl.c"},
			InstallDir: installDir,
		}}},
		StaticLibraries: []extract.StaticLibrary{{BuildTarget: extract.BuildTarget{
			Name:             "libfoo",
			Srcs:             []string{"bar.c"},
			GeneratedHeaders: []string{"gen"},
			SharedLibs:       []string{"libgl", "libz"},
		}}},
	}
}

func reversed(configs []expand.Configuration) []expand.Configuration {
	out := slices.Clone(configs)
	slices.Reverse(out)
	return out
}
