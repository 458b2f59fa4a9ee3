package gen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qobs-build/hermetic/internal/selects"
)

func TestSoongGrid(t *testing.T) {
	g := NewSoongGen(project(), nil)
	files := run(t, g, grid)
	require.Len(t, files, 1)
	bp := files["Android.bp"]

	assert.Contains(t, bp, "// This file was generated by hermetic from mesa. DO NOT EDIT.\n//\n// Copyright 2024 The Mesa Authors\n// SPDX-License-Identifier: MIT\n")

	assert.Contains(t, bp, `    srcs: ["bar.c"] + select(os(), {
        "linux_glibc": ["foo.c"],
        default: [],
    }) + select((os(), arch()), {
        ("linux_glibc", "x86_64"): ["simd.c"],
        (default, default): [],
    }),
`)

	assert.Contains(t, bp, "cc_defaults {\n    name: \"mesa_libfoo_flags\",\n")
	assert.Contains(t, bp, `"-Iexternal/mesa/include"`)
	assert.Contains(t, bp, `"linux_glibc": ["-D_GNU_SOURCE"],`)

	assert.Contains(t, bp, "cc_library_static {\n    name: \"mesa_libfoo\",\n    defaults: [\"mesa_libfoo_flags\"],\n")
	assert.Contains(t, bp, `    generated_headers: ["mesa_table"],`)
	assert.Contains(t, bp, `    export_generated_headers: ["mesa_table"],`)
	assert.Contains(t, bp, `    shared_libs: ["libz"],`)

	assert.Contains(t, bp, "genrule {\n    name: \"mesa_table\",\n")
	assert.Contains(t, bp, `    cmd: "cp $(location table.in) $(genDir)/table.h",`)
	assert.Contains(t, bp, `    export_include_dirs: ["."],`)

	// the tool only ever runs on the build machine, so nothing is selected
	assert.Contains(t, bp, "cc_binary_host {\n    name: \"mesa_tool\",\n    srcs: [\"tool.c\"],\n    static_libs: [\"mesa_libfoo\"],\n}")

	assert.NotContains(t, bp, "mesa_version")
	diags := g.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, "version", diags[0].Name)
}

func TestSoongCustomSelect(t *testing.T) {
	g := NewSoongGen(project(), []selects.CustomSelect{platform})
	bp := run(t, g, platforms())["Android.bp"]

	assert.Contains(t, bp, `    srcs: [
        "bar.c",
        "foo.c",
        "simd.c",
    ] + select(soong_config_variable("mesa", "platform"), {
        "wayland": ["wayland.c"],
        default: [],
    }),
`)
	assert.Contains(t, bp, "genrule {\n    name: \"mesa_version\",\n")
	assert.Contains(t, bp, `    cmd: "--os=linux > $(out)",`)
	assert.Empty(t, g.Diagnostics())
}

func TestSoongInstallPath(t *testing.T) {
	assert.Equal(t, "dri", installSuffix("@@INSTALL_DIR@@/lib/dri", "lib"))
	assert.Equal(t, "", installSuffix("@@INSTALL_DIR@@/lib", "lib"))
	assert.Equal(t, "", installSuffix("/opt/x", "bin"))
}

func TestSoongCondition(t *testing.T) {
	assert.Equal(t, "os()", soongCondition(selects.OS))
	assert.Equal(t, "arch()", soongCondition(selects.Arch))
	assert.Equal(t, `soong_config_variable("mesa", "platform")`, soongCondition(platform.ID))
	assert.Equal(t, "arm64", soongValue(selects.Arch, "aarch64"))
	assert.Equal(t, "linux_glibc", soongValue(selects.OS, "linux"))
	assert.Equal(t, "fuchsia", soongValue(selects.OS, "fuchsia"))
}

func TestSoongDivergentTargets(t *testing.T) {
	g := NewSoongGen(project(), nil)
	bp := runWith(t, g, grid, divergent)["Android.bp"]
	again := runWith(t, NewSoongGen(project(), nil), reversed(grid), divergent)["Android.bp"]
	assert.Equal(t, bp, again)

	assert.NotContains(t, bp, "mesa_gen")
	assert.NotContains(t, bp, "mesa_libgl")
	assert.NotContains(t, bp, "relative_install_path")
	assert.NotContains(t, bp, "generated_headers")
	assert.Contains(t, bp, `    shared_libs: ["libz"],`)

	var got []string
	for _, d := range g.Diagnostics() {
		got = append(got, d.Name)
	}
	assert.Equal(t, []string{"gen", "libfoo", "libfoo", "libgl"}, got)
}
