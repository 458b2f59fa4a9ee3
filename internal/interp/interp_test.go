package interp

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qobs-build/hermetic/internal/config"
)

const rootDescription = `
subdirs = ["src"]

[variables]
warn_args = ["-Wall", "-Wextra"]

[global]
c_args = ["$warn_args", "-DVERSION=\"{{ option.version }}\""]

[global.'target_os == "linux"']
c_args = ["-D_GNU_SOURCE"]
`

const srcDescription = `
[static_library.libfoo]
sources = ["*.c"]
include_directories = ["."]
dependencies = ["zlib"]
optional_dependencies = ["expat", "idep_bar"]
install = true

[static_library.libfoo.'target_arch == "aarch64"']
sources = ["arm/neon.c"]

[executable.tool]
native = true
sources = ["tool.c"]

[executable.tool.'target_os == "darwin"']
c_args = ["-DDARWIN"]

[executable.linux_only]
condition = 'target_os == "linux"'
sources = ["tool.c"]

[custom_target.gen]
inputs = ["table.in"]
outputs = ["table.h", "table.c"]
command = ["prog:python3", "script:gen.py", "@INPUT0@", "--out-dir=@OUTDIR@", "@OUTPUT@"]

[dependency.idep_bar]
include_directories = ["."]
c_args = ["-DBAR"]
sources = ["target:gen"]
`

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func project(t *testing.T) string {
	return writeTree(t, map[string]string{
		"hermetic.toml":     rootDescription,
		"src/hermetic.toml": srcDescription,
		"src/foo.c":         "",
		"src/bar.c":         "",
		"src/tool.c":        "",
		"src/arm/neon.c":    "",
		"src/table.in":      "",
		"src/gen.py":        "",
	})
}

var (
	linuxX86 = config.Toolchain{HostMachine: config.Machine{System: "linux", CPUFamily: "x86_64"}}
	linuxArm = config.Toolchain{HostMachine: config.Machine{System: "linux", CPUFamily: "aarch64"}, CArgs: []string{"-march=armv8-a"}}
	darwin   = config.Toolchain{HostMachine: config.Machine{System: "darwin", CPUFamily: "aarch64"}}
)

func request(root string, host config.Toolchain) Request {
	return Request{
		SourceRoot: root,
		BuildRoot:  "/build",
		HostName:   "host",
		Host:       host,
		BuildName:  "build",
		Build:      linuxX86,
		Options:    map[string]any{"version": "1.0"},
		Available:  map[string]bool{"zlib": true},
	}
}

func TestEvaluate(t *testing.T) {
	root := project(t)
	g, err := NewTOML("").Evaluate(context.Background(), request(root, linuxX86))
	require.NoError(t, err)

	assert.Equal(t, []Arg{
		{Value: "-Wall", Var: "warn_args"},
		{Value: "-Wextra", Var: "warn_args"},
		{Value: `-DVERSION="1.0"`},
		{Value: "-D_GNU_SOURCE"},
	}, g.Global.C)
	assert.Len(t, g.Files, 2)

	src := filepath.Join(root, "src")
	foo, ok := g.Target("libfoo")
	require.True(t, ok)
	assert.Equal(t, StaticLibrary, foo.Kind)
	assert.Equal(t, "src", foo.Subdir)
	assert.Equal(t, []string{
		filepath.Join(src, "bar.c"),
		filepath.Join(src, "foo.c"),
		filepath.Join(src, "tool.c"),
	}, foo.Sources)
	assert.Equal(t, []string{src, filepath.Join("/build", "src")}, foo.IncludeDirs)
	assert.Equal(t, []string{"zlib", "idep_bar"}, foo.Dependencies, "missing optional dependencies are skipped")
	assert.Equal(t, filepath.Join("/usr/local", "lib"), foo.InstallDir)

	_, ok = g.Target("linux_only")
	assert.True(t, ok)

	gen, ok := g.Target("gen")
	require.True(t, ok)
	want := []CommandArg{
		{Kind: ArgProgram, Value: "python3"},
		{Kind: ArgScript, Value: filepath.Join(src, "gen.py")},
		{Kind: ArgInput, Value: filepath.Join(src, "table.in")},
		{Kind: ArgString, Value: "--out-dir=" + filepath.Join("/build", "src")},
		{Kind: ArgOutput, Value: filepath.Join("/build", "src", "table.h")},
		{Kind: ArgOutput, Value: filepath.Join("/build", "src", "table.c")},
	}
	if diff := cmp.Diff(want, gen.Command); diff != "" {
		t.Errorf("command (-want +got):\n%s", diff)
	}

	bar := g.Dependencies["idep_bar"]
	require.NotNil(t, bar)
	assert.Equal(t, []string{"gen"}, bar.GeneratedSources)
	assert.Equal(t, []Arg{{Value: "-DBAR"}}, bar.Args.C)
}

func TestEvaluateConditions(t *testing.T) {
	root := project(t)

	g, err := NewTOML("").Evaluate(context.Background(), request(root, linuxArm))
	require.NoError(t, err)
	foo, _ := g.Target("libfoo")
	assert.Contains(t, foo.Sources, filepath.Join(root, "src", "arm", "neon.c"))
	assert.Equal(t, Arg{Value: "-march=armv8-a", Var: "toolchain_args"}, g.Global.C[0])

	g, err = NewTOML("").Evaluate(context.Background(), request(root, darwin))
	require.NoError(t, err)
	_, ok := g.Target("linux_only")
	assert.False(t, ok)
	assert.NotContains(t, g.Global.C, Arg{Value: "-D_GNU_SOURCE"})

	// native targets see the build machine, not the host
	tool, ok := g.Target("tool")
	require.True(t, ok)
	assert.True(t, tool.Native)
	assert.Empty(t, tool.Args.C)
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"missing root", map[string]string{"other.toml": ""}},
		{"undefined variable", map[string]string{"hermetic.toml": "[global]\nc_args = [\"$nope\"]\n"}},
		{"missing source", map[string]string{"hermetic.toml": "[executable.a]\nsources = [\"a.c\"]\n"}},
		{"duplicate name", map[string]string{
			"hermetic.toml": "[executable.a]\nsources = [\"a.c\"]\n[static_library.a]\nsources = [\"a.c\"]\n",
			"a.c":           "",
		}},
		{"bad expression", map[string]string{"hermetic.toml": "[global]\nc_args = [\"{{ nope( }}\"]\n"}},
		{"unknown section", map[string]string{"hermetic.toml": "[library.a]\n"}},
		{"unknown field", map[string]string{"hermetic.toml": "[executable.a]\nsauces = []\n"}},
		{"bad placeholder", map[string]string{
			"hermetic.toml": "[custom_target.g]\noutputs = [\"x\"]\ncommand = [\"prog:cp\", \"@INPUT3@\"]\n",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := writeTree(t, tt.files)
			_, err := NewTOML("").Evaluate(context.Background(), request(root, linuxX86))
			assert.ErrorIs(t, err, ErrEvaluation)
		})
	}
}

func TestEvaluateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTOML("").Evaluate(ctx, request(project(t), linuxX86))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConditionalVariables(t *testing.T) {
	var vars map[string][]string
	require.NoError(t, unmarshalConditionalSection(
		map[string]any{
			"a":     []any{"0"},
			"true":  map[string]any{"a": []any{"2"}, "b": []any{"3"}},
			"false": map[string]any{"a": []any{"4"}},
		},
		"variables", &vars, Env{},
	))
	assert.Equal(t, map[string][]string{"a": {"0", "2"}, "b": {"3"}}, vars)
}

func TestMergeValues(t *testing.T) {
	dst := targetSection{Sources: []string{"a.c"}, Install: true}
	src := targetSection{Sources: []string{"b.c"}, InstallDir: "lib64"}
	require.NoError(t, mergeValues(reflect.ValueOf(&dst).Elem(), reflect.ValueOf(src)))
	assert.Equal(t, targetSection{Sources: []string{"a.c", "b.c"}, Install: true, InstallDir: "lib64"}, dst)
}
