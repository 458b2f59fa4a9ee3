// Package interp evaluates a project's build description under one
// configuration and returns the raw target graph.
package interp

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/qobs-build/hermetic/internal/config"
)

var ErrEvaluation = errors.New("failed to evaluate build description")

// Request is everything one evaluation depends on
type Request struct {
	SourceRoot string
	// BuildRoot defaults to a directory under the system temp dir. Nothing is
	// written there.
	BuildRoot string

	HostName  string
	Host      config.Toolchain
	BuildName string
	Build     config.Toolchain

	Options map[string]any
	// Available lists the external dependencies that can be resolved
	Available map[string]bool
}

// Interpreter turns a build description into a target graph. Evaluate must
// be a pure function of the request: implementations keep no state between
// calls, so callers may evaluate several configurations at once.
type Interpreter interface {
	Evaluate(ctx context.Context, req Request) (*Graph, error)
}

// TOML interprets description files written in TOML, one per directory.
type TOML struct {
	// FileName is the description file looked up in every directory
	FileName string
}

func NewTOML(fileName string) *TOML {
	if fileName == "" {
		fileName = config.DefaultDescriptionFile
	}
	return &TOML{FileName: fileName}
}

type rawFile struct {
	subdir string
	path   string
	raw    map[string]any
}

// evaluation is the state of one Evaluate call
type evaluation struct {
	graph     *Graph
	hostEnv   Env
	nativeEnv Env
	vars      map[string][]string
	seen      map[string]string // target name -> subdir
}

func (ti *TOML) Evaluate(ctx context.Context, req Request) (*Graph, error) {
	if req.SourceRoot == "" {
		return nil, fmt.Errorf("%w: no source root", ErrEvaluation)
	}
	sourceRoot, err := filepath.Abs(req.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}
	buildRoot := req.BuildRoot
	if buildRoot == "" {
		buildRoot = filepath.Join(os.TempDir(), "hermetic-build")
	}
	prefix := "/usr/local"
	if p, ok := req.Options["prefix"].(string); ok && p != "" {
		prefix = p
	}

	files, err := ti.readTree(ctx, sourceRoot)
	if err != nil {
		return nil, err
	}

	// dep.<name> is true for every resolvable external dependency and for
	// every dependency the project declares itself
	deps := maps.Clone(req.Available)
	if deps == nil {
		deps = make(map[string]bool)
	}
	for _, f := range files {
		if table, ok := f.raw["dependency"].(map[string]any); ok {
			for name := range table {
				deps[name] = true
			}
		}
	}

	ev := &evaluation{
		graph: &Graph{
			SourceRoot:    sourceRoot,
			BuildRoot:     buildRoot,
			InstallPrefix: prefix,
			Dependencies:  make(map[string]*Dependency),
		},
		hostEnv:   newEnv(req.HostName, req.Host, false, req.Options, deps),
		nativeEnv: newEnv(req.BuildName, req.Build, true, req.Options, deps),
		vars:      make(map[string][]string),
		seen:      make(map[string]string),
	}
	ev.graph.Global.C = plainArgs(req.Host.CArgs, "toolchain_args")
	ev.graph.Global.Cpp = plainArgs(req.Host.CppArgs, "toolchain_args")
	ev.graph.Global.Link = plainArgs(req.Host.LinkArgs, "toolchain_args")

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := ev.evaluateFile(f); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrEvaluation, f.path, err)
		}
		ev.graph.Files = append(ev.graph.Files, f.path)
	}
	return ev.graph, nil
}

// readTree parses the description of the root directory and, depth first,
// of every subdirectory it lists.
func (ti *TOML) readTree(ctx context.Context, sourceRoot string) ([]rawFile, error) {
	var files []rawFile
	visited := make(map[string]bool)

	var visit func(subdir string) error
	visit = func(subdir string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if visited[subdir] {
			return fmt.Errorf("%w: directory %q is visited twice", ErrEvaluation, subdir)
		}
		visited[subdir] = true

		p := filepath.Join(joinAbs(sourceRoot, subdir), ti.FileName)
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEvaluation, err)
		}
		raw, err := parseDescription(data)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrEvaluation, p, err)
		}
		files = append(files, rawFile{subdir: subdir, path: p, raw: raw})

		list, _ := raw["subdirs"].([]any)
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("%w: %s: subdirs must be strings", ErrEvaluation, p)
			}
			if err := visit(path.Join(subdir, s)); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visit(""); err != nil {
		return nil, err
	}
	return files, nil
}

func (ev *evaluation) evaluateFile(f rawFile) error {
	env := ev.hostEnv

	processed := make(map[string]any, len(f.raw))
	for key, val := range f.raw {
		if _, isTarget := targetTables[key]; isTarget || key == "dependency" {
			processed[key] = val
			continue
		}
		v, err := processExpressions(val, env)
		if err != nil {
			return err
		}
		processed[key] = v
	}

	desc, err := splitDescription(processed, env)
	if err != nil {
		return err
	}

	maps.Copy(ev.vars, desc.Variables)
	global, err := ev.expandArgs(desc.Global.CArgs, desc.Global.CppArgs, desc.Global.LinkArgs)
	if err != nil {
		return fmt.Errorf("[global]: %w", err)
	}
	ev.graph.Global.Append(global)

	for _, name := range slices.Sorted(maps.Keys(desc.Dependencies)) {
		if err := ev.evaluateDependency(f.subdir, name, desc.Dependencies[name]); err != nil {
			return fmt.Errorf("[dependency.%s]: %w", name, err)
		}
	}

	for _, kind := range []Kind{CustomTarget, PythonBinary, StaticLibrary, SharedLibrary, Executable} {
		tables := desc.Targets[kind]
		for _, name := range slices.Sorted(maps.Keys(tables)) {
			if err := ev.evaluateTarget(f.subdir, kind, name, tables[name]); err != nil {
				return fmt.Errorf("[%s.%s]: %w", kind, name, err)
			}
		}
	}
	return nil
}

func (ev *evaluation) claim(name, subdir string) error {
	if prev, ok := ev.seen[name]; ok {
		return fmt.Errorf("name %q is already used in %q", name, prev)
	}
	ev.seen[name] = subdir
	return nil
}

func (ev *evaluation) evaluateDependency(subdir, name string, table map[string]any) error {
	env := ev.hostEnv
	processed, err := processExpressions(table, env)
	if err != nil {
		return err
	}
	var sec dependencySection
	if err := unmarshalConditionalSection(processed, "dependency."+name, &sec, env); err != nil {
		return err
	}
	if sec.Condition != "" {
		ok, err := env.Eval(sec.Condition)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	if err := ev.claim(name, subdir); err != nil {
		return err
	}

	args, err := ev.expandArgs(sec.CArgs, sec.CppArgs, sec.LinkArgs)
	if err != nil {
		return err
	}
	srcs, generated, err := ev.resolveSources(subdir, sec.Sources)
	if err != nil {
		return err
	}
	if len(srcs) > 0 {
		return fmt.Errorf("dependency sources must be generated (target:<name>), got %q", srcs[0])
	}

	ev.graph.Dependencies[name] = &Dependency{
		Name:             name,
		Subdir:           subdir,
		IncludeDirs:      ev.includeDirs(subdir, sec.IncludeDirectories),
		Args:             args,
		LinkWith:         sec.LinkWith,
		LinkWhole:        sec.LinkWhole,
		Dependencies:     sec.Dependencies,
		GeneratedSources: generated,
	}
	return nil
}

func (ev *evaluation) evaluateTarget(subdir string, kind Kind, name string, table map[string]any) error {
	native, _ := table["native"].(bool)
	env := ev.hostEnv
	if native {
		env = ev.nativeEnv
	}

	processed, err := processExpressions(table, env)
	if err != nil {
		return err
	}
	var sec targetSection
	if err := unmarshalConditionalSection(processed, kind.String()+"."+name, &sec, env); err != nil {
		return err
	}
	if sec.Condition != "" {
		ok, err := env.Eval(sec.Condition)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	if err := ev.claim(name, subdir); err != nil {
		return err
	}

	t := &Target{
		Name:      name,
		Subdir:    subdir,
		Kind:      kind,
		Native:    native,
		LinkWith:  sec.LinkWith,
		LinkWhole: sec.LinkWhole,
		Install:   sec.Install || sec.InstallDir != "",
		Capture:   sec.Capture,
	}

	t.Sources, t.GeneratedSources, err = ev.resolveSources(subdir, sec.Sources)
	if err != nil {
		return err
	}
	t.IncludeDirs = ev.includeDirs(subdir, sec.IncludeDirectories)
	t.Args, err = ev.expandArgs(sec.CArgs, sec.CppArgs, sec.LinkArgs)
	if err != nil {
		return err
	}

	t.Dependencies = append(t.Dependencies, sec.Dependencies...)
	for _, dep := range sec.OptionalDependencies {
		if env.Dep[dep] {
			t.Dependencies = append(t.Dependencies, dep)
		}
	}

	if t.Install {
		dir := sec.InstallDir
		if dir == "" {
			dir = defaultInstallDir(kind)
		}
		t.InstallDir = joinAbs(ev.graph.InstallPrefix, dir)
	}

	switch kind {
	case CustomTarget:
		if err := ev.customCommand(t, sec); err != nil {
			return err
		}
	case PythonBinary:
		if sec.Main == "" {
			return errors.New("python_binary needs a main script")
		}
		t.Main = joinAbs(joinAbs(ev.graph.SourceRoot, subdir), sec.Main)
	}

	ev.graph.Targets = append(ev.graph.Targets, t)
	return nil
}

func defaultInstallDir(kind Kind) string {
	switch kind {
	case Executable, PythonBinary:
		return "bin"
	case CustomTarget:
		return "share"
	default:
		return "lib"
	}
}

// customCommand resolves the inputs, outputs and command line of a custom
// target.
func (ev *evaluation) customCommand(t *Target, sec targetSection) error {
	srcDir := joinAbs(ev.graph.SourceRoot, t.Subdir)
	genDir := ev.graph.GenDir(t.Subdir)

	var inputs []CommandArg
	for _, in := range sec.Inputs {
		if name, ok := strings.CutPrefix(in, "target:"); ok {
			t.GeneratedSources = append(t.GeneratedSources, name)
			inputs = append(inputs, CommandArg{Kind: ArgGenerated, Value: name})
			continue
		}
		matches, err := glob(srcDir, in)
		if err != nil {
			return err
		}
		for _, m := range matches {
			t.Inputs = append(t.Inputs, m)
			inputs = append(inputs, CommandArg{Kind: ArgInput, Value: m})
		}
	}

	if len(sec.Outputs) == 0 {
		return errors.New("custom_target needs at least one output")
	}
	var outputs []CommandArg
	for _, out := range sec.Outputs {
		if strings.ContainsRune(out, '/') {
			return fmt.Errorf("output %q must be a plain file name", out)
		}
		p := filepath.Join(genDir, out)
		t.Outputs = append(t.Outputs, p)
		outputs = append(outputs, CommandArg{Kind: ArgOutput, Value: p})
	}

	if len(sec.Command) == 0 {
		return errors.New("custom_target needs a command")
	}
	replacer := strings.NewReplacer(
		"@OUTDIR@", genDir,
		"@CURRENT_SOURCE_DIR@", srcDir,
		"@SOURCE_ROOT@", ev.graph.SourceRoot,
		"@BUILD_ROOT@", ev.graph.BuildRoot,
	)
	for _, arg := range sec.Command {
		switch {
		case arg == "@INPUT@":
			t.Command = append(t.Command, inputs...)
		case arg == "@OUTPUT@":
			t.Command = append(t.Command, outputs...)
		case arg == "@DEPFILE@":
			t.Command = append(t.Command, CommandArg{Kind: ArgDepfile})
		case arg == "@PRIVATE_DIR@":
			t.Command = append(t.Command, CommandArg{Kind: ArgPrivateDir})
		case strings.HasPrefix(arg, "@INPUT") && strings.HasSuffix(arg, "@"):
			a, err := indexed(inputs, arg, "@INPUT")
			if err != nil {
				return err
			}
			t.Command = append(t.Command, a)
		case strings.HasPrefix(arg, "@OUTPUT") && strings.HasSuffix(arg, "@"):
			a, err := indexed(outputs, arg, "@OUTPUT")
			if err != nil {
				return err
			}
			t.Command = append(t.Command, a)
		case strings.HasPrefix(arg, "prog:"):
			t.Command = append(t.Command, CommandArg{Kind: ArgProgram, Value: arg[len("prog:"):]})
		case strings.HasPrefix(arg, "script:"):
			t.Command = append(t.Command, CommandArg{Kind: ArgScript, Value: joinAbs(srcDir, arg[len("script:"):])})
		case strings.HasPrefix(arg, "target:"):
			t.Command = append(t.Command, CommandArg{Kind: ArgGenerated, Value: arg[len("target:"):]})
		default:
			t.Command = append(t.Command, CommandArg{Kind: ArgString, Value: replacer.Replace(arg)})
		}
	}
	return nil
}

func indexed(list []CommandArg, arg, prefix string) (CommandArg, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(arg[len(prefix):], "@"))
	if err != nil {
		return CommandArg{}, fmt.Errorf("malformed placeholder %q", arg)
	}
	if n < 0 || n >= len(list) {
		return CommandArg{}, fmt.Errorf("placeholder %q is out of range (have %d)", arg, len(list))
	}
	return list[n], nil
}

// resolveSources splits source entries into files (globbed, absolute) and
// references to custom target outputs.
func (ev *evaluation) resolveSources(subdir string, entries []string) (files, generated []string, err error) {
	srcDir := joinAbs(ev.graph.SourceRoot, subdir)
	for _, s := range entries {
		if name, ok := strings.CutPrefix(s, "target:"); ok {
			generated = append(generated, name)
			continue
		}
		matches, err := glob(srcDir, s)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, matches...)
	}
	return files, generated, nil
}

// includeDirs returns each include directory twice, for the source tree and
// for the build tree, the way a compiler would see them.
func (ev *evaluation) includeDirs(subdir string, dirs []string) []string {
	out := make([]string, 0, 2*len(dirs))
	for _, d := range dirs {
		rel := path.Join(subdir, d)
		out = append(out, joinAbs(ev.graph.SourceRoot, rel), joinAbs(ev.graph.BuildRoot, rel))
	}
	return out
}

func (ev *evaluation) expandArgs(c, cpp, link []string) (Args, error) {
	var args Args
	var err error
	if args.C, err = ev.expand(c); err != nil {
		return Args{}, err
	}
	if args.Cpp, err = ev.expand(cpp); err != nil {
		return Args{}, err
	}
	if args.Link, err = ev.expand(link); err != nil {
		return Args{}, err
	}
	return args, nil
}

// expand replaces $name entries with the values of the named variable
func (ev *evaluation) expand(list []string) ([]Arg, error) {
	var out []Arg
	for _, item := range list {
		if name, ok := strings.CutPrefix(item, "$"); ok && name != "" && !strings.HasPrefix(name, "$") {
			values, ok := ev.vars[name]
			if !ok {
				return nil, fmt.Errorf("undefined variable %q", name)
			}
			for _, v := range values {
				out = append(out, Arg{Value: v, Var: name})
			}
			continue
		}
		out = append(out, Arg{Value: strings.TrimPrefix(item, "$")})
	}
	return out, nil
}

func plainArgs(values []string, variable string) []Arg {
	out := make([]Arg, len(values))
	for i, v := range values {
		out[i] = Arg{Value: v, Var: variable}
	}
	return out
}

// glob expands one source pattern relative to dir. A pattern without
// matches is an error, like a missing file.
func glob(dir, pattern string) ([]string, error) {
	full := filepath.ToSlash(filepath.Join(dir, filepath.FromSlash(pattern)))
	base, pat := doublestar.SplitPattern(full)
	matches, err := doublestar.Glob(os.DirFS(base), pat, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%q matches no files in %s", pattern, dir)
	}
	slices.Sort(matches)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = filepath.Join(filepath.FromSlash(base), filepath.FromSlash(m))
	}
	return out, nil
}

func joinAbs(root, rel string) string {
	if rel == "" {
		return root
	}
	return filepath.Join(root, filepath.FromSlash(rel))
}
