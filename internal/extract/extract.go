// Package extract normalizes the raw target graph of one configuration into
// configuration independent instance records.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/qobs-build/hermetic/internal/config"
	"github.com/qobs-build/hermetic/internal/expand"
	"github.com/qobs-build/hermetic/internal/interp"
)

var (
	ErrDependencyNotFound = errors.New("dependency not found")
	ErrUnrecognized       = errors.New("unrecognized construct")
)

// GlobalFlagsName names the flag set holding global arguments that were not
// assigned to a variable.
const GlobalFlagsName = "global_flags"

type Extractor struct {
	interp     interp.Interpreter
	project    *config.ProjectConfig
	deps       *config.DependencyTable
	sourceRoot string
	available  map[string]bool
}

func New(in interp.Interpreter, b *config.Bundle, sourceRoot string) *Extractor {
	available := make(map[string]bool)
	for _, d := range b.Dependencies.All() {
		available[d.Name] = true
	}
	return &Extractor{
		interp:     in,
		project:    b.Project,
		deps:       b.Dependencies,
		sourceRoot: sourceRoot,
		available:  available,
	}
}

// Extract evaluates the project under cfg and normalizes the result.
func (e *Extractor) Extract(ctx context.Context, cfg expand.Configuration) (*Records, error) {
	g, err := e.interp.Evaluate(ctx, interp.Request{
		SourceRoot: e.sourceRoot,
		HostName:   cfg.HostToolchain,
		Host:       cfg.Host,
		BuildName:  cfg.BuildToolchain,
		Build:      cfg.Build,
		Options:    cfg.Options,
		Available:  e.available,
	})
	if err != nil {
		return nil, fmt.Errorf("configuration %s: %w", cfg.Name, err)
	}
	recs, err := e.Normalize(g)
	if err != nil {
		return nil, fmt.Errorf("configuration %s: %w", cfg.Name, err)
	}
	return recs, nil
}

// genRefs are the records a reference to a custom target resolves to
type genRefs struct {
	headers []string
	sources []string
}

func (r genRefs) all() []string {
	return appendUnique(append([]string{}, r.headers...), r.sources...)
}

type normalizer struct {
	*Extractor
	g           *interp.Graph
	san         *sanitizer
	recs        *Records
	splits      map[string]genRefs
	globalFlags []string
}

// Normalize turns a raw graph into records. It is a pure function of the
// graph and the project configuration.
func (e *Extractor) Normalize(g *interp.Graph) (*Records, error) {
	n := &normalizer{
		Extractor: e,
		g:         g,
		san:       newSanitizer(g),
		recs:      &Records{},
		splits:    make(map[string]genRefs),
	}

	gb := newBucketer(n.san, GlobalFlagsName, "", true, nil)
	gb.addArgs(g.Global)
	for _, f := range gb.flags() {
		n.recs.addFlag(f)
		n.globalFlags = append(n.globalFlags, f.Name)
	}

	for _, t := range g.Targets {
		if t.Kind == interp.CustomTarget {
			n.splits[t.Name] = n.splitRefs(t)
		}
	}

	for _, t := range g.Targets {
		var err error
		switch t.Kind {
		case interp.CustomTarget:
			err = n.customTarget(t)
		case interp.PythonBinary:
			err = n.pythonBinary(t)
		case interp.StaticLibrary:
			var bt BuildTarget
			if bt, err = n.buildTarget(t); err == nil {
				n.recs.StaticLibraries = append(n.recs.StaticLibraries, StaticLibrary{bt})
			}
		case interp.SharedLibrary:
			var bt BuildTarget
			if bt, err = n.buildTarget(t); err == nil {
				n.recs.SharedLibraries = append(n.recs.SharedLibraries, SharedLibrary{bt})
			}
		case interp.Executable:
			var bt BuildTarget
			if bt, err = n.buildTarget(t); err == nil {
				n.recs.Executables = append(n.recs.Executables, Executable{bt})
			}
		default:
			err = fmt.Errorf("%w: target kind %s", ErrUnrecognized, t.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", t.Kind, t.Name, err)
		}
	}
	return n.recs, nil
}

func (n *normalizer) name(raw string) string {
	if renamed, ok := n.project.Project.Rename[raw]; ok {
		return renamed
	}
	return raw
}

func (n *normalizer) installDir(t *interp.Target) string {
	if t.InstallDir == "" {
		return ""
	}
	return n.san.Sanitize(t.InstallDir)
}

// splitRefs decides whether a custom target is split into a headers and an
// impl part.
func (n *normalizer) splitRefs(t *interp.Target) genRefs {
	name := n.name(t.Name)
	var headers, others int
	for _, out := range t.Outputs {
		if isHeader(out) {
			headers++
		} else {
			others++
		}
	}
	switch {
	case headers == 0:
		return genRefs{sources: []string{name}}
	case others == 0:
		return genRefs{headers: []string{name}}
	case n.project.Project.Workarounds[t.Name].NoSplit:
		return genRefs{headers: []string{name}, sources: []string{name}}
	default:
		return genRefs{headers: []string{name + "_headers"}, sources: []string{name + "_impl"}}
	}
}

func (n *normalizer) generated(name string) (genRefs, error) {
	refs, ok := n.splits[name]
	if !ok {
		return genRefs{}, fmt.Errorf("%w: no custom target named %q", ErrDependencyNotFound, name)
	}
	return refs, nil
}

func (n *normalizer) customTarget(t *interp.Target) error {
	ct := CustomTarget{
		Name:       n.name(t.Name),
		Subdir:     t.Subdir,
		Capture:    t.Capture,
		Native:     t.Native,
		InstallDir: n.installDir(t),
	}

	for _, in := range t.Inputs {
		ref, err := n.inputRef(ct.Name, t.Subdir, in)
		if err != nil {
			return err
		}
		ct.Srcs = appendUnique(ct.Srcs, ref)
	}
	for _, name := range t.GeneratedSources {
		refs, err := n.generated(name)
		if err != nil {
			return err
		}
		for _, r := range refs.all() {
			ct.Srcs = appendUnique(ct.Srcs, Ref(r))
		}
	}
	for _, out := range t.Outputs {
		ct.Outs = append(ct.Outs, filepath.Base(out))
	}

	for _, arg := range t.Command {
		switch arg.Kind {
		case interp.ArgString:
			ct.Command = append(ct.Command, CommandToken{Kind: TokenLiteral, Value: n.san.SanitizeIn(arg.Value, t.Subdir)})
		case interp.ArgInput:
			ref, err := n.inputRef(ct.Name, t.Subdir, arg.Value)
			if err != nil {
				return err
			}
			ct.Srcs = appendUnique(ct.Srcs, ref)
			ct.Command = append(ct.Command, CommandToken{Kind: TokenInput, Value: ref})
		case interp.ArgGenerated:
			refs, err := n.generated(arg.Value)
			if err != nil {
				return err
			}
			for _, r := range refs.all() {
				ct.Srcs = appendUnique(ct.Srcs, Ref(r))
				ct.Command = append(ct.Command, CommandToken{Kind: TokenGenerated, Value: r})
			}
		case interp.ArgOutput:
			ct.Command = append(ct.Command, CommandToken{Kind: TokenOutput, Value: filepath.Base(arg.Value)})
		case interp.ArgProgram:
			tool, err := n.tool(arg.Value)
			if err != nil {
				return err
			}
			ct.Tools = appendUnique(ct.Tools, tool)
			ct.Command = append(ct.Command, CommandToken{Kind: TokenTool, Value: tool})
		case interp.ArgScript:
			py, err := n.script(arg.Value)
			if err != nil {
				return err
			}
			ct.Tools = appendUnique(ct.Tools, py)
			ct.Command = append(ct.Command, CommandToken{Kind: TokenScript, Value: py})
		default:
			return fmt.Errorf("%w: command argument of kind %s", ErrUnrecognized, arg.Kind)
		}
	}

	workaround := n.project.Project.Workarounds[t.Name]
	refs := n.splits[t.Name]
	if len(refs.headers) == 1 && len(refs.sources) == 1 && refs.headers[0] != refs.sources[0] {
		headers, impl := ct, ct
		headers.Name, impl.Name = refs.headers[0], refs.sources[0]
		headers.Outs, impl.Outs = nil, nil
		for _, out := range ct.Outs {
			if isHeader(out) {
				headers.Outs = append(headers.Outs, out)
			} else {
				impl.Outs = append(impl.Outs, out)
			}
		}
		headers.ExportIncludeDirs = exportDirs(headers.Outs, workaround)
		impl.ExportIncludeDirs = nil
		n.recs.CustomTargets = append(n.recs.CustomTargets, headers, impl)
		return nil
	}

	ct.ExportIncludeDirs = exportDirs(ct.Outs, workaround)
	n.recs.CustomTargets = append(n.recs.CustomTargets, ct)
	return nil
}

// exportDirs returns the include dirs a custom target exports: the
// workaround's, or its own output dir when it generates headers.
func exportDirs(outs []string, w config.CustomTargetWorkaround) []string {
	if len(w.ExportIncludeDirs) > 0 {
		return append([]string{}, w.ExportIncludeDirs...)
	}
	for _, out := range outs {
		if isHeader(out) {
			return []string{"."}
		}
	}
	return nil
}

// inputRef returns how a custom target in subdir refers to one input file.
// Files of other directories get a single file group each so the command
// can still address them one by one.
func (n *normalizer) inputRef(owner, subdir, abs string) (string, error) {
	if rel, ok := n.san.relToSubdir(abs, subdir); ok {
		return rel, nil
	}
	prel, ok := n.san.projectRel(abs)
	if !ok {
		return "", fmt.Errorf("%w: input %q is outside the project", ErrUnrecognized, abs)
	}
	dir, base := splitRel(prel)
	name := owner + "_" + slug(base)
	n.recs.addFileGroup(FileGroup{Name: name, Subdir: dir, Srcs: []string{base}})
	return Ref(name), nil
}

func splitRel(rel string) (dir, base string) {
	dir, base = path.Split(rel)
	return strings.TrimSuffix(dir, "/"), base
}

// tool resolves a program name: a project executable or python binary, or
// a program from the dependency table.
func (n *normalizer) tool(name string) (string, error) {
	if t, ok := n.g.Target(name); ok {
		if t.Kind != interp.Executable && t.Kind != interp.PythonBinary {
			return "", fmt.Errorf("%w: %s %q cannot be run", ErrUnrecognized, t.Kind, name)
		}
		return n.name(name), nil
	}
	dep, ok := n.deps.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: program %q", ErrDependencyNotFound, name)
	}
	if dep.Kind != config.Program {
		return "", fmt.Errorf("%w: %q is listed in %s, not programs", ErrUnrecognized, name, dep.Kind)
	}
	return dep.TargetName, nil
}

// script wraps a python script into a python binary and returns its name
func (n *normalizer) script(abs string) (string, error) {
	rel, ok := n.san.projectRel(abs)
	if !ok {
		return "", fmt.Errorf("%w: script %q is outside the project", ErrUnrecognized, abs)
	}
	dir, base := splitRel(rel)
	name := n.name(slug(strings.TrimSuffix(rel, ".py")))
	n.recs.addPythonTarget(PythonTarget{Name: name, Subdir: dir, Main: base, Srcs: []string{base}})
	return name, nil
}

func (n *normalizer) pythonBinary(t *interp.Target) error {
	main, ok := n.san.relToSubdir(t.Main, t.Subdir)
	if !ok {
		return fmt.Errorf("%w: main script %q is outside %q", ErrUnrecognized, t.Main, t.Subdir)
	}
	py := PythonTarget{Name: n.name(t.Name), Subdir: t.Subdir, Main: main}
	for _, src := range t.Sources {
		rel, ok := n.san.relToSubdir(src, t.Subdir)
		if !ok {
			return fmt.Errorf("%w: python source %q is outside %q", ErrUnrecognized, src, t.Subdir)
		}
		py.Srcs = appendUnique(py.Srcs, rel)
	}
	py.Srcs = appendUnique(py.Srcs, main)
	n.recs.addPythonTarget(py)
	return nil
}

// sources returns the target's own files and one file group reference per
// foreign directory.
func (n *normalizer) sources(owner string, t *interp.Target) ([]string, error) {
	var srcs []string
	foreign := make(map[string][]string)
	var dirs []string
	for _, abs := range t.Sources {
		if rel, ok := n.san.relToSubdir(abs, t.Subdir); ok {
			srcs = appendUnique(srcs, rel)
			continue
		}
		prel, ok := n.san.projectRel(abs)
		if !ok {
			return nil, fmt.Errorf("%w: source %q is outside the project", ErrUnrecognized, abs)
		}
		dir, base := splitRel(prel)
		if _, seen := foreign[dir]; !seen {
			dirs = append(dirs, dir)
		}
		foreign[dir] = append(foreign[dir], base)
	}
	for _, dir := range dirs {
		name := owner + "_files"
		if len(dirs) > 1 {
			name += "_" + slug(dir)
		}
		n.recs.addFileGroup(FileGroup{Name: name, Subdir: dir, Srcs: foreign[dir]})
		srcs = append(srcs, Ref(name))
	}
	return srcs, nil
}

// includeDir returns the IncludeDirectory for a project directory. Build
// tree directories yield "": generated headers arrive through custom
// targets instead.
func (n *normalizer) includeDir(abs string) (string, error) {
	if _, ok := n.san.buildRel(abs); ok {
		return "", nil
	}
	rel, ok := n.san.projectRel(abs)
	if !ok {
		return "", fmt.Errorf("%w: include directory %q is outside the project", ErrUnrecognized, abs)
	}
	name := n.name("inc_" + slug(rel))
	n.recs.addIncludeDirectory(IncludeDirectory{Name: name, Subdir: rel, Dirs: []string{"."}})
	return name, nil
}

// linkage holds what a target pulls in through link_with and dependencies
type linkage struct {
	bt       *BuildTarget
	visited  map[string]bool
	provided map[string]bool
}

func (n *normalizer) buildTarget(t *interp.Target) (BuildTarget, error) {
	bt := BuildTarget{
		Name:       n.name(t.Name),
		Subdir:     t.Subdir,
		Native:     t.Native,
		InstallDir: n.installDir(t),
	}

	var err error
	if bt.Srcs, err = n.sources(bt.Name, t); err != nil {
		return BuildTarget{}, err
	}

	l := &linkage{bt: &bt, visited: make(map[string]bool), provided: make(map[string]bool)}
	bt.Flags = append(bt.Flags, n.globalFlags...)
	if err := n.link(l, t.GeneratedSources, t.IncludeDirs, t.LinkWith, t.LinkWhole); err != nil {
		return BuildTarget{}, err
	}
	for _, dep := range t.Dependencies {
		if err := n.dependency(l, dep); err != nil {
			return BuildTarget{}, err
		}
	}

	b := newBucketer(n.san, bt.Name+"_flags", t.Subdir, false, l.provided)
	b.addArgs(t.Args)
	for _, f := range b.flags() {
		n.recs.addFlag(f)
		bt.Flags = appendUnique(bt.Flags, f.Name)
	}
	return bt, nil
}

func (n *normalizer) link(l *linkage, generated, includeDirs, linkWith, linkWhole []string) error {
	for _, name := range generated {
		refs, err := n.generated(name)
		if err != nil {
			return err
		}
		l.bt.GeneratedHeaders = appendUnique(l.bt.GeneratedHeaders, refs.headers...)
		l.bt.GeneratedSources = appendUnique(l.bt.GeneratedSources, refs.sources...)
	}
	for _, dir := range includeDirs {
		name, err := n.includeDir(dir)
		if err != nil {
			return err
		}
		if name != "" {
			l.bt.HeaderLibs = appendUnique(l.bt.HeaderLibs, name)
		}
	}
	for _, name := range linkWith {
		t, ok := n.g.Target(name)
		if !ok {
			return fmt.Errorf("%w: link_with %q", ErrDependencyNotFound, name)
		}
		switch t.Kind {
		case interp.StaticLibrary:
			l.bt.StaticLibs = appendUnique(l.bt.StaticLibs, n.name(name))
		case interp.SharedLibrary:
			l.bt.SharedLibs = appendUnique(l.bt.SharedLibs, n.name(name))
		default:
			return fmt.Errorf("%w: cannot link with %s %q", ErrUnrecognized, t.Kind, name)
		}
	}
	for _, name := range linkWhole {
		t, ok := n.g.Target(name)
		if !ok {
			return fmt.Errorf("%w: link_whole %q", ErrDependencyNotFound, name)
		}
		if t.Kind != interp.StaticLibrary {
			return fmt.Errorf("%w: link_whole needs a static library, %q is a %s", ErrUnrecognized, name, t.Kind)
		}
		l.bt.WholeStaticLibs = appendUnique(l.bt.WholeStaticLibs, n.name(name))
	}
	return nil
}

// dependency routes one dependency: declared ones contribute their own
// flags and links recursively, external ones go through the table.
func (n *normalizer) dependency(l *linkage, name string) error {
	if l.visited[name] {
		return nil
	}
	l.visited[name] = true

	if d, ok := n.g.Dependencies[name]; ok {
		flag := Flag{Name: n.name(slug(d.Name)), Subdir: d.Subdir}
		for _, a := range joinArgs(d.Args.C) {
			flag.CFlags = appendUnique(flag.CFlags, n.san.SanitizeIn(a.Value, d.Subdir))
		}
		for _, a := range joinArgs(d.Args.Cpp) {
			flag.CppFlags = appendUnique(flag.CppFlags, n.san.SanitizeIn(a.Value, d.Subdir))
		}
		for _, a := range joinArgs(d.Args.Link) {
			flag.LinkFlags = appendUnique(flag.LinkFlags, n.san.SanitizeIn(a.Value, d.Subdir))
		}
		if !flag.Empty() {
			n.recs.addFlag(flag)
			l.bt.Flags = appendUnique(l.bt.Flags, flag.Name)
		}
		for v := range argValues(d.Args) {
			l.provided[v] = true
		}

		if err := n.link(l, d.GeneratedSources, d.IncludeDirs, d.LinkWith, d.LinkWhole); err != nil {
			return fmt.Errorf("dependency %q: %w", name, err)
		}
		for _, sub := range d.Dependencies {
			if err := n.dependency(l, sub); err != nil {
				return err
			}
		}
		return nil
	}

	dep, ok := n.deps.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q is neither declared by the project nor listed in the dependency table", ErrDependencyNotFound, name)
	}
	switch dep.Kind {
	case config.HeaderLibrary:
		l.bt.HeaderLibs = appendUnique(l.bt.HeaderLibs, dep.TargetName)
	case config.StaticLibrary:
		l.bt.StaticLibs = appendUnique(l.bt.StaticLibs, dep.TargetName)
	case config.SharedLibrary:
		l.bt.SharedLibs = appendUnique(l.bt.SharedLibs, dep.TargetName)
	default:
		return fmt.Errorf("%w: %q is a program, not a library", ErrUnrecognized, name)
	}
	return nil
}
