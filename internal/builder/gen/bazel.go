package gen

import (
	"fmt"
	"maps"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/bazelbuild/bazel-gazelle/label"
	"go.starlark.net/syntax"

	"github.com/qobs-build/hermetic/internal/config"
	"github.com/qobs-build/hermetic/internal/extract"
	"github.com/qobs-build/hermetic/internal/selects"
	"github.com/qobs-build/hermetic/internal/state"
)

const (
	bazelFlagsFile        = "hermetic_flags.bzl"
	bazelDefaultConfigPkg = "hermetic_config"
	bazelDefaultCondition = "//conditions:default"
)

var (
	bazelOS = map[string]string{
		"linux":   "linux",
		"android": "android",
		"darwin":  "macos",
		"windows": "windows",
	}
	bazelCPU = map[string]string{
		"x86_64":  "x86_64",
		"x86":     "x86_32",
		"aarch64": "aarch64",
		"arm":     "armv7",
		"riscv64": "riscv64",
	}
)

// bazelRule is a target as a BUILD.bazel rule
type bazelRule struct {
	*state.Target
}

func (r *bazelRule) label() label.Label {
	return label.New("", r.Subdir, r.Name)
}

type BazelGen struct {
	base
	customs   []selects.CustomSelect
	configPkg string
	// config_setting_groups for selects over several dimensions
	groups map[string][]string
}

func NewBazelGen(project *config.ProjectConfig, customs []selects.CustomSelect) *BazelGen {
	tracker := state.NewTracker(customs, func(t *state.Target) state.ConvertTarget {
		return &bazelRule{Target: t}
	})
	pkg := project.Project.BazelConfigPackage
	if pkg == "" {
		pkg = bazelDefaultConfigPkg
	}
	return &BazelGen{
		base: newBase(project, tracker, config.PathsSection{
			ProjectDir: ".",
			InstallDir: "/usr/local",
			BuildDir:   "$(GENDIR)",
			GenDir:     "$(GENDIR)",
		}),
		customs:   customs,
		configPkg: pkg,
		groups:    make(map[string][]string),
	}
}

func (g *BazelGen) BuildFile() string { return "BUILD.bazel" }

// ref renders a reference to name as seen from package pkg
func (g *BazelGen) ref(name, pkg string) string {
	ct, ok := g.tracker.Lookup(name)
	if !ok {
		if g.tracker.Dropped(name) {
			return ":" + name
		}
		return name
	}
	return ct.(*bazelRule).label().Rel("", pkg).String()
}

// src renders one entry of a source list
func (g *BazelGen) src(pkg string) func(string) string {
	return func(v string) string {
		if ref, ok := extract.IsRef(v); ok {
			return g.ref(ref, pkg)
		}
		return v
	}
}

// flagsVar is the name of the variable holding one language's options of a
// flag set
func flagsVar(name, suffix string) string {
	return strings.ToUpper(name) + "_" + suffix
}

var flagSuffixes = []struct{ attr, suffix string }{
	{state.AttrCFlags, "CONLYOPTS"},
	{state.AttrCppFlags, "CXXOPTS"},
	{state.AttrLinkFlags, "LINKOPTS"},
}

func (g *BazelGen) Generate() ([]File, error) {
	targets := g.tracker.Targets()
	groups, dirs := bySubdir(targets)

	var flags []*bazelRule
	var files []File
	for _, dir := range dirs {
		var body strings.Builder
		loads := make(map[string][]string)
		first := true
		for _, ct := range groups[dir] {
			r := ct.(*bazelRule)
			if r.Kind == state.KindFlag {
				flags = append(flags, r)
				continue
			}
			if !first {
				writeln(&body)
			}
			first = false
			g.rule(&body, r, loads)
		}
		if first && dir != "" {
			continue
		}
		files = append(files, File{Path: path.Join(dir, g.BuildFile()), Content: g.buildFile(loads, body.String())})
	}
	if !slices.ContainsFunc(files, func(f File) bool { return f.Path == g.BuildFile() }) {
		files = append([]File{{Path: g.BuildFile(), Content: g.buildFile(nil, "")}}, files...)
	}

	files = append(files, File{Path: bazelFlagsFile, Content: g.flagsFile(flags)})
	if cfg := g.configFile(); cfg != "" {
		files = append(files, File{Path: path.Join(g.configPkg, g.BuildFile()), Content: cfg})
	}
	slices.SortFunc(files, func(a, b File) int { return strings.Compare(a.Path, b.Path) })

	for _, f := range files {
		if _, err := syntax.Parse(f.Path, f.Content, 0); err != nil {
			return nil, fmt.Errorf("generated %s is not valid starlark: %w", f.Path, err)
		}
	}
	return files, nil
}

func (g *BazelGen) buildFile(loads map[string][]string, body string) string {
	var sb strings.Builder
	g.header(&sb, "#")
	for _, file := range slices.Sorted(maps.Keys(loads)) {
		symbols := slices.Sorted(slices.Values(loads[file]))
		symbols = slices.Compact(symbols)
		write(&sb, "load(", strconv.Quote(file))
		for _, s := range symbols {
			write(&sb, ", ", strconv.Quote(s))
		}
		writeln(&sb, ")")
	}
	if len(loads) > 0 {
		writeln(&sb)
	}
	writeln(&sb, `package(default_visibility = ["//visibility:public"])`)
	if body != "" {
		writeln(&sb)
		write(&sb, body)
	}
	return sb.String()
}

func (g *BazelGen) rule(sb *strings.Builder, r *bazelRule, loads map[string][]string) {
	t := r.Target
	pkg := t.Subdir
	cc := func(symbol string) { loads["@rules_cc//cc:defs.bzl"] = append(loads["@rules_cc//cc:defs.bzl"], symbol) }

	switch t.Kind {
	case state.KindFileGroup:
		writeln(sb, "filegroup(")
		g.prop(sb, "name", strconv.Quote(t.Name))
		g.attr(sb, "srcs", g.part(t, state.AttrSrcs, g.src(pkg), nil))
	case state.KindIncludeDirectory:
		cc("cc_library")
		writeln(sb, "cc_library(")
		g.prop(sb, "name", strconv.Quote(t.Name))
		g.prop(sb, "hdrs", "glob("+list(headerPatterns(t), indent)+")")
		g.attr(sb, "includes", g.part(t, state.AttrDirs, nil, nil))
	case state.KindCustomTarget:
		g.genrule(sb, r, loads)
		return
	case state.KindPythonTarget:
		loads["@rules_python//python:defs.bzl"] = append(loads["@rules_python//python:defs.bzl"], "py_binary")
		writeln(sb, "py_binary(")
		g.prop(sb, "name", strconv.Quote(t.Name))
		g.prop(sb, "main", strconv.Quote(t.Main))
		g.attr(sb, "srcs", g.part(t, state.AttrSrcs, nil, nil))
	case state.KindStaticLibrary, state.KindSharedLibrary, state.KindExecutable:
		g.ccRule(sb, r, loads)
	}
	writeln(sb, ")")
}

// headerPatterns returns the glob patterns of the headers below every
// directory an include directory exports
func headerPatterns(t *state.Target) []string {
	var patterns []string
	if dirs, ok := t.Lookup(state.AttrDirs); ok {
		for _, d := range dirs.Values() {
			for _, ext := range []string{"h", "hpp", "inc"} {
				patterns = append(patterns, path.Join(d, "**", "*."+ext))
			}
		}
	}
	return patterns
}

func (g *BazelGen) ccRule(sb *strings.Builder, r *bazelRule, loads map[string][]string) {
	t := r.Target
	pkg := t.Subdir
	symbol := "cc_binary"
	if t.Kind == state.KindStaticLibrary {
		symbol = "cc_library"
	}
	loads["@rules_cc//cc:defs.bzl"] = append(loads["@rules_cc//cc:defs.bzl"], symbol)

	writeln(sb, symbol, "(")
	g.prop(sb, "name", strconv.Quote(t.Name))

	external := func(v string) bool { return !g.internal(v) }
	ref := func(v string) string { return g.ref(v, pkg) }
	// generated headers reach the compiler through the genrule's cc_library
	generatedHeaders := func(v string) string {
		ct, ok := g.tracker.Lookup(v)
		if !ok || ct.State().Custom == nil || len(ct.State().Custom.ExportIncludeDirs) == 0 {
			return g.ref(v, pkg)
		}
		l := ct.(*bazelRule).label()
		l.Name += "_cc"
		return l.Rel("", pkg).String()
	}

	// internal shared libraries are linked through the .so a linkshared
	// cc_binary produces
	g.attr(sb, "srcs",
		g.part(t, state.AttrSrcs, g.src(pkg), nil),
		g.part(t, state.AttrGeneratedSources, ref, nil),
		g.part(t, state.AttrSharedLibs, ref, g.internal),
	)
	g.attr(sb, "deps",
		g.part(t, state.AttrGeneratedHeaders, generatedHeaders, nil),
		g.part(t, state.AttrHeaderLibs, ref, nil),
		g.part(t, state.AttrStaticLibs, ref, nil),
		g.part(t, state.AttrWholeStaticLibs, ref, nil),
		g.part(t, state.AttrSharedLibs, ref, external),
	)

	if flags, ok := t.Lookup(state.AttrFlags); ok {
		names := flags.Values()
		attrs := []string{"conlyopts", "cxxopts", "linkopts"}
		for i, fs := range flagSuffixes {
			vars := make([]string, len(names))
			for j, n := range names {
				vars[j] = flagsVar(n, fs.suffix)
			}
			loads["//:"+bazelFlagsFile] = append(loads["//:"+bazelFlagsFile], vars...)
			g.prop(sb, attrs[i], strings.Join(vars, " + "))
		}
	}

	switch t.Kind {
	case state.KindStaticLibrary:
		g.prop(sb, "linkstatic", "True")
	case state.KindSharedLibrary:
		g.prop(sb, "linkshared", "True")
	}
}

func (g *BazelGen) genrule(sb *strings.Builder, r *bazelRule, loads map[string][]string) {
	t := r.Target
	c := t.Custom
	pkg := t.Subdir

	writeln(sb, "genrule(")
	g.prop(sb, "name", strconv.Quote(t.Name))
	if len(c.Srcs) > 0 {
		g.prop(sb, "srcs", list(mapValues(c.Srcs, g.src(pkg)), indent))
	}
	g.prop(sb, "outs", list(c.Outs, indent))
	if len(c.Tools) > 0 {
		g.prop(sb, "tools", list(mapValues(c.Tools, func(v string) string { return g.ref(v, pkg) }), indent))
	}

	cr := commandRenderer{
		genDir: "$(RULEDIR)",
		location: func(tok extract.CommandToken) string {
			switch tok.Kind {
			case extract.TokenGenerated:
				return "$(locations " + g.ref(tok.Value, pkg) + ")"
			case extract.TokenInput:
				return "$(location " + g.src(pkg)(tok.Value) + ")"
			default:
				return "$(execpath " + g.ref(tok.Value, pkg) + ")"
			}
		},
		output: func(name string) string { return "$(RULEDIR)/" + name },
		capture: func(outs []string) string {
			if len(outs) == 1 {
				return "$@"
			}
			return "$(RULEDIR)/" + outs[0]
		},
		expand: g.expandPaths,
	}
	g.prop(sb, "cmd", strconv.Quote(cr.command(c)))
	writeln(sb, ")")

	if len(c.ExportIncludeDirs) > 0 {
		loads["@rules_cc//cc:defs.bzl"] = append(loads["@rules_cc//cc:defs.bzl"], "cc_library")
		writeln(sb)
		writeln(sb, "cc_library(")
		g.prop(sb, "name", strconv.Quote(t.Name+"_cc"))
		g.prop(sb, "hdrs", list([]string{":" + t.Name}, indent))
		g.prop(sb, "includes", list(c.ExportIncludeDirs, indent))
		writeln(sb, ")")
	}
}

// flagsFile renders every flag set as three list variables
func (g *BazelGen) flagsFile(flags []*bazelRule) string {
	var sb strings.Builder
	g.header(&sb, "#")
	for i, r := range flags {
		if i > 0 {
			writeln(&sb)
		}
		genDir := g.genDirOf(r.Subdir)
		conv := func(v string) string { return g.expandPaths(v, genDir) }
		for _, fs := range flagSuffixes {
			expr := "[]"
			if p := g.part(r.Target, fs.attr, conv, nil); p != nil {
				expr = g.expr([]*exprPart{p}, "")
			}
			writeln(&sb, flagsVar(r.Name, fs.suffix), " = ", expr)
		}
	}
	return sb.String()
}

// configFile renders the config package: one string_flag per custom
// select, one config_setting per value, and the groups selects over
// several dimensions refer to.
func (g *BazelGen) configFile() string {
	customs := g.customs
	if len(customs) == 0 && len(g.groups) == 0 {
		return ""
	}

	var sb strings.Builder
	g.header(&sb, "#")
	if len(g.groups) > 0 {
		writeln(&sb, `load("@bazel_skylib//lib:selects.bzl", "selects")`)
	}
	if len(customs) > 0 {
		writeln(&sb, `load("@bazel_skylib//rules:common_settings.bzl", "string_flag")`)
	}
	writeln(&sb)
	writeln(&sb, `package(default_visibility = ["//visibility:public"])`)

	for _, c := range customs {
		flag := customName(c.ID)
		writeln(&sb)
		writeln(&sb, "string_flag(")
		g.prop(&sb, "name", strconv.Quote(flag))
		g.prop(&sb, "build_setting_default", strconv.Quote(c.Default))
		g.prop(&sb, "values", list(c.Values, indent))
		writeln(&sb, ")")
		for _, v := range c.Values {
			writeln(&sb)
			writeln(&sb, "config_setting(")
			g.prop(&sb, "name", strconv.Quote(customName(c.ID)+"_"+slugValue(v)))
			g.prop(&sb, "flag_values", "{"+strconv.Quote(":"+flag)+": "+strconv.Quote(v)+"}")
			writeln(&sb, ")")
		}
	}

	for _, name := range slices.Sorted(maps.Keys(g.groups)) {
		writeln(&sb)
		writeln(&sb, "selects.config_setting_group(")
		g.prop(&sb, "name", strconv.Quote(name))
		g.prop(&sb, "match_all", list(g.groups[name], indent))
		writeln(&sb, ")")
	}
	return sb.String()
}

func customName(id selects.SelectID) string {
	return slugValue(id.Namespace + "_" + id.Variable)
}

func slugValue(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// conditionLabel returns the label that matches one dimension value
func (g *BazelGen) conditionLabel(l selects.SelectInstance) label.Label {
	switch l.ID.Kind {
	case selects.KindOS:
		v := l.Value
		if s, ok := bazelOS[v]; ok {
			v = s
		}
		return label.New("platforms", "os", v)
	case selects.KindArch:
		v := l.Value
		if s, ok := bazelCPU[v]; ok {
			v = s
		}
		return label.New("platforms", "cpu", v)
	default:
		return label.New("", g.configPkg, customName(l.ID)+"_"+slugValue(l.Value))
	}
}

// conditionKey returns the select key of one row, registering a
// config_setting_group when the row fixes several dimensions
func (g *BazelGen) conditionKey(ids []selects.SelectID, key []string) string {
	if len(ids) == 1 {
		return g.conditionLabel(ids[0].Is(key[0])).String()
	}
	names := make([]string, len(ids))
	match := make([]string, len(ids))
	for i, id := range ids {
		l := g.conditionLabel(id.Is(key[i]))
		names[i] = slugValue(l.Name)
		match[i] = l.String()
	}
	name := strings.Join(names, "__")
	g.groups[name] = match
	return label.New("", g.configPkg, name).String()
}

// exprPart is one attribute of a target as part of a list expression.
// keep filters its values, conv renders them.
type exprPart struct {
	a    *state.AttributeNode
	conv func(string) string
	keep func(string) bool
}

func (g *BazelGen) part(t *state.Target, attr string, conv func(string) string, keep func(string) bool) *exprPart {
	a, ok := t.Lookup(attr)
	if !ok {
		return nil
	}
	if conv == nil {
		conv = func(v string) string { return v }
	}
	if keep == nil {
		keep = func(string) bool { return true }
	}
	if !slices.ContainsFunc(a.Values(), keep) {
		return nil
	}
	return &exprPart{a: a, conv: conv, keep: keep}
}

func (p *exprPart) values(values []string) []string {
	var out []string
	for _, v := range values {
		if p.keep(v) {
			out = append(out, p.conv(v))
		}
	}
	return out
}

func (g *BazelGen) prop(sb *strings.Builder, name, value string) {
	writeln(sb, indent, name, " = ", value, ",")
}

func (g *BazelGen) attr(sb *strings.Builder, name string, parts ...*exprPart) {
	parts = slices.DeleteFunc(parts, func(p *exprPart) bool { return p == nil })
	if len(parts) == 0 {
		return
	}
	g.prop(sb, name, g.expr(parts, indent))
}

// expr renders the common values of every part as one list, then every
// select node of every part, joined with +
func (g *BazelGen) expr(parts []*exprPart, prefix string) string {
	var common []string
	var selectExprs []string
	for _, p := range parts {
		common = append(common, p.values(p.a.CommonValues())...)
		for _, n := range p.a.SelectNodes() {
			if s := g.selectExpr(p, n, prefix); s != "" {
				selectExprs = append(selectExprs, s)
			}
		}
	}
	var out []string
	if len(common) > 0 || len(selectExprs) == 0 {
		out = append(out, list(common, prefix))
	}
	return strings.Join(append(out, selectExprs...), " + ")
}

func (g *BazelGen) selectExpr(p *exprPart, n *state.SelectNode, prefix string) string {
	var sb strings.Builder
	writeln(&sb, "select({")
	inner := prefix + indent
	rows := 0
	for _, row := range n.Rows {
		values := p.values(row.Values)
		key := bazelDefaultCondition
		if !row.Default {
			if len(values) == 0 {
				continue
			}
			key = g.conditionKey(n.IDs, row.Key)
			rows++
		}
		writeln(&sb, inner, strconv.Quote(key), ": ", list(nonNil(values), inner), ",")
	}
	if rows == 0 {
		return ""
	}
	write(&sb, prefix, "})")
	return sb.String()
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
