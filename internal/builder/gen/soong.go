package gen

import (
	"path"
	"strconv"
	"strings"

	"github.com/qobs-build/hermetic/internal/config"
	"github.com/qobs-build/hermetic/internal/extract"
	"github.com/qobs-build/hermetic/internal/selects"
	"github.com/qobs-build/hermetic/internal/state"
)

var (
	soongOS = map[string]string{
		"linux":   "linux_glibc",
		"android": "android",
		"darwin":  "darwin",
		"windows": "windows",
	}
	soongArch = map[string]string{
		"x86_64":  "x86_64",
		"x86":     "x86",
		"aarch64": "arm64",
		"arm":     "arm",
		"riscv64": "riscv64",
	}
)

// soongModule is a target as an Android.bp module
type soongModule struct {
	*state.Target
	// module is the name with the project's prefix
	module string
}

type SoongGen struct {
	base
}

func NewSoongGen(project *config.ProjectConfig, customs []selects.CustomSelect) *SoongGen {
	prefix := project.Project.SoongNamePrefix
	tracker := state.NewTracker(customs, func(t *state.Target) state.ConvertTarget {
		return &soongModule{Target: t, module: prefix + t.Name}
	})
	intermediates := path.Join("out/soong/.intermediates/external", project.Project.Name)
	return &SoongGen{base: newBase(project, tracker, config.PathsSection{
		ProjectDir: path.Join("external", project.Project.Name),
		InstallDir: "/system",
		BuildDir:   intermediates,
		GenDir:     intermediates,
	})}
}

func (g *SoongGen) BuildFile() string { return "Android.bp" }

// name returns the module name a reference resolves to
func (g *SoongGen) name(n string) string {
	if g.internal(n) {
		return g.project.Project.SoongNamePrefix + n
	}
	return n
}

// src renders one entry of a source list
func (g *SoongGen) src(v string) string {
	if ref, ok := extract.IsRef(v); ok {
		return ":" + g.name(ref)
	}
	return v
}

func (g *SoongGen) Generate() ([]File, error) {
	groups, dirs := bySubdir(g.tracker.Targets())
	files := make([]File, 0, len(dirs))
	for _, dir := range dirs {
		var sb strings.Builder
		g.header(&sb, "//")
		for i, ct := range groups[dir] {
			if i > 0 {
				writeln(&sb)
			}
			g.module(&sb, ct.(*soongModule))
		}
		files = append(files, File{Path: path.Join(dir, g.BuildFile()), Content: sb.String()})
	}
	return files, nil
}

func (g *SoongGen) module(sb *strings.Builder, m *soongModule) {
	t := m.Target
	flagValue := func(v string) string { return g.expandPaths(v, g.genDirOf(t.Subdir)) }

	switch t.Kind {
	case state.KindFileGroup:
		writeln(sb, "filegroup {")
		g.prop(sb, "name", strconv.Quote(m.module))
		g.attr(sb, "srcs", t, state.AttrSrcs, g.src)
	case state.KindIncludeDirectory:
		writeln(sb, "cc_library_headers {")
		g.prop(sb, "name", strconv.Quote(m.module))
		g.prop(sb, "host_supported", "true")
		g.prop(sb, "vendor_available", "true")
		g.attr(sb, "export_include_dirs", t, state.AttrDirs, nil)
	case state.KindFlag:
		writeln(sb, "cc_defaults {")
		g.prop(sb, "name", strconv.Quote(m.module))
		g.attr(sb, "cflags", t, state.AttrCFlags, flagValue)
		g.attr(sb, "cppflags", t, state.AttrCppFlags, flagValue)
		g.attr(sb, "ldflags", t, state.AttrLinkFlags, flagValue)
	case state.KindCustomTarget:
		g.genrule(sb, m)
	case state.KindPythonTarget:
		writeln(sb, "python_binary_host {")
		g.prop(sb, "name", strconv.Quote(m.module))
		g.prop(sb, "main", strconv.Quote(t.Main))
		g.attr(sb, "srcs", t, state.AttrSrcs, nil)
	case state.KindStaticLibrary, state.KindSharedLibrary, state.KindExecutable:
		g.ccModule(sb, m)
	}
	writeln(sb, "}")
}

func (g *SoongGen) ccModule(sb *strings.Builder, m *soongModule) {
	t := m.Target
	standard := "lib"
	switch t.Kind {
	case state.KindStaticLibrary:
		writeln(sb, "cc_library_static {")
	case state.KindSharedLibrary:
		writeln(sb, "cc_library_shared {")
	default:
		standard = "bin"
		if t.Native {
			writeln(sb, "cc_binary_host {")
		} else {
			writeln(sb, "cc_binary {")
		}
	}
	g.prop(sb, "name", strconv.Quote(m.module))
	if t.Native && t.Kind != state.KindExecutable {
		g.prop(sb, "host_supported", "true")
	}

	// defaults cannot be selected on; the flag modules carry the conditions
	if flags, ok := t.Lookup(state.AttrFlags); ok {
		g.prop(sb, "defaults", list(mapValues(flags.Values(), g.name), indent))
	}
	g.attr(sb, "srcs", t, state.AttrSrcs, g.src)
	g.attr(sb, "generated_headers", t, state.AttrGeneratedHeaders, g.name)
	g.attr(sb, "generated_sources", t, state.AttrGeneratedSources, g.name)
	g.attr(sb, "header_libs", t, state.AttrHeaderLibs, g.name)
	g.attr(sb, "static_libs", t, state.AttrStaticLibs, g.name)
	g.attr(sb, "whole_static_libs", t, state.AttrWholeStaticLibs, g.name)
	g.attr(sb, "shared_libs", t, state.AttrSharedLibs, g.name)
	if _, ok := t.Lookup(state.AttrGeneratedHeaders); ok && t.Kind != state.KindExecutable {
		g.attr(sb, "export_generated_headers", t, state.AttrGeneratedHeaders, g.name)
	}
	if rel := installSuffix(t.InstallDir, standard); rel != "" {
		g.prop(sb, "relative_install_path", strconv.Quote(rel))
	}
}

func (g *SoongGen) genrule(sb *strings.Builder, m *soongModule) {
	c := m.Custom
	writeln(sb, "genrule {")
	g.prop(sb, "name", strconv.Quote(m.module))
	if len(c.Srcs) > 0 {
		g.prop(sb, "srcs", list(mapValues(c.Srcs, g.src), indent))
	}
	g.prop(sb, "out", list(c.Outs, indent))
	if len(c.Tools) > 0 {
		g.prop(sb, "tools", list(mapValues(c.Tools, g.name), indent))
	}

	r := commandRenderer{
		genDir: "$(genDir)",
		location: func(tok extract.CommandToken) string {
			switch tok.Kind {
			case extract.TokenGenerated:
				return "$(locations :" + g.name(tok.Value) + ")"
			case extract.TokenInput:
				return "$(location " + g.src(tok.Value) + ")"
			default:
				return "$(location " + g.name(tok.Value) + ")"
			}
		},
		output: func(name string) string { return "$(genDir)/" + name },
		capture: func(outs []string) string {
			if len(outs) == 1 {
				return "$(out)"
			}
			return "$(genDir)/" + outs[0]
		},
		expand: g.expandPaths,
	}
	g.prop(sb, "cmd", strconv.Quote(r.command(c)))
	if len(c.ExportIncludeDirs) > 0 {
		g.prop(sb, "export_include_dirs", list(c.ExportIncludeDirs, indent))
	}
}

func (g *SoongGen) prop(sb *strings.Builder, name, value string) {
	writeln(sb, indent, name, ": ", value, ",")
}

// attr writes a consolidated attribute, or nothing when it never had a
// value
func (g *SoongGen) attr(sb *strings.Builder, name string, t *state.Target, attr string, conv func(string) string) {
	a, ok := t.Lookup(attr)
	if !ok {
		return
	}
	if conv == nil {
		conv = func(v string) string { return v }
	}
	g.prop(sb, name, g.expr(a, conv, indent))
}

// expr renders the common values and every select node, joined with +
func (g *SoongGen) expr(a *state.AttributeNode, conv func(string) string, prefix string) string {
	var parts []string
	nodes := a.SelectNodes()
	if common := a.CommonValues(); len(common) > 0 || len(nodes) == 0 {
		parts = append(parts, list(mapValues(common, conv), prefix))
	}
	for _, n := range nodes {
		parts = append(parts, g.selectExpr(n, conv, prefix))
	}
	return strings.Join(parts, " + ")
}

func (g *SoongGen) selectExpr(n *state.SelectNode, conv func(string) string, prefix string) string {
	conds := make([]string, len(n.IDs))
	for i, id := range n.IDs {
		conds[i] = soongCondition(id)
	}

	var sb strings.Builder
	write(&sb, "select(", tuple(conds), ", {\n")
	inner := prefix + indent
	for _, row := range n.Rows {
		keys := make([]string, len(n.IDs))
		for i, id := range n.IDs {
			if row.Default {
				keys[i] = "default"
			} else {
				keys[i] = strconv.Quote(soongValue(id, row.Key[i]))
			}
		}
		writeln(&sb, inner, tuple(keys), ": ", list(mapValues(row.Values, conv), inner), ",")
	}
	write(&sb, prefix, "})")
	return sb.String()
}

func tuple(items []string) string {
	if len(items) == 1 {
		return items[0]
	}
	return "(" + strings.Join(items, ", ") + ")"
}

func soongCondition(id selects.SelectID) string {
	switch id.Kind {
	case selects.KindOS:
		return "os()"
	case selects.KindArch:
		return "arch()"
	case selects.KindCustom:
		return "soong_config_variable(" + strconv.Quote(id.Namespace) + ", " + strconv.Quote(id.Variable) + ")"
	default:
		return "soong_config_variable(\"hermetic\", " + strconv.Quote(id.String()) + ")"
	}
}

func soongValue(id selects.SelectID, v string) string {
	switch id.Kind {
	case selects.KindOS:
		if s, ok := soongOS[v]; ok {
			return s
		}
	case selects.KindArch:
		if s, ok := soongArch[v]; ok {
			return s
		}
	}
	return v
}
