package extract

import (
	"slices"
)

// Symbolic path prefixes. Values captured under different configurations
// compare equal once absolute paths are replaced by these.
const (
	GenDirToken     = "@@GEN_DIR@@"
	BuildDirToken   = "@@BUILD_DIR@@"
	InstallDirToken = "@@INSTALL_DIR@@"
	ProjectDirToken = "@@PROJECT_DIR@@"
)

// References to other records are written ":name"; anything else in a
// source list is a path relative to the record's subdir.
func Ref(name string) string { return ":" + name }

// IsRef reports whether s references a record and returns its name.
func IsRef(s string) (string, bool) {
	if len(s) > 1 && s[0] == ':' {
		return s[1:], true
	}
	return "", false
}

// FileGroup bundles source files of one directory that a target in
// another directory compiles.
type FileGroup struct {
	Name   string
	Subdir string
	Srcs   []string
}

// IncludeDirectory exports one project directory as a header search path.
type IncludeDirectory struct {
	Name   string
	Subdir string
	Dirs   []string
}

// Flag is a named set of compiler and linker arguments.
type Flag struct {
	Name      string
	Subdir    string
	CFlags    []string
	CppFlags  []string
	LinkFlags []string
}

func (f Flag) Empty() bool {
	return len(f.CFlags) == 0 && len(f.CppFlags) == 0 && len(f.LinkFlags) == 0
}

// TokenKind classifies one argument of a custom command
type TokenKind int

const (
	TokenLiteral TokenKind = iota
	// TokenInput is a source file, or a file group reference
	TokenInput
	// TokenGenerated references every output of another custom target
	TokenGenerated
	// TokenOutput is the name of one output of this target
	TokenOutput
	// TokenTool is a program the command runs
	TokenTool
	// TokenScript is a python script, run through the python binary built
	// from it
	TokenScript
)

func (k TokenKind) String() string {
	switch k {
	case TokenLiteral:
		return "literal"
	case TokenInput:
		return "input"
	case TokenGenerated:
		return "generated"
	case TokenOutput:
		return "output"
	case TokenTool:
		return "tool"
	case TokenScript:
		return "script"
	default:
		return "unknown"
	}
}

type CommandToken struct {
	Kind  TokenKind
	Value string
}

// CustomTarget is a generated-file rule driven by an explicit command
type CustomTarget struct {
	Name              string
	Subdir            string
	Srcs              []string
	Outs              []string
	Tools             []string
	Command           []CommandToken
	Capture           bool
	ExportIncludeDirs []string
	Native            bool
	InstallDir        string
}

// Equal reports whether two observations of a custom target are identical.
func (c CustomTarget) Equal(o CustomTarget) bool {
	return c.Name == o.Name &&
		c.Subdir == o.Subdir &&
		slices.Equal(c.Srcs, o.Srcs) &&
		slices.Equal(c.Outs, o.Outs) &&
		slices.Equal(c.Tools, o.Tools) &&
		slices.Equal(c.Command, o.Command) &&
		c.Capture == o.Capture &&
		slices.Equal(c.ExportIncludeDirs, o.ExportIncludeDirs) &&
		c.Native == o.Native &&
		c.InstallDir == o.InstallDir
}

// PythonTarget is a python script packaged as a host binary
type PythonTarget struct {
	Name   string
	Subdir string
	Main   string
	Srcs   []string
}

// BuildTarget is what libraries and executables have in common
type BuildTarget struct {
	Name             string
	Subdir           string
	Srcs             []string
	GeneratedHeaders []string
	GeneratedSources []string
	HeaderLibs       []string
	StaticLibs       []string
	WholeStaticLibs  []string
	SharedLibs       []string
	Flags            []string
	Native           bool
	InstallDir       string
}

type StaticLibrary struct{ BuildTarget }

type SharedLibrary struct{ BuildTarget }

type Executable struct{ BuildTarget }

// Records is everything extracted from one configuration. Each list is in
// graph order.
type Records struct {
	FileGroups         []FileGroup
	IncludeDirectories []IncludeDirectory
	Flags              []Flag
	CustomTargets      []CustomTarget
	PythonTargets      []PythonTarget
	StaticLibraries    []StaticLibrary
	SharedLibraries    []SharedLibrary
	Executables        []Executable
}

func (r *Records) addFileGroup(fg FileGroup) {
	for i := range r.FileGroups {
		if r.FileGroups[i].Name == fg.Name {
			r.FileGroups[i].Srcs = appendUnique(r.FileGroups[i].Srcs, fg.Srcs...)
			return
		}
	}
	r.FileGroups = append(r.FileGroups, fg)
}

func (r *Records) addIncludeDirectory(inc IncludeDirectory) {
	for _, existing := range r.IncludeDirectories {
		if existing.Name == inc.Name {
			return
		}
	}
	r.IncludeDirectories = append(r.IncludeDirectories, inc)
}

// addFlag merges flags with the same name
func (r *Records) addFlag(f Flag) {
	if f.Empty() {
		return
	}
	for i := range r.Flags {
		existing := &r.Flags[i]
		if existing.Name == f.Name {
			existing.CFlags = appendUnique(existing.CFlags, f.CFlags...)
			existing.CppFlags = appendUnique(existing.CppFlags, f.CppFlags...)
			existing.LinkFlags = appendUnique(existing.LinkFlags, f.LinkFlags...)
			return
		}
	}
	r.Flags = append(r.Flags, f)
}

func (r *Records) addPythonTarget(p PythonTarget) {
	for _, existing := range r.PythonTargets {
		if existing.Name == p.Name {
			return
		}
	}
	r.PythonTargets = append(r.PythonTargets, p)
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
