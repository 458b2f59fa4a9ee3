package interp

// Kind is the kind of a raw target
type Kind int

const (
	Executable Kind = iota
	StaticLibrary
	SharedLibrary
	CustomTarget
	PythonBinary
)

func (k Kind) String() string {
	switch k {
	case Executable:
		return "executable"
	case StaticLibrary:
		return "static_library"
	case SharedLibrary:
		return "shared_library"
	case CustomTarget:
		return "custom_target"
	case PythonBinary:
		return "python_binary"
	default:
		return "unknown"
	}
}

// Arg is one compiler or linker argument. Var is the name of the [variables]
// entry it was expanded from, if any.
type Arg struct {
	Value string
	Var   string
}

// Args holds the per-language compile arguments and the link arguments.
type Args struct {
	C    []Arg
	Cpp  []Arg
	Link []Arg
}

func (a *Args) Append(o Args) {
	a.C = append(a.C, o.C...)
	a.Cpp = append(a.Cpp, o.Cpp...)
	a.Link = append(a.Link, o.Link...)
}

// ArgKind classifies one custom command argument
type ArgKind int

const (
	ArgString ArgKind = iota
	// ArgInput is a source file the command reads
	ArgInput
	// ArgGenerated names a custom target whose outputs the command reads
	ArgGenerated
	// ArgOutput is a file the command writes
	ArgOutput
	// ArgProgram is an external program or an executable target
	ArgProgram
	// ArgScript is a python script run as a tool
	ArgScript
	// ArgDepfile and ArgPrivateDir are produced by the description language
	// but have no equivalent in any destination ecosystem.
	ArgDepfile
	ArgPrivateDir
)

func (k ArgKind) String() string {
	switch k {
	case ArgString:
		return "string"
	case ArgInput:
		return "input"
	case ArgGenerated:
		return "generated"
	case ArgOutput:
		return "output"
	case ArgProgram:
		return "program"
	case ArgScript:
		return "script"
	case ArgDepfile:
		return "depfile"
	case ArgPrivateDir:
		return "private_dir"
	default:
		return "unknown"
	}
}

// CommandArg is one argument of a custom command. Value is an absolute path
// for inputs, outputs and scripts, a target name for generated inputs and a
// program name for programs.
type CommandArg struct {
	Kind  ArgKind
	Value string
}

// Target is one build target as evaluated under a single configuration.
// Paths are absolute.
type Target struct {
	Name   string
	Subdir string
	Kind   Kind
	Native bool

	Sources          []string
	GeneratedSources []string // custom target names
	IncludeDirs      []string
	Args             Args
	LinkWith         []string
	LinkWhole        []string
	Dependencies     []string

	Install    bool
	InstallDir string

	// custom targets
	Inputs  []string
	Outputs []string
	Command []CommandArg
	Capture bool

	// python binaries
	Main string
}

// Dependency is a dependency object declared by the project itself
type Dependency struct {
	Name             string
	Subdir           string
	IncludeDirs      []string
	Args             Args
	LinkWith         []string
	LinkWhole        []string
	Dependencies     []string
	GeneratedSources []string
}

// Graph is the result of evaluating a project under one configuration
type Graph struct {
	SourceRoot    string
	BuildRoot     string
	InstallPrefix string

	Global Args
	// Targets are in directory visit order, then kind and name order.
	Targets      []*Target
	Dependencies map[string]*Dependency
	// Files lists every description file that was read
	Files []string
}

func (g *Graph) Target(name string) (*Target, bool) {
	for _, t := range g.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// GenDir returns the directory generated files of targets in subdir go to.
func (g *Graph) GenDir(subdir string) string {
	return joinAbs(g.BuildRoot, subdir)
}
