package gen

import (
	"errors"
	"path"
	"slices"
	"strings"

	"github.com/qobs-build/hermetic/internal/config"
	"github.com/qobs-build/hermetic/internal/expand"
	"github.com/qobs-build/hermetic/internal/extract"
	"github.com/qobs-build/hermetic/internal/state"
)

var ErrUnsupportedGenerator = errors.New("unsupported generator")

// File is one generated build file. Path is relative to the output root.
type File struct {
	Path    string
	Content string
}

// Generator turns the records of every configuration into the build files
// of one ecosystem.
type Generator interface {
	// BeginConfig starts the records of one configuration
	BeginConfig(cfg expand.Configuration)
	AddConfig(recs *extract.Records)
	// Finish consolidates everything added so far. Call it once, before
	// Generate.
	Finish()
	Generate() ([]File, error)
	BuildFile() string
	Diagnostics() []state.Diagnostic
}

// base holds what the generators share: the tracker and how the symbolic
// path tokens expand.
type base struct {
	project *config.ProjectConfig
	tracker *state.Tracker
	paths   config.PathsSection
}

func newBase(project *config.ProjectConfig, tracker *state.Tracker, defaults config.PathsSection) base {
	paths := project.Project.Paths
	if paths.ProjectDir == "" {
		paths.ProjectDir = defaults.ProjectDir
	}
	if paths.InstallDir == "" {
		paths.InstallDir = defaults.InstallDir
	}
	if paths.BuildDir == "" {
		paths.BuildDir = defaults.BuildDir
	}
	if paths.GenDir == "" {
		paths.GenDir = defaults.GenDir
	}
	return base{project: project, tracker: tracker, paths: paths}
}

func (b *base) BeginConfig(cfg expand.Configuration) {
	b.tracker.BeginConfig(cfg.Labels, cfg.NativeLabels)
}

func (b *base) AddConfig(recs *extract.Records) { b.tracker.AddConfig(recs) }

func (b *base) Finish() { b.tracker.Finish() }

func (b *base) Diagnostics() []state.Diagnostic { return b.tracker.Diagnostics() }

// internal reports whether name is a target of this project rather than
// something from the dependency table
func (b *base) internal(name string) bool {
	_, ok := b.tracker.Lookup(name)
	return ok || b.tracker.Dropped(name)
}

// expandPaths replaces the symbolic path tokens in value. genDir is what
// the gen dir token stands for where value is used.
func (b *base) expandPaths(value, genDir string) string {
	return strings.NewReplacer(
		extract.GenDirToken, genDir,
		extract.BuildDirToken, b.paths.BuildDir,
		extract.InstallDirToken, b.paths.InstallDir,
		extract.ProjectDirToken, b.paths.ProjectDir,
	).Replace(value)
}

// genDirOf returns the gen dir of a subdir as flags see it
func (b *base) genDirOf(subdir string) string {
	return path.Join(b.paths.GenDir, subdir)
}

// header writes the generated-file banner and the project's license block
// as comments.
func (b *base) header(sb *strings.Builder, comment string) {
	writeln(sb, comment, " This file was generated by hermetic from ", b.project.Project.Name, ". DO NOT EDIT.")
	if c := strings.TrimSpace(b.project.Project.Copyright); c != "" {
		writeln(sb, comment)
		for _, line := range strings.Split(c, "\n") {
			line = strings.TrimRight(line, " \t")
			if line == "" {
				writeln(sb, comment)
			} else {
				writeln(sb, comment, " ", line)
			}
		}
	}
	writeln(sb)
}

// bySubdir groups targets by the directory their build file goes to, in
// target order within each directory
func bySubdir(targets []state.ConvertTarget) (map[string][]state.ConvertTarget, []string) {
	groups := make(map[string][]state.ConvertTarget)
	for _, ct := range targets {
		subdir := ct.State().Subdir
		groups[subdir] = append(groups[subdir], ct)
	}
	dirs := make([]string, 0, len(groups))
	for dir := range groups {
		dirs = append(dirs, dir)
	}
	slices.Sort(dirs)
	return groups, dirs
}

// installSuffix returns the part of an install dir below the standard
// directory of its kind, e.g. "dri" for @@INSTALL_DIR@@/lib/dri.
func installSuffix(installDir, standard string) string {
	rest, ok := strings.CutPrefix(installDir, extract.InstallDirToken+"/"+standard)
	if !ok {
		return ""
	}
	return strings.TrimPrefix(rest, "/")
}
