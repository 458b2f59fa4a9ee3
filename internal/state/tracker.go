package state

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/qobs-build/hermetic/internal/extract"
	"github.com/qobs-build/hermetic/internal/msg"
	"github.com/qobs-build/hermetic/internal/selects"
)

// Diagnostic is a recoverable problem found while merging configurations.
type Diagnostic struct {
	Name    string
	Subdir  string
	Message string
}

func (d Diagnostic) String() string {
	if d.Subdir == "" {
		return fmt.Sprintf("%s: %s", d.Name, d.Message)
	}
	return fmt.Sprintf("%s (%s): %s", d.Name, d.Subdir, d.Message)
}

// Tracker merges the records of every configuration into one set of
// targets. It is not safe for concurrent use.
type Tracker struct {
	wrap    func(*Target) ConvertTarget
	customs []selects.CustomSelect

	targets map[string]ConvertTarget
	dropped map[string]bool
	diags   []Diagnostic

	labels selects.LabelSet
	native selects.LabelSet
	// labels seen by host and by native targets
	observed       selects.LabelSet
	observedNative selects.LabelSet

	finished bool
}

// NewTracker returns a tracker for the given custom selects. wrap turns a
// new target into its ecosystem variant; nil keeps the bare *Target.
func NewTracker(customs []selects.CustomSelect, wrap func(*Target) ConvertTarget) *Tracker {
	if wrap == nil {
		wrap = func(t *Target) ConvertTarget { return t }
	}
	return &Tracker{
		wrap:           wrap,
		customs:        customs,
		targets:        make(map[string]ConvertTarget),
		dropped:        make(map[string]bool),
		labels:         selects.LabelSet{},
		native:         selects.LabelSet{},
		observed:       selects.LabelSet{},
		observedNative: selects.LabelSet{},
	}
}

// BeginConfig sets the labels of the configuration whose records follow.
// native holds the labels native targets are built under.
func (t *Tracker) BeginConfig(labels, native selects.LabelSet) {
	t.labels = labels.Clone()
	t.native = native.Clone()
	if native == nil {
		t.native = t.labels.Clone()
	}
	t.observed.Union(t.labels)
	t.observedNative.Union(t.native)
}

func (t *Tracker) labelsFor(native bool) selects.LabelSet {
	if native {
		return t.native
	}
	return t.labels
}

// AddConfig adds every record of one configuration.
func (t *Tracker) AddConfig(recs *extract.Records) {
	for _, fg := range recs.FileGroups {
		t.AddFileGroup(fg)
	}
	for _, inc := range recs.IncludeDirectories {
		t.AddIncludeDirectory(inc)
	}
	for _, f := range recs.Flags {
		t.AddFlag(f)
	}
	for _, ct := range recs.CustomTargets {
		t.AddCustomTarget(ct)
	}
	for _, p := range recs.PythonTargets {
		t.AddPythonTarget(p)
	}
	for _, lib := range recs.StaticLibraries {
		t.AddStaticLibrary(lib)
	}
	for _, lib := range recs.SharedLibraries {
		t.AddSharedLibrary(lib)
	}
	for _, exe := range recs.Executables {
		t.AddExecutable(exe)
	}
}

// getOrCreate returns the target with the given identity, or nil when it
// was dropped.
func (t *Tracker) getOrCreate(kind Kind, name, subdir string) *Target {
	if t.dropped[name] {
		return nil
	}
	if ct, ok := t.targets[name]; ok {
		tg := ct.State()
		if tg.Kind != kind || tg.Subdir != subdir {
			seen := []string{
				fmt.Sprintf("a %s in %q", tg.Kind, tg.Subdir),
				fmt.Sprintf("a %s in %q", kind, subdir),
			}
			slices.Sort(seen)
			t.drop(name, min(tg.Subdir, subdir), fmt.Sprintf("is %s in one configuration and %s in another", seen[0], seen[1]))
			return nil
		}
		return tg
	}
	tg := NewTarget(kind, name, subdir)
	t.targets[name] = t.wrap(tg)
	return tg
}

func (t *Tracker) drop(name, subdir, message string) {
	d := Diagnostic{Name: name, Subdir: subdir, Message: message}
	msg.Warn("dropping %s", d)
	t.diags = append(t.diags, d)
	t.dropped[name] = true
	delete(t.targets, name)
}

func (t *Tracker) AddFileGroup(fg extract.FileGroup) {
	if tg := t.getOrCreate(KindFileGroup, fg.Name, fg.Subdir); tg != nil {
		tg.Attr(AttrSrcs).AddConditionalValues(t.labels, fg.Srcs...)
	}
}

func (t *Tracker) AddIncludeDirectory(inc extract.IncludeDirectory) {
	if tg := t.getOrCreate(KindIncludeDirectory, inc.Name, inc.Subdir); tg != nil {
		tg.Attr(AttrDirs).AddConditionalValues(t.labels, inc.Dirs...)
	}
}

func (t *Tracker) AddFlag(f extract.Flag) {
	tg := t.getOrCreate(KindFlag, f.Name, f.Subdir)
	if tg == nil {
		return
	}
	tg.Attr(AttrCFlags).AddConditionalValues(t.labels, f.CFlags...)
	tg.Attr(AttrCppFlags).AddConditionalValues(t.labels, f.CppFlags...)
	tg.Attr(AttrLinkFlags).AddConditionalValues(t.labels, f.LinkFlags...)
}

// AddCustomTarget adds a custom target. Every configuration must produce
// the same record; a target that diverges is dropped.
func (t *Tracker) AddCustomTarget(ct extract.CustomTarget) {
	if existing, ok := t.targets[ct.Name]; ok && !t.dropped[ct.Name] {
		if prev := existing.State().Custom; prev != nil && !prev.Equal(ct) {
			t.drop(ct.Name, ct.Subdir, "custom target differs between configurations")
			return
		}
	}
	tg := t.getOrCreate(KindCustomTarget, ct.Name, ct.Subdir)
	if tg == nil || tg.Custom != nil {
		return
	}
	tg.Custom = &ct
	tg.Native = ct.Native
	tg.InstallDir = ct.InstallDir
	tg.Attr(AttrSrcs).AddCommonValues(ct.Srcs...)
	tg.Attr(AttrOuts).AddCommonValues(ct.Outs...)
	tg.Attr(AttrTools).AddCommonValues(ct.Tools...)
}

func (t *Tracker) AddPythonTarget(p extract.PythonTarget) {
	tg := t.getOrCreate(KindPythonTarget, p.Name, p.Subdir)
	if tg == nil {
		return
	}
	tg.Native = true
	tg.mains = observe(tg.mains, p.Main)
	tg.Main = p.Main
	tg.Attr(AttrSrcs).AddCommonValues(p.Srcs...)
}

func (t *Tracker) AddStaticLibrary(lib extract.StaticLibrary) {
	t.addBuildTarget(KindStaticLibrary, lib.BuildTarget)
}

func (t *Tracker) AddSharedLibrary(lib extract.SharedLibrary) {
	t.addBuildTarget(KindSharedLibrary, lib.BuildTarget)
}

func (t *Tracker) AddExecutable(exe extract.Executable) {
	t.addBuildTarget(KindExecutable, exe.BuildTarget)
}

func (t *Tracker) addBuildTarget(kind Kind, bt extract.BuildTarget) {
	tg := t.getOrCreate(kind, bt.Name, bt.Subdir)
	if tg == nil {
		return
	}
	if bt.Native {
		tg.Native = true
	}
	tg.installDirs = observe(tg.installDirs, bt.InstallDir)
	tg.InstallDir = bt.InstallDir

	labels := t.labelsFor(bt.Native)
	tg.Attr(AttrSrcs).AddConditionalValues(labels, bt.Srcs...)
	tg.Attr(AttrGeneratedHeaders).AddConditionalValues(labels, bt.GeneratedHeaders...)
	tg.Attr(AttrGeneratedSources).AddConditionalValues(labels, bt.GeneratedSources...)
	tg.Attr(AttrHeaderLibs).AddConditionalValues(labels, bt.HeaderLibs...)
	tg.Attr(AttrStaticLibs).AddConditionalValues(labels, bt.StaticLibs...)
	tg.Attr(AttrWholeStaticLibs).AddConditionalValues(labels, bt.WholeStaticLibs...)
	tg.Attr(AttrSharedLibs).AddConditionalValues(labels, bt.SharedLibs...)
	tg.Attr(AttrFlags).AddConditionalValues(labels, bt.Flags...)
}

// Coverage returns the complete dimensions of the sweep so far, as seen by
// host or by native targets.
func (t *Tracker) Coverage(native bool) Coverage {
	observed := t.observed
	if native {
		observed = t.observedNative
	}
	cov := Coverage{Defaults: selects.LabelSet{}}
	if systems := observed.Filter(selects.KindOS); len(systems) > 0 {
		cov.Groups = append(cov.Groups, systems)
	}
	if arch := observed.Filter(selects.KindArch); len(arch) > 0 {
		cov.Groups = append(cov.Groups, arch)
	}
	for _, c := range t.customs {
		cov.Groups = append(cov.Groups, c.Labels())
		cov.Defaults.Add(c.DefaultLabel())
	}
	return cov
}

// Finish drops the targets whose configurations disagree, removes every
// reference to a dropped target and consolidates the rest. Records added
// afterwards are ignored by the consolidated attributes.
func (t *Tracker) Finish() {
	if t.finished {
		return
	}
	t.finished = true
	t.dropConflicts()
	t.dropDangling()
	for _, ct := range t.targets {
		ct.Finish(t.Coverage(ct.State().Native))
	}
}

// dropConflicts drops the targets whose single-valued properties were not
// the same in every configuration that produced them
func (t *Tracker) dropConflicts() {
	for _, name := range slices.Sorted(maps.Keys(t.targets)) {
		tg := t.targets[name].State()
		switch {
		case len(tg.installDirs) > 1:
			t.drop(name, tg.Subdir, "install dir differs between configurations: "+quoteAll(tg.installDirs))
		case len(tg.mains) > 1:
			t.drop(name, tg.Subdir, "python main differs between configurations: "+quoteAll(tg.mains))
		}
	}
}

// dropDangling removes references to dropped targets. A custom target
// whose command needs a dropped target is dropped too.
func (t *Tracker) dropDangling() {
	if len(t.dropped) == 0 {
		return
	}
	for changed := true; changed; {
		changed = false
		for _, name := range slices.Sorted(maps.Keys(t.targets)) {
			tg := t.targets[name].State()
			if tg.Custom == nil {
				continue
			}
			if dep, ok := t.droppedDependency(tg.Custom); ok {
				t.drop(name, tg.Subdir, "needs dropped target "+dep)
				changed = true
			}
		}
	}

	for _, name := range slices.Sorted(maps.Keys(t.targets)) {
		tg := t.targets[name].State()
		for _, attr := range slices.Sorted(maps.Keys(tg.attrs)) {
			if !referenceAttrs[attr] {
				continue
			}
			a := tg.attrs[attr]
			for _, v := range a.Values() {
				ref := v
				if r, ok := extract.IsRef(v); ok {
					ref = r
				} else if attr == AttrSrcs {
					continue
				}
				if !t.dropped[ref] {
					continue
				}
				a.Remove(v)
				d := Diagnostic{Name: name, Subdir: tg.Subdir, Message: fmt.Sprintf("%s no longer lists dropped target %s", attr, ref)}
				msg.Warn("%s", d)
				t.diags = append(t.diags, d)
			}
		}
	}
}

// referenceAttrs are the attributes whose values name other targets. Source
// lists only do so through extract.Ref.
var referenceAttrs = map[string]bool{
	AttrSrcs:             true,
	AttrTools:            true,
	AttrGeneratedHeaders: true,
	AttrGeneratedSources: true,
	AttrHeaderLibs:       true,
	AttrStaticLibs:       true,
	AttrWholeStaticLibs:  true,
	AttrSharedLibs:       true,
	AttrFlags:            true,
}

func (t *Tracker) droppedDependency(c *extract.CustomTarget) (string, bool) {
	var names []string
	for _, s := range c.Srcs {
		if ref, ok := extract.IsRef(s); ok {
			names = append(names, ref)
		}
	}
	names = append(names, c.Tools...)
	for _, tok := range c.Command {
		switch tok.Kind {
		case extract.TokenGenerated, extract.TokenTool, extract.TokenScript:
			names = append(names, tok.Value)
		case extract.TokenInput:
			if ref, ok := extract.IsRef(tok.Value); ok {
				names = append(names, ref)
			}
		}
	}
	for _, n := range names {
		if t.dropped[n] {
			return n, true
		}
	}
	return "", false
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return strings.Join(quoted, ", ")
}

// Targets returns the tracked targets by kind, then name.
func (t *Tracker) Targets() []ConvertTarget {
	out := slices.Collect(maps.Values(t.targets))
	slices.SortFunc(out, func(a, b ConvertTarget) int {
		x, y := a.State(), b.State()
		return cmp.Or(
			cmp.Compare(x.Kind, y.Kind),
			cmp.Compare(x.Name, y.Name),
			cmp.Compare(x.Subdir, y.Subdir),
		)
	})
	return out
}

func (t *Tracker) Lookup(name string) (ConvertTarget, bool) {
	ct, ok := t.targets[name]
	return ct, ok
}

// Dropped reports whether a target was dropped.
func (t *Tracker) Dropped(name string) bool {
	return t.dropped[name]
}

// Diagnostics returns every diagnostic, ordered by target.
func (t *Tracker) Diagnostics() []Diagnostic {
	diags := slices.Clone(t.diags)
	slices.SortStableFunc(diags, func(a, b Diagnostic) int {
		return cmp.Or(
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.Subdir, b.Subdir),
			cmp.Compare(a.Message, b.Message),
		)
	})
	return diags
}
