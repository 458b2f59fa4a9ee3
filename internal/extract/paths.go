package extract

import (
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/qobs-build/hermetic/internal/interp"
)

// sanitizer rewrites absolute paths of one graph into symbolic tokens
type sanitizer struct {
	sourceRoot    string
	buildRoot     string
	installPrefix string
	genDir        func(subdir string) string
}

func newSanitizer(g *interp.Graph) *sanitizer {
	return &sanitizer{
		sourceRoot:    filepath.ToSlash(g.SourceRoot),
		buildRoot:     filepath.ToSlash(g.BuildRoot),
		installPrefix: filepath.ToSlash(g.InstallPrefix),
		genDir:        func(subdir string) string { return filepath.ToSlash(g.GenDir(subdir)) },
	}
}

// Sanitize replaces every known prefix in value, longest first.
func (s *sanitizer) Sanitize(value string) string {
	return s.sanitize(value, nil)
}

// SanitizeIn is Sanitize for a value owned by a target in subdir: that
// target's build directory becomes the gen dir.
func (s *sanitizer) SanitizeIn(value, subdir string) string {
	gen := s.genDir(subdir)
	return s.sanitize(value, &gen)
}

func (s *sanitizer) sanitize(value string, genDir *string) string {
	type prefix struct{ abs, token string }
	var prefixes []prefix
	if genDir != nil {
		prefixes = append(prefixes, prefix{*genDir, GenDirToken})
	}
	prefixes = append(prefixes,
		prefix{s.buildRoot, BuildDirToken},
		prefix{s.installPrefix, InstallDirToken},
		prefix{s.sourceRoot, ProjectDirToken},
	)
	slices.SortStableFunc(prefixes, func(a, b prefix) int { return len(b.abs) - len(a.abs) })

	value = filepath.ToSlash(value)
	for _, p := range prefixes {
		if p.abs == "" || p.abs == "/" {
			continue
		}
		value = replacePathPrefix(value, p.abs, p.token)
	}
	return value
}

// replacePathPrefix replaces abs wherever it starts a path, so /build
// matches neither /buildroot nor /x/build.
func replacePathPrefix(value, abs, token string) string {
	var sb strings.Builder
	last := 0
	for from := 0; ; {
		i := strings.Index(value[from:], abs)
		if i < 0 {
			break
		}
		i += from
		end := i + len(abs)
		if !insidePath(value, i) && (end == len(value) || value[end] == '/') {
			sb.WriteString(value[last:i])
			sb.WriteString(token)
			last = end
		}
		from = end
	}
	sb.WriteString(value[last:])
	return sb.String()
}

// insidePath reports whether position i of value continues a path that
// started earlier, e.g. the /build of /x/build or of @@BUILD_DIR@@/build.
// Options such as -I/build start a new one.
func insidePath(value string, i int) bool {
	for j := i - 1; j >= 0; j-- {
		switch value[j] {
		case '/', '@':
			return true
		case ' ', '=', ',', ':', ';', '"', '\'':
			return false
		}
	}
	return false
}

// relToSubdir returns an absolute source path relative to a project subdir
// and whether it lives inside it.
func (s *sanitizer) relToSubdir(abs, subdir string) (string, bool) {
	rel, ok := s.projectRel(abs)
	if !ok {
		return "", false
	}
	if subdir == "" {
		return rel, true
	}
	if r, ok := strings.CutPrefix(rel, subdir+"/"); ok {
		return r, true
	}
	return "", false
}

// projectRel returns an absolute path relative to the source root
func (s *sanitizer) projectRel(abs string) (string, bool) {
	abs = filepath.ToSlash(abs)
	if abs == s.sourceRoot {
		return "", true
	}
	rel, ok := strings.CutPrefix(abs, s.sourceRoot+"/")
	return rel, ok
}

// buildRel returns an absolute path relative to the build root
func (s *sanitizer) buildRel(abs string) (string, bool) {
	abs = filepath.ToSlash(abs)
	if abs == s.buildRoot {
		return "", true
	}
	rel, ok := strings.CutPrefix(abs, s.buildRoot+"/")
	return rel, ok
}

// slug turns a path or free-form name into a module name fragment
func slug(s string) string {
	if s == "" {
		return "root"
	}
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

var headerExts = []string{".h", ".hh", ".hpp", ".hxx", ".inc", ".inl"}

func isHeader(name string) bool {
	return slices.Contains(headerExts, path.Ext(name))
}
