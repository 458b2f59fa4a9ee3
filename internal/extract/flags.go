package extract

import (
	"slices"

	"github.com/qobs-build/hermetic/internal/interp"
)

// options whose value is the following argument
var twoTokenFlags = []string{
	"-include",
	"-isystem",
	"-Xclang",
	"-Xlinker",
	"-framework",
	"-mllvm",
	"-imacros",
	"-iquote",
	"-idirafter",
}

// joinArgs merges each two-token option with its value so the pair moves
// through consolidation as one value.
func joinArgs(args []interp.Arg) []interp.Arg {
	out := make([]interp.Arg, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if slices.Contains(twoTokenFlags, a.Value) && i+1 < len(args) {
			a.Value += " " + args[i+1].Value
			i++
		}
		out = append(out, a)
	}
	return out
}

type language int

const (
	langC language = iota
	langCpp
	langLink
)

// bucketer groups arguments into Flag records. Arguments that came from a
// named variable go to a root level flag named after it, the rest to the
// fallback flag.
type bucketer struct {
	san      *sanitizer
	own      func(string) string
	fallback Flag
	named    map[string]*Flag
	order    []string
	// provided holds values some internal dependency already passes
	provided map[string]bool
}

// newBucketer returns a bucketer whose fallback flag is owned by a target in
// subdir. Global arguments have no owner and pass global = true.
func newBucketer(san *sanitizer, name, subdir string, global bool, provided map[string]bool) *bucketer {
	own := func(v string) string { return san.SanitizeIn(v, subdir) }
	if global {
		own = san.Sanitize
	}
	return &bucketer{
		san:      san,
		own:      own,
		fallback: Flag{Name: name, Subdir: subdir},
		named:    make(map[string]*Flag),
		provided: provided,
	}
}

func (b *bucketer) add(lang language, args []interp.Arg) {
	for _, a := range joinArgs(args) {
		if b.provided[a.Value] {
			continue
		}

		f := &b.fallback
		value := b.own(a.Value)
		if a.Var != "" {
			name := slug(a.Var)
			if _, ok := b.named[name]; !ok {
				b.named[name] = &Flag{Name: name}
				b.order = append(b.order, name)
			}
			f = b.named[name]
			value = b.san.Sanitize(a.Value)
		}

		switch lang {
		case langC:
			f.CFlags = appendUnique(f.CFlags, value)
		case langCpp:
			f.CppFlags = appendUnique(f.CppFlags, value)
		case langLink:
			f.LinkFlags = appendUnique(f.LinkFlags, value)
		}
	}
}

func (b *bucketer) addArgs(args interp.Args) {
	b.add(langC, args.C)
	b.add(langCpp, args.Cpp)
	b.add(langLink, args.Link)
}

// flags returns the non-empty flags: the named ones in first-seen order,
// then the fallback.
func (b *bucketer) flags() []Flag {
	var out []Flag
	for _, name := range b.order {
		if f := b.named[name]; !f.Empty() {
			out = append(out, *f)
		}
	}
	if !b.fallback.Empty() {
		out = append(out, b.fallback)
	}
	return out
}

// argValues returns the joined values of a set of arguments
func argValues(args interp.Args) map[string]bool {
	values := make(map[string]bool)
	for _, list := range [][]interp.Arg{args.C, args.Cpp, args.Link} {
		for _, a := range joinArgs(list) {
			values[a.Value] = true
		}
	}
	return values
}
