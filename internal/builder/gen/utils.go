package gen

import (
	"strconv"
	"strings"

	"github.com/alessio/shellescape"

	"github.com/qobs-build/hermetic/internal/extract"
)

func write(sb *strings.Builder, s ...string) {
	for _, str := range s {
		sb.WriteString(str)
	}
}

func writeln(sb *strings.Builder, s ...string) {
	for _, str := range s {
		sb.WriteString(str)
	}
	sb.WriteByte('\n')
}

const indent = "    "

// list renders a list literal. Lists with more than one element get one
// element per line, indented one level deeper than prefix.
func list(values []string, prefix string) string {
	switch len(values) {
	case 0:
		return "[]"
	case 1:
		return "[" + strconv.Quote(values[0]) + "]"
	}
	var sb strings.Builder
	writeln(&sb, "[")
	for _, v := range values {
		writeln(&sb, prefix, indent, strconv.Quote(v), ",")
	}
	write(&sb, prefix, "]")
	return sb.String()
}

func mapValues(values []string, f func(string) string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = f(v)
	}
	return out
}

// commandRenderer spells the tokens of a custom command in one ecosystem
type commandRenderer struct {
	genDir   string
	location func(tok extract.CommandToken) string
	output   func(name string) string
	capture  func(outs []string) string
	expand   func(value, genDir string) string
}

// command renders the tokens of a custom command as a shell line
func (r commandRenderer) command(ct *extract.CustomTarget) string {
	parts := make([]string, 0, len(ct.Command)+2)
	for _, tok := range ct.Command {
		switch tok.Kind {
		case extract.TokenLiteral:
			parts = append(parts, shellescape.Quote(r.expand(tok.Value, r.genDir)))
		case extract.TokenInput, extract.TokenGenerated, extract.TokenTool, extract.TokenScript:
			parts = append(parts, r.location(tok))
		case extract.TokenOutput:
			parts = append(parts, r.output(tok.Value))
		}
	}
	if ct.Capture && len(ct.Outs) > 0 {
		parts = append(parts, ">", r.capture(ct.Outs))
	}
	return strings.Join(parts, " ")
}
