package interp

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/qobs-build/hermetic/internal/config"
)

// Env is the environment conditional sections and {{...}} templates are
// evaluated in.
type Env struct {
	TargetOS   string          `expr:"target_os"`
	TargetArch string          `expr:"target_arch"`
	CPU        string          `expr:"cpu"`
	Endian     string          `expr:"endian"`
	Toolchain  string          `expr:"toolchain"`
	Native     bool            `expr:"native"`
	Option     map[string]any  `expr:"option"`
	Dep        map[string]bool `expr:"dep"`
}

func newEnv(tcName string, tc config.Toolchain, native bool, options map[string]any, deps map[string]bool) Env {
	if options == nil {
		options = map[string]any{}
	}
	if deps == nil {
		deps = map[string]bool{}
	}
	return Env{
		TargetOS:   tc.HostMachine.System,
		TargetArch: tc.HostMachine.CPUFamily,
		CPU:        tc.HostMachine.CPU,
		Endian:     tc.HostMachine.Endian,
		Toolchain:  tcName,
		Native:     native,
		Option:     options,
		Dep:        deps,
	}
}

// Eval runs a boolean expression. Anything that is not a bool true is false.
func (env Env) Eval(expression string) (bool, error) {
	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return false, fmt.Errorf("failed to compile expression %q: %w", expression, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("failed to run expression %q: %w", expression, err)
	}
	matched, ok := result.(bool)
	return ok && matched, nil
}

// isCondition reports whether a table key is an expression rather than a
// field name.
func (env Env) isCondition(key string) bool {
	_, err := expr.Compile(key, expr.Env(env))
	return err == nil
}

var exprRegex = regexp.MustCompile(`\{\{(.+?)\}\}`)

// evaluateString finds and evaluates all {{...}} expressions in a string
func evaluateString(s string, env Env) (string, error) {
	matches := exprRegex.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var builder strings.Builder
	lastIndex := 0

	for _, m := range matches {
		builder.WriteString(s[lastIndex:m[0]])

		expression := strings.TrimSpace(s[m[2]:m[3]])
		program, err := expr.Compile(expression, expr.Env(env))
		if err != nil {
			return "", fmt.Errorf("failed to compile expression %q: %w", expression, err)
		}
		result, err := expr.Run(program, env)
		if err != nil {
			return "", fmt.Errorf("failed to run expression %q: %w", expression, err)
		}

		fmt.Fprintf(&builder, "%v", result)
		lastIndex = m[1]
	}

	builder.WriteString(s[lastIndex:])
	return builder.String(), nil
}

// processExpressions recursively walks parsed TOML data and evaluates
// templates in strings. Maps and slices are copied so one parsed document can
// be evaluated under several environments.
func processExpressions(data any, env Env) (any, error) {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			processed, err := processExpressions(val, env)
			if err != nil {
				return nil, err
			}
			out[key] = processed
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			processed, err := processExpressions(item, env)
			if err != nil {
				return nil, err
			}
			out[i] = processed
		}
		return out, nil
	case string:
		return evaluateString(v, env)
	default:
		return data, nil
	}
}
