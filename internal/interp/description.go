package interp

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// description is one parsed build description file
type description struct {
	Subdirs   []string
	Variables map[string][]string
	Global    argsSection
	// kind -> target name -> raw table
	Targets      map[Kind]map[string]map[string]any
	Dependencies map[string]map[string]any
}

var targetTables = map[string]Kind{
	"executable":     Executable,
	"static_library": StaticLibrary,
	"shared_library": SharedLibrary,
	"custom_target":  CustomTarget,
	"python_binary":  PythonBinary,
}

// argsSection defines the [global] section and the argument fields of
// targets and dependencies
type argsSection struct {
	CArgs    []string `toml:"c_args"`
	CppArgs  []string `toml:"cpp_args"`
	LinkArgs []string `toml:"link_args"`
}

// targetSection defines a [<kind>.<name>] section
type targetSection struct {
	Condition            string   `toml:"condition"`
	Native               bool     `toml:"native"`
	Sources              []string `toml:"sources"`
	IncludeDirectories   []string `toml:"include_directories"`
	CArgs                []string `toml:"c_args"`
	CppArgs              []string `toml:"cpp_args"`
	LinkArgs             []string `toml:"link_args"`
	LinkWith             []string `toml:"link_with"`
	LinkWhole            []string `toml:"link_whole"`
	Dependencies         []string `toml:"dependencies"`
	OptionalDependencies []string `toml:"optional_dependencies"`
	Install              bool     `toml:"install"`
	InstallDir           string   `toml:"install_dir"`

	Inputs  []string `toml:"inputs"`
	Outputs []string `toml:"outputs"`
	Command []string `toml:"command"`
	Capture bool     `toml:"capture"`

	Main string `toml:"main"`
}

// dependencySection defines a [dependency.<name>] section
type dependencySection struct {
	Condition          string   `toml:"condition"`
	Sources            []string `toml:"sources"`
	IncludeDirectories []string `toml:"include_directories"`
	CArgs              []string `toml:"c_args"`
	CppArgs            []string `toml:"cpp_args"`
	LinkArgs           []string `toml:"link_args"`
	LinkWith           []string `toml:"link_with"`
	LinkWhole          []string `toml:"link_whole"`
	Dependencies       []string `toml:"dependencies"`
}

func parseDescription(data []byte) (map[string]any, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		if derr, ok := err.(*toml.DecodeError); ok {
			return nil, fmt.Errorf("%s", derr.String())
		}
		return nil, err
	}
	return raw, nil
}

// splitDescription sorts the top level tables of a raw description. Only
// the plain sections are decoded here; target tables stay raw because their
// conditions depend on whether the target is native.
func splitDescription(raw map[string]any, env Env) (*description, error) {
	desc := &description{
		Targets:      make(map[Kind]map[string]map[string]any),
		Dependencies: make(map[string]map[string]any),
	}

	for key, val := range raw {
		switch key {
		case "subdirs":
			list, ok := val.([]any)
			if !ok {
				return nil, fmt.Errorf("subdirs: expected an array")
			}
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("subdirs: expected strings, got %T", item)
				}
				desc.Subdirs = append(desc.Subdirs, s)
			}
		case "variables":
			if err := unmarshalConditionalSection(val, "variables", &desc.Variables, env); err != nil {
				return nil, err
			}
		case "global":
			if err := unmarshalConditionalSection(val, "global", &desc.Global, env); err != nil {
				return nil, err
			}
		case "dependency":
			tables, err := namedTables(val, key)
			if err != nil {
				return nil, err
			}
			desc.Dependencies = tables
		default:
			kind, ok := targetTables[key]
			if !ok {
				return nil, fmt.Errorf("unknown section [%s]", key)
			}
			tables, err := namedTables(val, key)
			if err != nil {
				return nil, err
			}
			desc.Targets[kind] = tables
		}
	}
	return desc, nil
}

func namedTables(val any, section string) (map[string]map[string]any, error) {
	m, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid [%s] section format: expected a table", section)
	}
	out := make(map[string]map[string]any, len(m))
	for name, v := range m {
		t, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid [%s.%s] section format: expected a table", section, name)
		}
		out[name] = t
	}
	return out, nil
}

func mustMarshal(v any) string {
	b, err := toml.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// unmarshalStrict decodes a plain table, rejecting unknown fields
func unmarshalStrict(data map[string]any, dst any) error {
	dec := toml.NewDecoder(strings.NewReader(mustMarshal(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if serr, ok := err.(*toml.StrictMissingError); ok {
			return fmt.Errorf("%s", serr.String())
		}
		return err
	}
	return nil
}

// unmarshalConditionalSection parses a section, then evaluates and merges
// every sub-table whose key is a true expression. Conditions are applied in
// key order so the merged lists are stable.
func unmarshalConditionalSection[T any](data any, name string, dst *T, env Env) error {
	sectionMap, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("invalid [%s] section format: expected a table", name)
	}

	baseFields := make(map[string]any)
	conditionalFields := make(map[string]map[string]any)

	for key, val := range sectionMap {
		if subMap, ok := val.(map[string]any); ok && env.isCondition(key) {
			conditionalFields[key] = subMap
		} else {
			baseFields[key] = val
		}
	}

	if len(baseFields) > 0 {
		if err := unmarshalStrict(baseFields, dst); err != nil {
			return fmt.Errorf("failed to parse [%s] section: %w", name, err)
		}
	}

	for _, expression := range slices.Sorted(maps.Keys(conditionalFields)) {
		matched, err := env.Eval(expression)
		if err != nil {
			return fmt.Errorf("[%s.%q]: %w", name, expression, err)
		}
		if !matched {
			continue
		}

		var condSection T
		if err := unmarshalStrict(conditionalFields[expression], &condSection); err != nil {
			return fmt.Errorf("failed to parse conditional section [%s.%q]: %w", name, expression, err)
		}
		if err := mergeValues(reflect.ValueOf(dst).Elem(), reflect.ValueOf(condSection)); err != nil {
			return fmt.Errorf("failed to merge conditional section [%s.%q]: %w", name, expression, err)
		}
	}

	return nil
}

// mergeValues merges src into dst: slices are appended, maps are merged key
// by key, bools are or'ed and any other non-zero value overwrites.
func mergeValues(dst, src reflect.Value) error {
	if dst.Type() != src.Type() {
		return fmt.Errorf("cannot merge %s into %s", src.Type(), dst.Type())
	}

	switch dst.Kind() {
	case reflect.Struct:
		for i := range src.NumField() {
			dstField := dst.Field(i)
			if !dstField.CanSet() {
				continue
			}
			if err := mergeValues(dstField, src.Field(i)); err != nil {
				return err
			}
		}
	case reflect.Slice:
		if !src.IsNil() {
			dst.Set(reflect.AppendSlice(dst, src))
		}
	case reflect.Map:
		if src.IsNil() {
			return nil
		}
		if dst.IsNil() {
			dst.Set(reflect.MakeMap(dst.Type()))
		}
		iter := src.MapRange()
		for iter.Next() {
			key, val := iter.Key(), iter.Value()
			existing := dst.MapIndex(key)
			if existing.IsValid() && val.Kind() == reflect.Slice {
				merged := reflect.MakeSlice(val.Type(), 0, existing.Len()+val.Len())
				merged = reflect.AppendSlice(merged, existing)
				merged = reflect.AppendSlice(merged, val)
				dst.SetMapIndex(key, merged)
				continue
			}
			dst.SetMapIndex(key, val)
		}
	case reflect.Bool:
		dst.SetBool(dst.Bool() || src.Bool())
	default:
		if !src.IsZero() {
			dst.Set(src)
		}
	}
	return nil
}
