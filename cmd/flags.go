package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qobs-build/hermetic/internal/builder"
)

// generator describes one value of --gen
type generator struct {
	name string
	help string
}

var generators = []generator{
	{builder.GeneratorBazel, "Generates BUILD.bazel files"},
	{builder.GeneratorSoong, "Generates Android.bp files (default)"},
}

// generatorFlag is the --gen flag. Its zero value selects Soong.
type generatorFlag struct {
	name string
}

func (g *generatorFlag) String() string {
	if g.name == "" {
		return builder.GeneratorSoong
	}
	return g.name
}

func (g *generatorFlag) Type() string { return "generator" }

func (g *generatorFlag) Set(v string) error {
	if !slices.ContainsFunc(generators, func(gen generator) bool { return gen.name == v }) {
		return fmt.Errorf("must be one of %s", generatorNames())
	}
	g.name = v
	return nil
}

func generatorNames() string {
	names := make([]string, len(generators))
	for i, gen := range generators {
		names[i] = gen.name
	}
	return strings.Join(names, ", ")
}

func completeGenerator(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var items []string
	for _, gen := range generators {
		if strings.HasPrefix(gen.name, toComplete) {
			items = append(items, gen.name+"\t"+gen.help)
		}
	}
	return items, cobra.ShellCompDirectiveNoFileComp
}
