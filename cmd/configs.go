// hermetic configs [project]
package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/qobs-build/hermetic/internal/builder"
	"github.com/qobs-build/hermetic/internal/msg"
)

func doConfigs(cmd *cobra.Command, args []string) {
	files, err := configFiles(args)
	if err != nil {
		msg.Fatal("%v", err)
	}
	b, err := builder.Load(builder.Options{Files: files, Configurations: flagConfigurations})
	if err != nil {
		msg.Fatal("%v", err)
	}
	configs, err := b.Configurations()
	if err != nil {
		msg.Fatal("%v", err)
	}

	w := cmd.OutOrStdout()
	for i, c := range configs {
		fmt.Fprintf(w, "%d. %s\n", i+1, color.HiCyanString(c.Name))
		fmt.Fprintf(w, "   host:   %s %s\n", c.HostToolchain, c.Labels)
		if c.BuildToolchain != c.HostToolchain {
			fmt.Fprintf(w, "   build:  %s %s\n", c.BuildToolchain, c.NativeLabels)
		}
	}
	msg.Info("%d configurations", len(configs))
}

var configsCmd = &cobra.Command{
	Use:   "configs [project]",
	Short: "List the configurations a project is swept over",
	Args:  cobra.MaximumNArgs(1),
	Run:   doConfigs,
}

func init() {
	// hermetic configs subcommand
	rootCmd.AddCommand(configsCmd)
	addConfigFlags(configsCmd)
}
