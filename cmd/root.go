// hermetic [project], hermetic generate [project]
package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/qobs-build/hermetic/internal/builder"
	"github.com/qobs-build/hermetic/internal/config"
	"github.com/qobs-build/hermetic/internal/index"
	"github.com/qobs-build/hermetic/internal/msg"
)

var (
	flagConfigsRoot    string
	flagConfig         string
	flagToolchain      string
	flagDependencies   string
	flagProjectDir     string
	flagOutputDir      string
	flagConfigurations []string
	flagJobs           int
	flagDiff           bool
	flagUpdate         bool
	flagGenerator      generatorFlag
)

// configFiles returns the config documents of a run: the shortcut's
// triple, with any file given explicitly taking precedence
func configFiles(args []string) (config.Files, error) {
	var files config.Files
	if len(args) > 0 {
		files = config.ResolveShortcut(flagConfigsRoot, args[0])
	}
	if flagConfig != "" {
		files.Config = flagConfig
	}
	if flagToolchain != "" {
		files.Toolchain = flagToolchain
	}
	if flagDependencies != "" {
		files.Dependencies = flagDependencies
	}
	if files.Config == "" || files.Toolchain == "" {
		return files, fmt.Errorf("%w: name a project or pass --config and --toolchain", config.ErrInvalidConfig)
	}
	return files, nil
}

func doGenerate(cmd *cobra.Command, args []string) {
	files, err := configFiles(args)
	if err != nil {
		msg.Fatal("%v", err)
	}

	basePath, err := index.DefaultBasePath()
	if err != nil {
		msg.Fatal("could not find the cache directory: %v", err)
	}
	idx, err := index.Load(basePath)
	if err != nil {
		msg.Fatal("failed to load project cache: %v", err)
	}
	projectDir, err := builder.ResolveProjectDir(flagProjectDir, idx, flagUpdate)
	if err != nil {
		msg.Fatal("%v", err)
	}

	outputDir := flagOutputDir
	if outputDir == "" && builder.IsRemote(flagProjectDir) {
		// never write into the cache
		outputDir = "."
	}

	b, err := builder.Load(builder.Options{
		Files:          files,
		ProjectDir:     projectDir,
		OutputDir:      outputDir,
		Generator:      flagGenerator.String(),
		Configurations: flagConfigurations,
		Jobs:           flagJobs,
		Diff:           flagDiff,
	})
	if err != nil {
		msg.Fatal("%v", err)
	}
	if err := b.Build(context.Background()); err != nil {
		msg.Fatal("%v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hermetic [project]",
	Short: "Convert a configurable build description into Android.bp or BUILD.bazel files",
	Long: `hermetic evaluates a project's build description under every configuration it is
built in and writes one set of Android.bp or BUILD.bazel files whose select()
expressions reproduce each configuration.`,
	Args: cobra.MaximumNArgs(1),
	Run:  doGenerate,
}

var generateCmd = &cobra.Command{
	Use:   "generate [project]",
	Short: "Generate build files for a project",
	Long: `Generate build files for a project. The project names a directory under
--configs-root holding config.toml, toolchains.toml and dependencies.toml.`,
	Args: cobra.MaximumNArgs(1),
	Run:  doGenerate,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&msg.Verbose, "verbose", "v", false, "Print debug output")

	addConfigFlags(rootCmd)
	addGenerateFlags(rootCmd)

	// hermetic generate subcommand
	rootCmd.AddCommand(generateCmd)
	addConfigFlags(generateCmd)
	addGenerateFlags(generateCmd)
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagConfigsRoot, "configs-root", "configs", "Directory holding one config directory per project")
	cmd.Flags().StringVarP(&flagConfig, "config", "c", "", "Project config file")
	cmd.Flags().StringVarP(&flagToolchain, "toolchain", "t", "", "Toolchain config file")
	cmd.Flags().StringVarP(&flagDependencies, "dependencies", "d", "", "Dependency table file")
	cmd.Flags().StringSliceVar(&flagConfigurations, "configuration", nil, "Only sweep the named [configurations.*] sections")
}

func addGenerateFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagProjectDir, "project-dir", "p", ".", "Project source tree, a local path or a remote such as gh:owner/repo@branch#rev")
	cmd.Flags().StringVarP(&flagOutputDir, "output-dir", "o", "", "Where build files are written (default: the project dir)")
	cmd.Flags().VarP(&flagGenerator, "gen", "g", "Ecosystem to generate for, one of "+generatorNames())
	cmd.RegisterFlagCompletionFunc("gen", completeGenerator)
	cmd.Flags().IntVarP(&flagJobs, "jobs", "j", runtime.NumCPU(), "Configurations extracted at once")
	cmd.Flags().BoolVar(&flagDiff, "diff", false, "Print a diff against the existing build files instead of writing")
	cmd.Flags().BoolVar(&flagUpdate, "update", false, "Pull a remote project before converting it")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
