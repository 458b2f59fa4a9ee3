// hermetic cache
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qobs-build/hermetic/internal/builder"
	"github.com/qobs-build/hermetic/internal/index"
	"github.com/qobs-build/hermetic/internal/msg"
)

// loadCache loads the index of fetched remote projects or fails
func loadCache() *index.Index {
	basePath, err := index.DefaultBasePath()
	if err != nil {
		msg.Fatal("could not find the cache directory: %v", err)
	}
	idx, err := index.Load(basePath)
	if err != nil {
		msg.Fatal("failed to load project cache: %v", err)
	}
	return idx
}

func doCacheList() {
	idx := loadCache()
	sources := idx.Sources()
	for i, src := range sources {
		path, _ := idx.Path(src)
		fmt.Printf("%d. %s -> %s\n", i+1, src, path)
	}
	if len(sources) == 0 {
		msg.Info("no cached projects in %s", idx.BasePath())
	}
}

func doCacheRemove(src string) {
	idx := loadCache()

	removed, err := idx.Remove(src)
	if err != nil {
		msg.Fatal("failed to remove %s: %v", src, err)
	}
	if !removed {
		msg.Warn("project %s not found", src)
		return
	}
	if err := idx.Save(); err != nil {
		msg.Fatal("failed to save project cache: %v", err)
	}
	msg.Info("removed project %s", src)
}

func doCacheUpdate(sources []string) {
	idx := loadCache()
	if len(sources) == 0 {
		sources = idx.Sources()
	}
	for _, src := range sources {
		if !idx.Has(src) {
			msg.Warn("project %s not found", src)
			continue
		}
		if _, err := builder.ResolveProjectDir(src, idx, true); err != nil {
			msg.Fatal("%v", err)
		}
		msg.Info("updated %s", src)
	}
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the fetched remote projects",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		doCacheList()
	},
}

var cacheRemoveCmd = &cobra.Command{
	Use:   "remove <source>",
	Short: "Forget a remote project and delete its checkout",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doCacheRemove(args[0])
	},
}

var cacheUpdateCmd = &cobra.Command{
	Use:   "update [source...]",
	Short: "Pull the given remote projects, or all of them",
	Run: func(cmd *cobra.Command, args []string) {
		doCacheUpdate(args)
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the fetched remote projects",
}

func init() {
	// hermetic cache subcommand
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheRemoveCmd)
	cacheCmd.AddCommand(cacheUpdateCmd)
	rootCmd.AddCommand(cacheCmd)
}
