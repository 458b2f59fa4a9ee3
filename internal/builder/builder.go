// Package builder runs a conversion: it expands the configuration space,
// extracts every configuration, merges the records and writes the build
// files of the chosen ecosystem.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/qobs-build/hermetic/internal/builder/gen"
	"github.com/qobs-build/hermetic/internal/config"
	"github.com/qobs-build/hermetic/internal/expand"
	"github.com/qobs-build/hermetic/internal/extract"
	"github.com/qobs-build/hermetic/internal/interp"
	"github.com/qobs-build/hermetic/internal/msg"
	"github.com/qobs-build/hermetic/internal/state"
)

const (
	GeneratorSoong = "soong"
	GeneratorBazel = "bazel"
)

// Options controls one conversion
type Options struct {
	Files config.Files
	// ProjectDir is the local source tree of the project
	ProjectDir string
	// OutputDir receives the build files. Defaults to ProjectDir.
	OutputDir string
	Generator string
	// Configurations restricts the sweep to the named [configurations.*]
	// sections; empty means all of them.
	Configurations []string
	// Jobs bounds how many configurations are extracted at once. Zero
	// means one per CPU.
	Jobs int
	// Diff prints what would change instead of writing
	Diff bool
	// DiffOut is where diffs go, msg.Out when nil
	DiffOut io.Writer
}

type Builder struct {
	bundle *config.Bundle
	interp interp.Interpreter
	opts   Options
}

func New(bundle *config.Bundle, in interp.Interpreter, opts Options) *Builder {
	if opts.OutputDir == "" {
		opts.OutputDir = opts.ProjectDir
	}
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.NumCPU()
	}
	if opts.DiffOut == nil {
		opts.DiffOut = msg.Out
	}
	return &Builder{bundle: bundle, interp: in, opts: opts}
}

// Load reads the config documents named by opts and sets up the TOML
// description interpreter.
func Load(opts Options) (*Builder, error) {
	bundle, err := config.Load(opts.Files)
	if err != nil {
		return nil, err
	}
	return New(bundle, interp.NewTOML(bundle.Project.DescriptionFileName()), opts), nil
}

func (b *Builder) Bundle() *config.Bundle { return b.bundle }

// Configurations expands the configuration space of the sweep
func (b *Builder) Configurations() ([]expand.Configuration, error) {
	return expand.FromProject(b.bundle, b.opts.Configurations...)
}

func createGenerator(generator string, project *config.ProjectConfig) (gen.Generator, error) {
	customs, err := project.Selects()
	if err != nil {
		return nil, err
	}
	switch generator {
	case GeneratorSoong:
		return gen.NewSoongGen(project, customs), nil
	case GeneratorBazel:
		return gen.NewBazelGen(project, customs), nil
	default:
		return nil, fmt.Errorf("%w: %q (want %s or %s)", gen.ErrUnsupportedGenerator, generator, GeneratorSoong, GeneratorBazel)
	}
}

// extractAll extracts every configuration, at most opts.Jobs at a time.
// Results are in configuration order.
func (b *Builder) extractAll(ctx context.Context, configs []expand.Configuration) ([]*extract.Records, error) {
	ex := extract.New(b.interp, b.bundle, b.opts.ProjectDir)
	results := make([]*extract.Records, len(configs))

	var mu sync.Mutex
	pb := msg.NewProgressBar(len(configs), 4, msg.Out)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(b.opts.Jobs)
	for i, cfg := range configs {
		eg.Go(func() error {
			msg.Debug("extracting %s", cfg.Name)
			recs, err := ex.Extract(ctx, cfg)
			if err != nil {
				return err
			}
			results[i] = recs

			mu.Lock()
			pb.Step(cfg.Name)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	pb.Finish()
	return results, nil
}

// Generate converts the given configurations into build files. The result
// does not depend on the order of configs.
func (b *Builder) Generate(ctx context.Context, configs []expand.Configuration) ([]gen.File, []state.Diagnostic, error) {
	g, err := createGenerator(b.opts.Generator, b.bundle.Project)
	if err != nil {
		return nil, nil, err
	}
	if len(configs) == 0 {
		return nil, nil, fmt.Errorf("%w: the sweep has no configurations", config.ErrInvalidConfig)
	}

	msg.Info("extracting %d configurations", len(configs))
	results, err := b.extractAll(ctx, configs)
	if err != nil {
		return nil, nil, err
	}

	for i, cfg := range configs {
		g.BeginConfig(cfg)
		g.AddConfig(results[i])
	}
	g.Finish()

	files, err := g.Generate()
	if err != nil {
		return nil, nil, err
	}
	return files, g.Diagnostics(), nil
}

// Build runs the whole sweep and writes (or diffs) the build files.
func (b *Builder) Build(ctx context.Context) error {
	configs, err := b.Configurations()
	if err != nil {
		return err
	}
	files, diags, err := b.Generate(ctx, configs)
	if err != nil {
		return err
	}

	for _, f := range files {
		if b.opts.Diff {
			err = b.diffFile(f)
		} else {
			err = b.writeFile(f)
		}
		if err != nil {
			return err
		}
	}

	if len(diags) > 0 {
		msg.Warn("%d target(s) were dropped", len(diags))
		w := &msg.IndentWriter{Indent: "    ", W: msg.Out}
		for _, d := range diags {
			fmt.Fprintln(w, d)
		}
	}
	if !b.opts.Diff {
		msg.Info("wrote %d files to %s", len(files), b.opts.OutputDir)
	}
	return nil
}

func (b *Builder) outputPath(f gen.File) string {
	return filepath.Join(b.opts.OutputDir, filepath.FromSlash(f.Path))
}

func (b *Builder) writeFile(f gen.File) error {
	p := b.outputPath(f)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	msg.Debug("writing %s", p)
	return os.WriteFile(p, []byte(f.Content), 0644)
}

func (b *Builder) diffFile(f gen.File) error {
	old, err := os.ReadFile(b.outputPath(f))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return writeDiff(b.opts.DiffOut, f.Path, string(old), f.Content)
}
