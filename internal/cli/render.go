package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/uzulab/drydock/internal/compose"
	"github.com/uzulab/drydock/internal/dockerfile"
	"github.com/uzulab/drydock/internal/model"
	"github.com/uzulab/drydock/internal/recipe"
)

// renderFlags holds the flag values for the render command.
type renderFlags struct {
	// outDir overrides the project context as the output directory.
	outDir string

	// toStdout prints a single rendered Dockerfile instead of writing
	// files.
	toStdout bool

	// withCompose additionally writes a Compose projection of the
	// selected variants.
	withCompose bool

	// watch keeps the process running and re-renders on manifest
	// changes.
	watch bool
}

// NewRenderCommand creates the "render" cobra command.
func NewRenderCommand() *cobra.Command {
	flags := &renderFlags{}

	cmd := &cobra.Command{
		Use:   "render [variant...]",
		Short: "Render Dockerfiles for the selected variants",
		Long: `Render one Dockerfile per selected variant into the context
directory (or --out). With no arguments every active variant is
rendered.

A default .dockerignore is written alongside the Dockerfiles when the
output directory has none. Existing .dockerignore files are never
touched.

Examples:
  drydock render
  drydock render slim cloud
  drydock render --out build/
  drydock render slim --stdout
  drydock render --compose
  drydock render --watch`,

		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.toStdout && len(args) != 1 {
				return model.WrapCLIError(
					model.ExitGeneralError,
					"--stdout renders exactly one variant",
					fmt.Errorf("got %d variant arguments", len(args)),
				)
			}
			if flags.toStdout && flags.withCompose {
				return model.NewCLIError(model.ExitGeneralError, "--stdout and --compose cannot be combined")
			}
			if flags.toStdout && flags.watch {
				return model.NewCLIError(model.ExitGeneralError, "--stdout and --watch cannot be combined")
			}
			return runRender(cmd, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.outDir, "out", "", "Directory to write rendered files to (default: the context directory)")
	cmd.Flags().BoolVar(&flags.toStdout, "stdout", false, "Print the rendered Dockerfile instead of writing it")
	cmd.Flags().BoolVar(&flags.withCompose, "compose", false, "Also write a docker compose projection of the selected variants")
	cmd.Flags().BoolVar(&flags.watch, "watch", false, "Re-render whenever the manifest changes")

	return cmd
}

// renderResult describes one written file for output.
type renderResult struct {
	Variant string `json:"variant,omitempty"`
	Path    string `json:"path"`
}

func runRender(cmd *cobra.Command, args []string, flags *renderFlags) error {
	project, err := loadProject()
	if err != nil {
		return err
	}

	if flags.toStdout {
		return renderToStdout(project, args[0])
	}

	if flags.watch && project.ManifestPath == "" {
		return model.WrapCLIError(
			model.ExitGeneralError,
			"--watch needs a manifest file",
			errors.New("the built-in variant set has no file to watch"),
		)
	}

	outDir := flags.outDir
	if outDir == "" {
		outDir = project.Context
	}

	if err := renderOnce(project, args, outDir, flags.withCompose); err != nil {
		return err
	}

	if flags.watch {
		return watchAndRender(cmd, project, args, outDir, flags.withCompose)
	}
	return nil
}

// renderToStdout writes a single variant's Dockerfile to stdout.
func renderToStdout(project *recipe.Project, name string) error {
	variants, err := project.Select([]string{name})
	if err != nil {
		return err
	}

	content, err := dockerfile.Render(variants[0])
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(content)
	return err
}

// renderOnce renders the selected variants into outDir and reports the
// written files.
func renderOnce(project *recipe.Project, names []string, outDir string, withCompose bool) error {
	variants, err := project.Select(names)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", outDir, err)
	}

	results := make([]renderResult, 0, len(variants)+2)

	for _, variant := range variants {
		content, err := dockerfile.Render(variant)
		if err != nil {
			return fmt.Errorf("rendering variant %s: %w", variant.Name, err)
		}

		path := filepath.Join(outDir, dockerfile.FileName(variant.Name))
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		VerboseLog("Rendered %s (%d bytes)", path, len(content))
		results = append(results, renderResult{Variant: variant.Name, Path: path})
	}

	ignorePath, wrote, err := ensureDockerignore(outDir)
	if err != nil {
		return err
	}
	if wrote {
		results = append(results, renderResult{Path: ignorePath})
	}

	if withCompose {
		content, err := compose.Generate(project.AppName, variants)
		if err != nil {
			return err
		}
		path := filepath.Join(outDir, compose.DefaultFileName)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		results = append(results, renderResult{Path: path})
	}

	if IsJSONOutput() {
		return printJSON(struct {
			App   string         `json:"app"`
			Files []renderResult `json:"files"`
		}{App: project.AppName, Files: results})
	}

	for _, result := range results {
		if result.Variant != "" {
			fmt.Printf("Rendered %-10s %s\n", result.Variant, result.Path)
		} else {
			fmt.Printf("Wrote    %-10s %s\n", "", result.Path)
		}
	}
	return nil
}

// ensureDockerignore writes the default exclusion list when the output
// directory has no .dockerignore yet. Reports whether a file was
// written.
func ensureDockerignore(outDir string) (string, bool, error) {
	path := filepath.Join(outDir, ".dockerignore")

	if _, err := os.Stat(path); err == nil {
		VerboseLog("Keeping existing %s", path)
		return path, false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", false, fmt.Errorf("checking %s: %w", path, err)
	}

	if err := os.WriteFile(path, []byte(dockerfile.Dockerignore), 0o644); err != nil {
		return "", false, fmt.Errorf("writing %s: %w", path, err)
	}
	return path, true, nil
}

// watchAndRender re-renders on every manifest change, blocking until
// interrupted.
func watchAndRender(cmd *cobra.Command, project *recipe.Project, names []string, outDir string, withCompose bool) error {
	reload := func(path string) error {
		reloaded, err := recipe.LoadProject(contextDir, path)
		if err != nil {
			return err
		}
		return renderOnce(reloaded, names, outDir, withCompose)
	}

	watcher, err := recipe.NewWatcher(project.ManifestPath, reload, newLogger())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = watcher.Stop() }()

	fmt.Fprintf(os.Stderr, "Watching %s for changes (Ctrl-C to stop)\n", project.ManifestPath)
	<-ctx.Done()
	return nil
}
