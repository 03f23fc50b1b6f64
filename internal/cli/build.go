package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/uzulab/drydock/internal/docker"
	"github.com/uzulab/drydock/internal/dockerfile"
	"github.com/uzulab/drydock/internal/model"
	"github.com/uzulab/drydock/internal/recipe"
)

// buildFlags holds the flag values for the build command.
type buildFlags struct {
	// tagPrefix is prepended to every image tag, e.g. a registry path.
	tagPrefix string

	// force rebuilds even when the image already carries the current
	// recipe digest.
	force bool
}

// NewBuildCommand creates the "build" cobra command.
func NewBuildCommand() *cobra.Command {
	flags := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build [variant...]",
		Short: "Build images for the selected variants",
		Long: `Render each selected variant and build its image with docker build.

Images are tagged <app>:<variant> and labeled with the recipe digest.
A variant whose image already carries the current digest is skipped;
--force rebuilds it anyway. The Dockerfile is rendered to a temporary
location, so files in the context directory are never overwritten.

Examples:
  drydock build
  drydock build slim cloud
  drydock build --force
  drydock build --tag-prefix registry.example.com/team/`,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.tagPrefix, "tag-prefix", "", "Prefix for image tags, e.g. a registry path")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Rebuild even when the recipe digest is unchanged")

	return cmd
}

// buildResult describes one variant's build outcome for output.
type buildResult struct {
	Variant string `json:"variant"`
	Tag     string `json:"tag"`
	Skipped bool   `json:"skipped"`
}

func runBuild(ctx context.Context, args []string, flags *buildFlags) error {
	project, err := loadProject()
	if err != nil {
		return err
	}
	variants, err := project.Select(args)
	if err != nil {
		return err
	}

	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}

	results := make([]buildResult, 0, len(variants))
	for _, variant := range variants {
		tag, skipped, err := buildVariantImage(ctx, cli, project, variant, flags.tagPrefix, flags.force)
		if err != nil {
			return err
		}
		results = append(results, buildResult{Variant: variant.Name, Tag: tag, Skipped: skipped})
	}

	if IsJSONOutput() {
		return printJSON(struct {
			App    string        `json:"app"`
			Builds []buildResult `json:"builds"`
		}{App: project.AppName, Builds: results})
	}

	for _, result := range results {
		if result.Skipped {
			fmt.Printf("Skipped %-10s %s (recipe unchanged)\n", result.Variant, result.Tag)
		} else {
			fmt.Printf("Built   %-10s %s\n", result.Variant, result.Tag)
		}
	}
	return nil
}

// buildVariantImage renders one variant to a temporary Dockerfile and
// builds it against the project context. The build is skipped when the
// existing image already carries the variant's recipe digest, unless
// force is set. Reports the image tag and whether the build was
// skipped.
func buildVariantImage(ctx context.Context, cli *docker.Client, project *recipe.Project, variant model.Variant, tagPrefix string, force bool) (string, bool, error) {
	tag := tagPrefix + variant.ImageTag(project.AppName)
	digest := recipe.Digest(variant)

	if !force {
		existing, found, err := docker.ImageRecipeDigest(ctx, cli, tag)
		if err != nil {
			return "", false, err
		}
		if found && existing == digest {
			VerboseLog("Image %s already at digest %s", tag, digest)
			return tag, true, nil
		}
	}

	content, err := dockerfile.Render(variant)
	if err != nil {
		return "", false, fmt.Errorf("rendering variant %s: %w", variant.Name, err)
	}

	// Build from a temp Dockerfile so the context directory is not
	// touched; docker build accepts -f outside the context.
	tmpDir, err := os.MkdirTemp("", "drydock-build-")
	if err != nil {
		return "", false, fmt.Errorf("creating build scratch directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	dockerfilePath := filepath.Join(tmpDir, dockerfile.FileName(variant.Name))
	if err := os.WriteFile(dockerfilePath, content, 0o644); err != nil {
		return "", false, fmt.Errorf("writing %s: %w", dockerfilePath, err)
	}

	var output io.Writer
	if verbose {
		output = os.Stderr
	}

	VerboseLog("Building %s from %s", tag, dockerfilePath)
	err = docker.BuildImage(ctx, docker.BuildOptions{
		ContextDir: project.Context,
		Dockerfile: dockerfilePath,
		Tag:        tag,
		Labels:     docker.BuildImageLabels(project.AppName, variant.Name, digest),
		Output:     output,
	})
	if err != nil {
		return "", false, err
	}
	return tag, false, nil
}
