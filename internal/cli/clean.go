package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/uzulab/drydock/internal/docker"
	"github.com/uzulab/drydock/internal/model"
)

// cleanFlags holds the flag values for the clean command.
type cleanFlags struct {
	// images also removes managed images, not just containers.
	images bool

	// force skips the confirmation prompt.
	force bool

	// app narrows cleanup to one application. Empty cleans every
	// managed resource.
	app string
}

// NewCleanCommand creates the "clean" cobra command.
func NewCleanCommand() *cobra.Command {
	flags := &cleanFlags{}

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove verification containers and optionally images",
		Long: `Remove every container drydock has started, identified purely by
labels. With --images the managed images are removed as well.

A confirmation prompt lists what will be removed; --force skips it.

Examples:
  drydock clean
  drydock clean --images
  drydock clean --app audio-api
  drydock clean --images --force`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.images, "images", false, "Also remove managed images")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Skip the confirmation prompt")
	cmd.Flags().StringVar(&flags.app, "app", "", "Only clean resources of this application")

	return cmd
}

func runClean(ctx context.Context, flags *cleanFlags) error {
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}

	runs, err := docker.ListRuns(ctx, cli, flags.app)
	if err != nil {
		return err
	}

	var images []docker.ImageInfo
	if flags.images {
		images, err = docker.ListManagedImages(ctx, cli, flags.app)
		if err != nil {
			return err
		}
	}

	if len(runs) == 0 && len(images) == 0 {
		if IsJSONOutput() {
			return printJSON(struct {
				ContainersRemoved int `json:"containersRemoved"`
				ImagesRemoved     int `json:"imagesRemoved"`
			}{})
		}
		fmt.Println("Nothing to clean.")
		return nil
	}

	if !flags.force {
		confirmed, err := promptCleanConfirmation(runs, images)
		if err != nil {
			return err
		}
		if !confirmed {
			return model.NewCLIError(model.ExitUserCancelled, "operation cancelled by user")
		}
	}

	for _, run := range runs {
		if run.ContainerStatus == "running" {
			VerboseLog("Stopping container %s", run.ContainerName)
			if err := docker.StopContainer(ctx, cli, run.ContainerID); err != nil {
				return err
			}
		}
		VerboseLog("Removing container %s", run.ContainerName)
		if err := docker.RemoveContainer(ctx, cli, run.ContainerID, true); err != nil {
			return err
		}
	}

	for _, img := range images {
		VerboseLog("Removing image %s", img.Ref())
		if err := docker.RemoveImage(ctx, cli, img.Ref(), true); err != nil {
			return err
		}
	}

	if IsJSONOutput() {
		return printJSON(struct {
			ContainersRemoved int `json:"containersRemoved"`
			ImagesRemoved     int `json:"imagesRemoved"`
		}{ContainersRemoved: len(runs), ImagesRemoved: len(images)})
	}

	fmt.Printf("Removed %d container(s)", len(runs))
	if flags.images {
		fmt.Printf(" and %d image(s)", len(images))
	}
	fmt.Println()
	return nil
}

// promptCleanConfirmation lists what will be removed and reads a
// yes/no answer from stdin.
func promptCleanConfirmation(runs []model.RunInfo, images []docker.ImageInfo) (bool, error) {
	fmt.Println("About to remove:")
	fmt.Printf("  - %d container(s)\n", len(runs))
	for _, run := range runs {
		fmt.Printf("      %s (%s)\n", run.ContainerName, run.ContainerStatus)
	}
	if len(images) > 0 {
		fmt.Printf("  - %d image(s)\n", len(images))
		for _, img := range images {
			fmt.Printf("      %s\n", img.Ref())
		}
	}
	fmt.Print("\nContinue? [y/N] ")

	// bufio.Scanner handles LF and CRLF line endings alike.
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes", nil
	}

	// Closed stdin reads as "no".
	if err := scanner.Err(); err != nil {
		return false, err
	}
	return false, nil
}
