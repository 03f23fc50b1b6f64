// list.go implements the "drydock list" command.
//
// Without flags the command shows the active variant set resolved from
// the manifest (or the built-ins). With --runs it queries Docker for
// verification containers carrying the drydock labels and reconstructs
// their run metadata, including stale runs whose image is gone.
package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/uzulab/drydock/internal/docker"
	"github.com/uzulab/drydock/internal/model"
	"github.com/uzulab/drydock/internal/recipe"
)

// listFlags holds the flag values for the list command.
type listFlags struct {
	// runs switches from listing variants to listing verification
	// containers.
	runs bool

	// app narrows --runs output to one application. Empty lists every
	// managed run.
	app string
}

// NewListCommand creates the "list" cobra command.
func NewListCommand() *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active variants or verification runs",
		Long: `List the active variant set, or with --runs the verification
containers drydock has started.

Variants come from the manifest merged over the built-ins. Runs are
reconstructed purely from Docker labels; no state file is involved.

Examples:
  drydock list
  drydock list --json
  drydock list --runs
  drydock list --runs --app audio-api`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.runs {
				return runListRuns(cmd.Context(), flags)
			}
			return runListVariants()
		},
	}

	cmd.Flags().BoolVar(&flags.runs, "runs", false, "List verification containers instead of variants")
	cmd.Flags().StringVar(&flags.app, "app", "", "With --runs, only show runs of this application")

	return cmd
}

// variantRow pairs a variant with its recipe digest for output.
type variantRow struct {
	model.Variant
	Digest string `json:"digest"`
}

// runListVariants resolves the project and prints the active set.
func runListVariants() error {
	project, err := loadProject()
	if err != nil {
		return err
	}

	VerboseLog("Context: %s", project.Context)
	if project.ManifestPath != "" {
		VerboseLog("Manifest: %s", project.ManifestPath)
	}

	rows := make([]variantRow, 0, len(project.Variants))
	for _, variant := range project.Variants {
		rows = append(rows, variantRow{Variant: variant, Digest: recipe.Digest(variant)})
	}

	if IsJSONOutput() {
		return printJSON(struct {
			App      string       `json:"app"`
			Context  string       `json:"context"`
			Variants []variantRow `json:"variants"`
		}{App: project.AppName, Context: project.Context, Variants: rows})
	}

	printVariantsText(project.AppName, rows)
	return nil
}

// printVariantsText renders the variant table.
//
//	NAME     BASE               PORT    APT  PIP EXTRAS   DIGEST
//	slim     python:3.10-slim   8000    0    -            2f7c1a90b3de
func printVariantsText(app string, rows []variantRow) {
	fmt.Printf("Application: %s\n\n", app)
	fmt.Printf("%-10s %-20s %-8s %-5s %-14s %s\n",
		"NAME", "BASE", "PORT", "APT", "PIP EXTRAS", "DIGEST")

	for _, row := range rows {
		fmt.Printf("%-10s %-20s %-8s %-5d %-14s %s\n",
			row.Name,
			row.BaseImage,
			row.Port.String(),
			len(row.AptPackages),
			FormatPipExtras(row.PipExtras),
			ShortDigest(row.Digest),
		)
	}
}

// runListRuns queries Docker for managed verification containers and
// prints them grouped by application.
func runListRuns(ctx context.Context, flags *listFlags) error {
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	runs, err := docker.ListRuns(ctx, cli, flags.app)
	if err != nil {
		return err
	}
	VerboseLog("Found %d managed container(s)", len(runs))

	if IsJSONOutput() {
		return printJSON(struct {
			Runs []model.RunInfo `json:"runs"`
		}{Runs: runs})
	}

	printRunsText(runs)
	return nil
}

// printRunsText renders the runs grouped by application, each group
// newest first.
func printRunsText(runs []model.RunInfo) {
	if len(runs) == 0 {
		fmt.Println("No verification runs found.")
		return
	}

	groups := docker.GroupRunsByApp(runs)

	apps := make([]string, 0, len(groups))
	for app := range groups {
		apps = append(apps, app)
	}
	sort.Strings(apps)

	for _, app := range apps {
		fmt.Printf("%s:\n", app)
		fmt.Printf("  %-10s %-10s %-36s %-10s %-12s %s\n",
			"VARIANT", "RUN", "CONTAINER", "STATUS", "PORTS", "CREATED")

		for _, run := range groups[app] {
			fmt.Printf("  %-10s %-10s %-36s %-10s %-12s %s\n",
				run.VariantName,
				run.RunID,
				run.ContainerName,
				run.ContainerStatus,
				FormatRunPorts(run),
				run.CreatedAt.Local().Format(time.RFC3339),
			)
		}
		fmt.Println()
	}
}

// FormatRunPorts renders a run's published port mapping, or "-" when
// the run carries no port labels.
func FormatRunPorts(run model.RunInfo) string {
	if run.HostPort == 0 {
		return "-"
	}
	return docker.PublishedPort(run.HostPort, run.ContainerPort)
}

// FormatPipExtras renders the pip extras column, "-" when empty.
func FormatPipExtras(extras []string) string {
	if len(extras) == 0 {
		return "-"
	}
	return strings.Join(extras, ",")
}

// ShortDigest trims "sha256:<64 hex>" to the first 12 hex characters
// for table display. Unrecognized values pass through unchanged.
func ShortDigest(digest string) string {
	const prefix = "sha256:"
	if !strings.HasPrefix(digest, prefix) {
		return digest
	}
	hex := strings.TrimPrefix(digest, prefix)
	if len(hex) <= 12 {
		return hex
	}
	return hex[:12]
}
