package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/uzulab/drydock/internal/docker"
	"github.com/uzulab/drydock/internal/model"
	"github.com/uzulab/drydock/internal/port"
	"github.com/uzulab/drydock/internal/verify"
)

// verifyFlags holds the flag values for the verify command.
type verifyFlags struct {
	// keep leaves verification containers running for inspection.
	keep bool

	// timeout bounds each variant's runtime gate.
	timeout time.Duration
}

// NewVerifyCommand creates the "verify" cobra command.
func NewVerifyCommand() *cobra.Command {
	flags := &verifyFlags{}

	cmd := &cobra.Command{
		Use:   "verify [variant...]",
		Short: "Build and verify the selected variants",
		Long: `Verify that each selected variant's image honors the runtime
contract.

Missing or stale images are built first. Verification then runs two
gates per variant: a static inspection of the image (user, workdir,
port, command) and a runtime probe of a short-lived container (TCP
accept, HTTP health, file ownership). The report is always printed;
the command fails when any variant fails a check.

Containers are removed afterwards unless --keep is set.

Examples:
  drydock verify
  drydock verify slim cloud
  drydock verify --keep
  drydock verify --timeout 2m`,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), args, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.keep, "keep", false, "Keep verification containers running afterwards")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", verify.DefaultTimeout, "Per-variant runtime gate timeout")

	return cmd
}

func runVerify(ctx context.Context, args []string, flags *verifyFlags) error {
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

	engine := verify.NewEngine(cli, port.NewAllocator(port.NewScanner(), 0), newLogger(), verify.Options{
		App:     project.AppName,
		Timeout: flags.timeout,
		Keep:    flags.keep,
	})

	reports := make([]verify.Report, 0, len(variants))
	for _, variant := range variants {
		tag, skipped, err := buildVariantImage(ctx, cli, project, variant, "", false)
		if err != nil {
			return err
		}
		if !skipped {
			VerboseLog("Built %s before verification", tag)
		}

		report, err := engine.VerifyVariant(ctx, variant, tag)
		if err != nil {
			return err
		}
		reports = append(reports, report)
	}

	summary := verify.NewSummary(project.AppName, reports)

	if IsJSONOutput() {
		if err := printJSON(summary); err != nil {
			return err
		}
	} else {
		summary.WriteText(os.Stdout)
	}

	if !summary.Passed {
		failed := 0
		for _, report := range summary.Reports {
			if !report.Passed() {
				failed++
			}
		}
		return model.NewCLIError(
			model.ExitVerifyFailed,
			fmt.Sprintf("%d of %d variant(s) failed verification", failed, len(summary.Reports)),
		)
	}
	return nil
}
