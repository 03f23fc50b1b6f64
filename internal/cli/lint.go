package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/uzulab/drydock/internal/dockerfile"
	"github.com/uzulab/drydock/internal/model"
	"github.com/uzulab/drydock/internal/policy"
)

// lintFlags holds the flag values for the lint command.
type lintFlags struct {
	// file lints an existing Dockerfile instead of rendered variants.
	file string

	// policyDir adds Rego modules on top of the embedded contract
	// policy.
	policyDir string
}

// NewLintCommand creates the "lint" cobra command.
func NewLintCommand() *cobra.Command {
	flags := &lintFlags{}

	cmd := &cobra.Command{
		Use:   "lint [variant...]",
		Short: "Lint rendered variants or an existing Dockerfile",
		Long: `Run the mechanical Dockerfile checks and the Rego contract policy.

Without --file the selected variants are rendered in memory and each
result is checked against its own runtime contract. With --file an
arbitrary Dockerfile is checked instead; contract rules that need a
variant (ports, base image) are skipped for it.

The command fails when any error-severity finding or policy violation
is reported. Warnings alone do not fail the run.

Examples:
  drydock lint
  drydock lint slim cloud
  drydock lint --file ./Dockerfile
  drydock lint --policy-dir ./policies`,

		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.file != "" && len(args) > 0 {
				return model.NewCLIError(model.ExitGeneralError, "--file cannot be combined with variant arguments")
			}
			return runLint(cmd.Context(), args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.file, "file", "", "Lint this Dockerfile instead of rendered variants")
	cmd.Flags().StringVar(&flags.policyDir, "policy-dir", "", "Directory of additional .rego policy modules")

	return cmd
}

// lintTarget is the lint result for one Dockerfile.
type lintTarget struct {
	// Name is the variant name, or the file path for --file runs.
	Name string `json:"name"`

	Findings   []dockerfile.Finding `json:"findings"`
	Violations []policy.Violation   `json:"violations"`
}

// failed reports whether this target should fail the run.
func (t lintTarget) failed() bool {
	return dockerfile.HasErrors(t.Findings) || len(t.Violations) > 0
}

func runLint(ctx context.Context, args []string, flags *lintFlags) error {
	engine, err := policy.NewDefaultEngine(ctx, flags.policyDir)
	if err != nil {
		return err
	}
	VerboseLog("Policy modules: %v", engine.Modules())

	var targets []lintTarget
	if flags.file != "" {
		target, err := lintFile(ctx, engine, flags.file)
		if err != nil {
			return err
		}
		targets = []lintTarget{target}
	} else {
		targets, err = lintVariants(ctx, engine, args)
		if err != nil {
			return err
		}
	}

	failed := 0
	for _, target := range targets {
		if target.failed() {
			failed++
		}
	}

	if IsJSONOutput() {
		if err := printJSON(struct {
			Targets []lintTarget `json:"targets"`
			Passed  bool         `json:"passed"`
		}{Targets: targets, Passed: failed == 0}); err != nil {
			return err
		}
	} else {
		printLintText(targets, failed)
	}

	if failed > 0 {
		return model.NewCLIError(
			model.ExitLintViolations,
			fmt.Sprintf("%d of %d Dockerfile(s) failed lint", failed, len(targets)),
		)
	}
	return nil
}

// lintFile checks one Dockerfile from disk. No variant context is
// available, so only the baseline policy rules apply.
func lintFile(ctx context.Context, engine *policy.Engine, path string) (lintTarget, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return lintTarget{}, fmt.Errorf("reading %s: %w", path, err)
	}

	instructions := dockerfile.Parse(content)
	violations, err := engine.Evaluate(ctx, instructions, nil)
	if err != nil {
		return lintTarget{}, err
	}

	return lintTarget{
		Name:       filepath.ToSlash(path),
		Findings:   dockerfile.Lint(instructions),
		Violations: violations,
	}, nil
}

// lintVariants renders the selected variants in memory and checks each
// against its runtime contract.
func lintVariants(ctx context.Context, engine *policy.Engine, names []string) ([]lintTarget, error) {
	project, err := loadProject()
	if err != nil {
		return nil, err
	}
	variants, err := project.Select(names)
	if err != nil {
		return nil, err
	}

	targets := make([]lintTarget, 0, len(variants))
	for _, variant := range variants {
		content, err := dockerfile.Render(variant)
		if err != nil {
			return nil, fmt.Errorf("rendering variant %s: %w", variant.Name, err)
		}

		instructions := dockerfile.Parse(content)
		violations, err := engine.Evaluate(ctx, instructions, &variant)
		if err != nil {
			return nil, fmt.Errorf("evaluating policy for %s: %w", variant.Name, err)
		}

		targets = append(targets, lintTarget{
			Name:       variant.Name,
			Findings:   dockerfile.Lint(instructions),
			Violations: violations,
		})
	}
	return targets, nil
}

// printLintText renders per-target findings and a one-line summary.
func printLintText(targets []lintTarget, failed int) {
	for _, target := range targets {
		if len(target.Findings) == 0 && len(target.Violations) == 0 {
			fmt.Printf("%s: clean\n", target.Name)
			continue
		}

		fmt.Printf("%s:\n", target.Name)
		for _, finding := range target.Findings {
			fmt.Printf("  %-8s %-8s %-22s %s\n",
				formatLine(finding.Line), finding.Severity, finding.Rule, finding.Message)
		}
		for _, violation := range target.Violations {
			fmt.Printf("  %-8s %-8s %-22s %s\n",
				formatLine(violation.Line), "policy", violation.Policy, violation.Message)
		}
	}

	fmt.Println()
	if failed == 0 {
		fmt.Printf("%d Dockerfile(s) checked, no errors\n", len(targets))
	} else {
		fmt.Printf("%d of %d Dockerfile(s) failed\n", failed, len(targets))
	}
}

// formatLine renders a 1-based finding line, "-" for whole-file
// findings.
func formatLine(line int) string {
	if line == 0 {
		return "-"
	}
	return fmt.Sprintf("line %d", line)
}
