// Package cli implements the cobra-based CLI commands for drydock.
//
// Each subcommand (list, render, lint, build, verify, clean) is
// defined in its own file within this package. This file defines the
// root command, the global flags, and the error-to-exit-code
// translation.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/uzulab/drydock/internal/model"
	"github.com/uzulab/drydock/internal/recipe"
)

// Global flag variables shared across all subcommands. They are bound
// to cobra persistent flags on the root command, which makes them
// available to every subcommand automatically.
var (
	// jsonOutput switches command output to JSON for machine
	// consumption.
	jsonOutput bool

	// verbose enables detailed progress output on stderr.
	verbose bool

	// manifestPath points at an explicit drydock.jsonc. Empty means
	// the standard locations inside the context directory.
	manifestPath string

	// contextDir is the build context directory the commands operate
	// on. Defaults to the current directory.
	contextDir string
)

// Version, Commit and Date are injected from the main package at build
// time via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates and configures the root cobra command. The
// root performs no action itself; functionality lives in the
// subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "drydock",
		Short: "Dockerfile variant manager for Python ASGI services",
		Long: `drydock manages a set of Dockerfile variants for one Python ASGI
service: render them deterministically, lint them against mechanical
checks and Rego policies, build labeled images, and verify that a
built image really serves the app as the non-root user on the
declared port.

All Docker state drydock creates is labeled and discoverable; there
is no state file.`,

		// Errors are formatted by Execute, not by cobra.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&manifestPath, "manifest", "", "Path to drydock.jsonc (default: discovered in the context directory)")
	rootCmd.PersistentFlags().StringVarP(&contextDir, "context", "C", ".", "Build context directory")

	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewRenderCommand())
	rootCmd.AddCommand(NewLintCommand())
	rootCmd.AddCommand(NewBuildCommand())
	rootCmd.AddCommand(NewVerifyCommand())
	rootCmd.AddCommand(NewCleanCommand())

	return rootCmd
}

// Execute runs the root command and translates errors into OS exit
// codes. CLIError values carry their own code; anything else exits 1.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			printError(cliErr.Message, cliErr.Err)
			os.Exit(int(cliErr.Code))
		}

		printError(err.Error(), nil)
		os.Exit(int(model.ExitGeneralError))
	}
}

// printError outputs an error in the format selected by --json.
// Errors go to stderr in both modes; stdout is reserved for command
// output.
func printError(message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		if underlying != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, underlying)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", message)
		}
	}
}

// VerboseLog prints a progress message to stderr only when verbose
// mode is enabled.
func VerboseLog(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput returns whether the --json flag is set. Subcommands use
// this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}

// newLogger builds the slog logger handed to the long-running pieces
// (verify engine, manifest watcher). Verbose mode lowers the level to
// Debug; otherwise only warnings and errors surface.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadProject resolves the working set from the persistent --context
// and --manifest flags.
func loadProject() (*recipe.Project, error) {
	return recipe.LoadProject(contextDir, manifestPath)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
