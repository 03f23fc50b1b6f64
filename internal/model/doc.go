// Package model defines the domain types and value objects for the
// drydock CLI.
//
// This package contains pure data structures with no external dependencies.
// A Variant describes one complete image recipe (base image, system
// packages, Python dependency handling, port strategy, launch target).
// A RunInfo describes a verification container reconstructed from Docker
// labels at runtime. There are no persistent state files: all Docker-side
// state is carried by labels.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
