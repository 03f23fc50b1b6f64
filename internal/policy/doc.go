// Package policy evaluates Dockerfiles against Rego policies with an
// embedded OPA instance.
//
// The linter in internal/dockerfile checks properties any Dockerfile
// should have; this package checks the contract between a Dockerfile
// and the recipe it was rendered from: non-root execution, a pinned
// base image, and a launch command that serves the declared port. The
// built-in module ships in the binary; additional *.rego modules can
// be loaded from a directory and contribute to the same deny set.
package policy
