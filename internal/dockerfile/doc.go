// Package dockerfile renders, parses, and lints the Dockerfiles drydock
// manages.
//
// Rendering turns a Variant into deterministic Dockerfile bytes: the
// same recipe always produces the same file. Parsing gives an
// instruction-level view shared by the mechanical linter and the policy
// engine. Linting applies intrinsic best-practice checks; contract
// checks that need to know the variant (port agreement, non-root
// enforcement) live in the policy package.
package dockerfile
