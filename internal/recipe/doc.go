// Package recipe owns the variant catalog: the built-in image recipes,
// the optional drydock.jsonc manifest that overrides or extends them,
// and the digest that identifies a recipe's build-affecting content.
//
// The manifest format supports JSONC (JSON with Comments), so this
// package uses github.com/tidwall/jsonc to strip comments before
// parsing with the standard encoding/json library.
//
// Key responsibilities:
//   - Provide the built-in variant set (slim / spaces / full / cloud)
//   - Load and merge drydock.jsonc (with JSONC support)
//   - Compute stable recipe digests for build skip detection
//   - Watch the manifest for changes (render --watch)
package recipe
