package recipe

import "github.com/uzulab/drydock/internal/model"

// DefaultASGIApp is the uvicorn target used when neither the manifest
// nor a variant overrides it.
const DefaultASGIApp = "app:app"

// toolchainAptPackages is the system package set needed to compile the
// scientific Python stack from source: C/C++ toolchain, common native
// library headers, and archive tooling.
var toolchainAptPackages = []string{
	"build-essential",
	"curl",
	"libfreetype6-dev",
	"libhdf5-serial-dev",
	"libzmq3-dev",
	"pkg-config",
	"python3-dev",
	"software-properties-common",
	"unzip",
}

// Builtins returns the built-in variant set in canonical order.
//
// The four recipes cover the deployment targets the tool ships for:
//
//   - slim: smallest image, no system packages, serves on 8000.
//   - spaces: Hugging Face Spaces style, ffmpeg for audio work,
//     serves on the conventional 7860.
//   - full: batteries included, the native toolchain plus ffmpeg, and
//     tensorflow installed alongside requirements.txt, serves on 8000.
//   - cloud: PaaS style, native toolchain without ffmpeg, reads the
//     serving port from $PORT at runtime.
//
// The returned slice and its nested slices are fresh copies; callers
// may mutate them freely.
func Builtins() []model.Variant {
	return []model.Variant{
		{
			Name:      "slim",
			BaseImage: "python:3.10-slim",
			ASGIApp:   DefaultASGIApp,
			Port:      model.FixedPort(8000),
		},
		{
			Name:        "spaces",
			BaseImage:   "python:3.10",
			AptPackages: []string{"ffmpeg"},
			ASGIApp:     DefaultASGIApp,
			Port:        model.FixedPort(7860),
		},
		{
			Name:        "full",
			BaseImage:   "python:3.10",
			AptPackages: append(copyStrings(toolchainAptPackages), "ffmpeg"),
			PipExtras:   []string{"tensorflow"},
			ASGIApp:     DefaultASGIApp,
			Port:        model.FixedPort(8000),
		},
		{
			Name:        "cloud",
			BaseImage:   "python:3.10",
			AptPackages: copyStrings(toolchainAptPackages),
			ASGIApp:     DefaultASGIApp,
			Port:        model.EnvPort("PORT"),
		},
	}
}

// BuiltinNames returns the names of the built-in variants in canonical
// order.
func BuiltinNames() []string {
	builtins := Builtins()
	names := make([]string, len(builtins))
	for i, v := range builtins {
		names[i] = v.Name
	}
	return names
}

// copyStrings returns an independent copy of a string slice so the
// package-level package lists cannot be mutated through a Variant.
func copyStrings(src []string) []string {
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}
