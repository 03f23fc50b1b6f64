package recipe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"github.com/uzulab/drydock/internal/model"
)

// ManifestFileName is the primary manifest file name searched for in a
// project directory. A hidden ".drydock.jsonc" is accepted as an
// alternative.
const ManifestFileName = "drydock.jsonc"

// RawManifest represents the raw JSON structure of a drydock.jsonc
// manifest. Only the fields drydock understands are included; other
// fields are silently ignored during parsing.
//
// The manifest is entirely optional: without one, drydock operates on
// the built-in variant set and derives the application name from the
// context directory.
type RawManifest struct {
	// Name is the application name, used as the image repository in
	// generated tags ("name:variant"). Must be lowercase alphanumeric
	// with hyphens.
	Name string `json:"name,omitempty"`

	// Context is the Docker build context directory, relative to the
	// manifest file. Defaults to the manifest's own directory.
	Context string `json:"context,omitempty"`

	// ASGIApp overrides the uvicorn target for every variant that does
	// not set its own, e.g. "srv.main:application".
	ASGIApp string `json:"asgiApp,omitempty"`

	// HealthPath sets the HTTP path probed during verification for
	// every variant that does not set its own, e.g. "/ping".
	HealthPath string `json:"healthPath,omitempty"`

	// Disable lists built-in variant names to remove from the active
	// set.
	Disable []string `json:"disable,omitempty"`

	// Variants overrides built-ins by name or defines new variants.
	Variants []RawVariant `json:"variants,omitempty"`
}

// RawVariant is a variant entry in the manifest. When the name matches
// a built-in, set fields override that built-in; otherwise the entry
// defines a new variant and must carry at least a base image and a
// port.
//
// Port uses interface{} because the manifest allows several spellings
// for the same strategy (a number, a numeric string, a "$VAR"
// reference, or an explicit object).
type RawVariant struct {
	// Name identifies the variant. Required.
	Name string `json:"name"`

	// BaseImage is the image the build starts FROM.
	BaseImage string `json:"baseImage,omitempty"`

	// AptPackages replaces the variant's Debian package list.
	AptPackages []string `json:"aptPackages,omitempty"`

	// PipExtras replaces the packages appended to the pip install
	// command after "-r requirements.txt".
	PipExtras []string `json:"pipExtras,omitempty"`

	// ASGIApp overrides the uvicorn target for this variant only.
	ASGIApp string `json:"asgiApp,omitempty"`

	// HealthPath overrides the verification HTTP path for this variant
	// only.
	HealthPath string `json:"healthPath,omitempty"`

	// Port declares the port strategy. Accepted forms:
	//   8000               fixed port as a number
	//   "8000"             fixed port as a string
	//   "$PORT"            runtime port from an environment variable
	//   {"kind": "env", "env": "PORT"}
	//   {"kind": "fixed", "number": 8000}
	Port interface{} `json:"port,omitempty"`
}

// LoadManifest reads a drydock.jsonc file, strips JSONC comments, and
// parses it into a RawManifest struct.
//
// Returns a CLIError with ExitManifestInvalid if the file does not
// exist or cannot be parsed.
func LoadManifest(manifestPath string) (*RawManifest, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(
				model.ExitManifestInvalid,
				fmt.Sprintf("manifest not found: %s", manifestPath),
				err,
			)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	// Strip JSONC comments (// and /* */) and trailing commas before
	// parsing. Manifests are hand-edited, so comments are expected.
	cleanJSON := jsonc.ToJSON(data)

	// encoding/json silently ignores fields not defined in the struct,
	// which is the desired behavior for forward compatibility.
	var raw RawManifest
	if err := json.Unmarshal(cleanJSON, &raw); err != nil {
		return nil, model.WrapCLIError(
			model.ExitManifestInvalid,
			fmt.Sprintf("failed to parse manifest at %s", manifestPath),
			err,
		)
	}

	return &raw, nil
}

// FindManifest searches for a manifest in the standard locations
// within a project directory.
//
// The search order:
//  1. <dir>/drydock.jsonc (preferred)
//  2. <dir>/.drydock.jsonc (hidden alternative)
//
// Returns the path of the first file found, or found == false when
// neither location contains one. Absence is not an error: drydock
// falls back to the built-in variant set.
func FindManifest(dir string) (path string, found bool) {
	candidates := []string{
		filepath.Join(dir, ManifestFileName),
		filepath.Join(dir, "."+ManifestFileName),
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}
	return "", false
}

// normalizePort converts the tolerated manifest port spellings into a
// PortSpec. Returns ok == false when the field was absent, meaning the
// variant inherits its port from the built-in it overrides.
func normalizePort(port interface{}) (spec model.PortSpec, ok bool, err error) {
	switch v := port.(type) {
	case nil:
		return model.PortSpec{}, false, nil
	case float64:
		// JSON numbers decode to float64 through interface{}.
		return model.FixedPort(int(v)), true, nil
	case string:
		if name, isEnv := strings.CutPrefix(v, "$"); isEnv {
			return model.EnvPort(name), true, nil
		}
		number, convErr := strconv.Atoi(v)
		if convErr != nil {
			return model.PortSpec{}, false, fmt.Errorf("invalid port %q: want a number or a $VARIABLE reference", v)
		}
		return model.FixedPort(number), true, nil
	case map[string]interface{}:
		return normalizePortObject(v)
	default:
		return model.PortSpec{}, false, fmt.Errorf("invalid port value of type %T", port)
	}
}

// normalizePortObject handles the explicit {"kind": ...} port form.
func normalizePortObject(obj map[string]interface{}) (model.PortSpec, bool, error) {
	kindStr, _ := obj["kind"].(string)
	kind, err := model.ParsePortKind(kindStr)
	if err != nil {
		return model.PortSpec{}, false, err
	}

	switch kind {
	case model.PortFixed:
		number, isNumber := obj["number"].(float64)
		if !isNumber {
			return model.PortSpec{}, false, fmt.Errorf("fixed port object requires a numeric \"number\" field")
		}
		return model.FixedPort(int(number)), true, nil
	default:
		env, isString := obj["env"].(string)
		if !isString || env == "" {
			return model.PortSpec{}, false, fmt.Errorf("env port object requires an \"env\" field")
		}
		return model.EnvPort(env), true, nil
	}
}

// ActiveSet merges a manifest over the built-in variant set and
// returns the final validated variants in presentation order:
// built-ins first (canonical order), then new manifest variants in
// declaration order.
//
// Merge rules:
//   - manifest-level asgiApp / healthPath apply to every built-in,
//   - disable removes built-ins by name (unknown names are an error,
//     they usually indicate a typo),
//   - a variant entry whose name matches an active variant overrides
//     the fields it sets,
//   - any other variant entry defines a new variant and must set
//     baseImage and port.
//
// A nil manifest yields the plain built-in set.
func ActiveSet(raw *RawManifest) ([]model.Variant, error) {
	variants := Builtins()

	if raw == nil {
		return variants, nil
	}

	// Manifest-level defaults rewrite the built-ins before per-variant
	// entries are applied, so an entry can still override them.
	for i := range variants {
		if raw.ASGIApp != "" {
			variants[i].ASGIApp = raw.ASGIApp
		}
		if raw.HealthPath != "" {
			variants[i].HealthPath = raw.HealthPath
		}
	}

	for _, name := range raw.Disable {
		index := indexByName(variants, name)
		if index < 0 {
			return nil, model.NewCLIError(
				model.ExitManifestInvalid,
				fmt.Sprintf("manifest disables unknown variant %q (built-ins: %s)", name, strings.Join(BuiltinNames(), ", ")),
			)
		}
		variants = append(variants[:index], variants[index+1:]...)
	}

	for _, entry := range raw.Variants {
		if entry.Name == "" {
			return nil, model.NewCLIError(model.ExitManifestInvalid, "manifest variant entry is missing a name")
		}

		port, portSet, err := normalizePort(entry.Port)
		if err != nil {
			return nil, model.WrapCLIError(
				model.ExitManifestInvalid,
				fmt.Sprintf("manifest variant %q", entry.Name),
				err,
			)
		}

		if index := indexByName(variants, entry.Name); index >= 0 {
			// Override an active variant in place.
			applyOverride(&variants[index], entry, port, portSet)
			continue
		}

		// New variant: start from the manifest-level defaults and
		// require the fields that have no sensible inherited value.
		variant := model.Variant{
			Name:        entry.Name,
			BaseImage:   entry.BaseImage,
			AptPackages: entry.AptPackages,
			PipExtras:   entry.PipExtras,
			ASGIApp:     entry.ASGIApp,
			HealthPath:  entry.HealthPath,
		}
		if variant.ASGIApp == "" {
			variant.ASGIApp = raw.ASGIApp
		}
		if variant.ASGIApp == "" {
			variant.ASGIApp = DefaultASGIApp
		}
		if variant.HealthPath == "" {
			variant.HealthPath = raw.HealthPath
		}
		if !portSet {
			return nil, model.NewCLIError(
				model.ExitManifestInvalid,
				fmt.Sprintf("manifest variant %q is new and must declare a port", entry.Name),
			)
		}
		variant.Port = port
		variants = append(variants, variant)
	}

	for i := range variants {
		if err := variants[i].Validate(); err != nil {
			return nil, model.WrapCLIError(model.ExitManifestInvalid, "invalid manifest", err)
		}
	}
	return variants, nil
}

// applyOverride copies the fields an override entry sets onto an
// active variant. Slice fields replace wholesale: a manifest that sets
// aptPackages owns the complete list.
func applyOverride(variant *model.Variant, entry RawVariant, port model.PortSpec, portSet bool) {
	if entry.BaseImage != "" {
		variant.BaseImage = entry.BaseImage
	}
	if entry.AptPackages != nil {
		variant.AptPackages = entry.AptPackages
	}
	if entry.PipExtras != nil {
		variant.PipExtras = entry.PipExtras
	}
	if entry.ASGIApp != "" {
		variant.ASGIApp = entry.ASGIApp
	}
	if entry.HealthPath != "" {
		variant.HealthPath = entry.HealthPath
	}
	if portSet {
		variant.Port = port
	}
}

// indexByName returns the index of the named variant, or -1.
func indexByName(variants []model.Variant, name string) int {
	for i := range variants {
		if variants[i].Name == name {
			return i
		}
	}
	return -1
}

// Project is the resolved working set for one invocation: the
// application name, the build context, and the active variants.
type Project struct {
	// AppName is the image repository part of generated tags.
	AppName string `json:"appName"`

	// Context is the absolute path of the Docker build context.
	Context string `json:"context"`

	// ManifestPath is the manifest the project was loaded from, empty
	// when running purely on built-ins.
	ManifestPath string `json:"manifestPath,omitempty"`

	// Variants is the active variant set in presentation order.
	Variants []model.Variant `json:"variants"`
}

// LoadProject resolves the working set for a context directory.
//
// When manifestPath is empty the standard locations inside the context
// directory are searched, and a missing manifest simply means the
// built-in set. An explicitly given manifestPath must exist.
//
// The manifest's own context field, when set, re-points the build
// context relative to the manifest file.
func LoadProject(contextDir, manifestPath string) (*Project, error) {
	absContext, err := filepath.Abs(contextDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve context directory: %w", err)
	}

	var raw *RawManifest
	if manifestPath == "" {
		if found, ok := FindManifest(absContext); ok {
			manifestPath = found
		}
	}
	if manifestPath != "" {
		raw, err = LoadManifest(manifestPath)
		if err != nil {
			return nil, err
		}
		if raw.Context != "" {
			absContext, err = filepath.Abs(filepath.Join(filepath.Dir(manifestPath), raw.Context))
			if err != nil {
				return nil, fmt.Errorf("failed to resolve manifest context: %w", err)
			}
		}
	}

	variants, err := ActiveSet(raw)
	if err != nil {
		return nil, err
	}

	appName := ""
	if raw != nil {
		appName = raw.Name
	}
	if appName == "" {
		appName = SanitizeAppName(filepath.Base(absContext))
	}
	if err := model.ValidateName(appName); err != nil {
		return nil, model.WrapCLIError(model.ExitManifestInvalid, "invalid application name", err)
	}

	return &Project{
		AppName:      appName,
		Context:      absContext,
		ManifestPath: manifestPath,
		Variants:     variants,
	}, nil
}

// Select resolves requested variant names against the project's active
// set, preserving the requested order. An empty request selects every
// active variant. Unknown names produce a CLIError with
// ExitUnknownVariant.
func (p *Project) Select(names []string) ([]model.Variant, error) {
	if len(names) == 0 {
		return p.Variants, nil
	}

	selected := make([]model.Variant, 0, len(names))
	for _, name := range names {
		index := indexByName(p.Variants, name)
		if index < 0 {
			return nil, model.NewCLIError(
				model.ExitUnknownVariant,
				fmt.Sprintf("unknown variant %q (active: %s)", name, strings.Join(p.VariantNames(), ", ")),
			)
		}
		selected = append(selected, p.Variants[index])
	}
	return selected, nil
}

// VariantNames returns the active variant names in presentation order.
func (p *Project) VariantNames() []string {
	names := make([]string, len(p.Variants))
	for i := range p.Variants {
		names[i] = p.Variants[i].Name
	}
	return names
}

// SanitizeAppName derives a valid application name from an arbitrary
// string, typically a directory base name. Uppercase is folded,
// invalid runes become hyphens, and leading/trailing hyphens are
// trimmed. Falls back to "app" when nothing survives.
func SanitizeAppName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}
	if name == "" {
		return "app"
	}
	return name
}
