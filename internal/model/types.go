package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// VerifyStatus represents the outcome of a verification run for one
// variant. A run is "running" while its container is still being
// probed, and settles into "passed" or "failed" once every check has
// reported.
type VerifyStatus string

const (
	// VerifyPassed indicates every check of the run succeeded.
	VerifyPassed VerifyStatus = "passed"

	// VerifyFailed indicates at least one check of the run failed.
	VerifyFailed VerifyStatus = "failed"

	// VerifyRunning indicates the verification container is up but the
	// checks have not finished.
	VerifyRunning VerifyStatus = "running"
)

// String returns the string representation of VerifyStatus.
// This method satisfies the fmt.Stringer interface, enabling
// human-readable output in CLI commands and logging.
func (s VerifyStatus) String() string {
	return string(s)
}

// IsValid checks whether the VerifyStatus value is one of the
// predefined valid states.
func (s VerifyStatus) IsValid() bool {
	switch s {
	case VerifyPassed, VerifyFailed, VerifyRunning:
		return true
	default:
		return false
	}
}

// ParseVerifyStatus converts a string to a VerifyStatus.
// Returns an error if the string does not match any valid status.
func ParseVerifyStatus(s string) (VerifyStatus, error) {
	status := VerifyStatus(strings.ToLower(s))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid verify status: %q (valid: passed, failed, running)", s)
	}
	return status, nil
}

// PortKind distinguishes how a variant learns which port to serve on.
//
// Port resolution:
//   - PortFixed: the port number is baked into the image (EXPOSE + the
//     launch command both carry it).
//   - PortEnv: the port arrives at runtime through an environment
//     variable, so the launch command must pass through a shell for the
//     variable to expand. No EXPOSE is emitted.
type PortKind string

const (
	// PortFixed means the serving port is a literal number known at
	// build time.
	PortFixed PortKind = "fixed"

	// PortEnv means the serving port is read from an environment
	// variable when the container starts.
	PortEnv PortKind = "env"
)

// String returns the string representation of PortKind.
func (k PortKind) String() string {
	return string(k)
}

// IsValid checks whether the PortKind value is one of the
// predefined valid kinds.
func (k PortKind) IsValid() bool {
	switch k {
	case PortFixed, PortEnv:
		return true
	default:
		return false
	}
}

// ParsePortKind converts a string to a PortKind.
// Returns an error if the string does not match any valid kind.
func ParsePortKind(s string) (PortKind, error) {
	kind := PortKind(strings.ToLower(s))
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid port kind: %q (valid: fixed, env)", s)
	}
	return kind, nil
}

// PortSpec describes the port strategy of a variant: either a fixed
// port number known at build time, or the name of an environment
// variable the platform injects at runtime.
type PortSpec struct {
	// Kind selects between a fixed build-time port and a runtime
	// environment variable.
	Kind PortKind `json:"kind"`

	// Number is the fixed port (1-65535). Only meaningful when
	// Kind == PortFixed.
	Number int `json:"number,omitempty"`

	// Env is the environment variable name holding the port at runtime.
	// Only meaningful when Kind == PortEnv.
	Env string `json:"env,omitempty"`
}

// FixedPort builds a PortSpec for a port number known at build time.
func FixedPort(number int) PortSpec {
	return PortSpec{Kind: PortFixed, Number: number}
}

// EnvPort builds a PortSpec for a port injected at runtime through the
// named environment variable.
func EnvPort(name string) PortSpec {
	return PortSpec{Kind: PortEnv, Env: name}
}

// envNameRegex validates environment variable names for env-kind ports.
var envNameRegex = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// Validate checks whether the PortSpec has valid field values.
// Fixed ports must be in the 1-65535 range; env ports must name an
// uppercase environment variable.
func (p *PortSpec) Validate() error {
	switch p.Kind {
	case PortFixed:
		if p.Number < 1 || p.Number > 65535 {
			return fmt.Errorf("port spec: fixed port %d out of range (1-65535)", p.Number)
		}
		if p.Env != "" {
			return fmt.Errorf("port spec: fixed port must not set an environment variable name")
		}
	case PortEnv:
		if p.Env == "" {
			return fmt.Errorf("port spec: env port requires an environment variable name")
		}
		if !envNameRegex.MatchString(p.Env) {
			return fmt.Errorf("port spec: invalid environment variable name %q", p.Env)
		}
		if p.Number != 0 {
			return fmt.Errorf("port spec: env port must not set a fixed number")
		}
	default:
		return fmt.Errorf("port spec: invalid kind %q (valid: fixed, env)", p.Kind)
	}
	return nil
}

// String returns a human-readable representation of the port spec,
// "8000" for fixed ports and "$PORT" for env ports. Used in CLI table
// displays.
func (p *PortSpec) String() string {
	if p.Kind == PortEnv {
		return "$" + p.Env
	}
	return fmt.Sprintf("%d", p.Number)
}

// Variant is one complete image recipe: everything needed to render a
// Dockerfile for the application and to predict the runtime contract
// of the resulting image. This is the primary aggregate entity in the
// domain.
//
// Every variant produces an image that runs as the non-root user
// "user" (uid 1000) with /app as the working directory, installs
// requirements.txt with pip, and starts uvicorn bound to 0.0.0.0 on
// the declared port.
type Variant struct {
	// Name is the unique identifier for this variant, used as the image
	// tag suffix. Must be lowercase alphanumeric with hyphens.
	Name string `json:"name"`

	// BaseImage is the image the build starts FROM. Must carry an
	// explicit tag, e.g. "python:3.10-slim".
	BaseImage string `json:"baseImage"`

	// AptPackages lists the Debian packages installed before the
	// non-root user is created. Empty means no apt layer at all.
	AptPackages []string `json:"aptPackages,omitempty"`

	// PipExtras lists package names appended to the pip install command
	// after "-r requirements.txt". Empty for most variants.
	PipExtras []string `json:"pipExtras,omitempty"`

	// ASGIApp is the uvicorn application target in "module:attribute"
	// form. Defaults to "app:app" when built-ins are used.
	ASGIApp string `json:"asgiApp"`

	// HealthPath is an optional HTTP path probed during verification,
	// e.g. "/ping". When empty, verification stops at a TCP connect.
	HealthPath string `json:"healthPath,omitempty"`

	// Port declares how the image learns its serving port.
	Port PortSpec `json:"port"`
}

// nameRegex validates variant and application names: lowercase
// alphanumeric + hyphens only, must start and end with alphanumeric.
// The charset is restricted so names can be embedded in Docker image
// references without normalization.
var nameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$|^[a-z0-9]$`)

// ValidateName checks if the given name is a valid variant or
// application name. Valid names contain only lowercase alphanumeric
// characters and hyphens, and must start/end with an alphanumeric
// character.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid name %q: must contain only lowercase alphanumeric characters and hyphens, and start/end with alphanumeric", name)
	}
	return nil
}

// aptNameRegex validates Debian package names: lowercase alphanumeric
// plus the "+", "-", "." characters permitted by dpkg.
var aptNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9+.-]*$`)

// asgiAppRegex validates the "module:attribute" uvicorn target, where
// the module part may be dotted.
var asgiAppRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*:[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks whether the Variant is internally consistent:
// name and base image present and well formed, package names in the
// dpkg charset, ASGI target in "module:attribute" form, port spec
// valid, health path absolute when set.
func (v *Variant) Validate() error {
	if err := ValidateName(v.Name); err != nil {
		return fmt.Errorf("variant: %w", err)
	}
	if v.BaseImage == "" {
		return fmt.Errorf("variant %q: base image must not be empty", v.Name)
	}
	if !strings.Contains(afterLastSlash(v.BaseImage), ":") {
		return fmt.Errorf("variant %q: base image %q must carry an explicit tag", v.Name, v.BaseImage)
	}
	for _, pkg := range v.AptPackages {
		if !aptNameRegex.MatchString(pkg) {
			return fmt.Errorf("variant %q: invalid apt package name %q", v.Name, pkg)
		}
	}
	for _, pkg := range v.PipExtras {
		if pkg == "" || strings.ContainsAny(pkg, " \t\n") {
			return fmt.Errorf("variant %q: invalid pip package name %q", v.Name, pkg)
		}
	}
	if v.ASGIApp == "" {
		return fmt.Errorf("variant %q: ASGI app target must not be empty", v.Name)
	}
	if !asgiAppRegex.MatchString(v.ASGIApp) {
		return fmt.Errorf("variant %q: invalid ASGI app target %q (want module:attribute)", v.Name, v.ASGIApp)
	}
	if v.HealthPath != "" && !strings.HasPrefix(v.HealthPath, "/") {
		return fmt.Errorf("variant %q: health path %q must start with /", v.Name, v.HealthPath)
	}
	if err := v.Port.Validate(); err != nil {
		return fmt.Errorf("variant %q: %w", v.Name, err)
	}
	return nil
}

// ImageTag returns the image reference for this variant of the given
// application, in "app:variant" form.
func (v *Variant) ImageTag(app string) string {
	return fmt.Sprintf("%s:%s", app, v.Name)
}

// afterLastSlash returns the final path component of an image
// reference, so a registry host with a port (e.g. "localhost:5000/x")
// does not masquerade as a tag.
func afterLastSlash(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// RunInfo holds runtime information about a verification container.
// All fields are reconstructed from Docker container labels and state
// at query time; nothing is persisted on disk.
type RunInfo struct {
	// RunID is the unique identifier assigned when the verification
	// container was started.
	RunID string `json:"runId"`

	// AppName is the application the run belongs to.
	AppName string `json:"appName"`

	// VariantName is the variant the container was verifying.
	VariantName string `json:"variantName"`

	// ImageTag is the image reference the container was started from.
	ImageTag string `json:"imageTag"`

	// ContainerID is the Docker container identifier.
	ContainerID string `json:"containerId"`

	// ContainerName is the human-readable Docker container name.
	ContainerName string `json:"containerName"`

	// HostPort is the host port published to the container's serving
	// port for the duration of the run.
	HostPort int `json:"hostPort"`

	// ContainerPort is the port the application serves on inside the
	// container.
	ContainerPort int `json:"containerPort"`

	// RecipeDigest is the digest of the variant recipe the image was
	// built from, as recorded on the image at build time.
	RecipeDigest string `json:"recipeDigest,omitempty"`

	// ContainerStatus is the Docker container state (e.g. "running",
	// "exited", "created").
	ContainerStatus string `json:"containerStatus"`

	// CreatedAt is the timestamp when the verification container was
	// started.
	CreatedAt time.Time `json:"createdAt"`
}

// ExitCode defines standard CLI exit codes. These codes allow scripts
// and CI systems to programmatically determine the outcome of a
// command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitManifestInvalid indicates the drydock manifest was not found
	// where one was required, or could not be parsed or validated.
	ExitManifestInvalid ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitLintViolations indicates lint or policy checks reported at
	// least one error-severity finding.
	ExitLintViolations ExitCode = 4

	// ExitBuildFailed indicates a docker build did not complete
	// successfully.
	ExitBuildFailed ExitCode = 5

	// ExitVerifyFailed indicates at least one verification check failed.
	ExitVerifyFailed ExitCode = 6

	// ExitUnknownVariant indicates a requested variant name is not in
	// the active variant set.
	ExitUnknownVariant ExitCode = 7

	// ExitUserCancelled indicates the user cancelled an interactive
	// prompt.
	ExitUserCancelled ExitCode = 8
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
