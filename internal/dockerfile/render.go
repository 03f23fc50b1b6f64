package dockerfile

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/uzulab/drydock/internal/model"
)

// Runtime contract constants shared by the renderer, the policy
// engine, and verification. Every generated image runs as this user in
// this directory.
const (
	// NonRootUser is the user created during build and active for all
	// steps after system packages are installed.
	NonRootUser = "user"

	// NonRootUID is the numeric uid of NonRootUser.
	NonRootUID = 1000

	// AppDir is the working directory application files are copied to.
	AppDir = "/app"

	// ListenHost is the bind address handed to uvicorn so the server is
	// reachable through the container's published port.
	ListenHost = "0.0.0.0"
)

// dockerfileTemplate is the single instruction skeleton every variant
// renders through. System packages install as root before the non-root
// user exists; everything afterwards runs as that user, so pip places
// packages under /home/user/.local and the PATH extension makes their
// entry points callable.
const dockerfileTemplate = `FROM {{.BaseImage}}
{{- if .AptPackages}}

RUN apt-get update && apt-get install -y --no-install-recommends \
{{- range .AptPackages}}
    {{.}} \
{{- end}}
    && rm -rf /var/lib/apt/lists/*
{{- end}}

RUN useradd -m -u {{.UID}} {{.User}}
USER {{.User}}
ENV PATH="/home/{{.User}}/.local/bin:$PATH"

WORKDIR {{.WorkDir}}

COPY --chown={{.User}} requirements.txt requirements.txt
RUN {{.PipCommand}}

COPY --chown={{.User}} . {{.WorkDir}}

{{if .ExposePort}}EXPOSE {{.ExposePort}}
{{end}}CMD {{.Command}}
`

var tmpl = template.Must(template.New("dockerfile").Parse(dockerfileTemplate))

// templateData carries the precomputed strings the template splices in.
type templateData struct {
	BaseImage   string
	AptPackages []string
	User        string
	UID         int
	WorkDir     string
	PipCommand  string
	ExposePort  int
	Command     string
}

// Render produces the Dockerfile bytes for a variant. Rendering is
// deterministic: apt packages are sorted and every other field maps to
// a fixed position in the skeleton, so the same recipe always yields
// the same bytes.
func Render(v model.Variant) ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}

	data := templateData{
		BaseImage:   v.BaseImage,
		AptPackages: sortedPackages(v.AptPackages),
		User:        NonRootUser,
		UID:         NonRootUID,
		WorkDir:     AppDir,
		PipCommand:  pipCommand(v),
		Command:     execForm(Command(v)),
	}
	if v.Port.Kind == model.PortFixed {
		data.ExposePort = v.Port.Number
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render Dockerfile for %s: %w", v.Name, err)
	}
	return buf.Bytes(), nil
}

// Command returns the container's launch argv for a variant.
//
// Fixed-port variants use plain exec form. Env-port variants wrap
// uvicorn in "sh -c" because the port variable only exists at runtime
// and exec form performs no expansion.
func Command(v model.Variant) []string {
	if v.Port.Kind == model.PortEnv {
		return []string{
			"sh", "-c",
			fmt.Sprintf("uvicorn %s --host %s --port $%s", v.ASGIApp, ListenHost, v.Port.Env),
		}
	}
	return []string{
		"uvicorn", v.ASGIApp,
		"--host", ListenHost,
		"--port", strconv.Itoa(v.Port.Number),
	}
}

// FileName returns the per-variant Dockerfile name, "Dockerfile.slim"
// style, used when rendering to a directory.
func FileName(variantName string) string {
	return "Dockerfile." + variantName
}

// pipCommand builds the dependency install line: requirements.txt
// first, then any extras verbatim on the same command.
func pipCommand(v model.Variant) string {
	cmd := "pip install --no-cache-dir --upgrade -r requirements.txt"
	if len(v.PipExtras) > 0 {
		cmd += " " + strings.Join(v.PipExtras, " ")
	}
	return cmd
}

// execForm renders an argv as a Dockerfile exec-form JSON array.
func execForm(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = strconv.Quote(arg)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// sortedPackages returns a sorted copy so the install list renders in
// a stable order regardless of how the recipe listed them.
func sortedPackages(packages []string) []string {
	sorted := make([]string, len(packages))
	copy(sorted, packages)
	sort.Strings(sorted)
	return sorted
}

// Dockerignore is the default build context exclusion list written
// next to rendered Dockerfiles when the context has none. It keeps
// version control metadata, Python caches, local virtualenvs, and
// drydock's own files out of the image.
const Dockerignore = `.git
.gitignore
.dockerignore
Dockerfile*
__pycache__
*.pyc
*.pyo
.venv
venv
.pytest_cache
.mypy_cache
drydock.jsonc
.drydock.jsonc
`
