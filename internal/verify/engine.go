package verify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uzulab/drydock/internal/docker"
	"github.com/uzulab/drydock/internal/dockerfile"
	"github.com/uzulab/drydock/internal/model"
	"github.com/uzulab/drydock/internal/port"
)

const (
	// DefaultTimeout bounds how long a container gets to become ready.
	DefaultTimeout = 60 * time.Second

	// pollInterval is the delay between readiness probes.
	pollInterval = 250 * time.Millisecond

	// probeTimeout bounds one TCP dial or HTTP request.
	probeTimeout = 2 * time.Second

	// cleanupTimeout bounds stopping and removing the verification
	// container, independent of the caller's context.
	cleanupTimeout = 30 * time.Second

	// envVariantPort is the container port assigned to variants that
	// read their serving port from the environment.
	envVariantPort = 8000
)

// Options configures an Engine.
type Options struct {
	// App is the application name verification runs are labeled with.
	App string

	// Timeout bounds the readiness wait per variant. Zero selects
	// DefaultTimeout.
	Timeout time.Duration

	// Keep leaves the verification container running after the checks
	// instead of stopping and removing it.
	Keep bool
}

// Engine runs the verification gates against built variant images.
type Engine struct {
	cli        *docker.Client
	allocator  *port.Allocator
	logger     *slog.Logger
	opts       Options
	httpClient *http.Client
}

// NewEngine creates an Engine. A nil logger selects slog.Default().
func NewEngine(cli *docker.Client, allocator *port.Allocator, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Engine{
		cli:        cli,
		allocator:  allocator,
		logger:     logger,
		opts:       opts,
		httpClient: &http.Client{Timeout: probeTimeout},
	}
}

// VerifyVariant checks one variant's image. The static gate runs
// first; when it fails the runtime gate is skipped and the report
// carries only the static checks.
//
// Check failures are encoded in the report. The error return is
// reserved for infrastructure problems: image missing, daemon
// unreachable, no host port available.
func (e *Engine) VerifyVariant(ctx context.Context, variant model.Variant, imageTag string) (report Report, err error) {
	start := time.Now()
	report = Report{Variant: variant.Name, ImageTag: imageTag, Status: model.VerifyRunning}
	defer func() {
		report.Duration = time.Since(start)
		if err == nil && report.Passed() {
			report.Status = model.VerifyPassed
		} else {
			report.Status = model.VerifyFailed
		}
	}()

	contract, err := docker.InspectImageContract(ctx, e.cli, imageTag)
	if err != nil {
		return report, err
	}

	report.Checks = StaticChecks(contract, variant)
	for _, check := range report.Checks {
		e.logCheck(variant.Name, check)
	}
	if !report.Passed() {
		e.logger.Warn("static checks failed, skipping runtime gate", "variant", variant.Name)
		return report, nil
	}

	err = e.runtimeGate(ctx, variant, imageTag, &report)
	return report, err
}

// StaticChecks compares an image's configuration against what the
// variant's Dockerfile must have produced: non-root user, the app
// working directory, the declared port (fixed variants only) and a
// uvicorn launch command.
func StaticChecks(contract *docker.ImageContract, variant model.Variant) []Check {
	nonRootUID := strconv.Itoa(dockerfile.NonRootUID)
	checks := []Check{}

	userOK := contract.User == dockerfile.NonRootUser || contract.User == nonRootUID
	userCheck := Check{Name: "image-user", OK: userOK}
	if !userOK {
		userCheck.Detail = fmt.Sprintf("user %q, want %q or %q", contract.User, dockerfile.NonRootUser, nonRootUID)
	}
	checks = append(checks, userCheck)

	workdirOK := contract.WorkingDir == dockerfile.AppDir
	workdirCheck := Check{Name: "image-workdir", OK: workdirOK}
	if !workdirOK {
		workdirCheck.Detail = fmt.Sprintf("workdir %q, want %q", contract.WorkingDir, dockerfile.AppDir)
	}
	checks = append(checks, workdirCheck)

	if variant.Port.Kind == model.PortFixed {
		portOK := slices.Contains(contract.ExposedPorts, variant.Port.Number)
		portCheck := Check{Name: "image-port", OK: portOK}
		if !portOK {
			portCheck.Detail = fmt.Sprintf("port %d not exposed (exposed: %v)", variant.Port.Number, contract.ExposedPorts)
		}
		checks = append(checks, portCheck)
	}

	cmdLine := strings.Join(contract.Cmd, " ")
	cmdOK := strings.Contains(cmdLine, "uvicorn")
	cmdCheck := Check{Name: "image-cmd", OK: cmdOK}
	if !cmdOK {
		cmdCheck.Detail = fmt.Sprintf("command %q does not launch uvicorn", cmdLine)
	}
	checks = append(checks, cmdCheck)

	return checks
}

// runtimeGate starts a labeled container for the variant and probes
// it. Results are appended to the report; the container is stopped
// and removed afterwards unless Keep is set.
func (e *Engine) runtimeGate(ctx context.Context, variant model.Variant, imageTag string, report *Report) error {
	hostPort, err := e.allocator.Allocate()
	if err != nil {
		return fmt.Errorf("allocating host port for %s: %w", variant.Name, err)
	}

	containerPort := variant.Port.Number
	env := map[string]string{}
	if variant.Port.Kind == model.PortEnv {
		containerPort = envVariantPort
		env[variant.Port.Env] = strconv.Itoa(containerPort)
	}

	runID := uuid.New().String()[:8]
	report.RunID = runID

	run := model.RunInfo{
		RunID:         runID,
		AppName:       e.opts.App,
		VariantName:   variant.Name,
		ImageTag:      imageTag,
		HostPort:      hostPort,
		ContainerPort: containerPort,
		CreatedAt:     time.Now(),
	}

	spec := docker.RunSpec{
		Image:         imageTag,
		Name:          fmt.Sprintf("drydock-%s-%s-%s", e.opts.App, variant.Name, runID),
		Labels:        docker.BuildRunLabels(run),
		HostPort:      hostPort,
		ContainerPort: containerPort,
		Env:           env,
	}

	e.logger.Info("starting verification container",
		"variant", variant.Name, "name", spec.Name, "hostPort", hostPort)

	containerID, err := docker.RunDetached(ctx, spec)
	if err != nil {
		e.addCheck(report, Check{Name: "container-start", OK: false, Detail: err.Error()})
		return nil
	}
	e.addCheck(report, Check{Name: "container-start", OK: true})

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		e.cleanup(cleanupCtx, containerID, spec.Name)
	}()

	deadline := time.Now().Add(e.opts.Timeout)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(hostPort))

	if err := waitTCPReady(ctx, addr, deadline); err != nil {
		e.addCheck(report, Check{Name: "tcp-ready", OK: false, Detail: err.Error()})
		return nil
	}
	e.addCheck(report, Check{Name: "tcp-ready", OK: true})

	if variant.HealthPath != "" {
		url := fmt.Sprintf("http://%s%s", addr, variant.HealthPath)
		if err := e.probeHealth(ctx, url, deadline); err != nil {
			e.addCheck(report, Check{Name: "http-health", OK: false, Detail: err.Error()})
		} else {
			e.addCheck(report, Check{Name: "http-health", OK: true})
		}
	}

	requirementsPath := dockerfile.AppDir + "/requirements.txt"
	owner, err := docker.ExecFileOwner(ctx, containerID, requirementsPath)
	nonRootUID := strconv.Itoa(dockerfile.NonRootUID)
	switch {
	case err != nil:
		e.addCheck(report, Check{Name: "file-owner", OK: false, Detail: err.Error()})
	case owner != nonRootUID:
		e.addCheck(report, Check{
			Name:   "file-owner",
			OK:     false,
			Detail: fmt.Sprintf("%s owned by uid %s, want %s", requirementsPath, owner, nonRootUID),
		})
	default:
		e.addCheck(report, Check{Name: "file-owner", OK: true})
	}

	return nil
}

// cleanup stops and removes the verification container, or leaves it
// running when Keep is set. Failures are logged, not returned, so a
// cleanup problem never masks the verification result.
func (e *Engine) cleanup(ctx context.Context, containerID, name string) {
	if e.opts.Keep {
		e.logger.Info("keeping verification container", "name", name)
		return
	}
	if err := docker.StopContainer(ctx, e.cli, containerID); err != nil {
		e.logger.Warn("failed to stop verification container", "name", name, "error", err)
	}
	if err := docker.RemoveContainer(ctx, e.cli, containerID, true); err != nil {
		e.logger.Warn("failed to remove verification container", "name", name, "error", err)
	}
}

func (e *Engine) addCheck(report *Report, check Check) {
	report.Checks = append(report.Checks, check)
	e.logCheck(report.Variant, check)
}

func (e *Engine) logCheck(variant string, check Check) {
	if check.OK {
		e.logger.Debug("check passed", "variant", variant, "check", check.Name)
		return
	}
	e.logger.Warn("check failed", "variant", variant, "check", check.Name, "detail", check.Detail)
}

// waitTCPReady polls the address until a TCP connection succeeds, the
// deadline passes, or the context is cancelled.
func waitTCPReady(ctx context.Context, addr string, deadline time.Time) error {
	for {
		conn, err := net.DialTimeout("tcp", addr, probeTimeout)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%s did not accept connections before the deadline: %w", addr, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// probeHealth polls the URL until it answers with a 2xx status, the
// deadline passes, or the context is cancelled. The application may
// still be loading when the TCP listener opens, so non-2xx answers
// and transport errors are retried.
func (e *Engine) probeHealth(ctx context.Context, url string, deadline time.Time) error {
	var lastErr error

	for {
		lastErr = e.probeOnce(ctx, url)
		if lastErr == nil {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("health probe did not succeed before the deadline: %w", lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (e *Engine) probeOnce(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s returned status %d", url, resp.StatusCode)
	}
	return nil
}
