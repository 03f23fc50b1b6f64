// container.go implements container lifecycle operations for
// verification runs: listing managed containers, starting a container
// for a built image, and stopping/removing it afterwards.
//
// Listing and removal go through the Docker SDK. Starting goes through
// "docker run" because the CLI flag surface maps directly onto the run
// spec, while the SDK would require assembling Config/HostConfig
// structs for no gain.
package docker

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/uzulab/drydock/internal/model"
)

// ListRuns queries the daemon for all containers carrying the drydock
// management label, including stopped ones. When app is non-empty the
// result is narrowed to that application's runs. Filtering happens
// server-side via label filters.
//
// Runs are returned newest first.
func ListRuns(ctx context.Context, cli *Client, app string) ([]model.RunInfo, error) {
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)
	if app != "" {
		filterArgs.Add("label", LabelApp+"="+app)
	}

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	runs := make([]model.RunInfo, 0, len(containers))
	for _, c := range containers {
		run, err := containerToRunInfo(c)
		if err != nil {
			return nil, fmt.Errorf("container %s has malformed drydock labels: %w", containerDisplayName(c), err)
		}
		runs = append(runs, run)
	}

	sortRuns(runs)

	return runs, nil
}

// sortRuns orders runs newest first, with run ID as a tiebreaker for
// stable output.
func sortRuns(runs []model.RunInfo) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].RunID < runs[j].RunID
	})
}

// GroupRunsByApp groups runs by their application name, for listings
// that span multiple projects.
func GroupRunsByApp(runs []model.RunInfo) map[string][]model.RunInfo {
	groups := make(map[string][]model.RunInfo)
	for _, run := range runs {
		groups[run.AppName] = append(groups[run.AppName], run)
	}
	return groups
}

// containerToRunInfo converts a Docker API container summary into a
// RunInfo: labels provide the run metadata, container state provides
// the rest.
func containerToRunInfo(c container.Summary) (model.RunInfo, error) {
	run, err := ParseRunLabels(c.Labels)
	if err != nil {
		return model.RunInfo{}, err
	}

	run.ContainerID = c.ID
	run.ContainerName = containerDisplayName(c)
	run.ContainerStatus = c.State
	return *run, nil
}

// containerDisplayName strips the leading "/" the Docker API prefixes
// onto container names.
func containerDisplayName(c container.Summary) string {
	if len(c.Names) == 0 {
		return ""
	}
	return strings.TrimPrefix(c.Names[0], "/")
}

// RunSpec describes a verification container to start.
type RunSpec struct {
	// Image is the image reference to run.
	Image string

	// Name is the container name.
	Name string

	// Labels are applied to the container; build them with
	// BuildRunLabels so the run can be reconstructed later.
	Labels map[string]string

	// HostPort and ContainerPort define the single published port
	// mapping. Both must be set.
	HostPort      int
	ContainerPort int

	// Env holds extra environment variables, e.g. the serving port
	// for variants that read it at runtime.
	Env map[string]string
}

// RunDetached starts a container with "docker run -d" and returns the
// container ID.
//
// Returns a model.CLIError with ExitDockerNotRunning when the command
// fails, with stderr included in the message.
func RunDetached(ctx context.Context, spec RunSpec) (string, error) {
	stdout, err := runDocker(ctx, runArgs(spec))
	if err != nil {
		return "", err
	}

	// docker run -d prints the full container ID on stdout.
	containerID := strings.TrimSpace(stdout)
	if containerID == "" {
		return "", fmt.Errorf("docker run returned no container ID for %q", spec.Name)
	}
	return containerID, nil
}

// runArgs assembles the "docker run" argument list for a spec. Labels
// and environment variables are emitted in sorted key order so the
// invocation is deterministic.
func runArgs(spec RunSpec) []string {
	args := []string{"run", "-d", "--name", spec.Name}

	labelKeys := make([]string, 0, len(spec.Labels))
	for key := range spec.Labels {
		labelKeys = append(labelKeys, key)
	}
	sort.Strings(labelKeys)
	for _, key := range labelKeys {
		args = append(args, "--label", key+"="+spec.Labels[key])
	}

	args = append(args, "-p", fmt.Sprintf("%d:%d", spec.HostPort, spec.ContainerPort))

	envKeys := make([]string, 0, len(spec.Env))
	for key := range spec.Env {
		envKeys = append(envKeys, key)
	}
	sort.Strings(envKeys)
	for _, key := range envKeys {
		args = append(args, "-e", key+"="+spec.Env[key])
	}

	return append(args, spec.Image)
}

// StopContainer stops a running container via the SDK. The daemon
// sends SIGTERM and escalates to SIGKILL after its default timeout.
func StopContainer(ctx context.Context, cli *Client, containerID string) error {
	err := cli.Inner().ContainerStop(ctx, containerID, container.StopOptions{})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to stop container %q", containerID),
			err,
		)
	}
	return nil
}

// RemoveContainer removes a container via the SDK. force kills a
// still-running container first.
func RemoveContainer(ctx context.Context, cli *Client, containerID string, force bool) error {
	err := cli.Inner().ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force: force,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove container %q", containerID),
			err,
		)
	}
	return nil
}

// ExecFileOwner returns the numeric owner UID of a path inside a
// running container, via "docker exec ... stat".
func ExecFileOwner(ctx context.Context, containerID, path string) (string, error) {
	stdout, err := runDocker(ctx, []string{"exec", containerID, "stat", "-c", "%u", path})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(stdout), nil
}

// runDocker executes the docker CLI with the given arguments. stdout
// is returned on success; on failure the error message carries
// trimmed stderr.
func runDocker(ctx context.Context, args []string) (string, error) {
	// #nosec G204 -- args are constructed internally, not from user input
	cmd := exec.CommandContext(ctx, "docker", args...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("docker %s failed", firstArg(args))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		return "", model.WrapCLIError(model.ExitDockerNotRunning, message, err)
	}

	return stdout.String(), nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// PublishedPort formats a host:container mapping for display.
func PublishedPort(hostPort, containerPort int) string {
	return strconv.Itoa(hostPort) + ":" + strconv.Itoa(containerPort)
}
