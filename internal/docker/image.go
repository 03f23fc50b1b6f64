// image.go implements image operations: building tagged variant images
// with recipe labels, inspecting the runtime contract baked into an
// image, and listing/removing managed images.
//
// Building shells out to "docker build" so BuildKit, credential
// helpers and the user's builder configuration all apply exactly as
// they would on the command line. Inspection goes through the SDK.
package docker

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"github.com/uzulab/drydock/internal/model"
)

// buildErrorTailLines caps how much build output is repeated in an
// error message.
const buildErrorTailLines = 20

// BuildOptions describes one image build.
type BuildOptions struct {
	// ContextDir is the build context directory.
	ContextDir string

	// Dockerfile is the path of the Dockerfile to build.
	Dockerfile string

	// Tag is the image reference to tag the result with.
	Tag string

	// Labels are applied to the image; build them with
	// BuildImageLabels so later builds can compare recipe digests.
	Labels map[string]string

	// Output receives the build output as it streams. When nil the
	// output is captured and surfaces only in error messages.
	Output io.Writer
}

// BuildImage runs "docker build" for the given options.
//
// Returns a model.CLIError with ExitBuildFailed when the build fails;
// with Output unset the message carries the tail of the build output.
func BuildImage(ctx context.Context, opts BuildOptions) error {
	// #nosec G204 -- args are constructed internally, not from user input
	cmd := exec.CommandContext(ctx, "docker", buildArgs(opts)...)

	if opts.Output != nil {
		cmd.Stdout = opts.Output
		cmd.Stderr = opts.Output
		if err := cmd.Run(); err != nil {
			return model.WrapCLIError(
				model.ExitBuildFailed,
				fmt.Sprintf("docker build failed for %q", opts.Tag),
				err,
			)
		}
		return nil
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return model.WrapCLIError(
			model.ExitBuildFailed,
			fmt.Sprintf("docker build failed for %q: %s", opts.Tag, lastLines(string(output), buildErrorTailLines)),
			err,
		)
	}
	return nil
}

// buildArgs assembles the "docker build" argument list. Labels are
// emitted in sorted key order so the invocation is deterministic.
func buildArgs(opts BuildOptions) []string {
	args := []string{"build", "-f", opts.Dockerfile, "-t", opts.Tag}

	labelKeys := make([]string, 0, len(opts.Labels))
	for key := range opts.Labels {
		labelKeys = append(labelKeys, key)
	}
	sort.Strings(labelKeys)
	for _, key := range labelKeys {
		args = append(args, "--label", key+"="+opts.Labels[key])
	}

	return append(args, opts.ContextDir)
}

// lastLines returns the last n non-empty-trimmed lines of s joined by
// newlines.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// ImageRecipeDigest returns the recipe digest recorded on an image at
// build time. The second return reports whether the image exists; a
// missing image is not an error.
func ImageRecipeDigest(ctx context.Context, cli *Client, ref string) (string, bool, error) {
	resp, err := cli.Inner().ImageInspect(ctx, ref)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", false, nil
		}
		return "", false, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to inspect image %q", ref),
			err,
		)
	}

	if resp.Config == nil {
		return "", true, nil
	}
	return resp.Config.Labels[LabelRecipeDigest], true, nil
}

// ImageContract is the runtime-relevant configuration baked into an
// image: who the process runs as, where, what it execs, and which
// ports it declares. Verification compares this against the recipe.
type ImageContract struct {
	User         string
	WorkingDir   string
	ExposedPorts []int
	Cmd          []string
	Env          []string
}

// InspectImageContract reads the runtime contract from an image.
func InspectImageContract(ctx context.Context, cli *Client, ref string) (*ImageContract, error) {
	resp, err := cli.Inner().ImageInspect(ctx, ref)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, fmt.Errorf("image %q not found", ref)
		}
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to inspect image %q", ref),
			err,
		)
	}

	contract := &ImageContract{}
	if resp.Config == nil {
		return contract, nil
	}

	contract.User = resp.Config.User
	contract.WorkingDir = resp.Config.WorkingDir
	contract.Cmd = append([]string(nil), resp.Config.Cmd...)
	contract.Env = append([]string(nil), resp.Config.Env...)

	// Exposed ports arrive as "8000/tcp" keys.
	for portSpec := range resp.Config.ExposedPorts {
		number, err := strconv.Atoi(strings.SplitN(portSpec, "/", 2)[0])
		if err != nil {
			continue
		}
		contract.ExposedPorts = append(contract.ExposedPorts, number)
	}
	sort.Ints(contract.ExposedPorts)

	return contract, nil
}

// ImageInfo summarizes one managed image.
type ImageInfo struct {
	ID           string `json:"id"`
	Tag          string `json:"tag"`
	AppName      string `json:"appName"`
	VariantName  string `json:"variantName"`
	RecipeDigest string `json:"recipeDigest,omitempty"`
}

// Ref returns the reference to address the image by: the tag, or the
// ID for images a rebuild has untagged.
func (i ImageInfo) Ref() string {
	if i.Tag != "" {
		return i.Tag
	}
	return i.ID
}

// ListManagedImages returns the images carrying the drydock management
// label, narrowed to one application when app is non-empty.
func ListManagedImages(ctx context.Context, cli *Client, app string) ([]ImageInfo, error) {
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)
	if app != "" {
		filterArgs.Add("label", LabelApp+"="+app)
	}

	summaries, err := cli.Inner().ImageList(ctx, image.ListOptions{Filters: filterArgs})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker images",
			err,
		)
	}

	infos := make([]ImageInfo, 0, len(summaries))
	for _, s := range summaries {
		info := ImageInfo{
			ID:           s.ID,
			AppName:      s.Labels[LabelApp],
			VariantName:  s.Labels[LabelVariant],
			RecipeDigest: s.Labels[LabelRecipeDigest],
		}
		if len(s.RepoTags) > 0 {
			info.Tag = s.RepoTags[0]
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Tag != infos[j].Tag {
			return infos[i].Tag < infos[j].Tag
		}
		return infos[i].ID < infos[j].ID
	})

	return infos, nil
}

// RemoveImage removes an image by reference. force removes it even
// when tagged in multiple repositories or used by stopped containers.
func RemoveImage(ctx context.Context, cli *Client, ref string, force bool) error {
	_, err := cli.Inner().ImageRemove(ctx, ref, image.RemoveOptions{Force: force})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove image %q", ref),
			err,
		)
	}
	return nil
}
