package docker

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uzulab/drydock/internal/model"
)

// Label key constants define the Docker label keys that persist run
// and image metadata. Labels are the sole persistence mechanism; a
// container or image can be fully attributed from inspection alone.
//
// All keys share the "drydock." prefix to avoid collisions with labels
// set by other tools.
const (
	// LabelPrefix is the common prefix for all drydock labels.
	LabelPrefix = "drydock."

	// LabelManagedBy identifies objects managed by drydock. This is
	// the primary label used for filtering and discovery.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelApp stores the application name the object belongs to.
	LabelApp = LabelPrefix + "app"

	// LabelVariant stores the variant name the object was built or
	// started for.
	LabelVariant = LabelPrefix + "variant"

	// LabelImage stores the image reference a container was started
	// from.
	LabelImage = LabelPrefix + "image"

	// LabelRunID stores the unique identifier of a verification run.
	LabelRunID = LabelPrefix + "run-id"

	// LabelRecipeDigest stores the digest of the recipe an image was
	// built from. Build skips rebuilding when the digest matches.
	LabelRecipeDigest = LabelPrefix + "recipe-digest"

	// LabelHostPort stores the host port published for the run.
	LabelHostPort = LabelPrefix + "host-port"

	// LabelContainerPort stores the port the app serves on inside the
	// container.
	LabelContainerPort = LabelPrefix + "container-port"

	// LabelCreatedAt stores the RFC3339 timestamp of creation.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the value of LabelManagedBy on every object this
// CLI creates.
const ManagedByValue = "drydock"

// BuildRunLabels constructs the label map applied to a verification
// container. ParseRunLabels reconstructs the run from these labels, so
// together they define the persistence format.
func BuildRunLabels(run model.RunInfo) map[string]string {
	labels := map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelApp:       run.AppName,
		LabelVariant:   run.VariantName,
		LabelImage:     run.ImageTag,
		LabelRunID:     run.RunID,
		LabelCreatedAt: run.CreatedAt.UTC().Format(time.RFC3339),
	}

	if run.HostPort > 0 {
		labels[LabelHostPort] = strconv.Itoa(run.HostPort)
	}
	if run.ContainerPort > 0 {
		labels[LabelContainerPort] = strconv.Itoa(run.ContainerPort)
	}
	if run.RecipeDigest != "" {
		labels[LabelRecipeDigest] = run.RecipeDigest
	}

	return labels
}

// ParseRunLabels reconstructs a RunInfo from container labels. This is
// the inverse of BuildRunLabels.
//
// Required labels: managed-by, app, variant, image, run-id and
// created-at. The port labels and the recipe digest are optional.
// ContainerID, ContainerName and ContainerStatus are not reconstructed
// here; they come from live container state.
func ParseRunLabels(labels map[string]string) (*model.RunInfo, error) {
	requiredKeys := []string{
		LabelManagedBy,
		LabelApp,
		LabelVariant,
		LabelImage,
		LabelRunID,
		LabelCreatedAt,
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	run := &model.RunInfo{
		RunID:        labels[LabelRunID],
		AppName:      labels[LabelApp],
		VariantName:  labels[LabelVariant],
		ImageTag:     labels[LabelImage],
		RecipeDigest: labels[LabelRecipeDigest],
		CreatedAt:    createdAt,
	}

	if value, ok := labels[LabelHostPort]; ok {
		run.HostPort, err = strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid label %s=%q: %w", LabelHostPort, value, err)
		}
	}
	if value, ok := labels[LabelContainerPort]; ok {
		run.ContainerPort, err = strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid label %s=%q: %w", LabelContainerPort, value, err)
		}
	}

	return run, nil
}

// BuildImageLabels constructs the label map applied to an image at
// build time. The recipe digest is what makes rebuilds skippable: a
// later build compares its recipe digest against the image's label.
func BuildImageLabels(app, variantName, recipeDigest string) map[string]string {
	return map[string]string{
		LabelManagedBy:    ManagedByValue,
		LabelApp:          app,
		LabelVariant:      variantName,
		LabelRecipeDigest: recipeDigest,
	}
}
