package docker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uzulab/drydock/internal/model"
)

// makeTestRun builds a fully populated RunInfo for label tests.
func makeTestRun() model.RunInfo {
	return model.RunInfo{
		RunID:         "a1b2c3d4",
		AppName:       "audio-api",
		VariantName:   "spaces",
		ImageTag:      "audio-api:spaces",
		HostPort:      17860,
		ContainerPort: 7860,
		RecipeDigest:  "sha256:deadbeef",
		CreatedAt:     time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC),
	}
}

func TestBuildRunLabels(t *testing.T) {
	labels := BuildRunLabels(makeTestRun())

	assert.Equal(t, "drydock", labels[LabelManagedBy])
	assert.Equal(t, "audio-api", labels[LabelApp])
	assert.Equal(t, "spaces", labels[LabelVariant])
	assert.Equal(t, "audio-api:spaces", labels[LabelImage])
	assert.Equal(t, "a1b2c3d4", labels[LabelRunID])
	assert.Equal(t, "17860", labels[LabelHostPort])
	assert.Equal(t, "7860", labels[LabelContainerPort])
	assert.Equal(t, "sha256:deadbeef", labels[LabelRecipeDigest])
	assert.Equal(t, "2026-08-20T10:30:00Z", labels[LabelCreatedAt])
}

func TestBuildRunLabels_OptionalFields(t *testing.T) {
	run := makeTestRun()
	run.HostPort = 0
	run.ContainerPort = 0
	run.RecipeDigest = ""

	labels := BuildRunLabels(run)

	assert.NotContains(t, labels, LabelHostPort)
	assert.NotContains(t, labels, LabelContainerPort)
	assert.NotContains(t, labels, LabelRecipeDigest)
}

func TestBuildRunLabels_NormalizesToUTC(t *testing.T) {
	run := makeTestRun()
	run.CreatedAt = time.Date(2026, 8, 20, 19, 30, 0, 0, time.FixedZone("JST", 9*3600))

	labels := BuildRunLabels(run)

	assert.Equal(t, "2026-08-20T10:30:00Z", labels[LabelCreatedAt])
}

func TestParseRunLabels_Roundtrip(t *testing.T) {
	original := makeTestRun()

	parsed, err := ParseRunLabels(BuildRunLabels(original))
	require.NoError(t, err)

	assert.Equal(t, original.RunID, parsed.RunID)
	assert.Equal(t, original.AppName, parsed.AppName)
	assert.Equal(t, original.VariantName, parsed.VariantName)
	assert.Equal(t, original.ImageTag, parsed.ImageTag)
	assert.Equal(t, original.HostPort, parsed.HostPort)
	assert.Equal(t, original.ContainerPort, parsed.ContainerPort)
	assert.Equal(t, original.RecipeDigest, parsed.RecipeDigest)
	assert.True(t, original.CreatedAt.Equal(parsed.CreatedAt))

	// Runtime-only fields are not carried by labels.
	assert.Empty(t, parsed.ContainerID)
	assert.Empty(t, parsed.ContainerName)
	assert.Empty(t, parsed.ContainerStatus)
}

func TestParseRunLabels_MissingRequired(t *testing.T) {
	required := []string{
		LabelManagedBy,
		LabelApp,
		LabelVariant,
		LabelImage,
		LabelRunID,
		LabelCreatedAt,
	}

	for _, key := range required {
		t.Run(key, func(t *testing.T) {
			labels := BuildRunLabels(makeTestRun())
			delete(labels, key)

			_, err := ParseRunLabels(labels)
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestParseRunLabels_PortsOptional(t *testing.T) {
	labels := BuildRunLabels(makeTestRun())
	delete(labels, LabelHostPort)
	delete(labels, LabelContainerPort)
	delete(labels, LabelRecipeDigest)

	parsed, err := ParseRunLabels(labels)
	require.NoError(t, err)
	assert.Zero(t, parsed.HostPort)
	assert.Zero(t, parsed.ContainerPort)
	assert.Empty(t, parsed.RecipeDigest)
}

func TestParseRunLabels_WrongManagedBy(t *testing.T) {
	labels := BuildRunLabels(makeTestRun())
	labels[LabelManagedBy] = "something-else"

	_, err := ParseRunLabels(labels)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected value")
}

func TestParseRunLabels_MalformedValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad timestamp", LabelCreatedAt, "yesterday"},
		{"bad host port", LabelHostPort, "not-a-port"},
		{"bad container port", LabelContainerPort, "80x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels := BuildRunLabels(makeTestRun())
			labels[tt.key] = tt.value

			_, err := ParseRunLabels(labels)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestBuildImageLabels(t *testing.T) {
	labels := BuildImageLabels("audio-api", "full", "sha256:cafe")

	assert.Equal(t, map[string]string{
		LabelManagedBy:    "drydock",
		LabelApp:          "audio-api",
		LabelVariant:      "full",
		LabelRecipeDigest: "sha256:cafe",
	}, labels)
}
