package docker

import (
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uzulab/drydock/internal/model"
)

// makeTestSummary builds a container summary the way the Docker API
// returns it: name prefixed with "/", metadata in labels.
func makeTestSummary(id, name, state string) container.Summary {
	return container.Summary{
		ID:     id,
		Names:  []string{"/" + name},
		State:  state,
		Labels: BuildRunLabels(makeTestRun()),
	}
}

func TestContainerToRunInfo(t *testing.T) {
	// Arrange
	summary := makeTestSummary("abc123def456", "drydock-audio-api-spaces-a1b2c3d4", "running")

	// Act
	run, err := containerToRunInfo(summary)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "abc123def456", run.ContainerID)
	assert.Equal(t, "drydock-audio-api-spaces-a1b2c3d4", run.ContainerName, "leading slash should be stripped")
	assert.Equal(t, "running", run.ContainerStatus)
	assert.Equal(t, "audio-api", run.AppName)
	assert.Equal(t, "spaces", run.VariantName)
	assert.Equal(t, "a1b2c3d4", run.RunID)
	assert.Equal(t, 17860, run.HostPort)
	assert.Equal(t, 7860, run.ContainerPort)
}

func TestContainerToRunInfo_MalformedLabels(t *testing.T) {
	// Arrange
	summary := makeTestSummary("abc123", "drydock-audio-api-spaces-a1b2c3d4", "exited")
	delete(summary.Labels, LabelRunID)

	// Act
	_, err := containerToRunInfo(summary)

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), LabelRunID)
}

func TestContainerDisplayName(t *testing.T) {
	tests := []struct {
		name     string
		names    []string
		expected string
	}{
		{"with slash prefix", []string{"/drydock-app-slim-x"}, "drydock-app-slim-x"},
		{"without slash prefix", []string{"drydock-app-slim-x"}, "drydock-app-slim-x"},
		{"no names", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual := containerDisplayName(container.Summary{Names: tt.names})
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestGroupRunsByApp(t *testing.T) {
	// Arrange
	runs := []model.RunInfo{
		{RunID: "r1", AppName: "audio-api", VariantName: "slim"},
		{RunID: "r2", AppName: "text-api", VariantName: "full"},
		{RunID: "r3", AppName: "audio-api", VariantName: "spaces"},
	}

	// Act
	groups := GroupRunsByApp(runs)

	// Assert
	require.Len(t, groups, 2)
	assert.Len(t, groups["audio-api"], 2)
	assert.Len(t, groups["text-api"], 1)
	assert.Equal(t, "r1", groups["audio-api"][0].RunID, "group order should follow input order")
	assert.Equal(t, "r3", groups["audio-api"][1].RunID)
}

func TestGroupRunsByApp_Empty(t *testing.T) {
	groups := GroupRunsByApp(nil)
	assert.Empty(t, groups)
}

func TestRunArgs(t *testing.T) {
	// Arrange
	spec := RunSpec{
		Image: "audio-api:cloud",
		Name:  "drydock-audio-api-cloud-a1b2c3d4",
		Labels: map[string]string{
			LabelVariant:   "cloud",
			LabelApp:       "audio-api",
			LabelManagedBy: ManagedByValue,
		},
		HostPort:      18000,
		ContainerPort: 8000,
		Env: map[string]string{
			"PORT":      "8000",
			"LOG_LEVEL": "debug",
		},
	}

	// Act
	args := runArgs(spec)

	// Assert: labels and env sorted by key, image last.
	assert.Equal(t, []string{
		"run", "-d", "--name", "drydock-audio-api-cloud-a1b2c3d4",
		"--label", "drydock.app=audio-api",
		"--label", "drydock.managed-by=drydock",
		"--label", "drydock.variant=cloud",
		"-p", "18000:8000",
		"-e", "LOG_LEVEL=debug",
		"-e", "PORT=8000",
		"audio-api:cloud",
	}, args)
}

func TestRunArgs_NoEnv(t *testing.T) {
	spec := RunSpec{
		Image:         "audio-api:slim",
		Name:          "drydock-audio-api-slim-x",
		HostPort:      18000,
		ContainerPort: 8000,
	}

	args := runArgs(spec)

	assert.Equal(t, []string{
		"run", "-d", "--name", "drydock-audio-api-slim-x",
		"-p", "18000:8000",
		"audio-api:slim",
	}, args)
}

func TestPublishedPort(t *testing.T) {
	assert.Equal(t, "18000:8000", PublishedPort(18000, 8000))
}

func TestListRunsSorting(t *testing.T) {
	// Sorting is exercised through the comparator semantics: newest
	// first, run ID as tiebreaker.
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	runs := []model.RunInfo{
		{RunID: "older", CreatedAt: base.Add(-time.Hour)},
		{RunID: "b-newest", CreatedAt: base},
		{RunID: "a-newest", CreatedAt: base},
	}

	sortRuns(runs)

	require.Len(t, runs, 3)
	assert.Equal(t, "a-newest", runs[0].RunID)
	assert.Equal(t, "b-newest", runs[1].RunID)
	assert.Equal(t, "older", runs[2].RunID)
}
