package docker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildArgs(t *testing.T) {
	// Arrange
	opts := BuildOptions{
		ContextDir: "/work/app",
		Dockerfile: "/work/app/Dockerfile.full",
		Tag:        "audio-api:full",
		Labels: map[string]string{
			LabelRecipeDigest: "sha256:cafe",
			LabelApp:          "audio-api",
			LabelManagedBy:    ManagedByValue,
			LabelVariant:      "full",
		},
	}

	// Act
	args := buildArgs(opts)

	// Assert: labels sorted by key, context dir last.
	assert.Equal(t, []string{
		"build",
		"-f", "/work/app/Dockerfile.full",
		"-t", "audio-api:full",
		"--label", "drydock.app=audio-api",
		"--label", "drydock.managed-by=drydock",
		"--label", "drydock.recipe-digest=sha256:cafe",
		"--label", "drydock.variant=full",
		"/work/app",
	}, args)
}

func TestBuildArgs_NoLabels(t *testing.T) {
	args := buildArgs(BuildOptions{
		ContextDir: ".",
		Dockerfile: "Dockerfile.slim",
		Tag:        "app:slim",
	})

	assert.Equal(t, []string{"build", "-f", "Dockerfile.slim", "-t", "app:slim", "."}, args)
}

func TestImageInfoRef(t *testing.T) {
	tagged := ImageInfo{ID: "sha256:abc", Tag: "audio-api:slim"}
	assert.Equal(t, "audio-api:slim", tagged.Ref())

	// A rebuild moves the tag to the new image; the old one stays
	// labeled but untagged and must be addressed by ID.
	untagged := ImageInfo{ID: "sha256:abc"}
	assert.Equal(t, "sha256:abc", untagged.Ref())
}

func TestLastLines(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		n        int
		expected string
	}{
		{
			name:     "fewer lines than limit",
			input:    "one\ntwo\n",
			n:        5,
			expected: "one\ntwo",
		},
		{
			name:     "more lines than limit",
			input:    "one\ntwo\nthree\nfour\n",
			n:        2,
			expected: "three\nfour",
		},
		{
			name:     "single line",
			input:    "error: base image not found\n",
			n:        20,
			expected: "error: base image not found",
		},
		{
			name:     "empty",
			input:    "",
			n:        20,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, lastLines(tt.input, tt.n))
		})
	}
}

func TestLastLines_LongBuildOutput(t *testing.T) {
	// Arrange: simulate a long build log.
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, "step output")
	}
	lines = append(lines, "ERROR: failed to solve")
	input := strings.Join(lines, "\n")

	// Act
	tail := lastLines(input, buildErrorTailLines)

	// Assert
	assert.Len(t, strings.Split(tail, "\n"), buildErrorTailLines)
	assert.True(t, strings.HasSuffix(tail, "ERROR: failed to solve"), "tail should keep the final error line")
}
