package verify

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uzulab/drydock/internal/model"
)

// TestReport_JSONShape pins the wire shape of a report so --json
// consumers can rely on it. Duration serializes as nanoseconds.
func TestReport_JSONShape(t *testing.T) {
	report := Report{
		Variant:  "slim",
		ImageTag: "audio-api:slim",
		RunID:    "a1b2c3d4",
		Checks: []Check{
			{Name: "image-user", OK: true},
			{Name: "http-health", OK: false, Detail: "GET /health returned status 500"},
		},
		Status:   model.VerifyFailed,
		Duration: 1500 * time.Millisecond,
	}

	data, err := json.Marshal(report)
	require.NoError(t, err)

	want := `{"variant":"slim","imageTag":"audio-api:slim","runId":"a1b2c3d4",` +
		`"checks":[{"name":"image-user","ok":true},` +
		`{"name":"http-health","ok":false,"detail":"GET /health returned status 500"}],` +
		`"status":"failed","duration":1500000000}`
	assert.Equal(t, want, string(data))
}

func TestReport_Passed(t *testing.T) {
	tests := []struct {
		name     string
		checks   []Check
		expected bool
	}{
		{
			name:     "all ok",
			checks:   []Check{{Name: "image-user", OK: true}, {Name: "tcp-ready", OK: true}},
			expected: true,
		},
		{
			name:     "one failed",
			checks:   []Check{{Name: "image-user", OK: true}, {Name: "tcp-ready", OK: false}},
			expected: false,
		},
		{
			name:     "no checks",
			checks:   nil,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Report{Checks: tt.checks}
			assert.Equal(t, tt.expected, report.Passed())
		})
	}
}

func TestReport_FailedChecks(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "image-user", OK: true},
		{Name: "tcp-ready", OK: false, Detail: "timeout"},
		{Name: "http-health", OK: false, Detail: "status 500"},
	}}

	failed := report.FailedChecks()

	require.Len(t, failed, 2)
	assert.Equal(t, "tcp-ready", failed[0].Name)
	assert.Equal(t, "http-health", failed[1].Name)
}

func TestNewSummary(t *testing.T) {
	passing := Report{Variant: "slim", Checks: []Check{{Name: "image-user", OK: true}}}
	failing := Report{Variant: "full", Checks: []Check{{Name: "image-user", OK: false}}}

	t.Run("all pass", func(t *testing.T) {
		summary := NewSummary("audio-api", []Report{passing})
		assert.True(t, summary.Passed)
		assert.Equal(t, "audio-api", summary.App)
	})

	t.Run("one fails", func(t *testing.T) {
		summary := NewSummary("audio-api", []Report{passing, failing})
		assert.False(t, summary.Passed)
	})

	t.Run("empty", func(t *testing.T) {
		summary := NewSummary("audio-api", nil)
		assert.True(t, summary.Passed)
	})
}

func TestSummary_WriteText(t *testing.T) {
	// Arrange
	summary := NewSummary("audio-api", []Report{
		{
			Variant:  "slim",
			ImageTag: "audio-api:slim",
			Checks: []Check{
				{Name: "image-user", OK: true},
				{Name: "tcp-ready", OK: true},
			},
			Duration: 1200 * time.Millisecond,
		},
		{
			Variant:  "cloud",
			ImageTag: "audio-api:cloud",
			Checks: []Check{
				{Name: "image-user", OK: true},
				{Name: "http-health", OK: false, Detail: "GET /health returned status 500"},
			},
			Duration: 3 * time.Second,
		},
	})

	// Act
	var buf strings.Builder
	summary.WriteText(&buf)
	output := buf.String()

	// Assert
	assert.Contains(t, output, "slim (audio-api:slim)")
	assert.Contains(t, output, "passed in 1.2s")
	assert.Contains(t, output, "cloud (audio-api:cloud)")
	assert.Contains(t, output, "FAIL  http-health: GET /health returned status 500")
	assert.Contains(t, output, "FAILED in 3s")
	assert.Contains(t, output, "1 of 2 variant(s) passed")
}
