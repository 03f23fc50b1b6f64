// list_test.go covers the pure formatting helpers used by the list
// command and other CLI output. No Docker daemon is required.
package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/uzulab/drydock/internal/model"
)

// TestShortDigest verifies that ShortDigest trims sha256 digests down
// to the 12-character display form used by the variants table.
func TestShortDigest(t *testing.T) {
	tests := []struct {
		name   string
		digest string
		want   string
	}{
		{
			name:   "full sha256 digest",
			digest: "sha256:2f7c1a90b3de4a5f6e7d8c9b0a1f2e3d4c5b6a79887766554433221100ffeedd",
			want:   "2f7c1a90b3de",
		},
		{
			name:   "short hex after prefix passes through",
			digest: "sha256:deadbeef",
			want:   "deadbeef",
		},
		{
			name:   "missing prefix passes through",
			digest: "2f7c1a90b3de4a5f",
			want:   "2f7c1a90b3de4a5f",
		},
		{
			name:   "empty string",
			digest: "",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShortDigest(tt.digest)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestFormatRunPorts verifies the ports column of the runs table.
func TestFormatRunPorts(t *testing.T) {
	tests := []struct {
		name string
		run  model.RunInfo
		want string
	}{
		{
			name: "published port",
			run:  model.RunInfo{HostPort: 18000, ContainerPort: 8000},
			want: "18000:8000",
		},
		{
			name: "no port labels returns dash",
			run:  model.RunInfo{},
			want: "-",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatRunPorts(tt.run)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestFormatPipExtras verifies the pip extras column of the variants
// table.
func TestFormatPipExtras(t *testing.T) {
	tests := []struct {
		name   string
		extras []string
		want   string
	}{
		{
			name:   "nil extras returns dash",
			extras: nil,
			want:   "-",
		},
		{
			name:   "empty extras returns dash",
			extras: []string{},
			want:   "-",
		},
		{
			name:   "single extra",
			extras: []string{"uvloop"},
			want:   "uvloop",
		},
		{
			name:   "multiple extras joined",
			extras: []string{"uvloop", "httptools"},
			want:   "uvloop,httptools",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatPipExtras(tt.extras)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestFormatLine verifies the line column shared by lint findings and
// policy violations.
func TestFormatLine(t *testing.T) {
	assert.Equal(t, "-", formatLine(0))
	assert.Equal(t, "line 4", formatLine(4))
	assert.Equal(t, "line 12", formatLine(12))
}
