package port

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quietBase returns the start of a block of free consecutive ports so
// allocator tests are not disturbed by whatever else runs on the host.
func quietBase(t *testing.T, span int) int {
	t.Helper()
	scanner := NewScanner()

	for candidate := 52000; candidate <= 60000; candidate += span + 1 {
		free := true
		for offset := 0; offset <= span; offset++ {
			if !scanner.IsPortAvailable(candidate+offset, "tcp") {
				free = false
				break
			}
		}
		if free {
			return candidate
		}
	}
	t.Fatalf("no free block of %d consecutive ports found", span+1)
	return 0
}

func TestAllocate_PrefersBasePort(t *testing.T) {
	base := quietBase(t, 4)
	allocator := NewAllocator(NewScanner(), base)

	port, err := allocator.Allocate()
	require.NoError(t, err)

	assert.Equal(t, base, port, "first grant should be the base port when it is free")
}

func TestAllocate_DistinctPorts(t *testing.T) {
	// Arrange
	base := quietBase(t, 8)
	allocator := NewAllocator(NewScanner(), base)

	// Act: one port per variant of a four-variant verify run.
	seen := make(map[int]bool)
	for i := 0; i < 4; i++ {
		port, err := allocator.Allocate()
		require.NoError(t, err)

		// Assert
		assert.False(t, seen[port], "port %d was granted twice", port)
		assert.Equal(t, base+i, port, "grants should walk up from the base port")
		seen[port] = true
	}
}

func TestAllocate_SkipsBusyPort(t *testing.T) {
	// Arrange: occupy the base port so the allocator must move on.
	base := quietBase(t, 4)
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", base))
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()

	allocator := NewAllocator(NewScanner(), base)

	// Act
	port, err := allocator.Allocate()

	// Assert
	require.NoError(t, err)
	assert.NotEqual(t, base, port, "busy base port must be skipped")
	assert.Equal(t, base+1, port, "next port in the block should be granted")
}

func TestAllocate_NeverReusesAfterRelease(t *testing.T) {
	// A granted port stays granted even once nothing listens on it.
	base := quietBase(t, 4)
	allocator := NewAllocator(NewScanner(), base)

	first, err := allocator.Allocate()
	require.NoError(t, err)

	second, err := allocator.Allocate()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestNewAllocator_DefaultBase(t *testing.T) {
	allocator := NewAllocator(NewScanner(), 0)

	port, err := allocator.Allocate()
	require.NoError(t, err)

	assert.GreaterOrEqual(t, port, DefaultBasePort, "zero base should select the default base port")
}
