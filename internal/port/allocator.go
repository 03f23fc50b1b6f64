package port

import "fmt"

const (
	// DefaultBasePort is where verification host ports start. High
	// enough to clear common development servers, low enough to stay
	// out of the ephemeral range the OS assigns from.
	DefaultBasePort = 18000

	// blockSpan is how far above the base port the allocator searches
	// before falling back to the dynamic range.
	blockSpan = 100

	// maxPort is the highest valid TCP/UDP port number.
	maxPort = 65535

	// dynamicRangeStart and dynamicRangeEnd bound the IANA
	// dynamic/private port range used as the fallback.
	dynamicRangeStart = 49152
	dynamicRangeEnd   = 65535
)

// Allocator hands out distinct host ports for the containers of one
// verification run. Ports are granted from a contiguous block starting
// at the base port; when the block is exhausted the allocator falls
// back to the dynamic range.
//
// A granted port is never granted again by the same Allocator, even
// after the container that used it is gone. Availability on the host
// is probed through the Scanner at grant time.
type Allocator struct {
	scanner *Scanner

	basePort   int
	nextOffset int
	granted    map[int]bool
}

// NewAllocator creates an Allocator that grants ports starting at
// basePort. A basePort of zero or less selects DefaultBasePort.
func NewAllocator(scanner *Scanner, basePort int) *Allocator {
	if basePort <= 0 {
		basePort = DefaultBasePort
	}
	return &Allocator{
		scanner:  scanner,
		basePort: basePort,
		granted:  make(map[int]bool),
	}
}

// Allocate grants the next free host port.
//
// The preferred port is basePort plus the number of grants so far, so
// a four-variant run typically lands on base, base+1, base+2, base+3.
// Ports that are busy on the host are skipped; when the whole block
// [basePort, basePort+blockSpan] is taken, the dynamic range is
// scanned instead.
func (a *Allocator) Allocate() (int, error) {
	for {
		candidate := a.basePort + a.nextOffset
		if a.nextOffset > blockSpan || candidate > maxPort {
			break
		}
		a.nextOffset++

		if a.isFree(candidate) {
			a.granted[candidate] = true
			return candidate, nil
		}
	}

	for candidate := dynamicRangeStart; candidate <= dynamicRangeEnd; candidate++ {
		if a.isFree(candidate) {
			a.granted[candidate] = true
			return candidate, nil
		}
	}

	return 0, fmt.Errorf(
		"no available host port in %d-%d or the dynamic range %d-%d",
		a.basePort, a.basePort+blockSpan, dynamicRangeStart, dynamicRangeEnd,
	)
}

// isFree reports whether a port can be granted: not granted before by
// this Allocator and currently free on the host.
func (a *Allocator) isFree(port int) bool {
	if a.granted[port] {
		return false
	}
	return a.scanner.IsPortAvailable(port, "tcp")
}
