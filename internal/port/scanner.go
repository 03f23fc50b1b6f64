package port

import (
	"fmt"
	"net"
)

// Scanner checks whether specific ports are free on the host machine.
//
// It asks the OS directly via net.Listen / net.ListenPacket rather than
// parsing /proc/net/* or shelling out to lsof/ss, which may need
// elevated permissions. Binding uses ":port" (all interfaces) because
// Docker publishes on 0.0.0.0 and the check must cover the same
// address space.
//
// The struct is stateless; it exists so the Allocator can take it as
// an injectable dependency.
type Scanner struct{}

// NewScanner creates a new Scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// IsPortAvailable reports whether a port is free for the given
// protocol ("tcp" or "udp"). Unknown protocols report unavailable.
func (s *Scanner) IsPortAvailable(port int, protocol string) bool {
	addr := fmt.Sprintf(":%d", port)

	switch protocol {
	case "tcp":
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return false
		}
		defer func() { _ = listener.Close() }()
		return true

	case "udp":
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return false
		}
		defer func() { _ = conn.Close() }()
		return true

	default:
		return false
	}
}

// FindAvailablePort scans [startPort, endPort] inclusive and returns
// the first free port for the protocol. The search runs upward from
// startPort, so the same free port is selected consistently.
func (s *Scanner) FindAvailablePort(startPort, endPort int, protocol string) (int, error) {
	for port := startPort; port <= endPort; port++ {
		if s.IsPortAvailable(port, protocol) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available %s port found in range %d-%d", protocol, startPort, endPort)
}
