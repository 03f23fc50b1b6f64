// Package port implements host port scanning and allocation for
// verification runs.
//
// The Scanner probes availability through the operating system
// (net.Listen / net.ListenPacket), which reflects what "docker run -p"
// will see at publish time. The Allocator hands out one host port per
// verification container: it prefers a contiguous block starting at a
// base port so repeated runs land on predictable numbers, never grants
// the same port twice, and falls back to the IANA dynamic range
// (49152-65535) when the preferred block is exhausted.
package port
