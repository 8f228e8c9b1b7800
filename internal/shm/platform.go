// Package shm contains platform-specific helpers for mapping the shared
// memory segments that back graphics buffers.
package shm

// MappedRegion is one memory-mapped shared segment.
type MappedRegion struct {
	Addr    []byte
	Fd      int
	Size    int
	Name    string
	created bool
}

// MapOptions defines how a segment is mapped.
type MapOptions struct {
	// Name identifies the segment; on Linux it resolves under /dev/shm.
	Name string
	// Size is the segment size in bytes.
	Size int
	// Create makes the segment if it does not exist and sizes it.
	Create bool
}

// Function implementations live in the platform files
// (platform_linux.go, platform_windows.go).
