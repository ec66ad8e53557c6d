// Package shm contains platform-specific helpers for the memory-mapped record
// that backs file-locked primitives.
package shm

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Fd   int
	Path string
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Path string
	Size int
	// Create creates the file, failing if it already exists.
	Create bool
}

// Function implementations are provided in platform-specific files (platform_unix.go).
