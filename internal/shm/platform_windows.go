//go:build windows

package shm

import (
	"context"
	"errors"
)

var errNotImplemented = errors.New("shm: named segments not implemented on windows")

// MapRegion maps or creates a shared memory segment (Windows implementation).
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	// TODO: implement using CreateFileMapping, MapViewOfFile
	return nil, errNotImplemented
}

// UnmapRegion unmaps and closes the segment.
func UnmapRegion(region *MappedRegion) error {
	return nil
}

// FlushRegion writes the mapped pages back to the segment.
func FlushRegion(region *MappedRegion) error {
	return nil
}

// InvalidateRegion discards cached pages of the segment.
func InvalidateRegion(region *MappedRegion) error {
	return nil
}

// Unlink removes the named segment.
func Unlink(name string) error {
	return nil
}

// IsTransient reports whether err looks like resource pressure worth a retry.
func IsTransient(err error) bool {
	return false
}

// IsMissing reports whether err means the segment does not exist.
func IsMissing(err error) bool {
	return false
}
