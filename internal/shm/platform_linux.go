//go:build linux

package shm

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

func segmentPath(name string) string {
	return filepath.Join("/dev/shm", name)
}

// MapRegion maps or creates a shared memory segment (Linux implementation).
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	flags := unix.O_RDWR
	if opts.Create {
		flags |= unix.O_CREAT | unix.O_EXCL
	}
	fd, err := unix.Open(segmentPath(opts.Name), flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Name, err)
	}
	if opts.Create {
		if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
			_ = unix.Close(fd)
			_ = unix.Unlink(segmentPath(opts.Name))
			return nil, fmt.Errorf("ftruncate %s: %w", opts.Name, err)
		}
	} else {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("fstat %s: %w", opts.Name, err)
		}
		if st.Size < int64(opts.Size) {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("segment %s is %d bytes, want at least %d", opts.Name, st.Size, opts.Size)
		}
	}
	addr, err := unix.Mmap(fd, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		if opts.Create {
			_ = unix.Unlink(segmentPath(opts.Name))
		}
		return nil, fmt.Errorf("mmap %s: %w", opts.Name, err)
	}
	return &MappedRegion{
		Addr:    addr,
		Fd:      fd,
		Size:    opts.Size,
		Name:    opts.Name,
		created: opts.Create,
	}, nil
}

// UnmapRegion unmaps and closes the segment. The segment itself stays
// until Unlink removes it.
func UnmapRegion(region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap %s: %w", region.Name, err)
	}
	region.Addr = nil
	if err := unix.Close(region.Fd); err != nil {
		return fmt.Errorf("close %s: %w", region.Name, err)
	}
	return nil
}

// FlushRegion writes the mapped pages back to the segment.
func FlushRegion(region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Msync(region.Addr, unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync %s: %w", region.Name, err)
	}
	return nil
}

// InvalidateRegion discards cached pages so the next read observes the
// most recent writer, including writers in other processes.
func InvalidateRegion(region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Msync(region.Addr, unix.MS_INVALIDATE); err != nil {
		return fmt.Errorf("msync invalidate %s: %w", region.Name, err)
	}
	return nil
}

// Unlink removes the named segment.
func Unlink(name string) error {
	if err := unix.Unlink(segmentPath(name)); err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("unlink %s: %w", name, err)
	}
	return nil
}

// IsTransient reports whether err looks like resource pressure worth a
// retry rather than a structural problem.
func IsTransient(err error) bool {
	return errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.ENOMEM) ||
		errors.Is(err, unix.EMFILE) ||
		errors.Is(err, unix.ENFILE) ||
		errors.Is(err, unix.ENOSPC)
}

// IsMissing reports whether err means the segment does not exist.
func IsMissing(err error) bool {
	return errors.Is(err, unix.ENOENT)
}
