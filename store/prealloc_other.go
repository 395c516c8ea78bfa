//go:build !linux

package store

import "os"

// openDirect has no portable equivalent outside Linux; O_DIRECT is simply
// not honored on platforms this backend doesn't target in production.
func openDirect(path string, flags int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flags, perm)
}

// prealloc falls back directly to the zero-filled last-sector write: no
// fallocate(2) equivalent is attempted off Linux.
func prealloc(f *os.File, size int64) error {
	if size <= 0 {
		return nil
	}
	const sectorSize = 512
	last := size - sectorSize
	if last < 0 {
		last = 0
	}
	buf := make([]byte, size-last)
	_, err := f.WriteAt(buf, last)
	return err
}
