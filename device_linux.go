//go:build linux

package minixfs

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// OpenRawDevice opens a real Linux block device (e.g. /dev/loop0) for use
// as a Device, sizing it with the BLKGETSIZE64 ioctl rather than stat(2),
// since block devices report a zero st_size. This is the one place
// golang.org/x/sys/unix earns a spot outside of error-code mapping: stat
// cannot tell us the capacity of a block special file.
func OpenRawDevice(path string, writable bool) (*FileDevice, error) {
	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}

	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		// not a block device (e.g. a regular file used as a disk
		// image): fall back to stat.
		st, statErr := f.Stat()
		if statErr != nil {
			f.Close()
			return nil, fmt.Errorf("%w: stat %s: %v", ErrIO, path, statErr)
		}
		size = uint64(st.Size())
	}

	d := NewFileDevice(f)
	d.SetSize(int64(size))
	return d, nil
}
