//go:build !linux

package minixfs

import (
	"fmt"
	"os"
)

// OpenRawDevice opens path as a disk image using plain stat(2) sizing.
// Real block-special devices need the BLKGETSIZE64 ioctl (device_linux.go)
// which only exists on Linux; elsewhere minixfs only supports file-backed
// images.
func OpenRawDevice(path string, writable bool) (*FileDevice, error) {
	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", ErrIO, path, err)
	}
	d := NewFileDevice(f)
	d.SetSize(st.Size())
	return d, nil
}
