package minixfs

import (
	"fmt"
	"io"
	"sync"
)

// RW selects the direction and priority of a Device.Submit request,
// mirroring the READ/WRITE/READA/WRITEA flags of the original block
// driver interface (spec section 6).
type RW int

const (
	READ RW = iota
	WRITE
	READA  // speculative read, unused by the core today (Readahead submits READ)
	WRITEA // speculative write-behind, unused by the core today
)

func (rw RW) String() string {
	switch rw {
	case READ:
		return "READ"
	case WRITE:
		return "WRITE"
	case READA:
		return "READA"
	case WRITEA:
		return "WRITEA"
	default:
		return fmt.Sprintf("RW(%d)", int(rw))
	}
}

// Device is the narrow interface this package expects from a block
// device. It is the one seam between the filesystem core and "device
// driver block I/O", which spec section 1 explicitly puts out of scope:
// submit is modeled as synchronous from the caller's point of view (it
// returns once uptodate/dirty have been updated) even though an
// implementation may run the actual I/O on another goroutine.
type Device interface {
	// Submit performs the I/O described by rw against buf's identity
	// and data, setting buf.uptodate on success and clearing buf.dirty
	// after a successful write. It must not touch buf.dev, buf.block or
	// the cache's hash/free-list membership: those are owned by the
	// cache, never by the device.
	Submit(rw RW, buf *bufferHead) error

	// Blocks returns the device's capacity in BlockSize units.
	Blocks() (uint32, error)
}

// FileDevice adapts an io.ReaderAt+io.WriterAt (typically an *os.File, or
// a test double) to Device. This is the direct descendant of the
// teacher's own `Superblock.fs io.ReaderAt` field, generalized to support
// writes since this package, unlike squashfs, is not read-only.
type FileDevice struct {
	mu sync.Mutex
	ra io.ReaderAt
	wa io.WriterAt
	sz int64 // cached size in bytes, 0 = unknown
}

// NewFileDevice wraps f as a Device. f must implement at least
// io.ReaderAt; if it also implements io.WriterAt, writes are permitted.
func NewFileDevice(f io.ReaderAt) *FileDevice {
	d := &FileDevice{ra: f}
	if wa, ok := f.(io.WriterAt); ok {
		d.wa = wa
	}
	return d
}

// SetSize overrides the device's reported capacity; used by mkfs-style
// callers that know the backing file's length up front.
func (d *FileDevice) SetSize(bytes int64) {
	d.mu.Lock()
	d.sz = bytes
	d.mu.Unlock()
}

func (d *FileDevice) Submit(rw RW, buf *bufferHead) error {
	off := int64(buf.block) * BlockSize

	switch rw {
	case READ, READA:
		n, err := d.ra.ReadAt(buf.data[:], off)
		if err != nil && !(err == io.EOF && n == BlockSize) {
			if err == io.EOF {
				// short/sparse backing file: treat the rest as zero
				for i := n; i < BlockSize; i++ {
					buf.data[i] = 0
				}
			} else {
				return fmt.Errorf("%w: read block %d: %v", ErrIO, buf.block, err)
			}
		}
		buf.uptodate = true
		return nil
	case WRITE, WRITEA:
		if d.wa == nil {
			return fmt.Errorf("%w: device is read-only", ErrIO)
		}
		_, err := d.wa.WriteAt(buf.data[:], off)
		if err != nil {
			return fmt.Errorf("%w: write block %d: %v", ErrIO, buf.block, err)
		}
		buf.uptodate = true
		buf.dirty = false
		return nil
	default:
		return fmt.Errorf("%w: bad rw %v", ErrInval, rw)
	}
}

func (d *FileDevice) Blocks() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sz > 0 {
		return uint32(d.sz / BlockSize), nil
	}
	if sz, ok := d.ra.(interface{ Size() int64 }); ok {
		return uint32(sz.Size() / BlockSize), nil
	}
	return 0, fmt.Errorf("%w: device size unknown, call SetSize", ErrInval)
}
