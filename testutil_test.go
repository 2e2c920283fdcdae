package minixfs

import (
	"sync"

	"github.com/stretchr/testify/require"
)

// memDevice is an in-memory Device used throughout the test suite: a
// plain byte slice standing in for a disk image, the same role the
// teacher's tests give an in-memory io.ReaderAt fixture.
type memDevice struct {
	mu   sync.Mutex
	data []byte
}

func newMemDevice(blocks uint32) *memDevice {
	return &memDevice{data: make([]byte, int(blocks)*BlockSize)}
}

func (d *memDevice) Submit(rw RW, buf *bufferHead) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	off := int(buf.block) * BlockSize
	switch rw {
	case READ, READA:
		if off+BlockSize > len(d.data) {
			for i := range buf.data {
				buf.data[i] = 0
			}
		} else {
			copy(buf.data[:], d.data[off:off+BlockSize])
		}
		buf.uptodate = true
	case WRITE, WRITEA:
		if off+BlockSize > len(d.data) {
			return ErrIO
		}
		copy(d.data[off:off+BlockSize], buf.data[:])
		buf.uptodate = true
		buf.dirty = false
	}
	return nil
}

func (d *memDevice) Blocks() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint32(len(d.data) / BlockSize), nil
}

// testFixture bundles a freshly formatted filesystem ready for tests.
type testFixture struct {
	fsys *FS
	dev  *memDevice
	proc *Process
	root *Inode
}

func newTestFixture(t require.TestingT, totalBlocks uint32) *testFixture {
	dev := newMemDevice(totalBlocks)
	fsys := NewFS(Options{})
	err := Mkfs(fsys, dev, MkfsOptions{TotalBlocks: totalBlocks})
	require.NoError(t, err)

	sb, err := fsys.MountRoot(dev)
	require.NoError(t, err)
	root := sb.MountedRoot

	proc := &Process{Root: root, Pwd: root, Umask: 022}
	return &testFixture{fsys: fsys, dev: dev, proc: proc, root: root}
}
