package minixfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileTableAllocAndRelease(t *testing.T) {
	fx := newTestFixture(t, 512)
	defer fx.fsys.Inodes.Iput(fx.root)

	in, err := fx.fsys.OpenNamei(fx.proc, "/a", OCreat|OWronly, 0644)
	require.NoError(t, err)

	of, err := fx.fsys.Files.Alloc(in, OWronly)
	require.NoError(t, err)
	require.Same(t, in, of.Inode)

	fx.fsys.Files.Dup(of)
	require.NoError(t, fx.fsys.Files.Release(fx.fsys, of))
	require.NoError(t, fx.fsys.Files.Release(fx.fsys, of))
}

func TestFileTableExhaustionReturnsEMFile(t *testing.T) {
	fx := newTestFixture(t, 512)
	defer fx.fsys.Inodes.Iput(fx.root)

	in, err := fx.fsys.OpenNamei(fx.proc, "/shared", OCreat|OWronly, 0644)
	require.NoError(t, err)

	// every OpenFile below references the same inode through its own Iget,
	// so this only exercises the file table's NFile slots, not the
	// separate, smaller inode table.
	var opened []*OpenFile
	for i := 0; i < NFile; i++ {
		ref, err := fx.fsys.Inodes.Iget(fx.dev, in.Inum)
		require.NoError(t, err)
		of, err := fx.fsys.Files.Alloc(ref, OWronly)
		require.NoError(t, err)
		opened = append(opened, of)
	}
	require.NoError(t, fx.fsys.Inodes.Iput(in))

	extraRef, err := fx.fsys.Inodes.Iget(fx.dev, in.Inum)
	require.NoError(t, err)
	_, err = fx.fsys.Files.Alloc(extraRef, OWronly)
	require.ErrorIs(t, err, ErrMFile)
	require.NoError(t, fx.fsys.Inodes.Iput(extraRef))

	for _, of := range opened {
		require.NoError(t, fx.fsys.Files.Release(fx.fsys, of))
	}
}

func TestBlockReadWriteRawDeviceAccess(t *testing.T) {
	fx := newTestFixture(t, 512)
	defer fx.fsys.Inodes.Iput(fx.root)

	var pos int64 = int64(100 * BlockSize)
	n, err := fx.fsys.BlockWrite(fx.dev, &pos, []byte("raw block data"))
	require.NoError(t, err)
	require.Equal(t, 14, n)

	pos = int64(100 * BlockSize)
	buf := make([]byte, 14)
	n, err = fx.fsys.BlockRead(fx.dev, &pos, buf)
	require.NoError(t, err)
	require.Equal(t, 14, n)
	require.Equal(t, "raw block data", string(buf))
}

func TestFileWriteThroughPipeInode(t *testing.T) {
	fx := newTestFixture(t, 64)
	defer fx.fsys.Inodes.Iput(fx.root)

	p, err := fx.fsys.MakePipe()
	require.NoError(t, err)
	wof := &OpenFile{Inode: p, Flags: OWronly}
	rof := &OpenFile{Inode: p}

	n, err := fx.fsys.FileWrite(wof, []byte("piped"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = fx.fsys.FileRead(rof, buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "piped", string(buf))
}
