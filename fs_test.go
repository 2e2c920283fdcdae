package minixfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestHoleReadAcrossSparseRegion is scenario S1: a write at offset 0, a
// write far past it, and a full read in between must show zero-filled
// holes without materializing extra blocks on the read side.
func TestHoleReadAcrossSparseRegion(t *testing.T) {
	fx := newTestFixture(t, 512)
	defer fx.fsys.Inodes.Iput(fx.root)

	in, err := fx.fsys.OpenNamei(fx.proc, "/sparse", OCreat|OWronly, 0644)
	require.NoError(t, err)
	of, err := fx.fsys.Files.Alloc(in, OWronly)
	require.NoError(t, err)

	_, err = fx.fsys.FileWrite(of, []byte("ABCD"))
	require.NoError(t, err)

	of.Offset = 4096
	_, err = fx.fsys.FileWrite(of, []byte("EFGH"))
	require.NoError(t, err)
	require.NoError(t, fx.fsys.Files.Release(fx.fsys, of))

	in2, err := fx.fsys.Namei(fx.proc, "/sparse")
	require.NoError(t, err)
	rof, err := fx.fsys.Files.Alloc(in2, 0)
	require.NoError(t, err)

	buf := make([]byte, 8192)
	n, err := fx.fsys.FileRead(rof, buf)
	require.NoError(t, err)
	require.Equal(t, 4100, n) // the read stops at the file size, 4096+4

	want := make([]byte, 8192)
	copy(want[0:4], "ABCD")
	copy(want[4096:4100], "EFGH")
	require.Equal(t, want, buf)

	require.NoError(t, fx.fsys.Files.Release(fx.fsys, rof))
}

// TestStickyRmdirRequiresOwnerOrRoot is scenario S2.
func TestStickyRmdirRequiresOwnerOrRoot(t *testing.T) {
	fx := newTestFixture(t, 512)
	defer fx.fsys.Inodes.Iput(fx.root)

	owner := &Process{Root: fx.root, Pwd: fx.root, EUID: 2000, Umask: 022}
	fx.root.Mode |= S_IWGRP | S_IWOTH // let the unprivileged owner create /shared
	require.NoError(t, fx.fsys.Mkdir(owner, fx.root, "shared", 01777))

	creator := &Process{Root: fx.root, Pwd: fx.root, EUID: 1000, Umask: 022}
	sharedDir, err := fx.fsys.Namei(creator, "/shared")
	require.NoError(t, err)
	// Mkdir keeps only the permission bits the umask leaves, so the
	// sticky, world-writable mode of /shared is set on the inode here.
	sharedDir.Mode = S_IFDIR | 01777
	require.NoError(t, fx.fsys.Mkdir(creator, sharedDir, "d", 0755))

	intruder := &Process{Root: fx.root, Pwd: fx.root, EUID: 3000, Umask: 022}
	err = fx.fsys.Rmdir(intruder, sharedDir, "d")
	require.ErrorIs(t, err, ErrPerm)

	require.NoError(t, fx.fsys.Rmdir(creator, sharedDir, "d"))
	require.NoError(t, fx.fsys.Inodes.Iput(sharedDir))
}

// TestChrootConfinesDotDotAtBoundary is scenario S3.
func TestChrootConfinesDotDotAtBoundary(t *testing.T) {
	fx := newTestFixture(t, 512)
	defer fx.fsys.Inodes.Iput(fx.root)

	require.NoError(t, fx.fsys.Mkdir(fx.proc, fx.root, "jail", 0755))
	jailRoot, err := fx.fsys.Namei(fx.proc, "/jail")
	require.NoError(t, err)

	jailedProc := &Process{Root: jailRoot, Pwd: jailRoot, Umask: 022}

	in, err := fx.fsys.OpenNamei(jailedProc, "../escape", OCreat|OWronly, 0644)
	require.NoError(t, err)
	require.NoError(t, fx.fsys.Inodes.Iput(in))

	_, err = fx.fsys.Namei(fx.proc, "/escape")
	require.ErrorIs(t, err, ErrNoEnt, "the created file lands inside /jail, not at the real root")

	inReal, err := fx.fsys.Namei(fx.proc, "/jail/escape")
	require.NoError(t, err)
	require.NoError(t, fx.fsys.Inodes.Iput(inReal))

	require.NoError(t, fx.fsys.Inodes.Iput(jailRoot))
}

// TestPipeReadReturnsEOFAfterDrain is scenario S4.
func TestPipeReadReturnsEOFAfterDrain(t *testing.T) {
	fx := newTestFixture(t, 64)
	defer fx.fsys.Inodes.Iput(fx.root)

	p, err := fx.fsys.MakePipe()
	require.NoError(t, err)

	n, err := p.WritePipe([]byte("buffered"))
	require.NoError(t, err)
	require.Equal(t, 8, n)
	p.pipe.CloseWriteEnd()

	dst := make([]byte, 8)
	n, err = p.ReadPipe(dst)
	require.NoError(t, err)
	require.Equal(t, 8, n)

	n, err = p.ReadPipe(dst)
	require.NoError(t, err)
	require.Zero(t, n)
}

// TestPipeWriteFailsAfterReaderCloses is scenario S5 (SIGPIPE stood in by
// ErrBadF, see pipe.go's WritePipe doc comment).
func TestPipeWriteFailsAfterReaderCloses(t *testing.T) {
	fx := newTestFixture(t, 64)
	defer fx.fsys.Inodes.Iput(fx.root)

	p, err := fx.fsys.MakePipe()
	require.NoError(t, err)
	p.pipe.CloseReadEnd()

	n, err := p.WritePipe([]byte("x"))
	require.Zero(t, n)
	require.ErrorIs(t, err, ErrBadF)
}

// TestCacheRecyclesUnderPressure is scenario S6: a tiny cache forced to
// cycle through more distinct blocks than it has slots for.
func TestCacheRecyclesUnderPressure(t *testing.T) {
	dev := newMemDevice(32)
	fsys := NewFS(Options{NBuf: 4})

	for round := 0; round < 2; round++ {
		for b := uint32(2); b < 10; b++ {
			buf, err := fsys.Cache.Get(dev, b)
			require.NoError(t, err)
			data := buf.Bytes()
			data[0] = byte(b)
			buf.MarkDirty()
			fsys.Cache.Release(buf)
		}
	}
	require.NoError(t, fsys.Cache.Sync(dev))

	for b := uint32(2); b < 10; b++ {
		buf, err := fsys.Cache.Read(dev, b)
		require.NoError(t, err)
		require.Equal(t, byte(b), buf.Bytes()[0])
		fsys.Cache.Release(buf)
	}
}

// TestDoubleIndirectGrowAllocatesExactlyOneDataBlock is scenario S7.
func TestDoubleIndirectGrowAllocatesExactlyOneDataBlock(t *testing.T) {
	fx := newTestFixture(t, 4096)
	defer fx.fsys.Inodes.Iput(fx.root)

	inum, err := fx.fsys.AllocInode(fx.dev)
	require.NoError(t, err)
	in, err := fx.fsys.Inodes.Iget(fx.dev, inum)
	require.NoError(t, err)
	in.Mode = S_IFREG | 0644
	in.NLinks = 1

	k := uint32(ZonesDirect + PtrsPerBlock + PtrsPerBlock*PtrsPerBlock - 1)
	require.Equal(t, uint32(MaxFileBlocks-1), k)

	before, err := countAllocatedZones(fx.fsys, fx.dev)
	require.NoError(t, err)

	_, err = fx.fsys.CreateBlock(in, k)
	require.NoError(t, err)

	require.NotZero(t, in.Zone[DIndZone])

	after, err := countAllocatedZones(fx.fsys, fx.dev)
	require.NoError(t, err)

	// exactly 3 new zones: the leaf data block, the second-level indirect
	// block, and the double-indirect block itself (zone[8]).
	require.Equal(t, before+3, after)

	require.NoError(t, fx.fsys.Inodes.Iput(in))
}

func countAllocatedZones(fsys *FS, dev Device) (int, error) {
	sb, err := fsys.ReadSuper(dev)
	if err != nil {
		return 0, err
	}
	defer sb.releaseBitmaps()
	count := 0
	for z := uint32(1); z < uint32(sb.NZones-sb.FirstDataZone+1); z++ {
		buf, off := bitLocation(sb.zmap, z)
		if testBit(buf.Bytes(), off) {
			count++
		}
	}
	return count, nil
}

// TestCrossDeviceLinkRejected is scenario S8.
func TestCrossDeviceLinkRejected(t *testing.T) {
	fx := newTestFixture(t, 512)
	defer fx.fsys.Inodes.Iput(fx.root)

	in, err := fx.fsys.OpenNamei(fx.proc, "/x", OCreat|OWronly, 0644)
	require.NoError(t, err)

	require.NoError(t, fx.fsys.Mkdir(fx.proc, fx.root, "mnt", 0755))
	mnt, err := fx.fsys.Namei(fx.proc, "/mnt")
	require.NoError(t, err)

	childDev := newMemDevice(256)
	require.NoError(t, Mkfs(fx.fsys, childDev, MkfsOptions{TotalBlocks: 256}))
	_, err = fx.fsys.Mount(childDev, mnt)
	require.NoError(t, err)

	mntRoot, err := fx.fsys.Inodes.Iget(childDev, RootIno)
	require.NoError(t, err)

	err = fx.fsys.Link(fx.proc, in, mntRoot, "y")
	require.ErrorIs(t, err, ErrXDev)

	require.NoError(t, fx.fsys.Inodes.Iput(mntRoot))
	require.NoError(t, fx.fsys.Unmount(childDev, false))
	require.NoError(t, fx.fsys.Inodes.Iput(mnt))
	require.NoError(t, fx.fsys.Inodes.Iput(in))
}

func TestBmapIsIdempotent(t *testing.T) {
	fx := newTestFixture(t, 512)
	defer fx.fsys.Inodes.Iput(fx.root)

	inum, err := fx.fsys.AllocInode(fx.dev)
	require.NoError(t, err)
	in, err := fx.fsys.Inodes.Iget(fx.dev, inum)
	require.NoError(t, err)
	in.Mode = S_IFREG | 0644
	in.NLinks = 1

	b1, err := fx.fsys.CreateBlock(in, 2)
	require.NoError(t, err)
	b2, err := fx.fsys.CreateBlock(in, 2)
	require.NoError(t, err)
	require.Equal(t, b1, b2)

	m1, err := fx.fsys.Bmap(in, 2)
	require.NoError(t, err)
	m2, err := fx.fsys.Bmap(in, 2)
	require.NoError(t, err)
	require.Equal(t, m1, m2)
	require.Equal(t, b1, m1)

	require.NoError(t, fx.fsys.Inodes.Iput(in))
}
