package minixfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBmapHoleReadsAsZero(t *testing.T) {
	fx := newTestFixture(t, 256)
	defer fx.fsys.Inodes.Iput(fx.root)

	inum, err := fx.fsys.AllocInode(fx.dev)
	require.NoError(t, err)
	in, err := fx.fsys.Inodes.Iget(fx.dev, inum)
	require.NoError(t, err)
	in.Mode = S_IFREG | 0644
	in.NLinks = 1

	blk, err := fx.fsys.Bmap(in, 3)
	require.NoError(t, err)
	require.Zero(t, blk)

	require.NoError(t, fx.fsys.Inodes.Iput(in))
}

func TestCreateBlockDirectThenIndirect(t *testing.T) {
	fx := newTestFixture(t, 2048)
	defer fx.fsys.Inodes.Iput(fx.root)

	inum, err := fx.fsys.AllocInode(fx.dev)
	require.NoError(t, err)
	in, err := fx.fsys.Inodes.Iget(fx.dev, inum)
	require.NoError(t, err)
	in.Mode = S_IFREG | 0644
	in.NLinks = 1

	b0, err := fx.fsys.CreateBlock(in, 0)
	require.NoError(t, err)
	require.NotZero(t, b0)
	require.Equal(t, b0, uint32(in.Zone[0]))

	// k=7 requires an indirect block
	b7, err := fx.fsys.CreateBlock(in, 7)
	require.NoError(t, err)
	require.NotZero(t, b7)
	require.NotZero(t, in.Zone[IndZone])

	got, err := fx.fsys.Bmap(in, 7)
	require.NoError(t, err)
	require.Equal(t, b7, got)

	require.NoError(t, fx.fsys.Inodes.Iput(in))
}

func TestCreateBlockDoubleIndirect(t *testing.T) {
	fx := newTestFixture(t, 4096)
	defer fx.fsys.Inodes.Iput(fx.root)

	inum, err := fx.fsys.AllocInode(fx.dev)
	require.NoError(t, err)
	in, err := fx.fsys.Inodes.Iget(fx.dev, inum)
	require.NoError(t, err)
	in.Mode = S_IFREG | 0644
	in.NLinks = 1

	k := uint32(ZonesDirect + PtrsPerBlock + 5)
	blk, err := fx.fsys.CreateBlock(in, k)
	require.NoError(t, err)
	require.NotZero(t, blk)
	require.NotZero(t, in.Zone[DIndZone])

	got, err := fx.fsys.Bmap(in, k)
	require.NoError(t, err)
	require.Equal(t, blk, got)

	require.NoError(t, fx.fsys.Inodes.Iput(in))
}

func TestTruncateFreesAllZones(t *testing.T) {
	fx := newTestFixture(t, 2048)
	defer fx.fsys.Inodes.Iput(fx.root)

	inum, err := fx.fsys.AllocInode(fx.dev)
	require.NoError(t, err)
	in, err := fx.fsys.Inodes.Iget(fx.dev, inum)
	require.NoError(t, err)
	in.Mode = S_IFREG | 0644
	in.NLinks = 1

	for _, k := range []uint32{0, 1, 7, 8} {
		_, err := fx.fsys.CreateBlock(in, k)
		require.NoError(t, err)
	}
	in.Size = 9 * BlockSize

	require.NoError(t, fx.fsys.Truncate(in))
	require.Zero(t, in.Size)
	for _, z := range in.Zone {
		require.Zero(t, z)
	}

	require.NoError(t, fx.fsys.Inodes.Iput(in))
}
