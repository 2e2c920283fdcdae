package minixfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadSuperRoundTrip(t *testing.T) {
	dev := newMemDevice(512)
	fsys := NewFS(Options{})
	require.NoError(t, Mkfs(fsys, dev, MkfsOptions{TotalBlocks: 512}))

	sb, err := fsys.ReadSuper(dev)
	require.NoError(t, err)
	require.Equal(t, uint16(SuperMagic), sb.Magic)
	require.NotZero(t, sb.NInodes)
	require.NotZero(t, sb.NZones)
	sb.releaseBitmaps()
}

func TestReadSuperRejectsBadMagic(t *testing.T) {
	dev := newMemDevice(64)
	fsys := NewFS(Options{})

	buf, err := fsys.Cache.Get(dev, SuperBlockNo)
	require.NoError(t, err)
	zeroBuffer(buf)
	buf.MarkDirty()
	fsys.Cache.Release(buf)
	require.NoError(t, fsys.Cache.Sync(dev))

	_, err = fsys.ReadSuper(dev)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestSuperbockSentinelBitsAreSet(t *testing.T) {
	dev := newMemDevice(512)
	fsys := NewFS(Options{})
	require.NoError(t, Mkfs(fsys, dev, MkfsOptions{TotalBlocks: 512}))

	sb, err := fsys.ReadSuper(dev)
	require.NoError(t, err)
	defer sb.releaseBitmaps()

	require.True(t, testBit(sb.imap[0].Bytes(), 0))
	require.True(t, testBit(sb.zmap[0].Bytes(), 0))
}
