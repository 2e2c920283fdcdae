package minixfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMkdirThenRmdir(t *testing.T) {
	fx := newTestFixture(t, 1024)
	defer fx.fsys.Inodes.Iput(fx.root)

	require.NoError(t, fx.fsys.Mkdir(fx.proc, fx.root, "sub", 0755))
	require.EqualValues(t, 3, fx.root.NLinks) // the root's original 2 links plus the child's ".."

	sub, err := fx.fsys.Namei(fx.proc, "/sub")
	require.NoError(t, err)
	require.True(t, IsDir(sub.Mode))
	require.NoError(t, fx.fsys.Inodes.Iput(sub))

	require.NoError(t, fx.fsys.Rmdir(fx.proc, fx.root, "sub"))
	_, err = fx.fsys.Namei(fx.proc, "/sub")
	require.ErrorIs(t, err, ErrNoEnt)
}

func TestRmdirRefusesNonEmptyDirectory(t *testing.T) {
	fx := newTestFixture(t, 1024)
	defer fx.fsys.Inodes.Iput(fx.root)

	require.NoError(t, fx.fsys.Mkdir(fx.proc, fx.root, "sub", 0755))
	sub, err := fx.fsys.Namei(fx.proc, "/sub")
	require.NoError(t, err)
	in, err := fx.fsys.OpenNamei(fx.proc, "/sub/file", OCreat|OWronly, 0644)
	require.NoError(t, err)
	require.NoError(t, fx.fsys.Inodes.Iput(in))
	require.NoError(t, fx.fsys.Inodes.Iput(sub))

	err = fx.fsys.Rmdir(fx.proc, fx.root, "sub")
	require.ErrorIs(t, err, ErrNotEmpty)
}

func TestUnlinkRefusesDirectory(t *testing.T) {
	fx := newTestFixture(t, 1024)
	defer fx.fsys.Inodes.Iput(fx.root)

	require.NoError(t, fx.fsys.Mkdir(fx.proc, fx.root, "sub", 0755))
	err := fx.fsys.Unlink(fx.proc, fx.root, "sub")
	require.ErrorIs(t, err, ErrIsDir)
}

func TestLinkIncrementsNLinks(t *testing.T) {
	fx := newTestFixture(t, 1024)
	defer fx.fsys.Inodes.Iput(fx.root)

	in, err := fx.fsys.OpenNamei(fx.proc, "/a", OCreat|OWronly, 0644)
	require.NoError(t, err)
	require.NoError(t, fx.fsys.Link(fx.proc, in, fx.root, "b"))
	require.EqualValues(t, 2, in.NLinks)

	err = fx.fsys.Link(fx.proc, in, fx.root, "a")
	require.ErrorIs(t, err, ErrExist)
	require.NoError(t, fx.fsys.Inodes.Iput(in))
}

func TestUnlinkDropsLastLinkFreesInode(t *testing.T) {
	fx := newTestFixture(t, 1024)
	defer fx.fsys.Inodes.Iput(fx.root)

	in, err := fx.fsys.OpenNamei(fx.proc, "/a", OCreat|OWronly, 0644)
	require.NoError(t, err)
	inum := in.Inum
	require.NoError(t, fx.fsys.Inodes.Iput(in))

	require.NoError(t, fx.fsys.Unlink(fx.proc, fx.root, "a"))

	newInum, err := fx.fsys.AllocInode(fx.dev)
	require.NoError(t, err)
	require.Equal(t, inum, newInum)
}

func TestMknodStoresDeviceNumber(t *testing.T) {
	fx := newTestFixture(t, 1024)
	defer fx.fsys.Inodes.Iput(fx.root)

	fx.proc.EUID = 0
	require.NoError(t, fx.fsys.Mknod(fx.proc, fx.root, "dev0", S_IFCHR|0600, 0x0105))

	in, err := fx.fsys.Namei(fx.proc, "/dev0")
	require.NoError(t, err)
	require.True(t, IsChr(in.Mode))
	require.EqualValues(t, 0x0105, in.Zone[0])
	require.NoError(t, fx.fsys.Inodes.Iput(in))
}

func TestRenameMovesEntry(t *testing.T) {
	fx := newTestFixture(t, 1024)
	defer fx.fsys.Inodes.Iput(fx.root)

	in, err := fx.fsys.OpenNamei(fx.proc, "/old", OCreat|OWronly, 0644)
	require.NoError(t, err)
	require.NoError(t, fx.fsys.Inodes.Iput(in))

	require.NoError(t, fx.fsys.Rename(fx.proc, fx.root, "old", fx.root, "new"))

	_, err = fx.fsys.Namei(fx.proc, "/old")
	require.ErrorIs(t, err, ErrNoEnt)

	moved, err := fx.fsys.Namei(fx.proc, "/new")
	require.NoError(t, err)
	require.NoError(t, fx.fsys.Inodes.Iput(moved))
}
