package minixfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenNameiCreatesFile(t *testing.T) {
	fx := newTestFixture(t, 1024)
	defer fx.fsys.Inodes.Iput(fx.root)

	in, err := fx.fsys.OpenNamei(fx.proc, "/hello.txt", OCreat|OWronly, 0644)
	require.NoError(t, err)
	require.True(t, IsReg(in.Mode))
	require.EqualValues(t, 1, in.NLinks)
	require.NoError(t, fx.fsys.Inodes.Iput(in))

	again, err := fx.fsys.Namei(fx.proc, "/hello.txt")
	require.NoError(t, err)
	require.Equal(t, in.Inum, again.Inum)
	require.NoError(t, fx.fsys.Inodes.Iput(again))
}

func TestOpenNameiExclFailsIfExists(t *testing.T) {
	fx := newTestFixture(t, 1024)
	defer fx.fsys.Inodes.Iput(fx.root)

	in, err := fx.fsys.OpenNamei(fx.proc, "/a", OCreat, 0644)
	require.NoError(t, err)
	require.NoError(t, fx.fsys.Inodes.Iput(in))

	_, err = fx.fsys.OpenNamei(fx.proc, "/a", OCreat|OExcl, 0644)
	require.ErrorIs(t, err, ErrExist)
}

func TestNameiMissingComponentIsNoEnt(t *testing.T) {
	fx := newTestFixture(t, 1024)
	defer fx.fsys.Inodes.Iput(fx.root)

	_, err := fx.fsys.Namei(fx.proc, "/nope/nothing")
	require.ErrorIs(t, err, ErrNoEnt)
}

func TestGetDirThroughSubdirectory(t *testing.T) {
	fx := newTestFixture(t, 1024)
	defer fx.fsys.Inodes.Iput(fx.root)

	require.NoError(t, fx.fsys.Mkdir(fx.proc, fx.root, "sub", 0755))
	sub, err := fx.fsys.Namei(fx.proc, "/sub")
	require.NoError(t, err)
	defer fx.fsys.Inodes.Iput(sub)

	in, err := fx.fsys.OpenNamei(fx.proc, "/sub/file", OCreat|OWronly, 0644)
	require.NoError(t, err)
	require.NoError(t, fx.fsys.Inodes.Iput(in))

	dir, name, err := fx.fsys.GetDir(fx.proc, "/sub/file")
	require.NoError(t, err)
	require.Equal(t, "file", name)
	require.Equal(t, sub.Inum, dir.Inum)
	require.NoError(t, fx.fsys.Inodes.Iput(dir))
}

func TestDotDotAtProcessRootStaysAtRoot(t *testing.T) {
	fx := newTestFixture(t, 1024)
	defer fx.fsys.Inodes.Iput(fx.root)

	inum, err := fx.fsys.FindEntry(fx.proc, fx.proc.Root, "..")
	require.NoError(t, err)
	require.Equal(t, uint32(RootIno), inum)
}

func TestFindEntryLongNameTruncationPolicy(t *testing.T) {
	fx := newTestFixture(t, 1024)
	defer fx.fsys.Inodes.Iput(fx.root)

	longName := "this-name-is-definitely-too-long-for-minix"
	in, err := fx.fsys.OpenNamei(fx.proc, "/"+longName, OCreat|OWronly, 0644)
	require.NoError(t, err)
	require.NoError(t, fx.fsys.Inodes.Iput(in))

	entries, err := fx.fsys.ReadDirEntries(fx.root)
	require.NoError(t, err)
	require.Len(t, entries, 3) // ".", ".." and the new file
	require.LessOrEqual(t, len(entries[2].Name), NameSize)
}
