//go:build fuse

package minixfs

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// FuseRoot adapts a mounted filesystem's root inode to go-fuse's
// in-process node API, mirroring the shape of the teacher's own
// inode_fuse.go (one fs.InodeEmbedder per on-disk inode, Lookup/Readdir/
// Open/Read delegating back into the core read path) but pointed at
// Namei/FileRead instead of squashfs's table readers.
type FuseRoot struct {
	fs.Inode
	fsys *FS
	proc *Process
	in   *Inode
}

var _ fs.NodeLookuper = (*FuseRoot)(nil)
var _ fs.NodeReaddirer = (*FuseRoot)(nil)
var _ fs.NodeGetattrer = (*FuseRoot)(nil)
var _ fs.NodeOpener = (*FuseRoot)(nil)
var _ fs.NodeReader = (*FuseRoot)(nil)

func NewFuseRoot(fsys *FS, proc *Process, root *Inode) *FuseRoot {
	return &FuseRoot{fsys: fsys, proc: proc, in: root}
}

func (n *FuseRoot) child(in *Inode) *FuseRoot {
	return &FuseRoot{fsys: n.fsys, proc: n.proc, in: in}
}

func (n *FuseRoot) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	inum, err := n.fsys.FindEntry(n.proc, n.in, name)
	if err != nil {
		return nil, fuseErrno(err)
	}
	target, err := n.fsys.Inodes.Iget(n.in.Dev, inum)
	if err != nil {
		return nil, fuseErrno(err)
	}
	fillAttr(&out.Attr, target)
	child := n.child(target)
	return n.NewInode(ctx, child, fs.StableAttr{Mode: uint32(UnixToMode(target.Mode))}), fs.OK
}

func (n *FuseRoot) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	var entries []fuse.DirEntry
	nblocks := (n.in.Size + BlockSize - 1) / BlockSize
	for blk := uint32(0); blk < nblocks; blk++ {
		block, err := n.fsys.Bmap(n.in, blk)
		if err != nil || block == 0 {
			continue
		}
		buf, err := n.fsys.Cache.Read(n.in.Dev, block)
		if err != nil {
			continue
		}
		data := buf.Bytes()
		for off := 0; off < BlockSize; off += DirEntrySize {
			e := decodeDirEntry(data[off : off+DirEntrySize])
			if e.Inum == 0 {
				continue
			}
			entries = append(entries, fuse.DirEntry{Ino: uint64(e.Inum), Name: e.name()})
		}
		n.fsys.Cache.Release(buf)
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (n *FuseRoot) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	fillAttr(&out.Attr, n.in)
	return fs.OK
}

func (n *FuseRoot) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, 0, fs.OK
}

func (n *FuseRoot) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	of := &OpenFile{Inode: n.in, Offset: off}
	cnt, err := n.fsys.FileRead(of, dest)
	if err != nil {
		return nil, fuseErrno(err)
	}
	return fuse.ReadResultData(dest[:cnt]), fs.OK
}

func fillAttr(attr *fuse.Attr, in *Inode) {
	attr.Mode = uint32(UnixToMode(in.Mode))
	attr.Size = uint64(in.Size)
	attr.Mtime = in.MTime
	attr.Atime = in.ATime
	attr.Ctime = in.CTime
	attr.Uid = uint32(in.UID)
	attr.Gid = uint32(in.GID)
	attr.Nlink = uint32(in.NLinks)
}

func fuseErrno(err error) syscall.Errno {
	return syscall.Errno(Errno(err))
}
