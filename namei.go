package minixfs

import (
	"bytes"
	"encoding/binary"
)

// NamePolicy selects how a filename longer than NameSize is handled
// (spec section 4.5), a build-time choice in the original kernel and a
// constructor option here.
type NamePolicy int

const (
	// NameTruncate silently truncates to NameSize bytes.
	NameTruncate NamePolicy = iota
	// NameReject fails with ErrNameTooLong.
	NameReject
)

// Process models the per-caller context find_entry/get_dir/namei resolve
// against: its chroot jail, working directory, credentials and umask
// (spec section 4.5). The kernel keeps this in struct task_struct; here
// it is an explicit argument rather than ambient global state.
type Process struct {
	Root  *Inode
	Pwd   *Inode
	UID   uint16
	GID   uint16
	EUID  uint16
	EGID  uint16
	Umask uint16
}

// dirEntry is the decoded form of one 16-byte directory record.
type dirEntry struct {
	Inum uint16
	Name [NameSize]byte
}

func decodeDirEntry(b []byte) dirEntry {
	var e dirEntry
	e.Inum = binary.LittleEndian.Uint16(b[0:2])
	copy(e.Name[:], b[2:2+NameSize])
	return e
}

func encodeDirEntry(b []byte, inum uint16, name string) {
	binary.LittleEndian.PutUint16(b[0:2], inum)
	var raw [NameSize]byte
	copy(raw[:], name)
	copy(b[2:2+NameSize], raw[:])
}

func (e dirEntry) name() string {
	i := bytes.IndexByte(e.Name[:], 0)
	if i < 0 {
		i = len(e.Name)
	}
	return string(e.Name[:i])
}

func normalizeName(name string, policy NamePolicy) (string, error) {
	if len(name) <= NameSize {
		return name, nil
	}
	if policy == NameReject {
		return "", ErrNameTooLong
	}
	return name[:NameSize], nil
}

// EntryGuard is the pending, uncommitted directory slot returned by
// AddEntry: the caller must fill in its inode number and release the
// buffer with Commit, with no sleep in between (spec section 4.5) — a
// concurrent AddEntry could otherwise claim the same zero-inum slot.
type EntryGuard struct {
	buf    *Buffer
	offset int // byte offset of the 16-byte record within buf
}

// Commit writes inum into the guarded slot and releases the buffer. It
// must be the very next thing the caller does after a successful
// AddEntry/FindEntry-for-creation — no intervening call that could sleep.
func (g *EntryGuard) Commit(fsys *FS, inum uint32) {
	binary.LittleEndian.PutUint16(g.buf.Bytes()[g.offset:g.offset+2], uint16(inum))
	g.buf.MarkDirty()
	fsys.Cache.Release(g.buf)
}

// Abandon releases the buffer without filling the slot, leaving it free
// for the next caller.
func (g *EntryGuard) Abandon(fsys *FS) {
	fsys.Cache.Release(g.buf)
}

// FindEntry walks dir's data blocks looking for name, handling the ".."
// chroot/mount substitution special cases first (spec section 4.5). On
// success it returns the matching inode number and the (now-released)
// entry is not held open; callers needing to mutate the slot use
// AddEntry/EntryGuard instead.
func (fsys *FS) FindEntry(proc *Process, dir *Inode, name string) (uint32, error) {
	if !IsDir(dir.Mode) {
		return 0, ErrNotDir
	}

	if name == ".." {
		if dir == proc.Root {
			name = "."
		} else if dir.Inum == RootIno {
			if _, parentInode, ok := fsys.parentOfMount(dir.Dev); ok {
				return fsys.FindEntry(proc, parentInode, "..")
			}
		}
	}

	norm, err := normalizeName(name, fsys.NamePolicy)
	if err != nil {
		return 0, err
	}

	nblocks := (dir.Size + BlockSize - 1) / BlockSize
	for blk := uint32(0); blk < nblocks; blk++ {
		block, err := fsys.Bmap(dir, blk)
		if err != nil {
			return 0, err
		}
		if block == 0 {
			continue
		}
		buf, err := fsys.Cache.Read(dir.Dev, block)
		if err != nil {
			return 0, err
		}
		data := buf.Bytes()
		for off := 0; off < BlockSize; off += DirEntrySize {
			e := decodeDirEntry(data[off : off+DirEntrySize])
			if e.Inum == 0 {
				continue
			}
			if e.name() == norm {
				inum := uint32(e.Inum)
				fsys.Cache.Release(buf)
				return inum, nil
			}
		}
		fsys.Cache.Release(buf)
	}
	return 0, ErrNoEnt
}

// parentOfMount finds the superblock mounted with device dev and returns
// the device and inode it is mounted on top of.
func (fsys *FS) parentOfMount(dev Device) (Device, *Inode, bool) {
	fsys.Supers.mu.Lock()
	defer fsys.Supers.mu.Unlock()
	for _, sb := range fsys.Supers.supers {
		if sb != nil && sb.Dev == dev && sb.MountPoint != nil {
			return sb.MountPoint.Dev, sb.MountPoint, true
		}
	}
	return nil, nil, false
}

// AddEntry walks dir like FindEntry but returns the first slot with
// inum==0, using CreateBlock instead of Bmap so the directory can grow
// (spec section 4.5). The returned EntryGuard must be committed or
// abandoned before anything else touches dir.
func (fsys *FS) AddEntry(dir *Inode, name string) (*EntryGuard, error) {
	if !IsDir(dir.Mode) {
		return nil, ErrNotDir
	}
	norm, err := normalizeName(name, fsys.NamePolicy)
	if err != nil {
		return nil, err
	}

	nblocks := (dir.Size + BlockSize - 1) / BlockSize
	for blk := uint32(0); blk < nblocks; blk++ {
		block, err := fsys.CreateBlock(dir, blk)
		if err != nil {
			return nil, err
		}
		buf, err := fsys.Cache.Read(dir.Dev, block)
		if err != nil {
			return nil, err
		}
		data := buf.Bytes()
		for off := 0; off < BlockSize; off += DirEntrySize {
			e := decodeDirEntry(data[off : off+DirEntrySize])
			if e.Inum != 0 {
				continue
			}
			encodeDirEntry(data[off:off+DirEntrySize], 0, norm)
			if end := blk*BlockSize + uint32(off) + DirEntrySize; end > dir.Size {
				dir.Size = end
				dir.Dirty = true
			}
			return &EntryGuard{buf: buf, offset: off}, nil
		}
		fsys.Cache.Release(buf)
	}

	// end of directory reached: grow by one entry
	blk := nblocks
	block, err := fsys.CreateBlock(dir, blk)
	if err != nil {
		return nil, err
	}
	buf, err := fsys.Cache.Read(dir.Dev, block)
	if err != nil {
		return nil, err
	}
	data := buf.Bytes()
	for i := range data {
		data[i] = 0
	}
	encodeDirEntry(data[0:DirEntrySize], 0, norm)
	buf.MarkDirty()
	dir.Size += DirEntrySize
	dir.Dirty = true
	return &EntryGuard{buf: buf, offset: 0}, nil
}

// GetDir resolves every component of path except the final one, applying
// directory+execute permission checks along the way (spec section 4.5).
// It returns the last directory visited and the final path component
// (empty if path ends in "/").
func (fsys *FS) GetDir(proc *Process, path string) (*Inode, string, error) {
	start := proc.Pwd
	if len(path) > 0 && path[0] == '/' {
		start = proc.Root
	}
	cur, err := fsys.Inodes.Iget(start.Dev, start.Inum)
	if err != nil {
		return nil, "", err
	}
	p := path
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}

	for {
		slash := indexByte(p, '/')
		if slash < 0 {
			return cur, p, nil
		}
		comp := p[:slash]
		rest := p[slash+1:]
		for len(rest) > 0 && rest[0] == '/' {
			rest = rest[1:]
		}

		if comp == "" {
			p = rest
			continue
		}
		if !IsDir(cur.Mode) {
			fsys.Inodes.Iput(cur)
			return nil, "", ErrNotDir
		}
		if !fsys.permission(proc, cur, permExec) {
			fsys.Inodes.Iput(cur)
			return nil, "", ErrAcces
		}

		inum, err := fsys.FindEntry(proc, cur, comp)
		if err != nil {
			fsys.Inodes.Iput(cur)
			return nil, "", err
		}
		next, err := fsys.Inodes.Iget(cur.Dev, inum)
		fsys.Inodes.Iput(cur)
		if err != nil {
			return nil, "", err
		}
		cur = next

		if rest == "" {
			return cur, "", nil
		}
		p = rest
	}
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

// Namei fully resolves path to an inode, updating atime on success (spec
// section 4.5).
func (fsys *FS) Namei(proc *Process, path string) (*Inode, error) {
	dir, name, err := fsys.GetDir(proc, path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		dir.ATime = fsys.now()
		dir.Dirty = true
		return dir, nil
	}
	inum, err := fsys.FindEntry(proc, dir, name)
	fsys.Inodes.Iput(dir)
	if err != nil {
		return nil, err
	}
	in, err := fsys.Inodes.Iget(dir.Dev, inum)
	if err != nil {
		return nil, err
	}
	in.ATime = fsys.now()
	in.Dirty = true
	return in, nil
}

// OpenFlags mirrors the subset of POSIX open(2) flags spec section 4.5
// names explicitly.
type OpenFlags int

const (
	OWronly OpenFlags = 1 << iota
	ORdwr
	OCreat
	OExcl
	OTrunc
)

func (f OpenFlags) writable() bool { return f&OWronly != 0 || f&ORdwr != 0 }

// OpenNamei resolves path for opening, implementing the creation and
// truncation semantics of spec section 4.5.
func (fsys *FS) OpenNamei(proc *Process, path string, flags OpenFlags, mode uint16) (*Inode, error) {
	if flags&OTrunc != 0 {
		flags |= OWronly
	}

	dir, name, err := fsys.GetDir(proc, path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if flags.writable() || flags&OCreat != 0 || flags&OTrunc != 0 {
			fsys.Inodes.Iput(dir)
			return nil, ErrIsDir
		}
		return dir, nil
	}

	inum, err := fsys.FindEntry(proc, dir, name)
	if err == nil {
		fsys.Inodes.Iput(dir)
		if flags&OExcl != 0 {
			return nil, ErrExist
		}
		in, err := fsys.Inodes.Iget(proc.Root.Dev, inum)
		if err != nil {
			return nil, err
		}
		if IsDir(in.Mode) && flags.writable() {
			fsys.Inodes.Iput(in)
			return nil, ErrPerm
		}
		if flags&OTrunc != 0 {
			if err := fsys.Truncate(in); err != nil {
				fsys.Inodes.Iput(in)
				return nil, err
			}
		}
		return in, nil
	}
	if err != ErrNoEnt {
		fsys.Inodes.Iput(dir)
		return nil, err
	}
	if flags&OCreat == 0 {
		fsys.Inodes.Iput(dir)
		return nil, ErrNoEnt
	}
	if !fsys.permission(proc, dir, permWrite) {
		fsys.Inodes.Iput(dir)
		return nil, ErrAcces
	}

	guard, err := fsys.AddEntry(dir, name)
	if err != nil {
		fsys.Inodes.Iput(dir)
		return nil, err
	}
	newInum, err := fsys.AllocInode(dir.Dev)
	if err != nil {
		guard.Abandon(fsys)
		fsys.Inodes.Iput(dir)
		return nil, err
	}
	guard.Commit(fsys, newInum)
	fsys.Inodes.Iput(dir)

	in, err := fsys.Inodes.Iget(dir.Dev, newInum)
	if err != nil {
		return nil, err
	}
	in.Mode = S_IFREG | (mode &^ proc.Umask & 0777)
	in.UID = proc.EUID
	in.GID = uint8(proc.EGID)
	in.NLinks = 1
	in.Size = 0
	now := fsys.now()
	in.ATime, in.MTime, in.CTime = now, now, now
	in.Dirty = true
	return in, nil
}
