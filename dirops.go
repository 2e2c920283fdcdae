package minixfs

// DirEntryInfo is the exported, decoded form of one directory record, for
// callers outside the package (the CLI) that just want to list a
// directory without reaching into the on-disk layout themselves.
type DirEntryInfo struct {
	Inum uint32
	Name string
}

// ReadDirEntries returns every non-empty entry of dir in on-disk order.
func (fsys *FS) ReadDirEntries(dir *Inode) ([]DirEntryInfo, error) {
	if !IsDir(dir.Mode) {
		return nil, ErrNotDir
	}
	var out []DirEntryInfo
	nblocks := (dir.Size + BlockSize - 1) / BlockSize
	for blk := uint32(0); blk < nblocks; blk++ {
		block, err := fsys.Bmap(dir, blk)
		if err != nil {
			return nil, err
		}
		if block == 0 {
			continue
		}
		buf, err := fsys.Cache.Read(dir.Dev, block)
		if err != nil {
			return nil, err
		}
		data := buf.Bytes()
		for off := 0; off < BlockSize; off += DirEntrySize {
			e := decodeDirEntry(data[off : off+DirEntrySize])
			if e.Inum == 0 {
				continue
			}
			out = append(out, DirEntryInfo{Inum: uint32(e.Inum), Name: e.name()})
		}
		fsys.Cache.Release(buf)
	}
	return out, nil
}

// Mkdir creates a new directory named name inside dir: allocates an
// inode, a single data block holding "." and "..", sets nlinks=2, bumps
// the parent's nlinks, and adds the parent directory entry (spec section
// 4.6).
func (fsys *FS) Mkdir(proc *Process, dir *Inode, name string, mode uint16) error {
	if !fsys.permission(proc, dir, permWrite) {
		return ErrAcces
	}
	if _, err := fsys.FindEntry(proc, dir, name); err == nil {
		return ErrExist
	} else if err != ErrNoEnt {
		return err
	}

	guard, err := fsys.AddEntry(dir, name)
	if err != nil {
		return err
	}

	inum, err := fsys.AllocInode(dir.Dev)
	if err != nil {
		guard.Abandon(fsys)
		return err
	}

	in, err := fsys.Inodes.Iget(dir.Dev, inum)
	if err != nil {
		guard.Abandon(fsys)
		return err
	}

	block, err := fsys.CreateBlock(in, 0)
	if err != nil {
		fsys.Inodes.Iput(in)
		guard.Abandon(fsys)
		return err
	}
	buf, err := fsys.Cache.Read(dir.Dev, block)
	if err != nil {
		fsys.Inodes.Iput(in)
		guard.Abandon(fsys)
		return err
	}
	data := buf.Bytes()
	for i := range data {
		data[i] = 0
	}
	encodeDirEntry(data[0:DirEntrySize], uint16(inum), ".")
	encodeDirEntry(data[DirEntrySize:2*DirEntrySize], uint16(dir.Inum), "..")
	buf.MarkDirty()
	fsys.Cache.Release(buf)

	now := fsys.now()
	in.Mode = S_IFDIR | (mode &^ proc.Umask & 0777)
	in.UID, in.GID = proc.EUID, uint8(proc.EGID)
	in.NLinks = 2
	in.Size = 2 * DirEntrySize
	in.ATime, in.MTime, in.CTime = now, now, now
	in.Dirty = true

	dir.NLinks++
	dir.Dirty = true

	guard.Commit(fsys, inum)
	fsys.Inodes.Iput(in)
	return nil
}

// emptyDir reports whether dir contains only "." and "..", with every
// other slot's inum==0, and those two entries actually point where they
// should: "." at dir itself and ".." at parent (spec section 4.6).
func (fsys *FS) emptyDir(dir *Inode, parent uint32) (bool, error) {
	nblocks := (dir.Size + BlockSize - 1) / BlockSize
	seen := 0
	for blk := uint32(0); blk < nblocks; blk++ {
		block, err := fsys.Bmap(dir, blk)
		if err != nil {
			return false, err
		}
		if block == 0 {
			continue
		}
		buf, err := fsys.Cache.Read(dir.Dev, block)
		if err != nil {
			return false, err
		}
		data := buf.Bytes()
		for off := 0; off < BlockSize; off += DirEntrySize {
			e := decodeDirEntry(data[off : off+DirEntrySize])
			if e.Inum == 0 {
				continue
			}
			switch e.name() {
			case ".":
				if uint32(e.Inum) != dir.Inum {
					fsys.Cache.Release(buf)
					return false, nil
				}
			case "..":
				if uint32(e.Inum) != parent {
					fsys.Cache.Release(buf)
					return false, nil
				}
			default:
				fsys.Cache.Release(buf)
				return false, nil
			}
			seen++
		}
		fsys.Cache.Release(buf)
	}
	return seen == 2, nil
}

// Rmdir removes the empty subdirectory name from dir (spec section 4.6).
func (fsys *FS) Rmdir(proc *Process, dir *Inode, name string) error {
	if name == "." {
		return ErrBusy
	}
	if !fsys.permission(proc, dir, permWrite) {
		return ErrAcces
	}

	target, slot, err := fsys.lookupWithSlot(proc, dir, name)
	if err != nil {
		return err
	}
	if !IsDir(target.Mode) {
		fsys.Cache.Release(slot.buf)
		fsys.Inodes.Iput(target)
		return ErrNotDir
	}
	if target.Dev != dir.Dev {
		fsys.Cache.Release(slot.buf)
		fsys.Inodes.Iput(target)
		return ErrXDev
	}
	if dir.Mode&S_ISVTX != 0 && proc.EUID != 0 && proc.EUID != target.UID {
		fsys.Cache.Release(slot.buf)
		fsys.Inodes.Iput(target)
		return ErrPerm
	}
	if target.RefCount != 1 {
		fsys.Cache.Release(slot.buf)
		fsys.Inodes.Iput(target)
		return ErrBusy
	}
	ok, err := fsys.emptyDir(target, dir.Inum)
	if err != nil {
		fsys.Cache.Release(slot.buf)
		fsys.Inodes.Iput(target)
		return err
	}
	if !ok {
		fsys.Cache.Release(slot.buf)
		fsys.Inodes.Iput(target)
		return ErrNotEmpty
	}

	clearDirSlot(slot.buf, slot.offset)
	fsys.Cache.Release(slot.buf)

	target.NLinks = 0
	target.Dirty = true
	dir.NLinks--
	dir.Dirty = true

	return fsys.Inodes.Iput(target)
}

// Unlink removes the directory entry name from dir without requiring the
// target be a directory; it refuses directories outright (spec section
// 4.6).
func (fsys *FS) Unlink(proc *Process, dir *Inode, name string) error {
	if !fsys.permission(proc, dir, permWrite) {
		return ErrAcces
	}
	target, slot, err := fsys.lookupWithSlot(proc, dir, name)
	if err != nil {
		return err
	}
	if IsDir(target.Mode) {
		fsys.Cache.Release(slot.buf)
		fsys.Inodes.Iput(target)
		return ErrIsDir
	}

	clearDirSlot(slot.buf, slot.offset)
	fsys.Cache.Release(slot.buf)

	if target.NLinks > 0 {
		target.NLinks--
	}
	target.Dirty = true
	return fsys.Inodes.Iput(target)
}

// Link adds name in dir pointing at the existing inode old, refusing
// directories and cross-device links (spec section 4.6).
func (fsys *FS) Link(proc *Process, old *Inode, dir *Inode, name string) error {
	if IsDir(old.Mode) {
		return ErrPerm
	}
	if old.Dev != dir.Dev {
		return ErrXDev
	}
	if !fsys.permission(proc, dir, permWrite) {
		return ErrAcces
	}
	if _, err := fsys.FindEntry(proc, dir, name); err == nil {
		return ErrExist
	} else if err != ErrNoEnt {
		return err
	}

	guard, err := fsys.AddEntry(dir, name)
	if err != nil {
		return err
	}
	guard.Commit(fsys, old.Inum)

	old.NLinks++
	old.CTime = fsys.now()
	old.Dirty = true
	return nil
}

// Mknod creates a device or fifo node. Restricted to privileged callers,
// it stores the device number in zone[0] for character and block devices
// (spec section 4.6).
func (fsys *FS) Mknod(proc *Process, dir *Inode, name string, mode uint16, devNum uint32) error {
	if proc.EUID != 0 {
		return ErrPerm
	}
	if !fsys.permission(proc, dir, permWrite) {
		return ErrAcces
	}
	if _, err := fsys.FindEntry(proc, dir, name); err == nil {
		return ErrExist
	} else if err != ErrNoEnt {
		return err
	}

	guard, err := fsys.AddEntry(dir, name)
	if err != nil {
		return err
	}
	inum, err := fsys.AllocInode(dir.Dev)
	if err != nil {
		guard.Abandon(fsys)
		return err
	}
	guard.Commit(fsys, inum)

	in, err := fsys.Inodes.Iget(dir.Dev, inum)
	if err != nil {
		return err
	}
	now := fsys.now()
	in.Mode = mode
	in.UID, in.GID = proc.EUID, uint8(proc.EGID)
	in.NLinks = 1
	in.ATime, in.MTime, in.CTime = now, now, now
	in.Dirty = true
	if IsChr(mode) || IsBlk(mode) {
		in.Zone[0] = uint16(devNum)
	}
	return fsys.Inodes.Iput(in)
}

// Rename moves the directory entry oldName in oldDir to newName in
// newDir. This is a feature supplemented from the original kernel's
// sys_rename (not present in the distilled spec's component list): it is
// implemented as link-then-unlink, which matches the original's
// non-atomic same-filesystem rename behavior rather than inventing a
// journaled swap.
func (fsys *FS) Rename(proc *Process, oldDir *Inode, oldName string, newDir *Inode, newName string) error {
	if oldDir.Dev != newDir.Dev {
		return ErrXDev
	}
	inum, err := fsys.FindEntry(proc, oldDir, oldName)
	if err != nil {
		return err
	}
	in, err := fsys.Inodes.Iget(oldDir.Dev, inum)
	if err != nil {
		return err
	}
	defer fsys.Inodes.Iput(in)

	if IsDir(in.Mode) {
		if !fsys.permission(proc, oldDir, permWrite) || !fsys.permission(proc, newDir, permWrite) {
			return ErrAcces
		}
	}

	if _, err := fsys.FindEntry(proc, newDir, newName); err == nil {
		return ErrExist
	} else if err != ErrNoEnt {
		return err
	}

	guard, err := fsys.AddEntry(newDir, newName)
	if err != nil {
		return err
	}
	guard.Commit(fsys, inum)

	oldTarget, oldSlot, err := fsys.lookupWithSlot(proc, oldDir, oldName)
	if err != nil {
		return err
	}
	clearDirSlot(oldSlot.buf, oldSlot.offset)
	fsys.Cache.Release(oldSlot.buf)
	return fsys.Inodes.Iput(oldTarget)
}

type dirSlot struct {
	buf    *Buffer
	offset int
}

// lookupWithSlot finds name in dir and returns both the resident target
// inode and its still-held directory-entry buffer, for callers (rmdir,
// unlink, rename) that need to clear the slot afterward.
func (fsys *FS) lookupWithSlot(proc *Process, dir *Inode, name string) (*Inode, dirSlot, error) {
	norm, err := normalizeName(name, fsys.NamePolicy)
	if err != nil {
		return nil, dirSlot{}, err
	}
	nblocks := (dir.Size + BlockSize - 1) / BlockSize
	for blk := uint32(0); blk < nblocks; blk++ {
		block, err := fsys.Bmap(dir, blk)
		if err != nil {
			return nil, dirSlot{}, err
		}
		if block == 0 {
			continue
		}
		buf, err := fsys.Cache.Read(dir.Dev, block)
		if err != nil {
			return nil, dirSlot{}, err
		}
		data := buf.Bytes()
		for off := 0; off < BlockSize; off += DirEntrySize {
			e := decodeDirEntry(data[off : off+DirEntrySize])
			if e.Inum == 0 || e.name() != norm {
				continue
			}
			in, err := fsys.Inodes.Iget(dir.Dev, uint32(e.Inum))
			if err != nil {
				fsys.Cache.Release(buf)
				return nil, dirSlot{}, err
			}
			return in, dirSlot{buf: buf, offset: off}, nil
		}
		fsys.Cache.Release(buf)
	}
	return nil, dirSlot{}, ErrNoEnt
}

func clearDirSlot(buf *Buffer, offset int) {
	data := buf.Bytes()
	for i := 0; i < DirEntrySize; i++ {
		data[offset+i] = 0
	}
	buf.MarkDirty()
}
