package minixfs

import "sync"

// OpenFile is one entry of the FS-wide open file table (spec
// section 6 "file_read/file_write"). It pairs a resident inode with a
// byte offset and the flags it was opened with; several file descriptors
// may share one OpenFile after a fork-style duplication, tracked here by
// RefCount the same way the inode table tracks inode residency.
type OpenFile struct {
	Inode    *Inode
	Offset   int64
	Flags    OpenFlags
	RefCount int32
}

// FileTable is the fixed table of NFile OpenFile slots.
type FileTable struct {
	mu    sync.Mutex
	files [NFile]*OpenFile
}

func newFileTable() *FileTable {
	return &FileTable{}
}

// Alloc claims a free slot for in, opened with the given flags.
func (ft *FileTable) Alloc(in *Inode, flags OpenFlags) (*OpenFile, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for i, f := range ft.files {
		if f == nil {
			of := &OpenFile{Inode: in, Flags: flags, RefCount: 1}
			ft.files[i] = of
			return of, nil
		}
	}
	return nil, ErrMFile
}

// Dup adds a reference to an already-open file (dup(2)/fork-style fd
// sharing), letting two descriptors advance the same offset together.
func (ft *FileTable) Dup(of *OpenFile) {
	ft.mu.Lock()
	of.RefCount++
	ft.mu.Unlock()
}

// Release drops a reference; on the last one the slot is freed and the
// underlying inode is put.
func (ft *FileTable) Release(fsys *FS, of *OpenFile) error {
	ft.mu.Lock()
	of.RefCount--
	done := of.RefCount <= 0
	if done {
		for i, f := range ft.files {
			if f == of {
				ft.files[i] = nil
				break
			}
		}
	}
	ft.mu.Unlock()
	if !done {
		return nil
	}
	return fsys.Inodes.Iput(of.Inode)
}

// BlockRead paginates through the buffer cache starting at byte offset
// *pos, handling partial leading/trailing blocks, and returns the number
// of bytes copied into dst (spec section 6). It is meant for raw
// block/char device access, bypassing bmap/create_block entirely.
func (fsys *FS) BlockRead(dev Device, pos *int64, dst []byte) (int, error) {
	n := 0
	for n < len(dst) {
		block := uint32(*pos / BlockSize)
		off := int(*pos % BlockSize)
		buf, err := fsys.Cache.Read(dev, block)
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		cnt := copy(dst[n:], buf.Bytes()[off:])
		fsys.Cache.Release(buf)
		n += cnt
		*pos += int64(cnt)
	}
	return n, nil
}

// BlockWrite is BlockRead's write counterpart: partial blocks are
// read-modify-write, never overwriting the untouched portion (spec
// section 6).
func (fsys *FS) BlockWrite(dev Device, pos *int64, src []byte) (int, error) {
	n := 0
	for n < len(src) {
		block := uint32(*pos / BlockSize)
		off := int(*pos % BlockSize)
		buf, err := fsys.Cache.Read(dev, block)
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		cnt := copy(buf.Bytes()[off:], src[n:])
		buf.MarkDirty()
		fsys.Cache.Release(buf)
		n += cnt
		*pos += int64(cnt)
	}
	return n, nil
}

// FileRead reads through in's bmap chain, starting at of.Offset, treating
// hole blocks as zero-filled regions without touching the cache, and
// advances of.Offset and updates atime on return (spec section 4.4, 6).
func (fsys *FS) FileRead(of *OpenFile, dst []byte) (int, error) {
	in := of.Inode
	if in.IsPipe {
		return in.ReadPipe(dst)
	}
	if of.Offset >= int64(in.Size) {
		return 0, nil
	}
	remain := int64(in.Size) - of.Offset
	if int64(len(dst)) > remain {
		dst = dst[:remain]
	}

	n := 0
	for n < len(dst) {
		k := uint32(of.Offset / BlockSize)
		off := int(of.Offset % BlockSize)
		block, err := fsys.Bmap(in, k)
		if err != nil {
			return n, err
		}
		want := BlockSize - off
		if want > len(dst)-n {
			want = len(dst) - n
		}

		if block == 0 {
			for i := 0; i < want; i++ {
				dst[n+i] = 0
			}
		} else {
			buf, err := fsys.Cache.Read(in.Dev, block)
			if err != nil {
				if n > 0 {
					break
				}
				return 0, err
			}
			copy(dst[n:n+want], buf.Bytes()[off:off+want])
			fsys.Cache.Release(buf)
		}

		n += want
		of.Offset += int64(want)
	}

	in.ATime = fsys.now()
	in.Dirty = true
	return n, nil
}

// FileWrite writes through in's bmap chain using CreateBlock so writes
// always materialize real blocks, extends Size as needed, and updates
// mtime/ctime (spec section 4.4, 6). A write that fails partway returns
// the bytes transferred so far, leaving a truncated-but-valid file per
// the documented non-atomic policy.
func (fsys *FS) FileWrite(of *OpenFile, src []byte) (int, error) {
	in := of.Inode
	if in.IsPipe {
		return in.WritePipe(src)
	}
	if of.Flags&OWronly == 0 && of.Flags&ORdwr == 0 {
		return 0, ErrBadF
	}

	n := 0
	for n < len(src) {
		k := uint32(of.Offset / BlockSize)
		off := int(of.Offset % BlockSize)
		block, err := fsys.CreateBlock(in, k)
		if err != nil {
			if n > 0 {
				break
			}
			return 0, err
		}
		want := BlockSize - off
		if want > len(src)-n {
			want = len(src) - n
		}

		buf, err := fsys.Cache.Read(in.Dev, block)
		if err != nil {
			if n > 0 {
				break
			}
			return 0, err
		}
		copy(buf.Bytes()[off:off+want], src[n:n+want])
		buf.MarkDirty()
		fsys.Cache.Release(buf)

		n += want
		of.Offset += int64(want)
		if uint32(of.Offset) > in.Size {
			in.Size = uint32(of.Offset)
		}
	}

	now := fsys.now()
	in.MTime, in.CTime = now, now
	in.Dirty = true
	return n, nil
}
