package minixfs

import "time"

// FS bundles together the fixed-size tables that spec section 5 calls
// "process-wide": the buffer cache, the inode table, the mount table and
// the open-file table. One FS corresponds to one running kernel instance;
// tests and the CLI each construct their own.
type FS struct {
	Cache   *Cache
	Inodes  *InodeTable
	Supers  *SuperTable
	Files   *FileTable
	NamePolicy NamePolicy
}

// Options configures NewFS.
type Options struct {
	// NBuf is the buffer cache size in 1KiB buffers. Zero uses NBuf.
	NBuf int
	// NamePolicy selects the "truncate to 14" vs "reject if longer"
	// filename handling of spec section 4.5. Zero value is Truncate.
	NamePolicy NamePolicy
}

// NewFS builds a fresh, unmounted filesystem session.
func NewFS(opts Options) *FS {
	if opts.NBuf <= 0 {
		opts.NBuf = NBuf
	}
	fsys := &FS{
		Cache:      NewCache(opts.NBuf),
		Files:      newFileTable(),
		NamePolicy: opts.NamePolicy,
	}
	fsys.Inodes = newInodeTable(fsys)
	fsys.Supers = newSuperTable()
	return fsys
}

// Sync flushes dirty buffers, then dirty inodes, then dirty buffers again
// for dev (nil = every mounted device), interleaved buffer->inode->buffer per spec section
// 4.1/5: the first buffer pass makes room, the inode pass dirties
// whatever buffers those inodes live in, and the second buffer pass
// writes those back out.
func (fsys *FS) Sync(dev Device) error {
	if err := fsys.Cache.Sync(dev); err != nil {
		return err
	}
	if err := fsys.Inodes.SyncInodes(dev); err != nil {
		return err
	}
	return fsys.Cache.Sync(dev)
}

// now returns the current time as a Minix v1 32-bit Unix timestamp.
func (fsys *FS) now() uint32 {
	return uint32(time.Now().Unix())
}
