package minixfs

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SuperTable is the fixed mount table of spec section 4.7: up to
// NSuperblock devices may be mounted at once.
type SuperTable struct {
	mu     sync.Mutex
	supers [NSuperblock]*Superblock
	fs     *FS
}

func newSuperTable() *SuperTable {
	return &SuperTable{}
}

// Get returns the mounted superblock for dev, or ErrNotSuper if dev is
// not currently mounted.
func (st *SuperTable) Get(dev Device) (*Superblock, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, sb := range st.supers {
		if sb != nil && sb.Dev == dev {
			return sb, nil
		}
	}
	return nil, ErrNotSuper
}

// mountedOn returns the device mounted over the inode in, and whether one
// is in fact mounted there. Called under InodeTable.mu, so it only reads
// the table and never blocks.
func (st *SuperTable) mountedOn(in *Inode) (Device, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, sb := range st.supers {
		if sb != nil && sb.MountPoint == in {
			return sb.Dev, true
		}
	}
	return nil, false
}

// MountRoot installs dev as the root filesystem: the one superblock with
// no MountPoint inode, since by definition there is no directory in any
// other filesystem to hang it from. Every other device is attached with
// Mount instead. Must be called exactly once per FS before any Iget,
// since Iget/AllocBlock/AllocInode all resolve a device through the
// mount table.
func (fsys *FS) MountRoot(dev Device) (*Superblock, error) {
	fsys.Supers.mu.Lock()
	for _, sb := range fsys.Supers.supers {
		if sb != nil && sb.Dev == dev {
			fsys.Supers.mu.Unlock()
			return nil, fmt.Errorf("%w: device already mounted", ErrBusy)
		}
	}
	fsys.Supers.mu.Unlock()

	sb, err := fsys.ReadSuper(dev)
	if err != nil {
		return nil, err
	}

	fsys.Supers.mu.Lock()
	fsys.Supers.supers[0] = sb
	fsys.Supers.mu.Unlock()

	root, err := fsys.Inodes.Iget(dev, RootIno)
	if err != nil {
		fsys.Supers.mu.Lock()
		fsys.Supers.supers[0] = nil
		fsys.Supers.mu.Unlock()
		sb.releaseBitmaps()
		return nil, err
	}
	sb.MountedRoot = root
	return sb, nil
}

// Mount attaches dev's filesystem at the directory dir (spec section
// 4.7). dir must be a directory, referenced exactly once, not already a
// mount point, and not the root of its own process (callers enforce the
// process-root check; this layer enforces the rest).
func (fsys *FS) Mount(dev Device, dir *Inode) (*Superblock, error) {
	if !IsDir(dir.Mode) {
		return nil, ErrNotDir
	}
	if dir.RefCount != 1 {
		return nil, ErrBusy
	}
	if dir.IsMountPoint {
		return nil, ErrBusy
	}

	fsys.Supers.mu.Lock()
	for _, sb := range fsys.Supers.supers {
		if sb != nil && sb.Dev == dev {
			fsys.Supers.mu.Unlock()
			return nil, fmt.Errorf("%w: device already mounted", ErrBusy)
		}
	}
	slot := -1
	for i, sb := range fsys.Supers.supers {
		if sb == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		fsys.Supers.mu.Unlock()
		return nil, fmt.Errorf("%w: mount table full", ErrNoMem)
	}
	fsys.Supers.mu.Unlock()

	sb, err := fsys.ReadSuper(dev)
	if err != nil {
		return nil, err
	}
	sb.MountPoint = dir
	sb.sessionID = uuid.NewString()
	dir.IsMountPoint = true

	fsys.Supers.mu.Lock()
	fsys.Supers.supers[slot] = sb
	fsys.Supers.mu.Unlock()

	root, err := fsys.Inodes.Iget(dev, RootIno)
	if err != nil {
		fsys.Supers.mu.Lock()
		fsys.Supers.supers[slot] = nil
		fsys.Supers.mu.Unlock()
		sb.releaseBitmaps()
		dir.IsMountPoint = false
		return nil, err
	}
	sb.MountedRoot = root

	// the mount takes its own extra reference on dir: it pins the mount
	// point for as long as the filesystem stays mounted, and Unmount is
	// what drops it. The caller's reference stays the caller's.
	fsys.Inodes.mu.Lock()
	dir.RefCount++
	fsys.Inodes.mu.Unlock()
	return sb, nil
}

// Unmount detaches dev (spec section 4.7). It refuses a device with any
// in-core inode still referenced, and refuses the root device entirely.
func (fsys *FS) Unmount(dev Device, isRoot bool) error {
	if isRoot {
		return fmt.Errorf("%w: cannot unmount root device", ErrBusy)
	}
	sb, err := fsys.Supers.Get(dev)
	if err != nil {
		return err
	}

	fsys.Inodes.mu.Lock()
	for _, in := range fsys.Inodes.slots {
		if in == sb.MountedRoot && in.RefCount <= 1 {
			continue // the mount's own pinned reference doesn't count as busy
		}
		if in.Dev == dev && in.RefCount > 0 {
			fsys.Inodes.mu.Unlock()
			return fmt.Errorf("%w: device busy", ErrBusy)
		}
	}
	fsys.Inodes.mu.Unlock()

	if err := fsys.Sync(dev); err != nil {
		return err
	}

	fsys.Supers.mu.Lock()
	for i, s := range fsys.Supers.supers {
		if s == sb {
			fsys.Supers.supers[i] = nil
			break
		}
	}
	fsys.Supers.mu.Unlock()

	sb.MountPoint.IsMountPoint = false
	if err := fsys.Inodes.Iput(sb.MountPoint); err != nil {
		return err
	}
	if err := fsys.Inodes.Iput(sb.MountedRoot); err != nil {
		return err
	}
	sb.releaseBitmaps()
	sb.MountedRoot = nil
	sb.MountPoint = nil
	return nil
}
