package minixfs

import (
	"fmt"
	"sync"
)

// Inode is the in-memory representation of one file, directory, device
// node or pipe (spec section 3). The fixed table of NInode slots is
// InodeTable below; an Inode is only meaningful while it is resident in
// one of those slots.
type Inode struct {
	// on-disk fields, see diskInode
	Mode   uint16
	UID    uint16
	Size   uint32
	MTime  uint32
	GID    uint8
	NLinks uint8
	Zone   [NZones]uint16

	// in-memory fields
	ATime        uint32
	CTime        uint32
	Dev          Device
	Inum         uint32
	RefCount     int32
	Dirty        bool
	IsMountPoint bool
	IsPipe       bool

	pipe *pipeState // non-nil iff IsPipe, see pipe.go

	locked bool // an inode-block I/O is in flight
	cond   *sync.Cond

	table *InodeTable
}

// reset clears a slot back to its zero state, called once FreeInode has
// confirmed there are no remaining references or links.
func (in *Inode) reset() {
	cond := in.cond
	table := in.table
	*in = Inode{cond: cond, table: table}
}

// InodeTable is the fixed in-memory inode cache (spec section 4.3), one
// per FS. All bookkeeping — residency, locking, reference counts — is
// guarded by a single mutex; each slot's sync.Cond shares that mutex so a
// wake on one slot never disturbs waiters on another (the same shape as
// the buffer cache's per-buffer cond sharing Cache.mu).
type InodeTable struct {
	mu    sync.Mutex
	slots [NInode]*Inode
	last  int
	fs    *FS
}

func newInodeTable(fs *FS) *InodeTable {
	it := &InodeTable{fs: fs}
	for i := range it.slots {
		in := &Inode{table: it}
		in.cond = sync.NewCond(&it.mu)
		it.slots[i] = in
	}
	return it
}

// Iget finds or loads the inode (dev,inum), always returning a fresh
// reference. If the found inode is a mount point, lookup transparently
// restarts against the mounted filesystem's root inode (spec section
// 4.3).
func (it *InodeTable) Iget(dev Device, inum uint32) (*Inode, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	for {
		if in := it.findResidentLocked(dev, inum); in != nil {
			for in.locked {
				in.cond.Wait()
			}
			if in.Dev != dev || in.Inum != inum || in.RefCount == 0 {
				continue // recycled while we slept, restart the scan
			}
			in.RefCount++

			if in.IsMountPoint {
				mdev, ok := it.fs.Supers.mountedOn(in)
				if ok {
					in.RefCount--
					dev, inum = mdev, RootIno
					continue
				}
			}
			return in, nil
		}

		idx, err := it.acquireSlotLocked()
		if err != nil {
			return nil, err
		}
		slot := it.slots[idx]
		slot.locked = true
		slot.Dev, slot.Inum = dev, inum // tentative identity, visible to findResident while locked

		sb, err := it.fs.Supers.Get(dev)
		if err != nil {
			slot.locked = false
			slot.Dev, slot.Inum = nil, 0
			slot.cond.Broadcast()
			return nil, err
		}
		block, off := sb.inodeBlock(inum)

		it.mu.Unlock()
		buf, readErr := it.fs.Cache.Read(dev, block)
		var raw diskInode
		if readErr == nil {
			raw.unmarshal(buf.Bytes()[off*DiskInodeSize : (off+1)*DiskInodeSize])
			it.fs.Cache.Release(buf)
		}
		it.mu.Lock()

		if readErr != nil {
			slot.locked = false
			slot.Dev, slot.Inum = nil, 0
			slot.cond.Broadcast()
			return nil, fmt.Errorf("%w: reading inode %d: %v", ErrIO, inum, readErr)
		}

		slot.Mode, slot.UID, slot.Size, slot.MTime = raw.Mode, raw.UID, raw.Size, raw.MTime
		slot.GID, slot.NLinks, slot.Zone = raw.GID, raw.NLinks, raw.Zone
		slot.ATime, slot.CTime = raw.MTime, raw.MTime
		slot.RefCount = 1
		slot.Dirty = false
		slot.IsMountPoint = false
		slot.IsPipe = false
		slot.pipe = nil
		slot.locked = false
		slot.cond.Broadcast()
		return slot, nil
	}
}

func (it *InodeTable) findResidentLocked(dev Device, inum uint32) *Inode {
	for _, in := range it.slots {
		if in.Dev == dev && in.Inum == inum && (in.RefCount > 0 || in.locked) {
			return in
		}
	}
	return nil
}

// acquireSlotLocked implements the empty-slot policy of spec section 4.3:
// round robin from the last chosen slot, preferring an unreferenced,
// clean, unlocked slot; settling for merely unreferenced (flushing first)
// if nothing better exists.
func (it *InodeTable) acquireSlotLocked() (int, error) {
	for {
		best := -1
		for i := 0; i < NInode; i++ {
			idx := (it.last + i) % NInode
			s := it.slots[idx]
			if s.RefCount != 0 {
				continue
			}
			if !s.Dirty && !s.locked {
				it.last = (idx + 1) % NInode
				return idx, nil
			}
			if best == -1 {
				best = idx
			}
		}
		if best == -1 {
			return 0, fmt.Errorf("%w: inode table full", ErrNoMem)
		}
		s := it.slots[best]
		for s.locked {
			s.cond.Wait()
		}
		if s.RefCount != 0 {
			continue // lost the race, rescan
		}
		if s.Dirty {
			if err := it.writebackLocked(s); err != nil {
				return 0, err
			}
			continue // re-examine: writeback slept, state may have moved on
		}
		it.last = (best + 1) % NInode
		return best, nil
	}
}

// writebackLocked writes a dirty inode to its disk block. Called with
// it.mu held; releases it across the actual cache I/O.
func (it *InodeTable) writebackLocked(in *Inode) error {
	in.locked = true
	dev, inum := in.Dev, in.Inum
	raw := diskInode{Mode: in.Mode, UID: in.UID, Size: in.Size, MTime: in.MTime, GID: in.GID, NLinks: in.NLinks, Zone: in.Zone}

	it.mu.Unlock()
	err := it.writeDiskInode(dev, inum, &raw)
	it.mu.Lock()

	in.locked = false
	if err == nil {
		in.Dirty = false
	}
	in.cond.Broadcast()
	return err
}

func (it *InodeTable) writeDiskInode(dev Device, inum uint32, raw *diskInode) error {
	sb, err := it.fs.Supers.Get(dev)
	if err != nil {
		return err
	}
	block, off := sb.inodeBlock(inum)
	buf, err := it.fs.Cache.Read(dev, block)
	if err != nil {
		return fmt.Errorf("%w: reading inode block for writeback: %v", ErrIO, err)
	}
	raw.marshal(buf.Bytes()[off*DiskInodeSize : (off+1)*DiskInodeSize])
	buf.MarkDirty()
	it.fs.Cache.Release(buf)
	return nil
}

// Iput drops one reference to in. On the last reference, a pipe's ring
// page is released, a file with NLinks==0 is truncated and freed on disk,
// and a dirty inode is written back (spec section 4.3).
func (it *InodeTable) Iput(in *Inode) error {
	it.mu.Lock()
	for {
		if in.RefCount <= 0 {
			it.mu.Unlock()
			fatalf("iput: inode %d has refcount %d", in.Inum, in.RefCount)
		}
		if in.RefCount > 1 {
			in.RefCount--
			it.mu.Unlock()
			return nil
		}

		// last reference: it stays held until the release work below is
		// done, so the slot cannot be reused while the lock is dropped
		if in.IsPipe {
			in.RefCount--
			if in.pipe != nil {
				in.pipe.closeEnd()
			}
			it.mu.Unlock()
			return nil
		}

		if in.NLinks == 0 {
			it.mu.Unlock()
			if err := it.fs.Truncate(in); err != nil {
				return err
			}
			if err := it.fs.FreeInode(in); err != nil {
				return err
			}
			return nil
		}

		if in.Dirty {
			if err := it.writebackLocked(in); err != nil {
				it.mu.Unlock()
				return err
			}
			continue // re-enter release logic, state may have changed
		}

		in.RefCount--
		it.mu.Unlock()
		return nil
	}
}

// SyncInodes writes every dirty non-pipe inode belonging to dev (or every
// device, if dev is nil) to its disk block.
func (it *InodeTable) SyncInodes(dev Device) error {
	it.mu.Lock()
	defer it.mu.Unlock()
	var firstErr error
	for _, in := range it.slots {
		if in.RefCount == 0 && in.Dev == nil {
			continue
		}
		if in.IsPipe || !in.Dirty {
			continue
		}
		if dev != nil && in.Dev != dev {
			continue
		}
		for in.locked {
			in.cond.Wait()
		}
		if !in.Dirty {
			continue
		}
		if err := it.writebackLocked(in); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
