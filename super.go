package minixfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
)

// Superblock is the in-memory representation of one mounted Minix v1
// filesystem (spec section 3 "Superblock (in-memory)"). The imap/zmap
// arrays are owning handles to pinned cache buffers holding bitmap bits,
// per Design Note "bitmap buffers pinned via raw pointers in the
// superblock" — here expressed as *Buffer handles with a lifetime tied to
// Mount/Unmount instead of raw pointers into kernel memory.
type Superblock struct {
	Dev Device

	NInodes       uint16
	NZones        uint16
	ImapBlocks    uint16
	ZmapBlocks    uint16
	FirstDataZone uint16
	LogZoneSize   uint16
	MaxSize       uint32
	Magic         uint16

	imap [MaxBitmapBlocks]*Buffer
	zmap [MaxBitmapBlocks]*Buffer

	MountedRoot *Inode // this filesystem's root inode
	MountPoint  *Inode // inode in the parent fs this one is mounted over; nil for the root fs

	ReadOnly bool
	dirty    bool

	mu   sync.Mutex
	cond *sync.Cond

	fs        *FS
	sessionID string // log-correlation only, see mount.go
}

// rawSuperblock is the exact on-disk layout of block 1 (spec section 6),
// decoded with encoding/binary the way the teacher's own
// Superblock.UnmarshalBinary decodes squashfs's header, minus the
// reflection: the Minix v1 layout is small and fixed enough to spell out
// field by field.
type rawSuperblock struct {
	NInodes       uint16
	NZones        uint16
	ImapBlocks    uint16
	ZmapBlocks    uint16
	FirstDataZone uint16
	LogZoneSize   uint16
	MaxSize       uint32
	Magic         uint16
}

// ReadSuper reads and validates the superblock (block 1) of dev, pins all
// of its imap/zmap buffers, and force-sets the sentinel bit 0 of each, per
// spec section 4.7. It does not attach the superblock to a mount point or
// a mount table slot; callers do that via FS.Mount.
func (fsys *FS) ReadSuper(dev Device) (*Superblock, error) {
	buf, err := fsys.Cache.Read(dev, SuperBlockNo)
	if err != nil {
		return nil, fmt.Errorf("%w: reading superblock: %v", ErrIO, err)
	}
	defer fsys.Cache.Release(buf)

	var raw rawSuperblock
	if err := binary.Read(bytes.NewReader(buf.Bytes()), binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding superblock: %v", ErrIO, err)
	}
	if raw.Magic != SuperMagic {
		return nil, ErrBadMagic
	}
	if raw.ImapBlocks > MaxBitmapBlocks || raw.ZmapBlocks > MaxBitmapBlocks {
		return nil, fmt.Errorf("%w: bitmap too large for this implementation", ErrBadMagic)
	}

	sb := &Superblock{
		Dev:           dev,
		NInodes:       raw.NInodes,
		NZones:        raw.NZones,
		ImapBlocks:    raw.ImapBlocks,
		ZmapBlocks:    raw.ZmapBlocks,
		FirstDataZone: raw.FirstDataZone,
		LogZoneSize:   raw.LogZoneSize,
		MaxSize:       raw.MaxSize,
		Magic:         raw.Magic,
		fs:            fsys,
	}
	sb.cond = sync.NewCond(&sb.mu)

	blk := uint32(FirstInodeBitmapBlock)
	for i := 0; i < int(sb.ImapBlocks); i++ {
		b, err := fsys.Cache.Read(dev, blk)
		if err != nil {
			sb.releaseBitmaps()
			return nil, fmt.Errorf("%w: reading imap block %d: %v", ErrIO, i, err)
		}
		sb.imap[i] = b
		blk++
	}
	for i := 0; i < int(sb.ZmapBlocks); i++ {
		b, err := fsys.Cache.Read(dev, blk)
		if err != nil {
			sb.releaseBitmaps()
			return nil, fmt.Errorf("%w: reading zmap block %d: %v", ErrIO, i, err)
		}
		sb.zmap[i] = b
		blk++
	}

	// bit 0 of each bitmap is a permanent sentinel
	setBit(sb.imap[0].Bytes(), 0)
	sb.imap[0].MarkDirty()
	setBit(sb.zmap[0].Bytes(), 0)
	sb.zmap[0].MarkDirty()

	return sb, nil
}

func (sb *Superblock) releaseBitmaps() {
	for i, b := range sb.imap {
		if b != nil {
			sb.fs.Cache.Release(b)
			sb.imap[i] = nil
		}
	}
	for i, b := range sb.zmap {
		if b != nil {
			sb.fs.Cache.Release(b)
			sb.zmap[i] = nil
		}
	}
}

// inodeBlock returns the on-disk block and in-block offset of inode
// number inum, per spec section 4.3.
func (sb *Superblock) inodeBlock(inum uint32) (block uint32, offset uint32) {
	base := uint32(FirstInodeBitmapBlock) + uint32(sb.ImapBlocks) + uint32(sb.ZmapBlocks)
	block = base + (inum-1)/InodesPerBlock
	offset = (inum - 1) % InodesPerBlock
	return
}

// WriteSuper serializes the in-memory superblock fields back to block 1.
func (sb *Superblock) WriteSuper() error {
	buf, err := sb.fs.Cache.Read(sb.Dev, SuperBlockNo)
	if err != nil {
		return fmt.Errorf("%w: reading superblock for writeback: %v", ErrIO, err)
	}
	defer sb.fs.Cache.Release(buf)

	raw := rawSuperblock{
		NInodes:       sb.NInodes,
		NZones:        sb.NZones,
		ImapBlocks:    sb.ImapBlocks,
		ZmapBlocks:    sb.ZmapBlocks,
		FirstDataZone: sb.FirstDataZone,
		LogZoneSize:   sb.LogZoneSize,
		MaxSize:       sb.MaxSize,
		Magic:         sb.Magic,
	}
	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, &raw); err != nil {
		return fmt.Errorf("%w: encoding superblock: %v", ErrIO, err)
	}
	copy(buf.Bytes(), out.Bytes())
	buf.MarkDirty()
	sb.dirty = false
	return nil
}

func setBit(buf []byte, bit uint) {
	buf[bit/8] |= 1 << (bit % 8)
}

func clearBit(buf []byte, bit uint) {
	buf[bit/8] &^= 1 << (bit % 8)
}

func testBit(buf []byte, bit uint) bool {
	return buf[bit/8]&(1<<(bit%8)) != 0
}
