package minixfs

import "fmt"

// findZeroBit scans up to n bitmap blocks, BitsPerBlock bits each,
// returning the absolute bit index of the first zero bit, or (0, false)
// if all are set. Bit 0 overall is never returned: it is the permanent
// sentinel of spec section 4.2.
func findZeroBit(blocks [MaxBitmapBlocks]*Buffer, n int) (uint32, bool) {
	for blkIdx := 0; blkIdx < n; blkIdx++ {
		b := blocks[blkIdx]
		if b == nil {
			continue
		}
		data := b.Bytes()
		for byteIdx := 0; byteIdx < len(data); byteIdx++ {
			if data[byteIdx] == 0xff {
				continue
			}
			for bit := 0; bit < 8; bit++ {
				if data[byteIdx]&(1<<uint(bit)) == 0 {
					abs := uint32(blkIdx)*BitsPerBlock + uint32(byteIdx)*8 + uint32(bit)
					if abs == 0 {
						continue // sentinel
					}
					return abs, true
				}
			}
		}
	}
	return 0, false
}

func bitLocation(blocks [MaxBitmapBlocks]*Buffer, bit uint32) (*Buffer, uint) {
	blkIdx := bit / BitsPerBlock
	off := uint(bit % BitsPerBlock)
	return blocks[blkIdx], off
}

// AllocBlock allocates a free zone on dev, zeroes its contents and
// returns its absolute block number, or 0 if the bitmap is exhausted or
// the allocation would exceed NZones (spec section 4.2).
func (fsys *FS) AllocBlock(dev Device) (uint32, error) {
	sb, err := fsys.Supers.Get(dev)
	if err != nil {
		return 0, err
	}
	sb.mu.Lock()
	bit, ok := findZeroBit(sb.zmap, int(sb.ZmapBlocks))
	if !ok {
		sb.mu.Unlock()
		return 0, ErrNoSpc
	}
	block := bit + uint32(sb.FirstDataZone) - 1
	if block >= uint32(sb.NZones) {
		sb.mu.Unlock()
		return 0, ErrNoSpc
	}
	buf, off := bitLocation(sb.zmap, bit)
	setBit(buf.Bytes(), off)
	buf.MarkDirty()
	sb.mu.Unlock()

	// Fresh acquisition: Get always returns ref_count==1 for a buffer
	// nobody else is holding, which is exactly what we need to safely
	// zero it before anyone else can observe stale contents.
	data, err := fsys.Cache.Get(dev, block)
	if err != nil {
		return 0, fmt.Errorf("%w: zeroing new block %d: %v", ErrIO, block, err)
	}
	b := data.Bytes()
	for i := range b {
		b[i] = 0
	}
	// the zeroes are now the block's contents, so a later Read must not
	// reload whatever the device still holds there
	fsys.Cache.mu.Lock()
	fsys.Cache.bufs[data.idx].uptodate = true
	fsys.Cache.mu.Unlock()
	data.MarkDirty()
	fsys.Cache.Release(data)

	return block, nil
}

// FreeBlock returns block to dev's zone bitmap. If the block is currently
// cached its single reference is dropped and its dirty/uptodate flags are
// cleared so stale data never leaks to a new allocation; freeing a block
// that is not actually allocated is treated as filesystem corruption.
func (fsys *FS) FreeBlock(dev Device, block uint32) error {
	sb, err := fsys.Supers.Get(dev)
	if err != nil {
		return err
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if block < uint32(sb.FirstDataZone) || block >= uint32(sb.NZones) {
		return fmt.Errorf("%w: block %d out of range", ErrInval, block)
	}

	if buf, ok := fsys.Cache.lookupRef(dev, block); ok {
		if rc := buf.RefCount(); rc != 1 {
			fatalf("free_block: block %d has %d references", block, rc)
		}
		buf.clearFlags()
		fsys.Cache.Release(buf)
	}

	bit := block - uint32(sb.FirstDataZone) + 1
	buf, off := bitLocation(sb.zmap, bit)
	if !testBit(buf.Bytes(), off) {
		fatalf("free_block: block %d already free", block)
	}
	clearBit(buf.Bytes(), off)
	buf.MarkDirty()
	return nil
}

// AllocInode allocates a free inode number on dev (spec section 4.2).
func (fsys *FS) AllocInode(dev Device) (uint32, error) {
	sb, err := fsys.Supers.Get(dev)
	if err != nil {
		return 0, err
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()

	bit, ok := findZeroBit(sb.imap, int(sb.ImapBlocks))
	if !ok || bit > uint32(sb.NInodes) {
		return 0, ErrNoSpc
	}
	buf, off := bitLocation(sb.imap, bit)
	setBit(buf.Bytes(), off)
	buf.MarkDirty()
	return bit, nil
}

// FreeInode clears in's bit in dev's inode bitmap and zeroes the
// in-memory slot. The caller must already hold the last reference to in
// and have verified NLinks==0 (spec section 4.2); FreeInode itself
// enforces RefCount==1 as a backstop.
func (fsys *FS) FreeInode(in *Inode) error {
	if in.RefCount != 1 || in.NLinks != 0 {
		fatalf("free_inode: inode %d has refcount=%d nlinks=%d", in.Inum, in.RefCount, in.NLinks)
	}
	sb, err := fsys.Supers.Get(in.Dev)
	if err != nil {
		return err
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()

	buf, off := bitLocation(sb.imap, in.Inum)
	if !testBit(buf.Bytes(), off) {
		fatalf("free_inode: inode %d already free", in.Inum)
	}
	clearBit(buf.Bytes(), off)
	buf.MarkDirty()
	in.reset()
	return nil
}
