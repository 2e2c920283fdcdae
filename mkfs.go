package minixfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MkfsOptions parameterizes Mkfs's layout decisions.
type MkfsOptions struct {
	// TotalBlocks is the device size in 1KiB blocks. Required.
	TotalBlocks uint32
	// InodeCount defaults to one inode per 4KiB of device space.
	InodeCount uint32
}

// Mkfs formats dev as an empty Minix v1 filesystem: a superblock, zeroed
// bitmaps (with the sentinel bit pre-set), a zeroed inode table, and a
// single root directory inode #1 containing "." and ".." pointing to
// itself (original_source/fstools's mkfs builds this same layout; the
// distilled spec only describes the layout's fields, not how to lay one
// down fresh, so this is supplemented for the CLI's benefit).
func Mkfs(fsys *FS, dev Device, opts MkfsOptions) error {
	if opts.TotalBlocks == 0 {
		return fmt.Errorf("%w: TotalBlocks required", ErrInval)
	}
	inodeCount := opts.InodeCount
	if inodeCount == 0 {
		inodeCount = opts.TotalBlocks / 4
		if inodeCount < 32 {
			inodeCount = 32
		}
	}

	imapBlocks := uint16((inodeCount/BitsPerBlock + 1))
	inodeBlocks := uint32((inodeCount + InodesPerBlock - 1) / InodesPerBlock)

	// first pass at zone count assuming a zmap size, then correct once
	// for the dependency between zone count and zmap size.
	zmapBlocks := uint16(1)
	firstDataZone := uint16(FirstInodeBitmapBlock) + uint16(imapBlocks) + zmapBlocks + uint16(inodeBlocks)
	totalZones := opts.TotalBlocks
	for {
		needed := uint16((totalZones-uint32(firstDataZone))/BitsPerBlock + 1)
		if needed == zmapBlocks {
			break
		}
		zmapBlocks = needed
		firstDataZone = uint16(FirstInodeBitmapBlock) + uint16(imapBlocks) + zmapBlocks + uint16(inodeBlocks)
	}

	raw := rawSuperblock{
		NInodes:       uint16(inodeCount),
		NZones:        uint16(totalZones),
		ImapBlocks:    imapBlocks,
		ZmapBlocks:    zmapBlocks,
		FirstDataZone: firstDataZone,
		LogZoneSize:   0,
		MaxSize:       uint32(MaxFileBlocks) * BlockSize,
		Magic:         SuperMagic,
	}

	sbuf, err := fsys.Cache.Get(dev, SuperBlockNo)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, &raw); err != nil {
		fsys.Cache.Release(sbuf)
		return err
	}
	zeroBuffer(sbuf)
	copy(sbuf.Bytes(), out.Bytes())
	sbuf.MarkDirty()
	fsys.Cache.Release(sbuf)

	blk := uint32(FirstInodeBitmapBlock)
	for i := 0; i < int(imapBlocks); i++ {
		b, err := fsys.Cache.Get(dev, blk)
		if err != nil {
			return err
		}
		zeroBuffer(b)
		if i == 0 {
			setBit(b.Bytes(), 0)
			setBit(b.Bytes(), 1) // root inode pre-allocated
		}
		b.MarkDirty()
		fsys.Cache.Release(b)
		blk++
	}
	for i := 0; i < int(zmapBlocks); i++ {
		b, err := fsys.Cache.Get(dev, blk)
		if err != nil {
			return err
		}
		zeroBuffer(b)
		if i == 0 {
			setBit(b.Bytes(), 0)
			setBit(b.Bytes(), 1) // first data zone, used by root's data block
		}
		b.MarkDirty()
		fsys.Cache.Release(b)
		blk++
	}
	for i := uint32(0); i < inodeBlocks; i++ {
		b, err := fsys.Cache.Get(dev, blk)
		if err != nil {
			return err
		}
		zeroBuffer(b)
		b.MarkDirty()
		fsys.Cache.Release(b)
		blk++
	}

	rootZone := uint32(firstDataZone)
	zbuf, err := fsys.Cache.Get(dev, rootZone)
	if err != nil {
		return err
	}
	zeroBuffer(zbuf)
	encodeDirEntry(zbuf.Bytes()[0:DirEntrySize], RootIno, ".")
	encodeDirEntry(zbuf.Bytes()[DirEntrySize:2*DirEntrySize], RootIno, "..")
	zbuf.MarkDirty()
	fsys.Cache.Release(zbuf)

	rootInodeBlock := uint32(FirstInodeBitmapBlock) + uint32(imapBlocks) + uint32(zmapBlocks)
	ibuf, err := fsys.Cache.Get(dev, rootInodeBlock)
	if err != nil {
		return err
	}
	var rootInode diskInode
	rootInode.Mode = S_IFDIR | 0755
	rootInode.NLinks = 2
	rootInode.Size = 2 * DirEntrySize
	rootInode.Zone[0] = uint16(rootZone)
	rootInode.marshal(ibuf.Bytes()[0:DiskInodeSize])
	ibuf.MarkDirty()
	fsys.Cache.Release(ibuf)

	return fsys.Cache.Sync(dev)
}

func zeroBuffer(b *Buffer) {
	data := b.Bytes()
	for i := range data {
		data[i] = 0
	}
}
