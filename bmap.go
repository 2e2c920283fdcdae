package minixfs

import "encoding/binary"

// zonePtrsPerBlock is the number of 16-bit zone pointers an indirect
// block holds.
const zonePtrsPerBlock = PtrsPerBlock

// blockPath describes where block index k lives within an inode's zone array,
// per the table in spec section 4.4.
type blockPath struct {
	direct   bool
	single   bool
	double   bool
	idx0     int // zone[] index for direct, or zone[7]/zone[8]
	idx1     int // index within the (single or outer double) indirect block
	idx2     int // index within the inner double-indirect block
}

func resolvePath(k uint32) blockPath {
	switch {
	case k < ZonesDirect:
		return blockPath{direct: true, idx0: int(k)}
	case k < ZonesDirect+PtrsPerBlock:
		return blockPath{single: true, idx0: IndZone, idx1: int(k - ZonesDirect)}
	default:
		k2 := k - ZonesDirect - PtrsPerBlock
		return blockPath{double: true, idx0: DIndZone, idx1: int(k2 / PtrsPerBlock), idx2: int(k2 % PtrsPerBlock)}
	}
}

func readZonePtr(b []byte, idx int) uint16 {
	return binary.LittleEndian.Uint16(b[idx*2 : idx*2+2])
}

func writeZonePtr(b []byte, idx int, v uint16) {
	binary.LittleEndian.PutUint16(b[idx*2:idx*2+2], v)
}

// Bmap converts a file-relative block index into an on-disk block number,
// returning 0 for a hole (spec section 4.4).
func (fsys *FS) Bmap(in *Inode, k uint32) (uint32, error) {
	if k >= MaxFileBlocks {
		return 0, ErrInval
	}
	p := resolvePath(k)

	if p.direct {
		return uint32(in.Zone[p.idx0]), nil
	}

	z := in.Zone[p.idx0]
	if z == 0 {
		return 0, nil
	}
	buf, err := fsys.Cache.Read(in.Dev, uint32(z))
	if err != nil {
		return 0, err
	}
	defer fsys.Cache.Release(buf)

	if p.single {
		return uint32(readZonePtr(buf.Bytes(), p.idx1)), nil
	}

	inner := readZonePtr(buf.Bytes(), p.idx1)
	if inner == 0 {
		return 0, nil
	}
	ibuf, err := fsys.Cache.Read(in.Dev, uint32(inner))
	if err != nil {
		return 0, err
	}
	defer fsys.Cache.Release(ibuf)
	return uint32(readZonePtr(ibuf.Bytes(), p.idx2)), nil
}

// CreateBlock is Bmap, but allocates any missing intermediate or leaf
// block on demand, dirties the chain and the inode, and sets ctime (spec
// section 4.4).
func (fsys *FS) CreateBlock(in *Inode, k uint32) (uint32, error) {
	if k >= MaxFileBlocks {
		return 0, ErrInval
	}
	p := resolvePath(k)

	if p.direct {
		if in.Zone[p.idx0] == 0 {
			blk, err := fsys.AllocBlock(in.Dev)
			if err != nil {
				return 0, err
			}
			in.Zone[p.idx0] = uint16(blk)
			in.Dirty = true
			in.CTime = fsys.now()
		}
		return uint32(in.Zone[p.idx0]), nil
	}

	z := in.Zone[p.idx0]
	if z == 0 {
		blk, err := fsys.AllocBlock(in.Dev)
		if err != nil {
			return 0, err
		}
		z = uint16(blk)
		in.Zone[p.idx0] = z
		in.Dirty = true
		in.CTime = fsys.now()
	}
	buf, err := fsys.Cache.Read(in.Dev, uint32(z))
	if err != nil {
		return 0, err
	}
	defer fsys.Cache.Release(buf)

	if p.single {
		leaf := readZonePtr(buf.Bytes(), p.idx1)
		if leaf == 0 {
			blk, err := fsys.AllocBlock(in.Dev)
			if err != nil {
				return 0, err
			}
			leaf = uint16(blk)
			writeZonePtr(buf.Bytes(), p.idx1, leaf)
			buf.MarkDirty()
			in.CTime = fsys.now()
		}
		return uint32(leaf), nil
	}

	inner := readZonePtr(buf.Bytes(), p.idx1)
	if inner == 0 {
		blk, err := fsys.AllocBlock(in.Dev)
		if err != nil {
			return 0, err
		}
		inner = uint16(blk)
		writeZonePtr(buf.Bytes(), p.idx1, inner)
		buf.MarkDirty()
		in.CTime = fsys.now()
	}
	ibuf, err := fsys.Cache.Read(in.Dev, uint32(inner))
	if err != nil {
		return 0, err
	}
	defer fsys.Cache.Release(ibuf)

	leaf := readZonePtr(ibuf.Bytes(), p.idx2)
	if leaf == 0 {
		blk, err := fsys.AllocBlock(in.Dev)
		if err != nil {
			return 0, err
		}
		leaf = uint16(blk)
		writeZonePtr(ibuf.Bytes(), p.idx2, leaf)
		ibuf.MarkDirty()
		in.CTime = fsys.now()
	}
	return uint32(leaf), nil
}

// Truncate frees every block reachable from in (direct, single-indirect
// and double-indirect, recursively), zeros the zone array, and resets
// size to 0 (spec section 4.4). Only meaningful for regular files and
// directories; a no-op otherwise.
func (fsys *FS) Truncate(in *Inode) error {
	if !IsReg(in.Mode) && !IsDir(in.Mode) {
		return nil
	}

	for i := 0; i < ZonesDirect; i++ {
		if in.Zone[i] != 0 {
			if err := fsys.FreeBlock(in.Dev, uint32(in.Zone[i])); err != nil {
				return err
			}
			in.Zone[i] = 0
		}
	}

	if in.Zone[IndZone] != 0 {
		if err := fsys.freeIndirect(in.Dev, uint32(in.Zone[IndZone]), false); err != nil {
			return err
		}
		in.Zone[IndZone] = 0
	}

	if in.Zone[DIndZone] != 0 {
		if err := fsys.freeIndirect(in.Dev, uint32(in.Zone[DIndZone]), true); err != nil {
			return err
		}
		in.Zone[DIndZone] = 0
	}

	in.Size = 0
	in.Dirty = true
	now := fsys.now()
	in.MTime = now
	in.CTime = now
	return nil
}

// freeIndirect frees every zone pointer in the block at blockNum, then
// the block itself. When double is true, each pointer names another
// indirect block rather than a leaf.
func (fsys *FS) freeIndirect(dev Device, blockNum uint32, double bool) error {
	buf, err := fsys.Cache.Read(dev, blockNum)
	if err != nil {
		return err
	}
	ptrs := make([]uint16, zonePtrsPerBlock)
	data := buf.Bytes()
	for i := range ptrs {
		ptrs[i] = readZonePtr(data, i)
	}
	fsys.Cache.Release(buf)

	for _, p := range ptrs {
		if p == 0 {
			continue
		}
		if double {
			if err := fsys.freeIndirect(dev, uint32(p), false); err != nil {
				return err
			}
		} else if err := fsys.FreeBlock(dev, uint32(p)); err != nil {
			return err
		}
	}
	return fsys.FreeBlock(dev, blockNum)
}
