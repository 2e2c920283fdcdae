package minixfs

import "fmt"

// FsckReport collects the inconsistencies Fsck finds. It never repairs
// anything: the original_source/fs/ has no fsck at all (that shipped as
// a separate userspace tool in the original system); this is a read-only
// consistency walker supplemented to give the bitmap/inode invariants of
// spec section 8 something that checks them end to end on a whole image
// rather than only at the point of each operation.
type FsckReport struct {
	BadMagic          bool
	InodeBitmapErrors []string
	ZoneBitmapErrors  []string
	LinkCountErrors   []string
	OrphanZones       []uint32
}

func (r FsckReport) Clean() bool {
	return !r.BadMagic && len(r.InodeBitmapErrors) == 0 && len(r.ZoneBitmapErrors) == 0 &&
		len(r.LinkCountErrors) == 0 && len(r.OrphanZones) == 0
}

// Fsck walks dev's inode table and every reachable data block, cross
// checking against the on-disk bitmaps: every inode with nlinks>0 must
// have its bit set, every zone an inode claims must have its bit set,
// and zones claimed by nobody but marked allocated are reported as
// orphans. It does not use the in-memory tables at all, so it is safe to
// run on an unmounted device image.
func (fsys *FS) Fsck(dev Device) (FsckReport, error) {
	var report FsckReport

	sb, err := fsys.ReadSuper(dev)
	if err != nil {
		if err == ErrBadMagic {
			report.BadMagic = true
			return report, nil
		}
		return report, err
	}
	defer sb.releaseBitmaps()

	seenInodeBits := make(map[uint32]bool)
	claimedZones := make(map[uint32]uint32) // zone -> owning inode

	for inum := uint32(1); inum <= uint32(sb.NInodes); inum++ {
		block, off := sb.inodeBlock(inum)
		buf, err := fsys.Cache.Read(dev, block)
		if err != nil {
			return report, err
		}
		var raw diskInode
		raw.unmarshal(buf.Bytes()[off*DiskInodeSize : (off+1)*DiskInodeSize])
		fsys.Cache.Release(buf)

		bit := inum
		ibuf, ioff := bitLocation(sb.imap, bit)
		allocated := testBit(ibuf.Bytes(), ioff)

		if raw.NLinks > 0 && !allocated {
			report.InodeBitmapErrors = append(report.InodeBitmapErrors,
				fmt.Sprintf("inode %d has nlinks=%d but bitmap bit clear", inum, raw.NLinks))
		}
		if raw.NLinks == 0 && allocated {
			report.InodeBitmapErrors = append(report.InodeBitmapErrors,
				fmt.Sprintf("inode %d is unused but bitmap bit set", inum))
		}
		if raw.NLinks == 0 {
			continue
		}
		seenInodeBits[inum] = true

		in := &Inode{Mode: raw.Mode, Size: raw.Size, Zone: raw.Zone, Dev: dev}
		zones, err := fsys.walkZones(in)
		if err != nil {
			return report, err
		}
		for _, z := range zones {
			if prev, ok := claimedZones[z]; ok {
				report.LinkCountErrors = append(report.LinkCountErrors,
					fmt.Sprintf("zone %d claimed by both inode %d and inode %d", z, prev, inum))
				continue
			}
			claimedZones[z] = inum
			zbuf, zoff := bitLocation(sb.zmap, z-uint32(sb.FirstDataZone)+1)
			if !testBit(zbuf.Bytes(), zoff) {
				report.ZoneBitmapErrors = append(report.ZoneBitmapErrors,
					fmt.Sprintf("zone %d used by inode %d but bitmap bit clear", z, inum))
			}
		}
	}

	for z := uint32(sb.FirstDataZone); z < uint32(sb.NZones); z++ {
		bit := z - uint32(sb.FirstDataZone) + 1
		zbuf, zoff := bitLocation(sb.zmap, bit)
		if testBit(zbuf.Bytes(), zoff) {
			if _, claimed := claimedZones[z]; !claimed {
				report.OrphanZones = append(report.OrphanZones, z)
			}
		}
	}

	return report, nil
}

// walkZones returns every zone number an inode's Zone array reaches: the
// data zones and also the single- and double-indirect blocks themselves,
// since those are allocated zones that consume bitmap bits too.
func (fsys *FS) walkZones(in *Inode) ([]uint32, error) {
	var zones []uint32
	for i := 0; i < ZonesDirect; i++ {
		if in.Zone[i] != 0 {
			zones = append(zones, uint32(in.Zone[i]))
		}
	}
	if in.Zone[IndZone] != 0 {
		z := uint32(in.Zone[IndZone])
		zones = append(zones, z)
		more, err := fsys.walkIndirectZones(in.Dev, z, false)
		if err != nil {
			return nil, err
		}
		zones = append(zones, more...)
	}
	if in.Zone[DIndZone] != 0 {
		z := uint32(in.Zone[DIndZone])
		zones = append(zones, z)
		more, err := fsys.walkIndirectZones(in.Dev, z, true)
		if err != nil {
			return nil, err
		}
		zones = append(zones, more...)
	}
	return zones, nil
}

func (fsys *FS) walkIndirectZones(dev Device, block uint32, double bool) ([]uint32, error) {
	buf, err := fsys.Cache.Read(dev, block)
	if err != nil {
		return nil, err
	}
	ptrs := make([]uint16, zonePtrsPerBlock)
	data := buf.Bytes()
	for i := range ptrs {
		ptrs[i] = readZonePtr(data, i)
	}
	fsys.Cache.Release(buf)

	var zones []uint32
	for _, p := range ptrs {
		if p == 0 {
			continue
		}
		zones = append(zones, uint32(p))
		if double {
			more, err := fsys.walkIndirectZones(dev, uint32(p), false)
			if err != nil {
				return nil, err
			}
			zones = append(zones, more...)
		}
	}
	return zones, nil
}
