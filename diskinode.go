package minixfs

import "encoding/binary"

// diskInode is the exact 32-byte on-disk inode record of spec section 6:
// u16 mode, u16 uid, u32 size, u32 mtime, u8 gid, u8 nlinks, u16 zone[9].
type diskInode struct {
	Mode   uint16
	UID    uint16
	Size   uint32
	MTime  uint32
	GID    uint8
	NLinks uint8
	Zone   [NZones]uint16
}

func (d *diskInode) unmarshal(buf []byte) {
	d.Mode = binary.LittleEndian.Uint16(buf[0:2])
	d.UID = binary.LittleEndian.Uint16(buf[2:4])
	d.Size = binary.LittleEndian.Uint32(buf[4:8])
	d.MTime = binary.LittleEndian.Uint32(buf[8:12])
	d.GID = buf[12]
	d.NLinks = buf[13]
	for i := 0; i < NZones; i++ {
		d.Zone[i] = binary.LittleEndian.Uint16(buf[14+2*i : 16+2*i])
	}
}

func (d *diskInode) marshal(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], d.Mode)
	binary.LittleEndian.PutUint16(buf[2:4], d.UID)
	binary.LittleEndian.PutUint32(buf[4:8], d.Size)
	binary.LittleEndian.PutUint32(buf[8:12], d.MTime)
	buf[12] = d.GID
	buf[13] = d.NLinks
	for i := 0; i < NZones; i++ {
		binary.LittleEndian.PutUint16(buf[14+2*i:16+2*i], d.Zone[i])
	}
}
