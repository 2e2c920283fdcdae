package minixfs

// Package minixfs implements the block-addressed core of a Minix-v1-style
// filesystem: a shared buffer cache, bitmap allocators, an inode manager,
// block-pointer mapping, path resolution and a bounded mount table. It is
// the layer between a raw block device and the directory/file operations a
// kernel (or a FUSE binding, see fuse_export.go) surfaces to callers.
//
// Device block I/O, TTY line discipline, process scheduling and syscall
// dispatch are not part of this package; callers provide a Device and get
// back inodes, file handles and directory entries.

const (
	// BlockSize is the fixed unit of I/O and allocation.
	BlockSize = 1024

	// DiskInodeSize is the on-disk size of one inode record.
	DiskInodeSize = 32

	// InodesPerBlock is the number of on-disk inodes packed per block.
	InodesPerBlock = BlockSize / DiskInodeSize

	// DirEntrySize is the on-disk size of one directory entry.
	DirEntrySize = 16

	// NameSize is the maximum filename length (excluding any NUL).
	NameSize = 14

	// EntriesPerBlock is the number of directory entries per data block.
	EntriesPerBlock = BlockSize / DirEntrySize

	// ZonesDirect is the number of direct zone pointers in an inode.
	ZonesDirect = 7

	// IndZone and DIndZone are the indices of the indirect and
	// double-indirect zone pointers within Inode.Zone.
	IndZone  = 7
	DIndZone = 8
	NZones   = 9

	// PtrsPerBlock is the number of 16-bit zone pointers per indirect block.
	PtrsPerBlock = BlockSize / 2

	// MaxFileBlocks is the number of file-relative block indices
	// addressable through direct + single-indirect + double-indirect
	// pointers: 7 + 512 + 512*512.
	MaxFileBlocks = ZonesDirect + PtrsPerBlock + PtrsPerBlock*PtrsPerBlock

	// SuperMagic is the Minix v1 magic number, little-endian on disk.
	SuperMagic = 0x137F

	// RootIno is the inode number of a filesystem's root directory.
	RootIno = 1

	// NInode is the size of the in-memory inode table.
	NInode = 32

	// NFile is the size of the system-wide open file table.
	NFile = 64

	// NSuperblock is the size of the mount table.
	NSuperblock = 8

	// NBuf is the default buffer cache size, in 1KiB buffers.
	NBuf = 256

	// HashBuckets is the number of buckets in the buffer cache hash table.
	HashBuckets = 307

	// MaxBitmapBlocks is the maximum number of blocks making up one
	// imap or zmap (8 blocks * 8192 bits/block = 65536 objects).
	MaxBitmapBlocks = 8

	// BitsPerBlock is the number of bits packed into one bitmap block.
	BitsPerBlock = BlockSize * 8

	// PipePageSize is the size of the ring buffer backing a pipe inode.
	PipePageSize = 4096

	// SuperBlockNo and FirstInodeBitmapBlock describe the fixed layout
	// of the first few blocks of a Minix v1 device: block 0 is boot,
	// block 1 the superblock, blocks 2.. the inode bitmap.
	SuperBlockNo            = 1
	FirstInodeBitmapBlock   = 2
)
