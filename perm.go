package minixfs

// permBit names which rwx triad bit permission() checks for.
type permBit int

const (
	permRead permBit = 04
	permWrite permBit = 02
	permExec  permBit = 01
)

// permission implements the standard unix owner/group/other check
// against an already-resident inode's Mode/UID/GID, reading them while
// still holding a reference rather than after iput — the Open Question
// flagged in spec section 4.5/9 about reading credentials post-release;
// this implementation always checks before the inode is released.
func (fsys *FS) permission(proc *Process, in *Inode, want permBit) bool {
	if proc.EUID == 0 {
		return true
	}
	mode := in.Mode
	var shift uint
	switch {
	case proc.EUID == in.UID:
		shift = 6
	case proc.EGID == uint16(in.GID):
		shift = 3
	default:
		shift = 0
	}
	return mode&(uint16(want)<<shift) != 0
}
