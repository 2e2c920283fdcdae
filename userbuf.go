package minixfs

// UserBuf abstracts the "user segment" pointer that the original kernel
// threads through find_entry/add_entry and file_read/file_write (spec
// section 4.5, 4.6). In a hosted Go program there is no separate address
// space to cross, but keeping the indirection means callers can hand in
// anything that looks like a byte buffer — a caller's []byte, a io.Reader
// adapter, or (for tests) a short fixed-length name — without the block
// layer caring which.
type UserBuf interface {
	Len() int
	CopyIn(dst []byte) int    // dst starts in kernel/buffer space, receives user data
	CopyOut(src []byte) int   // src is kernel/buffer data, goes to user space
}

// BytesUserBuf is the straightforward UserBuf over an in-process []byte.
// No function in this package takes a UserBuf: FileRead, FileWrite and the
// name lookups work on plain []byte and string arguments.
type BytesUserBuf struct {
	Data []byte
}

func NewBytesUserBuf(b []byte) *BytesUserBuf { return &BytesUserBuf{Data: b} }

func (u *BytesUserBuf) Len() int { return len(u.Data) }

func (u *BytesUserBuf) CopyIn(dst []byte) int {
	return copy(dst, u.Data)
}

func (u *BytesUserBuf) CopyOut(src []byte) int {
	return copy(u.Data, src)
}
