package minixfs

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Package-specific error variables, usable with errors.Is(), mirroring the
// taxonomy of spec section 7.
var (
	ErrIO       = errors.New("minixfs: I/O error")
	ErrNoEnt    = errors.New("minixfs: no such file or directory")
	ErrAcces    = errors.New("minixfs: permission denied")
	ErrPerm     = errors.New("minixfs: operation not permitted")
	ErrExist    = errors.New("minixfs: file exists")
	ErrNotDir   = errors.New("minixfs: not a directory")
	ErrIsDir    = errors.New("minixfs: is a directory")
	ErrNotEmpty = errors.New("minixfs: directory not empty")
	ErrNoSpc    = errors.New("minixfs: no space left on device")
	ErrNoMem    = errors.New("minixfs: cannot allocate memory")
	ErrBusy     = errors.New("minixfs: device or resource busy")
	ErrXDev     = errors.New("minixfs: cross-device link")
	ErrBadF     = errors.New("minixfs: bad file descriptor")
	ErrInval    = errors.New("minixfs: invalid argument")
	ErrMFile    = errors.New("minixfs: too many open files")

	// ErrNameTooLong is returned by the "reject if longer" filename
	// policy (see FindEntry / NamePolicy).
	ErrNameTooLong = errors.New("minixfs: file name too long")

	// ErrNotSuper is returned by GetSuper when a device has no mounted
	// superblock.
	ErrNotSuper = errors.New("minixfs: not mounted")

	// ErrBadMagic is returned by ReadSuper when the superblock magic
	// does not match SuperMagic.
	ErrBadMagic = errors.New("minixfs: bad superblock magic")
)

var errnoTable = map[error]unix.Errno{
	ErrIO:          unix.EIO,
	ErrNoEnt:       unix.ENOENT,
	ErrAcces:       unix.EACCES,
	ErrPerm:        unix.EPERM,
	ErrExist:       unix.EEXIST,
	ErrNotDir:      unix.ENOTDIR,
	ErrIsDir:       unix.EISDIR,
	ErrNotEmpty:    unix.ENOTEMPTY,
	ErrNoSpc:       unix.ENOSPC,
	ErrNoMem:       unix.ENOMEM,
	ErrBusy:        unix.EBUSY,
	ErrXDev:        unix.EXDEV,
	ErrBadF:        unix.EBADF,
	ErrInval:       unix.EINVAL,
	ErrMFile:       unix.EMFILE,
	ErrNameTooLong: unix.ENAMETOOLONG,
}

// Errno maps a minixfs sentinel error (or any error wrapping one) to the
// matching POSIX errno, for callers such as the CLI or the FUSE export
// that need a process exit code or a fuse.Status rather than a Go error.
// Returns unix.EIO for unrecognized errors and 0 for a nil error.
func Errno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	for sentinel, errno := range errnoTable {
		if errors.Is(err, sentinel) {
			return errno
		}
	}
	return unix.EIO
}

// fatalf reports filesystem corruption: a condition spec section 7 calls
// out as a kernel-halting bug rather than a user-facing error (a bitmap
// bit freed twice, an inode put with no references, free-list corruption,
// AddEntry finding an occupied "empty" slot, or a buffer acquisition that
// never converged on a stable identity). The original kernel calls
// panic() and never returns; we do the same.
func fatalf(format string, args ...any) {
	panic(fmt.Sprintf("minixfs: fatal: "+format, args...))
}
