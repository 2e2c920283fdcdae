package main

import (
	"os"

	"github.com/KarpelesLab/minixfs"
)

// openImage opens a filesystem image file, mounts it read-only into a
// fresh FS, and returns everything a subcommand needs to walk it.
func openImage(path string) (*minixfs.FS, *minixfs.Superblock, *minixfs.Process, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	dev := minixfs.NewFileDevice(f)
	if st, err := f.Stat(); err == nil {
		dev.SetSize(st.Size())
	}

	fsys := minixfs.NewFS(minixfs.Options{})
	sb, err := fsys.MountRoot(dev)
	if err != nil {
		f.Close()
		return nil, nil, nil, nil, err
	}
	root := sb.MountedRoot

	proc := &minixfs.Process{Root: root, Pwd: root, Umask: 022}

	cleanup := func() {
		fsys.Inodes.Iput(root)
		f.Close()
	}
	return fsys, sb, proc, cleanup, nil
}
