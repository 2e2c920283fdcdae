package main

import (
	"fmt"

	"github.com/KarpelesLab/minixfs"
	"github.com/spf13/cobra"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <image> [path]",
		Short: "List a directory's entries",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) > 1 {
				path = args[1]
			}
			fsys, _, proc, cleanup, err := openImage(args[0])
			if err != nil {
				return err
			}
			defer cleanup()

			dir, err := fsys.Namei(proc, path)
			if err != nil {
				return err
			}
			defer fsys.Inodes.Iput(dir)

			return lsDir(fsys, dir)
		},
	}
}

func lsDir(fsys *minixfs.FS, dir *minixfs.Inode) error {
	entries, err := fsys.ReadDirEntries(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		in, err := fsys.Inodes.Iget(dir.Dev, e.Inum)
		if err != nil {
			fmt.Printf("%-14s <error: %v>\n", e.Name, err)
			continue
		}
		st := fsys.Fstat(&minixfs.OpenFile{Inode: in})
		fmt.Printf("%s %8d %s\n", st.Mode, st.Size, e.Name)
		fsys.Inodes.Iput(in)
	}
	return nil
}
