package main

import (
	"os"

	"github.com/KarpelesLab/minixfs"
	"github.com/spf13/cobra"
)

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <image> <path>",
		Short: "Print a file's contents to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, _, proc, cleanup, err := openImage(args[0])
			if err != nil {
				return err
			}
			defer cleanup()

			in, err := fsys.Namei(proc, args[1])
			if err != nil {
				return err
			}
			defer fsys.Inodes.Iput(in)

			of := &minixfs.OpenFile{Inode: in}
			buf := make([]byte, minixfs.BlockSize)
			for {
				n, err := fsys.FileRead(of, buf)
				if n > 0 {
					if _, werr := os.Stdout.Write(buf[:n]); werr != nil {
						return werr
					}
				}
				if err != nil {
					return err
				}
				if n == 0 {
					return nil
				}
			}
		},
	}
}
