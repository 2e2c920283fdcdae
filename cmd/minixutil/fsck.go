package main

import (
	"fmt"
	"os"

	"github.com/KarpelesLab/minixfs"
	"github.com/spf13/cobra"
)

func newFsckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fsck <image>",
		Short: "Check a filesystem image for inode/bitmap inconsistencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			dev := minixfs.NewFileDevice(f)
			if st, err := f.Stat(); err == nil {
				dev.SetSize(st.Size())
			}

			fsys := minixfs.NewFS(minixfs.Options{})
			report, err := fsys.Fsck(dev)
			if err != nil {
				return err
			}

			if report.Clean() {
				fmt.Println("clean")
				return nil
			}
			if report.BadMagic {
				fmt.Println("bad superblock magic")
			}
			for _, e := range report.InodeBitmapErrors {
				fmt.Println("inode bitmap:", e)
			}
			for _, e := range report.ZoneBitmapErrors {
				fmt.Println("zone bitmap:", e)
			}
			for _, e := range report.LinkCountErrors {
				fmt.Println("cross-linked:", e)
			}
			for _, z := range report.OrphanZones {
				fmt.Printf("orphan zone: %d\n", z)
			}
			os.Exit(1)
			return nil
		},
	}
}
