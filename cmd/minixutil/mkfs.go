package main

import (
	"fmt"
	"os"

	"github.com/KarpelesLab/minixfs"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newMkfsCmd() *cobra.Command {
	var blocks uint32
	cmd := &cobra.Command{
		Use:   "mkfs <image>",
		Short: "Format a new, empty filesystem image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.OpenFile(args[0], os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
			if err != nil {
				return err
			}
			defer f.Close()

			if blocks == 0 {
				return fmt.Errorf("--blocks is required")
			}
			if err := f.Truncate(int64(blocks) * minixfs.BlockSize); err != nil {
				return err
			}

			dev := minixfs.NewFileDevice(f)
			dev.SetSize(int64(blocks) * minixfs.BlockSize)

			fsys := minixfs.NewFS(minixfs.Options{})
			return minixfs.Mkfs(fsys, dev, minixfs.MkfsOptions{TotalBlocks: blocks})
		},
	}
	flags := pflag.NewFlagSet("mkfs", pflag.ContinueOnError)
	flags.Uint32Var(&blocks, "blocks", 0, "device size in 1KiB blocks")
	cmd.Flags().AddFlagSet(flags)
	return cmd
}
