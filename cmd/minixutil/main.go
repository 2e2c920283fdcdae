// Command minixutil inspects and manipulates Minix v1 filesystem images:
// listing directories, printing file contents, checking consistency and
// formatting new images.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "minixutil",
		Short:         "Inspect and manipulate Minix v1 filesystem images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newLsCmd())
	root.AddCommand(newCatCmd())
	root.AddCommand(newFsckCmd())
	root.AddCommand(newMkfsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "minixutil: %v\n", err)
		os.Exit(1)
	}
}
