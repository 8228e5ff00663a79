// Command server runs the slot booking engine and its operator tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "slot-booking",
		Short:         "Time-slot reservation and booking engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newGenerateCmd())
	root.AddCommand(newSweepCmd())
	root.AddCommand(newConsumeCmd())
	root.AddCommand(newTokenCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
