package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iliyamo/slot-booking/internal/service"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Release every expired hold once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := service.NewHoldManager(a.store, a.cfg.Hold, a.log).Sweep(cmd.Context())
			fmt.Fprintf(os.Stdout, "released %d expired holds\n", n)
			return err
		},
	}
}
