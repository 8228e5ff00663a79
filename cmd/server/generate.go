package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/slot-booking/internal/service"
)

func newGenerateCmd() *cobra.Command {
	var from, to string

	c := &cobra.Command{
		Use:   "generate",
		Short: "Create or refresh the slots of a date range from the operating hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			loc := a.hours.Location()
			start, err := time.ParseInLocation(time.DateOnly, from, loc)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end := start.AddDate(0, 0, 27)
			if to != "" {
				if end, err = time.ParseInLocation(time.DateOnly, to, loc); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}

			res, err := service.NewSlotGenerator(a.store, a.hours, a.log).Regenerate(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	c.Flags().StringVar(&from, "from", time.Now().Format(time.DateOnly), "first date (YYYY-MM-DD)")
	c.Flags().StringVar(&to, "to", "", "last date, inclusive (default: four weeks from --from)")
	return c
}
