package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/utils"
)

func newTokenCmd() *cobra.Command {
	var sub, role, secret string
	var ttl time.Duration

	c := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or JWT_SECRET is required")
			}
			r := model.ParseRole(role)
			if string(r) != role {
				return fmt.Errorf("unknown role %q", role)
			}
			tok, err := utils.NewAccessToken(secret, sub, string(r), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, tok.Token)
			return nil
		},
	}

	c.Flags().StringVar(&sub, "sub", "", "subject (operator id)")
	c.Flags().StringVar(&role, "role", string(model.RoleAdmin), "customer, admin, operator or manager")
	c.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "signing secret")
	c.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = c.MarkFlagRequired("sub")
	return c
}
