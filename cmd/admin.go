package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MoneyMiii/tennis-booking/internal/auth"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage API administrators",
	}
	cmd.AddCommand(newAdminAddCmd())
	return cmd
}

func newAdminAddCmd() *cobra.Command {
	var username, password string

	c := &cobra.Command{
		Use:   "add",
		Short: "Add an administrator (username/password)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if a.db == nil {
					return fmt.Errorf("admin accounts need STORE_DRIVER=postgres")
				}
				svc := auth.NewService(a.admins, a.cfg.CookieHashKey, a.cfg.CookieBlockKey)
				id, err := svc.CreateAdmin(ctx, username, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %q (id=%d)\n", username, id)
				return nil
			})
		},
	}

	c.Flags().StringVar(&username, "username", "", "username")
	c.Flags().StringVar(&password, "password", "", "password")
	_ = c.MarkFlagRequired("username")
	_ = c.MarkFlagRequired("password")
	return c
}
