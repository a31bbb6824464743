package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MoneyMiii/tennis-booking/internal/db"
	"github.com/MoneyMiii/tennis-booking/internal/migrate"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != "postgres" {
				return fmt.Errorf("migrate needs STORE_DRIVER=postgres")
			}
			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()
			return migrate.Up(ctx, d, log)
		},
	}
}
