package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MoneyMiii/tennis-booking/internal/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API and the daily booking job",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg, log, appOptions{migrate: migrateUp})
			if err != nil {
				return err
			}
			defer a.Close()

			ws := &web.Server{
				Slots:     a.controller,
				Accounts:  a.accounts,
				Cards:     a.cards,
				Allowance: a.allowance,
				Auth:      a.authService(),
				Ping:      a.ping,
				Log:       log.With(slog.String("component", "http")),
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.scheduler.Run(ctx) })
			g.Go(func() error { return web.Start(ctx, ws.Echo(), cfg.ListenAddr, log) })
			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
