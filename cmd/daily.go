package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MoneyMiii/tennis-booking/internal/slots"
)

func newDailyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Daily booking job",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the daily job once now instead of waiting for its schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg, log, appOptions{migrate: true})
			if err != nil {
				return err
			}
			defer a.Close()

			rep := a.scheduler.RunOnce(ctx, time.Now())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "target %s: ", rep.Target.Format(slots.DateLayout))
			switch {
			case rep.Skipped:
				fmt.Fprintln(out, "already booked, skipped")
			case rep.BookedID != "":
				fmt.Fprintf(out, "booked slot %s after %d attempt(s)\n", rep.BookedID, rep.Attempted)
			default:
				fmt.Fprintf(out, "nothing booked (%d attempted)\n", rep.Attempted)
			}
			fmt.Fprintf(out, "not booked: %d, purged: %d\n", rep.NotBooked, rep.Purged)
			return nil
		},
	})
	return cmd
}
