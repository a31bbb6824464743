package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MoneyMiii/tennis-booking/internal/lifecycle"
	"github.com/MoneyMiii/tennis-booking/internal/slots"
)

func newSlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Manage requested slots without the HTTP API",
	}
	cmd.AddCommand(newSlotAddCmd())
	cmd.AddCommand(newSlotListCmd())
	cmd.AddCommand(newSlotDeleteCmd())
	return cmd
}

// withApp loads the config and builds the app for one short command.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg, log, appOptions{migrate: true})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printSlot(cmd *cobra.Command, s slots.Slot) {
	fmt.Fprintf(cmd.OutOrStdout(), "id=%s date=%s hours=%d-%d type=%s status=%s\n",
		s.ID, s.Date.Format(slots.DateLayout), s.StartTime, s.EndTime, s.Type, s.Status)
}

func newSlotAddCmd() *cobra.Command {
	var req lifecycle.Request

	c := &cobra.Command{
		Use:   "add",
		Short: "Request a slot; books it now when the date is inside the booking window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				res, err := a.controller.Create(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "success=%t message=%q\n", res.Success, res.Message)
				if res.Slot != nil {
					printSlot(cmd, *res.Slot)
				}
				return nil
			})
		},
	}

	c.Flags().StringVar(&req.Date, "date", "", "date YYYY-MM-DD")
	c.Flags().IntVar(&req.StartTime, "start", 0, "start hour (8-21)")
	c.Flags().IntVar(&req.EndTime, "end", 0, "end hour (9-22)")
	c.Flags().StringVar(&req.Type, "type", string(slots.Both), "court type: outdoor, indoor or both")
	_ = c.MarkFlagRequired("date")
	_ = c.MarkFlagRequired("start")
	_ = c.MarkFlagRequired("end")
	return c
}

func newSlotListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				all, err := a.controller.List(ctx)
				if err != nil {
					return err
				}
				for _, s := range all {
					printSlot(cmd, s)
				}
				return nil
			})
		},
	}
}

func newSlotDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a slot that is not booked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if err := a.controller.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted slot %s\n", args[0])
				return nil
			})
		},
	}
}
