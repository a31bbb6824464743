package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MoneyMiii/tennis-booking/internal/credentials"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage site accounts",
	}

	var email, password string
	var activate bool
	add := &cobra.Command{
		Use:   "add",
		Short: "Store a site account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				acc, err := a.accounts.Create(ctx, credentials.Account{Email: email, Password: password}, activate)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created account id=%s active=%t\n", acc.ID, acc.IsActive)
				return nil
			})
		},
	}
	add.Flags().StringVar(&email, "email", "", "login email")
	add.Flags().StringVar(&password, "password", "", "login password")
	add.Flags().BoolVar(&activate, "activate", false, "make it the active account")
	_ = add.MarkFlagRequired("email")
	_ = add.MarkFlagRequired("password")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				all, err := a.accounts.List(ctx)
				if err != nil {
					return err
				}
				for _, acc := range all {
					fmt.Fprintf(cmd.OutOrStdout(), "id=%s email=%s active=%t\n", acc.ID, acc.Email, acc.IsActive)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, newActivateCmd("account", func(ctx context.Context, a *app, id string) error {
		_, err := a.accounts.Activate(ctx, id)
		return err
	}))
	return cmd
}

func newCardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Manage payment cards",
	}

	var card credentials.Card
	var activate bool
	add := &cobra.Command{
		Use:   "add",
		Short: "Store a payment card",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				c, err := a.cards.Create(ctx, card, activate)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created card id=%s number=%s active=%t\n", c.ID, c.Masked(), c.IsActive)
				return nil
			})
		},
	}
	add.Flags().StringVar(&card.Name, "name", "", "cardholder name")
	add.Flags().StringVar(&card.Number, "number", "", "card number")
	add.Flags().StringVar(&card.CVC, "cvc", "", "3-digit security code")
	add.Flags().IntVar(&card.ExpiryMonth, "expiry-month", 0, "expiry month 1-12")
	add.Flags().IntVar(&card.ExpiryYear, "expiry-year", 0, "expiry year, four digits")
	add.Flags().BoolVar(&activate, "activate", false, "make it the active card")
	for _, f := range []string{"name", "number", "cvc", "expiry-month", "expiry-year"} {
		_ = add.MarkFlagRequired(f)
	}

	cmd.AddCommand(add, newActivateCmd("card", func(ctx context.Context, a *app, id string) error {
		_, err := a.cards.Activate(ctx, id)
		return err
	}))
	return cmd
}

func newActivateCmd(noun string, activate func(ctx context.Context, a *app, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <id>",
		Short: "Make the " + noun + " the one bookings use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if err := activate(ctx, a, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "activated %s %s\n", noun, args[0])
				return nil
			})
		},
	}
}
