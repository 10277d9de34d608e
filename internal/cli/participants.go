package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitqr/internal/session"
)

func newAddCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Add a guest to the bill",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			guest := session.NewGuest(strings.Join(args, " "))
			if err := guest.Validate(); err != nil {
				return err
			}

			c, err := opts.connect(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := c.timeout(cmd.Context())
			defer cancel()
			if err := c.bills.AddParticipant(ctx, c.billID, guest); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", participantName(guest))
			return nil
		},
	}
}

func newRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <participant>",
		Short: "Remove a participant and their claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := c.timeout(cmd.Context())
			defer cancel()
			if err := c.bills.RemoveParticipant(ctx, c.billID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}
