package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitqr/internal/calculator"
	"github.com/mmynk/splitqr/internal/models"
	"github.com/mmynk/splitqr/internal/session"
	"github.com/mmynk/splitqr/internal/tui"
)

func newAssignCmd(opts *globalOptions) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "assign <item>",
		Short: "Claim or release an item",
		Long:  "Assign toggles a claim on an item. Without --as it joins the bill as the signed-in identity and toggles that participant's claim.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID := args[0]

			c, err := opts.connect(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := c.timeout(cmd.Context())
			defer cancel()

			return c.runSession(ctx, nil, func(s *session.Session, changes <-chan struct{}) error {
				if err := waitFor(ctx, changes, loaded(s)); err != nil {
					return fmt.Errorf("loading bill %s: %w", c.billID, err)
				}
				bill := s.Bill()
				if _, ok := bill.Item(itemID); !ok {
					return fmt.Errorf("item %q is not on bill %s", itemID, bill.ID)
				}
				if bill.Status == models.BillStatusClosed {
					return fmt.Errorf("bill %s is closed", bill.ID)
				}

				if as != "" {
					if !bill.HasParticipant(as) {
						return fmt.Errorf("participant %q is not on bill %s", as, bill.ID)
					}
					s.SetCurrentParticipant(as)
				} else {
					s.SetIdentity(c.identity())
					joined := func() bool { return s.CurrentParticipantID() != "" }
					if err := waitFor(ctx, changes, joined); err != nil {
						return fmt.Errorf("joining bill %s: %w", bill.ID, err)
					}
				}

				if err := s.Assign(itemID, "").Wait(ctx); err != nil {
					return fmt.Errorf("assign %s: %w", itemID, err)
				}

				current := s.CurrentParticipantID()
				after := s.Bill()
				if s.Mode() == session.ModeRemote {
					// The store has the write; the subscription may not have caught up.
					if after, err = c.bills.Get(ctx, c.billID); err != nil {
						return err
					}
				}
				item, _ := after.Item(itemID)
				verb := "Released"
				if item.IsClaimedBy(current) {
					verb = "Claimed"
				}
				p, _ := after.Participant(current)
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s %s for %s\n\n", verb, item.Name, participantName(p))
				fmt.Fprint(out, tui.RenderShare(*after, calculator.ComputeShare(*after, current), s.Mode().String()))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "act as an existing participant instead of joining")
	return cmd
}
