package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitqr/internal/models"
	"github.com/mmynk/splitqr/internal/session"
	"github.com/mmynk/splitqr/internal/tui"
)

func newShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the bill and what everyone owes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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
				me := ""
				if bill := s.Bill(); bill.HasParticipant(c.identity().ID) {
					me = c.identity().ID
				}
				render(cmd.OutOrStdout(), s, me)
				return nil
			})
		},
	}
}

func newShareCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "share <participant>",
		Short: "Show one participant's checkout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
				if !bill.HasParticipant(args[0]) {
					return fmt.Errorf("participant %q is not on bill %s", args[0], bill.ID)
				}
				fmt.Fprint(cmd.OutOrStdout(), tui.RenderShare(*bill, s.Share(args[0]), s.Mode().String()))
				return nil
			})
		},
	}
}

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var clearScreen bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Join the bill and follow it live",
		Long:  "Watch signs in, joins the bill as a participant if needed, and redraws the bill on every change until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			c, err := opts.connect(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer c.Close()

			stderr := cmd.ErrOrStderr()
			onError := func(err error) {
				fmt.Fprintf(stderr, "warning: %v\n", err)
			}
			return c.runSession(ctx, onError, func(s *session.Session, changes <-chan struct{}) error {
				s.SetIdentity(c.identity())
				out := cmd.OutOrStdout()
				for {
					select {
					case <-changes:
						if s.Loading() {
							continue
						}
						if clearScreen {
							fmt.Fprint(out, "\033[H\033[2J")
						}
						render(out, s, s.CurrentParticipantID())
					case <-ctx.Done():
						return nil
					}
				}
			})
		},
	}

	cmd.Flags().BoolVar(&clearScreen, "clear", false, "clear the terminal before every redraw")
	return cmd
}

// render writes the bill, then the current participant's share when there is one, then the
// summary.
func render(w io.Writer, s *session.Session, currentID string) {
	bill := s.Bill()
	if bill == nil {
		return
	}
	mode := s.Mode().String()
	fmt.Fprint(w, tui.RenderBill(*bill, currentID, mode))
	if currentID != "" && bill.HasParticipant(currentID) {
		share := s.Share(currentID)
		fmt.Fprintf(w, "\n  You owe %s\n", tui.FormatAmount(share.Total))
	}
	fmt.Fprint(w, "\n", tui.RenderSummary(*bill, s.Summary(), currentID))
}

// participantName is a short label for confirmations.
func participantName(p models.Participant) string {
	if p.Name == "" {
		return p.ID
	}
	return fmt.Sprintf("%s (%s)", p.Name, p.ID)
}
