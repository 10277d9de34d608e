package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitqr/internal/models"
	"github.com/mmynk/splitqr/internal/server"
	"github.com/mmynk/splitqr/pkg/logging"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the splitqr server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			level := cfg.Log.Level
			if opts.verbose {
				level = "debug"
			}
			logger := logging.Setup(logging.Options{Level: level, Format: cfg.Log.Format, Output: cmd.ErrOrStderr()})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := server.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer srv.Close()
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides the config)")
	return cmd
}

func newSeedCmd(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write the sample bill to the server",
		Long:  "Seed creates the sample bill under the selected bill ID. An existing bill is kept unless --force replaces it, which needs a password account.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := c.timeout(cmd.Context())
			defer cancel()
			if err := server.Seed(ctx, c.bills, c.billID, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded bill %s\n", c.billID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "replace the bill if it exists")
	return cmd
}

func newRegisterCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Create a password account (uses --email, --password and --name)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.email == "" || opts.password == "" {
				return errors.New("register needs --email and --password")
			}
			c, err := opts.dial(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := c.timeout(cmd.Context())
			defer cancel()
			result, err := c.auth.Register(ctx, opts.email, c.cfg.Client.Name, opts.password)
			if err != nil {
				return fmt.Errorf("register %s: %w", opts.email, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s as %s (%s)\n",
				result.Identity.Email, result.Identity.DisplayName, result.Identity.ID)
			return nil
		},
	}
}

// newStatusCmd builds close and reopen.
func newStatusCmd(opts *globalOptions, use, short string, closed bool) *cobra.Command {
	status := models.BillStatusActive
	if closed {
		status = models.BillStatusClosed
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := c.timeout(cmd.Context())
			defer cancel()
			if err := c.bills.SetStatus(ctx, c.billID, status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bill %s is now %s\n", c.billID, status)
			return nil
		},
	}
}
