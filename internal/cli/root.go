// Package cli implements the splitqr command line: a terminal client for shared bills and
// a way to run the server.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	server     string
	billID     string
	url        string
	name       string
	email      string
	password   string
	token      string
	tokenFile  string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "splitqr",
		Short:         "Split a restaurant bill from a scanned QR code",
		Long:          "splitqr opens a shared bill, lets everyone at the table claim what they had, and shows what each person owes.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to the YAML config file (default splitqr.yaml)")
	flags.StringVar(&opts.server, "server", "", "base URL of the splitqr server")
	flags.StringVar(&opts.billID, "bill", "", "bill ID to open")
	flags.StringVar(&opts.url, "url", "", "scanned QR URL; its bill parameter selects the bill")
	flags.StringVar(&opts.name, "name", "", "display name for guest sign-in")
	flags.StringVar(&opts.email, "email", "", "account email for password sign-in")
	flags.StringVar(&opts.password, "password", "", "account password for password sign-in")
	flags.StringVar(&opts.token, "token", "", "resume a guest sign-in from this token")
	flags.StringVar(&opts.tokenFile, "token-file", "", "file keeping the guest sign-in between runs")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newSeedCmd(opts))
	cmd.AddCommand(newRegisterCmd(opts))
	cmd.AddCommand(newShowCmd(opts))
	cmd.AddCommand(newShareCmd(opts))
	cmd.AddCommand(newAssignCmd(opts))
	cmd.AddCommand(newAddCmd(opts))
	cmd.AddCommand(newRemoveCmd(opts))
	cmd.AddCommand(newStatusCmd(opts, "close", "Close the bill to further changes", true))
	cmd.AddCommand(newStatusCmd(opts, "reopen", "Reopen a closed bill", false))
	cmd.AddCommand(newWatchCmd(opts))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "splitqr %s (%s)\n", version, commit)
		},
	}
}

// NewRootCmdForTest returns the root command for testing.
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

func Execute() error {
	return newRootCmd().Execute()
}
