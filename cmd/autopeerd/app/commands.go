// Package app provides the entry point for the autopeerd command-line
// application.
package app

import (
	"github.com/spf13/cobra"

	"github.com/autopeerd/autopeerd/pkg/logger"
)

// NewRootCmd creates the root command for the autopeerd daemon.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "autopeerd",
		DisableAutoGenTag: true,
		Short:             "autopeerd automates dn42-style peering setup",
		Long: `autopeerd automates the lifecycle of a dn42-style peering session: a
prospective peer proves control of the ASN it claims by signing a
challenge with the PGP key the peering registry has on file, and
autopeerd allocates tunnel addresses, renders and deploys the
WireGuard tunnel and BGP session configuration, and issues a bearer
token the peer uses to manage the session afterward.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				logger.Errorf("error displaying help: %v", err)
			}
		},
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}
