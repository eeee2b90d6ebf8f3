package app

import (
	"github.com/spf13/cobra"

	"github.com/autopeerd/autopeerd/pkg/logger"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage the peering registry mirror",
}

var registryRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Clone or fast-forward the local registry mirror",
	Long:  `Performs a one-shot clone (if absent) or fetch-and-fast-forward of the configured peering registry, the same refresh the Registry Mirror performs lazily on init.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := buildComponents()
		if err != nil {
			return err
		}
		path, err := c.mirror.EnsureFresh(cmd.Context())
		if err != nil {
			return err
		}
		logger.Infof("registry mirror refreshed at %s", path)
		return nil
	},
}

func init() {
	registryCmd.AddCommand(registryRefreshCmd)
}
