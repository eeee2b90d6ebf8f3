package app

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/autopeerd/autopeerd/pkg/logger"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Sweep stale pending records",
	Long:  `Removes orphaned temp files and pending records past their TTL, and heals any pending record left behind by a crash between promotion and cleanup, the same sweep a supervisor should run periodically alongside serve.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := buildComponents()
		if err != nil {
			return err
		}
		ttl, err := time.ParseDuration(c.cfg.PendingTTL)
		if err != nil {
			return err
		}
		if err := c.engine.Recover(ttl); err != nil {
			return err
		}
		logger.Info("gc sweep complete")
		return nil
	},
}
