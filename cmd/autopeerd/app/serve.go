package app

import (
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/autopeerd/autopeerd/pkg/api"
	apihealth "github.com/autopeerd/autopeerd/pkg/api/health"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the autopeerd HTTP API",
	Long:  `Starts the autopeerd HTTP API and listens for peering lifecycle requests until terminated.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		c, err := buildComponents()
		if err != nil {
			return err
		}

		ready := func(r *http.Request) error {
			_, err := c.mirror.EnsureFresh(r.Context())
			return err
		}

		return api.Serve(ctx, c.cfg.BindAddress, c.cfg.CookieDomain, c.engine, c.tokens, apihealth.Checker(ready), c.metricsHandler)
	},
}
