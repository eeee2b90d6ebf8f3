package app

import (
	"net/http"

	"github.com/autopeerd/autopeerd/pkg/audit"
	"github.com/autopeerd/autopeerd/pkg/config"
	"github.com/autopeerd/autopeerd/pkg/deploy"
	"github.com/autopeerd/autopeerd/pkg/lifecycle"
	"github.com/autopeerd/autopeerd/pkg/metrics"
	"github.com/autopeerd/autopeerd/pkg/registry"
	"github.com/autopeerd/autopeerd/pkg/store"
	"github.com/autopeerd/autopeerd/pkg/token"
)

// components holds every wired dependency a subcommand might need, built
// once from the process's resolved configuration.
type components struct {
	cfg *config.Config

	store  *store.Store
	mirror *registry.Mirror
	tokens *token.Service
	deploy *deploy.Deployer
	engine *lifecycle.Engine

	metricsRecorder *metrics.Recorder
	metricsHandler  http.Handler
}

// buildComponents loads configuration and constructs every component
// the lifecycle engine composes: registry mirror, config store, token
// service, and deployer, all handed to a single Engine.
func buildComponents() (*components, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}

	st, err := store.New(cfg.PendingDir, cfg.VerifiedDir)
	if err != nil {
		return nil, err
	}

	mirror := registry.New(cfg.RegistryPath, cfg.RegistryURL, cfg.GitUsername, cfg.GitToken)
	tokens := token.New(cfg.JWTSecret)
	deployer := deploy.New(cfg.TunnelConfigDir, cfg.DaemonConfigDir, cfg.TunnelTool, cfg.DaemonTool)

	rec, metricsHandler := metrics.NewRecorder()
	auditor := audit.NewAuditor()

	engine := lifecycle.New(cfg.MyASN, mirror, st, tokens, deployer).
		WithMetrics(rec).
		WithAudit(auditor)

	return &components{
		cfg:             cfg,
		store:           st,
		mirror:          mirror,
		tokens:          tokens,
		deploy:          deployer,
		engine:          engine,
		metricsRecorder: rec,
		metricsHandler:  metricsHandler,
	}, nil
}
