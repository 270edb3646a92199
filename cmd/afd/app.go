package main

import (
	"log/slog"
	"os"

	"github.com/lushly-dev/afd/examples/todo"
	"github.com/lushly-dev/afd/pkg/bootstrap"
	"github.com/lushly-dev/afd/pkg/client"
	"github.com/lushly-dev/afd/pkg/config"
	"github.com/lushly-dev/afd/pkg/middleware"
	"github.com/lushly-dev/afd/pkg/registry"
)

// localApp is the in-process wiring the CLI runs against when no remote
// session is connected: a fresh registry with the demo todo command set and
// the bootstrap discovery tools registered, exactly as a standalone MCP
// server would boot, minus the HTTP/SSE transport.
type localApp struct {
	reg    *registry.Registry
	client *client.Client
	store  *todo.Store
	cfg    *config.Config
}

func newLocalApp() (*localApp, error) {
	cfg, err := config.Load(configFilePath())
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	store := todo.RegisterAll(reg)
	bootstrap.RegisterDiscoveryTools(reg, cfg.BootstrapPrefix, formatVersion())

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	inv := middleware.New(reg, middleware.WithLogger(logger))
	c := client.New(reg, inv, client.WithInterface(cliInterface()))

	return &localApp{reg: reg, client: c, store: store, cfg: cfg}, nil
}

func configFilePath() string {
	home, _ := os.UserHomeDir()
	return home + "/.afd/config.yaml"
}
