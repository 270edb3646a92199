package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lushly-dev/afd/pkg/bootstrap"
	"github.com/lushly-dev/afd/pkg/config"
	"github.com/lushly-dev/afd/pkg/mcpserver"
	"github.com/lushly-dev/afd/pkg/middleware"
	"github.com/lushly-dev/afd/pkg/registry"
	"github.com/lushly-dev/afd/pkg/tui"

	"github.com/lushly-dev/afd/examples/todo"
)

// newServeCmd boots the demo todo command set behind a real pkg/mcpserver
// HTTP+SSE transport: a long-running process a client (afd connect, or any
// external MCP agent) dials into, graceful on SIGINT/SIGTERM.
func newServeCmd() *cobra.Command {
	var addr string
	var strategy string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run an afd MCP server over the demo todo command set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFilePath())
			if err != nil {
				return err
			}
			if addr != "" {
				host, port, err := splitAddr(addr)
				if err != nil {
					return err
				}
				cfg.Host, cfg.Port = host, port
			}
			if strategy != "" {
				cfg.ToolStrategy = strategy
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address host:port (overrides config/env PORT/HOST)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "tool strategy: individual or grouped (overrides config)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	reg := registry.New()
	todo.RegisterAll(reg)
	bootstrap.RegisterDiscoveryTools(reg, cfg.BootstrapPrefix, formatVersion())

	inv := middleware.New(reg, middleware.WithLogger(logger))

	strategy := mcpserver.StrategyIndividual
	if cfg.ToolStrategy == string(mcpserver.StrategyGrouped) {
		strategy = mcpserver.StrategyGrouped
	}

	srv := mcpserver.New(reg, inv, cfg.BootstrapPrefix, formatVersion(),
		mcpserver.WithStrategy(strategy),
		mcpserver.WithLogger(logger),
	)

	httpSrv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: withCORS(srv.Handler(), cfg.CORSOrigin),
	}

	serveErr := make(chan error, 1)
	go func() {
		fmt.Println(tui.SuccessText.Render(fmt.Sprintf("afd serving on http://%s (strategy=%s)", cfg.Addr(), strategy)))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-serveErr:
		return err
	}
}

// withCORS applies a single allow-origin header from the CORS_ORIGIN
// environment variable. The wire contract itself is transport-agnostic;
// CORS is purely a browser-facing courtesy.
func withCORS(next http.Handler, origin string) http.Handler {
	if origin == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Session-Id")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func splitAddr(addr string) (host string, port int, err error) {
	h, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid --addr %q, expected host:port", addr)
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid --addr %q: port must be numeric", addr)
	}
	return h, p, nil
}
