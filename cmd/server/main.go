// Command server runs settld's HTTP API: the Fiber router built by
// internal/httpapi.NewRouter, wired to the dependencies internal/bootstrap
// assembles from the environment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/settld/core/internal/bootstrap"
	"github.com/settld/core/internal/httpapi"
	"github.com/settld/core/internal/httpapi/auth"
)

func main() {
	cfg, err := bootstrap.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "settld-server: load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "settld-server: build dependencies: %v\n", err)
		os.Exit(1)
	}

	app := &httpapi.App{
		Store:             deps.Store,
		Committer:         deps.Committer,
		RateLimiter:       deps.RateLimit,
		Metrics:           deps.Metrics,
		Logger:            deps.Logger,
		JWT:               auth.New(cfg.JWTSecret),
		Fleet:             deps.Fleet,
		BuildVersion:      cfg.BuildVersion,
		ServiceName:       cfg.ServiceName,
		ExportsHMACSecret: cfg.ExportsHMACSecret,
	}

	router := httpapi.NewRouter(app)

	deps.Logger.Infof("settld-server: listening on %s", cfg.HTTPAddr)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- router.Listen(cfg.HTTPAddr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			deps.Logger.Errorf("settld-server: listen: %v", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		deps.Logger.Infof("settld-server: shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := router.ShutdownWithContext(shutdownCtx); err != nil {
			deps.Logger.Errorf("settld-server: graceful shutdown: %v", err)
		}
	}
}
