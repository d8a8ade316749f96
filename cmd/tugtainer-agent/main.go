// Command tugtainer-agent runs on every monitored host. It exposes the
// signed HTTP surface the controller calls and translates it to Docker
// Engine and registry operations.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quenary/tugtainer/internal/agent"
	"github.com/quenary/tugtainer/internal/clock"
	"github.com/quenary/tugtainer/internal/config"
	"github.com/quenary/tugtainer/internal/docker"
	"github.com/quenary/tugtainer/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadAgent()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log := logging.New(cfg.LogJSON)
	if cfg.Secret == "" {
		log.Warn("AGENT_SECRET is empty, request signatures are not verified")
	}

	eng, err := docker.NewClient(cfg.DockerSock)
	if err != nil {
		return fmt.Errorf("connect to docker: %w", err)
	}
	defer eng.Close()

	srv := agent.NewServer(cfg, eng, log, clock.Real{})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
