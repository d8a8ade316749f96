package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/moby/moby/api/types/container"

	"github.com/quenary/tugtainer/internal/hostclient"
)

const (
	healthPollInterval   = 5 * time.Second
	defaultHealthTimeout = 120 * time.Second
)

func healthTimeout(h int) time.Duration {
	if h <= 0 {
		return defaultHealthTimeout
	}
	return time.Duration(h) * time.Second
}

func isRunning(c container.InspectResponse) bool {
	return c.State != nil && c.State.Running
}

func healthStatus(c container.InspectResponse) string {
	if c.State == nil || c.State.Health == nil {
		return ""
	}
	return string(c.State.Health.Status)
}

// waitHealthy polls the container until it is healthy or the deadline
// passes. A container without a healthcheck counts as healthy once running.
// The final attempt also accepts health "unknown" while running, for images
// whose healthcheck definition is not visible at inspect time.
func (e *Engine) waitHealthy(ctx context.Context, client hostclient.API, ref string, timeout time.Duration) error {
	deadline := e.clk.Now().Add(timeout)

	for {
		c, err := client.InspectContainer(ctx, ref)
		if err != nil {
			return fmt.Errorf("inspect %s while waiting for health: %w", ref, err)
		}

		health := healthStatus(c)
		if isRunning(c) && (health == "" || health == "healthy") {
			return nil
		}

		if !e.clk.Now().Before(deadline) {
			if isRunning(c) && (health == "healthy" || health == "unknown" || health == "none" || health == "") {
				return nil
			}
			return fmt.Errorf("container %s is not healthy: status=%s health=%s",
				ref, containerStatus(c), health)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.clk.After(healthPollInterval):
		}
	}
}

func containerStatus(c container.InspectResponse) string {
	if c.State == nil {
		return ""
	}
	return string(c.State.Status)
}
