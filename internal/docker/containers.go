package docker

import (
	"context"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"

	"github.com/quenary/tugtainer/internal/api"
)

// ListContainers returns the full inspect of every container. When all is
// false only running containers are included.
func (c *Client) ListContainers(ctx context.Context, all bool) ([]container.InspectResponse, error) {
	result, err := c.api.ContainerList(ctx, client.ContainerListOptions{All: all})
	if err != nil {
		return nil, err
	}

	inspects := make([]container.InspectResponse, 0, len(result.Items))
	for _, item := range result.Items {
		resp, err := c.api.ContainerInspect(ctx, item.ID, client.ContainerInspectOptions{})
		if err != nil {
			// The container may have been removed between list and inspect.
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		inspects = append(inspects, resp.Container)
	}
	return inspects, nil
}

// ContainerExists reports whether a container with the given name or ID exists.
func (c *Client) ContainerExists(ctx context.Context, ref string) (bool, error) {
	_, err := c.api.ContainerInspect(ctx, ref, client.ContainerInspectOptions{})
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// InspectContainer returns full container details by name or ID.
func (c *Client) InspectContainer(ctx context.Context, ref string) (container.InspectResponse, error) {
	result, err := c.api.ContainerInspect(ctx, ref, client.ContainerInspectOptions{})
	if err != nil {
		return container.InspectResponse{}, err
	}
	return result.Container, nil
}

// CreateContainer creates a new container and returns its inspect data.
func (c *Client) CreateContainer(ctx context.Context, body api.CreateContainerBody) (container.InspectResponse, error) {
	resp, err := c.api.ContainerCreate(ctx, client.ContainerCreateOptions{
		Name:             body.Name,
		Config:           body.Config,
		HostConfig:       body.HostConfig,
		NetworkingConfig: body.NetworkingConfig,
	})
	if err != nil {
		return container.InspectResponse{}, err
	}
	return c.InspectContainer(ctx, resp.ID)
}

// StartContainer starts a stopped container.
func (c *Client) StartContainer(ctx context.Context, ref string) error {
	_, err := c.api.ContainerStart(ctx, ref, client.ContainerStartOptions{})
	return err
}

// StopContainer stops a running container with the daemon's default timeout.
func (c *Client) StopContainer(ctx context.Context, ref string) error {
	_, err := c.api.ContainerStop(ctx, ref, client.ContainerStopOptions{})
	return err
}

// RestartContainer restarts a container.
func (c *Client) RestartContainer(ctx context.Context, ref string) error {
	_, err := c.api.ContainerRestart(ctx, ref, client.ContainerRestartOptions{})
	return err
}

// KillContainer sends SIGKILL to a running container.
func (c *Client) KillContainer(ctx context.Context, ref string) error {
	_, err := c.api.ContainerKill(ctx, ref, client.ContainerKillOptions{})
	return err
}

// PauseContainer suspends all processes in a container.
func (c *Client) PauseContainer(ctx context.Context, ref string) error {
	_, err := c.api.ContainerPause(ctx, ref, client.ContainerPauseOptions{})
	return err
}

// UnpauseContainer resumes a paused container.
func (c *Client) UnpauseContainer(ctx context.Context, ref string) error {
	_, err := c.api.ContainerUnpause(ctx, ref, client.ContainerUnpauseOptions{})
	return err
}

// RemoveContainer removes a container (force).
func (c *Client) RemoveContainer(ctx context.Context, ref string) error {
	_, err := c.api.ContainerRemove(ctx, ref, client.ContainerRemoveOptions{Force: true})
	return err
}
