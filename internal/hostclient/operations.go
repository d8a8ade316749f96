package hostclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/image"

	"github.com/quenary/tugtainer/internal/api"
)

// API is the agent surface the engine consumes. *Client implements it;
// tests substitute a mock.
type API interface {
	Health(ctx context.Context) error
	Access(ctx context.Context) error

	ListContainers(ctx context.Context, all bool) ([]container.InspectResponse, error)
	ContainerExists(ctx context.Context, ref string) (bool, error)
	InspectContainer(ctx context.Context, ref string) (container.InspectResponse, error)
	CreateContainer(ctx context.Context, body api.CreateContainerBody) (container.InspectResponse, error)
	StartContainer(ctx context.Context, ref string) error
	StopContainer(ctx context.Context, ref string) error
	RestartContainer(ctx context.Context, ref string) error
	KillContainer(ctx context.Context, ref string) error
	PauseContainer(ctx context.Context, ref string) error
	UnpauseContainer(ctx context.Context, ref string) error
	RemoveContainer(ctx context.Context, ref string) error

	ListImages(ctx context.Context, filters map[string][]string) ([]image.InspectResponse, error)
	InspectImage(ctx context.Context, specOrID string) (image.InspectResponse, error)
	PullImage(ctx context.Context, imageRef string) (image.InspectResponse, error)
	TagImage(ctx context.Context, specOrID, tag string) error
	PruneImages(ctx context.Context, all bool) (string, error)

	InspectManifest(ctx context.Context, specOrDigest string) (api.ManifestInspect, error)
	RunCommand(ctx context.Context, args []string) (api.CommandRunResult, error)
}

var _ API = (*Client)(nil)

// Health checks that the agent is up and its engine reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/public/health", nil, nil, nil)
}

// Access verifies that our secret is accepted by the agent.
func (c *Client) Access(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/public/access", nil, nil, nil)
}

// ListContainers returns the full inspect of the host's containers.
func (c *Client) ListContainers(ctx context.Context, all bool) ([]container.InspectResponse, error) {
	var out []container.InspectResponse
	err := c.do(ctx, http.MethodPost, "/api/container/list", nil, api.ContainerListBody{All: all}, &out)
	return out, err
}

// ContainerExists reports whether the container exists on the host.
func (c *Client) ContainerExists(ctx context.Context, ref string) (bool, error) {
	var out bool
	err := c.do(ctx, http.MethodGet, "/api/container/exists/"+url.PathEscape(ref), nil, nil, &out)
	return out, err
}

// InspectContainer returns the container's inspect data.
func (c *Client) InspectContainer(ctx context.Context, ref string) (container.InspectResponse, error) {
	var out container.InspectResponse
	err := c.do(ctx, http.MethodGet, "/api/container/inspect/"+url.PathEscape(ref), nil, nil, &out)
	return out, err
}

// CreateContainer creates a container and returns its inspect data.
func (c *Client) CreateContainer(ctx context.Context, body api.CreateContainerBody) (container.InspectResponse, error) {
	var out container.InspectResponse
	err := c.do(ctx, http.MethodPost, "/api/container/create", nil, body, &out)
	return out, err
}

func (c *Client) containerAction(ctx context.Context, action, ref string) error {
	return c.do(ctx, http.MethodPost, "/api/container/"+action+"/"+url.PathEscape(ref), nil, nil, nil)
}

// StartContainer starts a container.
func (c *Client) StartContainer(ctx context.Context, ref string) error {
	return c.containerAction(ctx, "start", ref)
}

// StopContainer stops a container.
func (c *Client) StopContainer(ctx context.Context, ref string) error {
	return c.containerAction(ctx, "stop", ref)
}

// RestartContainer restarts a container.
func (c *Client) RestartContainer(ctx context.Context, ref string) error {
	return c.containerAction(ctx, "restart", ref)
}

// KillContainer kills a container.
func (c *Client) KillContainer(ctx context.Context, ref string) error {
	return c.containerAction(ctx, "kill", ref)
}

// PauseContainer pauses a container.
func (c *Client) PauseContainer(ctx context.Context, ref string) error {
	return c.containerAction(ctx, "pause", ref)
}

// UnpauseContainer unpauses a container.
func (c *Client) UnpauseContainer(ctx context.Context, ref string) error {
	return c.containerAction(ctx, "unpause", ref)
}

// RemoveContainer removes a container.
func (c *Client) RemoveContainer(ctx context.Context, ref string) error {
	return c.do(ctx, http.MethodDelete, "/api/container/remove/"+url.PathEscape(ref), nil, nil, nil)
}

// ListImages returns the full inspect of the host's images.
func (c *Client) ListImages(ctx context.Context, filters map[string][]string) ([]image.InspectResponse, error) {
	var out []image.InspectResponse
	err := c.do(ctx, http.MethodPost, "/api/image/list", nil, api.ImageListBody{Filters: filters}, &out)
	return out, err
}

// InspectImage returns the image's inspect data.
func (c *Client) InspectImage(ctx context.Context, specOrID string) (image.InspectResponse, error) {
	var out image.InspectResponse
	err := c.do(ctx, http.MethodGet, "/api/image/inspect", nil, api.ImageInspectBody{SpecOrID: specOrID}, &out)
	return out, err
}

// PullImage pulls an image on the host and returns its inspect data.
func (c *Client) PullImage(ctx context.Context, imageRef string) (image.InspectResponse, error) {
	var out image.InspectResponse
	err := c.do(ctx, http.MethodPost, "/api/image/pull", nil, api.ImagePullBody{Image: imageRef}, &out)
	return out, err
}

// TagImage tags an image on the host.
func (c *Client) TagImage(ctx context.Context, specOrID, tag string) error {
	return c.do(ctx, http.MethodPost, "/api/image/tag", nil, api.ImageTagBody{SpecOrID: specOrID, Tag: tag}, nil)
}

// PruneImages removes unused images on the host.
func (c *Client) PruneImages(ctx context.Context, all bool) (string, error) {
	var out string
	err := c.do(ctx, http.MethodPost, "/api/image/prune", nil, api.ImagePruneBody{All: all}, &out)
	return out, err
}

// InspectManifest asks the agent for the registry manifest of an image.
func (c *Client) InspectManifest(ctx context.Context, specOrDigest string) (api.ManifestInspect, error) {
	var out api.ManifestInspect
	q := url.Values{"spec_or_digest": {specOrDigest}}
	err := c.do(ctx, http.MethodGet, "/api/manifest/inspect", q, nil, &out)
	return out, err
}

// RunCommand runs a raw engine CLI command on the host.
func (c *Client) RunCommand(ctx context.Context, args []string) (api.CommandRunResult, error) {
	var out api.CommandRunResult
	err := c.do(ctx, http.MethodPost, "/api/command/run", nil, api.CommandRunBody{Command: args}, &out)
	return out, err
}
