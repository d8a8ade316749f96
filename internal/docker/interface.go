package docker

import (
	"context"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/image"

	"github.com/quenary/tugtainer/internal/api"
)

// Engine is the surface the agent handlers need from the container engine.
type Engine interface {
	Ping(ctx context.Context) error

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
	PullImage(ctx context.Context, ref string) (image.InspectResponse, error)
	TagImage(ctx context.Context, specOrID, tag string) error
	PruneImages(ctx context.Context, all bool) (string, error)

	InspectManifest(ctx context.Context, specOrDigest string) (api.ManifestInspect, error)
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, err error)
}

var _ Engine = (*Client)(nil)
