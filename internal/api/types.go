// Package api defines the wire types of the agent HTTP surface. Both the
// agent server and the controller's host client marshal these, so they live
// in a package neither side owns.
package api

import (
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"
)

// ContainerListBody selects which containers /container/list returns.
type ContainerListBody struct {
	All bool `json:"all"`
}

// CreateContainerBody is the request of /container/create. The engine types
// are used directly so the agent can hand them to the daemon unchanged.
type CreateContainerBody struct {
	Name             string                    `json:"name"`
	Config           *container.Config         `json:"config"`
	HostConfig       *container.HostConfig     `json:"host_config,omitempty"`
	NetworkingConfig *network.NetworkingConfig `json:"networking_config,omitempty"`
}

// ImageListBody selects which images /image/list returns. Filters follow the
// engine's filter syntax, e.g. {"dangling": ["true"]}.
type ImageListBody struct {
	Filters map[string][]string `json:"filters,omitempty"`
}

// ImageInspectBody names the image for /image/inspect.
type ImageInspectBody struct {
	SpecOrID string `json:"spec_or_id"`
}

// ImagePullBody names the image for /image/pull.
type ImagePullBody struct {
	Image string `json:"image"`
}

// ImageTagBody is the request of /image/tag.
type ImageTagBody struct {
	SpecOrID string `json:"spec_or_id"`
	Tag      string `json:"tag"`
}

// ImagePruneBody is the request of /image/prune. All=false removes only
// dangling images.
type ImagePruneBody struct {
	All bool `json:"all"`
}

// CommandRunBody is the request of /command/run. The agent prepends its own
// engine CLI invocation; the body carries only the arguments.
type CommandRunBody struct {
	Command []string `json:"command"`
}

// CommandRunResult is the [stdout, stderr] pair of /command/run.
type CommandRunResult [2]string

// ManifestPlatform identifies one platform variant inside an image index.
type ManifestPlatform struct {
	Architecture string `json:"architecture"`
	OS           string `json:"os"`
	Variant      string `json:"variant,omitempty"`
}

// ManifestDescriptor is one entry of a multi-platform image index.
type ManifestDescriptor struct {
	MediaType string            `json:"mediaType"`
	Digest    string            `json:"digest"`
	Platform  *ManifestPlatform `json:"platform,omitempty"`
}

// ManifestConfig is the config descriptor of a single-platform manifest.
type ManifestConfig struct {
	MediaType string `json:"mediaType"`
	Digest    string `json:"digest"`
}

// ManifestInspect is the response of /manifest/inspect. For a
// single-platform image Config is set and Manifests is empty; for a
// multi-platform index Manifests lists the per-platform descriptors.
type ManifestInspect struct {
	MediaType string               `json:"mediaType"`
	Digest    string               `json:"digest"`
	Config    *ManifestConfig      `json:"config,omitempty"`
	Manifests []ManifestDescriptor `json:"manifests,omitempty"`
}

// ErrorResponse is the JSON error envelope of every non-2xx agent response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
