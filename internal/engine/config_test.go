package engine

import (
	"net/netip"
	"slices"
	"testing"

	dockerspec "github.com/moby/docker-image-spec/specs-go/v1"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/image"
	"github.com/moby/moby/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

func TestBuildCreateBodyMultiNetwork(t *testing.T) {
	c := runningContainer("c1", "web", "app:latest", "sha256:img")
	c.NetworkSettings = &container.NetworkSettings{
		Networks: map[string]*network.EndpointSettings{
			"frontend": {Aliases: []string{"web-alias"}},
			"backend":  {Aliases: []string{"db-peer"}},
		},
	}

	body, commands := buildCreateBody(c)

	// The first network in name order rides in the create body.
	if body.HostConfig.NetworkMode != "backend" {
		t.Errorf("network mode = %q", body.HostConfig.NetworkMode)
	}
	ep := body.NetworkingConfig.EndpointsConfig["backend"]
	if ep == nil || !slices.Equal(ep.Aliases, []string{"db-peer"}) {
		t.Errorf("endpoint = %+v", ep)
	}

	// The rest become post-create connect commands with their aliases.
	want := [][]string{{"network", "connect", "--alias", "web-alias", "frontend", "web"}}
	if len(commands) != 1 || !slices.Equal(commands[0], want[0]) {
		t.Errorf("commands = %v", commands)
	}
}

func TestBuildCreateBodyHostNetworkMode(t *testing.T) {
	c := runningContainer("c1", "web", "app:latest", "sha256:img")
	c.Config.Hostname = "custom-host"
	c.HostConfig = &container.HostConfig{
		NetworkMode: "host",
		DNS:         []netip.Addr{netip.MustParseAddr("10.0.0.53")},
		Links:       []string{"db:db"},
	}
	c.NetworkSettings = &container.NetworkSettings{
		Networks: map[string]*network.EndpointSettings{
			"host": {},
		},
	}

	body, commands := buildCreateBody(c)

	if body.Config.Hostname != "" {
		t.Errorf("hostname = %q", body.Config.Hostname)
	}
	if body.HostConfig.DNS != nil || body.HostConfig.Links != nil {
		t.Errorf("host config = %+v", body.HostConfig)
	}
	if body.NetworkingConfig != nil || commands != nil {
		t.Errorf("network settings should be dropped: %+v, %v", body.NetworkingConfig, commands)
	}
	if body.HostConfig.NetworkMode != "host" {
		t.Errorf("network mode = %q", body.HostConfig.NetworkMode)
	}
}

func TestBuildCreateBodyDropsGeneratedHostname(t *testing.T) {
	c := runningContainer("abcdef1234567890", "web", "app:latest", "sha256:img")

	c.Config.Hostname = "abcdef123456"
	body, _ := buildCreateBody(c)
	if body.Config.Hostname != "" {
		t.Errorf("generated hostname survived: %q", body.Config.Hostname)
	}

	c.Config.Hostname = "my-web"
	body, _ = buildCreateBody(c)
	if body.Config.Hostname != "my-web" {
		t.Errorf("custom hostname lost: %q", body.Config.Hostname)
	}
}

func TestBuildCreateBodyFiltersInvalidLabels(t *testing.T) {
	c := runningContainer("c1", "web", "app:latest", "sha256:img")
	c.Config.Labels = map[string]string{
		"valid.label":   "1",
		"-leading-dash": "2",
		"has space":     "3",
	}

	body, _ := buildCreateBody(c)
	if len(body.Config.Labels) != 1 || body.Config.Labels["valid.label"] != "1" {
		t.Errorf("labels = %v", body.Config.Labels)
	}
}

func imageWithConfig(cfg ocispec.ImageConfig) image.InspectResponse {
	img := fixtureImage("sha256:new", "app@sha256:rd")
	img.Config = &dockerspec.DockerOCIImageConfig{ImageConfig: cfg}
	return img
}

func TestMergeWithImageSubtractsEnvByKey(t *testing.T) {
	c := runningContainer("c1", "web", "app:latest", "sha256:img")
	c.Config.Env = []string{"MODE=custom", "PATH=/opt/bin", "EXTRA=1"}
	body, _ := buildCreateBody(c)

	img := imageWithConfig(ocispec.ImageConfig{
		Env: []string{"PATH=/usr/local/bin", "MODE=default"},
	})
	merged := mergeWithImage(body, img)

	// Keys the image supplies are dropped even when the values differ.
	if !slices.Equal(merged.Config.Env, []string{"EXTRA=1"}) {
		t.Errorf("env = %v", merged.Config.Env)
	}
	// The input body is left alone for a potential rollback.
	if !slices.Equal(body.Config.Env, []string{"MODE=custom", "PATH=/opt/bin", "EXTRA=1"}) {
		t.Errorf("original env mutated: %v", body.Config.Env)
	}
}

func TestMergeWithImageSubtractsLabelsByKey(t *testing.T) {
	c := runningContainer("c1", "web", "app:latest", "sha256:img")
	c.Config.Labels = map[string]string{
		"org.opencontainers.image.version": "1.0",
		"my.app.tier":                      "web",
	}
	body, _ := buildCreateBody(c)

	img := imageWithConfig(ocispec.ImageConfig{
		Labels: map[string]string{"org.opencontainers.image.version": "2.0"},
	})
	merged := mergeWithImage(body, img)

	if len(merged.Config.Labels) != 1 || merged.Config.Labels["my.app.tier"] != "web" {
		t.Errorf("labels = %v", merged.Config.Labels)
	}
}

func TestMergeWithImageDropsImageSuppliedProcess(t *testing.T) {
	c := runningContainer("c1", "web", "app:latest", "sha256:img")
	c.Config.Entrypoint = []string{"/entrypoint.sh"}
	c.Config.Cmd = []string{"serve"}
	c.Config.WorkingDir = "/app"
	body, _ := buildCreateBody(c)

	img := imageWithConfig(ocispec.ImageConfig{
		Entrypoint: []string{"/entrypoint.sh"},
		Cmd:        []string{"serve"},
		WorkingDir: "/srv",
	})
	merged := mergeWithImage(body, img)

	if merged.Config.Entrypoint != nil || merged.Config.Cmd != nil || merged.Config.WorkingDir != "" {
		t.Errorf("process config survived: %+v", merged.Config)
	}
}

func TestMergeWithImageKeepsOverrides(t *testing.T) {
	c := runningContainer("c1", "web", "app:latest", "sha256:img")
	c.Config.Entrypoint = []string{"/custom.sh"}
	body, _ := buildCreateBody(c)

	// Image without its own entrypoint: the override must survive.
	img := imageWithConfig(ocispec.ImageConfig{})
	merged := mergeWithImage(body, img)

	if !slices.Equal([]string(merged.Config.Entrypoint), []string{"/custom.sh"}) {
		t.Errorf("entrypoint = %v", merged.Config.Entrypoint)
	}
}
