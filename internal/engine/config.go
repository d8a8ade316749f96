package engine

import (
	"regexp"
	"sort"
	"strings"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/image"
	"github.com/moby/moby/api/types/network"

	"github.com/quenary/tugtainer/internal/api"
)

var labelKeyRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// buildCreateBody derives the create request that reproduces a running
// container. The second return value lists the docker CLI commands to run
// after the container starts: one "network connect" per extra network,
// because the create body can express aliases for a single network only.
func buildCreateBody(c container.InspectResponse) (*api.CreateContainerBody, [][]string) {
	cfg := container.Config{}
	if c.Config != nil {
		cfg = *c.Config
	}

	cfg.Labels, _ = filterValidLabels(cfg.Labels)

	// A hostname the engine generated from the container ID must not be
	// carried over to the new container.
	if cfg.Hostname != "" && strings.HasPrefix(c.ID, cfg.Hostname) {
		cfg.Hostname = ""
	}

	hostCfg := &container.HostConfig{}
	if c.HostConfig != nil {
		hc := *c.HostConfig
		hostCfg = &hc
	}

	netCfg, commands := buildNetworking(c, hostCfg)

	mode := string(hostCfg.NetworkMode)
	if mode == "host" || mode == "none" || strings.HasPrefix(mode, "container:") {
		// These modes do not support per-container network settings.
		cfg.Hostname = ""
		cfg.ExposedPorts = nil
		hostCfg.DNS = nil
		hostCfg.DNSOptions = nil
		hostCfg.DNSSearch = nil
		hostCfg.Links = nil
		hostCfg.PortBindings = nil
		hostCfg.PublishAllPorts = false
		netCfg = nil
		commands = nil
	}

	return &api.CreateContainerBody{
		Name:             trimName(c.Name),
		Config:           &cfg,
		HostConfig:       hostCfg,
		NetworkingConfig: netCfg,
	}, commands
}

// buildNetworking keeps the first attached network (sorted by name for
// determinism) in the create body and converts the rest into post-create
// connect commands carrying their aliases.
func buildNetworking(c container.InspectResponse, hostCfg *container.HostConfig) (*network.NetworkingConfig, [][]string) {
	if c.NetworkSettings == nil || len(c.NetworkSettings.Networks) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(c.NetworkSettings.Networks))
	for name := range c.NetworkSettings.Networks {
		names = append(names, name)
	}
	sort.Strings(names)

	primary := names[0]
	endpoint := c.NetworkSettings.Networks[primary]
	netCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			primary: {Aliases: endpoint.Aliases},
		},
	}
	hostCfg.NetworkMode = container.NetworkMode(primary)

	var commands [][]string
	for _, name := range names[1:] {
		cmd := []string{"network", "connect"}
		for _, alias := range c.NetworkSettings.Networks[name].Aliases {
			cmd = append(cmd, "--alias", alias)
		}
		cmd = append(cmd, name, trimName(c.Name))
		commands = append(commands, cmd)
	}
	return netCfg, commands
}

// mergeWithImage strips from the create body everything the new image
// already supplies: env defaults, image labels, and the image's own
// entrypoint, command and working dir.
func mergeWithImage(body *api.CreateContainerBody, img image.InspectResponse) *api.CreateContainerBody {
	if img.Config == nil || body.Config == nil {
		return body
	}

	merged := *body
	cfg := *body.Config
	merged.Config = &cfg

	cfg.Env = subtractEnv(cfg.Env, img.Config.Env)

	labels := subtractLabels(cfg.Labels, img.Config.Labels)
	labels, _ = filterValidLabels(labels)
	cfg.Labels = labels

	if len(img.Config.Entrypoint) > 0 {
		cfg.Entrypoint = nil
	}
	if len(img.Config.Cmd) > 0 {
		cfg.Cmd = nil
	}
	if img.Config.WorkingDir != "" {
		cfg.WorkingDir = ""
	}
	return &merged
}

// subtractEnv removes variables whose key the image supplies.
func subtractEnv(env, imageEnv []string) []string {
	if len(env) == 0 || len(imageEnv) == 0 {
		return env
	}
	imageKeys := make(map[string]bool, len(imageEnv))
	for _, e := range imageEnv {
		key, _, _ := strings.Cut(e, "=")
		imageKeys[key] = true
	}
	var out []string
	for _, e := range env {
		key, _, _ := strings.Cut(e, "=")
		if !imageKeys[key] {
			out = append(out, e)
		}
	}
	return out
}

// subtractLabels removes labels whose key the image supplies.
func subtractLabels(labels, imageLabels map[string]string) map[string]string {
	if len(labels) == 0 {
		return labels
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		if _, ok := imageLabels[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// filterValidLabels splits labels into those with engine-acceptable keys
// and the rejects.
func filterValidLabels(labels map[string]string) (valid, invalid map[string]string) {
	if labels == nil {
		return nil, nil
	}
	valid = make(map[string]string, len(labels))
	for k, v := range labels {
		if labelKeyRE.MatchString(k) {
			valid[k] = v
		} else {
			if invalid == nil {
				invalid = make(map[string]string)
			}
			invalid[k] = v
		}
	}
	return valid, invalid
}
