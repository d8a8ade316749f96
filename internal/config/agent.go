package config

import (
	"errors"
	"fmt"
	"time"
)

// AgentConfig holds all agent configuration from environment variables.
type AgentConfig struct {
	Addr         string        // listen address
	Secret       string        // shared secret for request signing, empty disables signatures
	SignatureTTL time.Duration // max clock skew accepted on signed requests
	DockerSock   string        // path or URL of the engine socket
	Workers      int           // bounded pool size for blocking engine calls
	LogJSON      bool
}

// LoadAgent reads all agent configuration from environment variables with defaults.
func LoadAgent() *AgentConfig {
	return &AgentConfig{
		Addr:         envStr("AGENT_ADDR", ":8410"),
		Secret:       envStr("AGENT_SECRET", ""),
		SignatureTTL: time.Duration(envInt("AGENT_SIGNATURE_TTL", 10)) * time.Second,
		DockerSock:   envStr("AGENT_DOCKER_SOCK", "/var/run/docker.sock"),
		Workers:      envInt("AGENT_WORKERS", 7),
		LogJSON:      envBool("AGENT_LOG_JSON", true),
	}
}

// Validate checks agent configuration for invalid values.
func (c *AgentConfig) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("AGENT_ADDR must not be empty"))
	}
	if c.SignatureTTL <= 0 {
		errs = append(errs, fmt.Errorf("AGENT_SIGNATURE_TTL must be > 0, got %s", c.SignatureTTL))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("AGENT_WORKERS must be > 0, got %d", c.Workers))
	}
	return errors.Join(errs...)
}
