package docker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// RunCommand executes the local docker CLI with the given arguments and
// returns its stdout and stderr. This is the escape hatch for operations the
// engine API cannot express in one call, such as attaching a container to
// several networks with aliases.
func (c *Client) RunCommand(ctx context.Context, args []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("docker %v: %w", args, err)
	}
	return stdout.String(), stderr.String(), nil
}
