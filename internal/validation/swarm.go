package validation

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// SwarmHandle identifies an acquired swarm coordination session.
type SwarmHandle string

// Coordinator is the optional swarm coordination capability used for
// parallel tier-3 execution. A Coordinator is single-owner per tier run:
// acquired before the fan-out, released in a guaranteed-cleanup path.
type Coordinator interface {
	// Acquire reserves a coordination session for the given worker count.
	Acquire(ctx context.Context, workers int) (SwarmHandle, error)

	// Release tears the session down. Must be safe to call exactly once
	// per successful Acquire.
	Release(handle SwarmHandle) error
}

// ExecCoordinator drives an external swarm CLI (claude-flow style):
// "swarm init --max-workers N" prints a session id, "swarm destroy ID"
// releases it.
type ExecCoordinator struct {
	// Command is the executable name (default "claude-flow").
	Command string
}

func (c *ExecCoordinator) command() string {
	if c.Command == "" {
		return "claude-flow"
	}
	return c.Command
}

// Acquire starts a swarm session and returns its id.
func (c *ExecCoordinator) Acquire(ctx context.Context, workers int) (SwarmHandle, error) {
	command := c.command()
	if !CheckAvailability(command)[command] {
		return "", fmt.Errorf("swarm command not found: %s", command)
	}

	out, err := exec.CommandContext(ctx, command, "swarm", "init",
		"--max-workers", fmt.Sprintf("%d", workers)).Output()
	if err != nil {
		return "", fmt.Errorf("swarm init: %w", err)
	}

	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", fmt.Errorf("swarm init returned no session id")
	}
	return SwarmHandle(id), nil
}

// Release destroys the swarm session.
func (c *ExecCoordinator) Release(handle SwarmHandle) error {
	return exec.Command(c.command(), "swarm", "destroy", string(handle)).Run()
}
