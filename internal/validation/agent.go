package validation

import (
	"context"
	"os/exec"
	"strings"
)

// AgentSpawner launches an external corrective-action agent with a task
// description. Spawning is best-effort: a missing executable or a failed
// launch must never fail the caller.
type AgentSpawner interface {
	Spawn(ctx context.Context, task string) error
}

// NoopSpawner discards spawn requests. Selected at construction when
// agent spawning is disabled, so callers never branch on a flag.
type NoopSpawner struct{}

// Spawn does nothing.
func (NoopSpawner) Spawn(ctx context.Context, task string) error { return nil }

// ExecSpawner spawns an agent by running an external CLI with the task
// description as its prompt.
type ExecSpawner struct {
	// Command is the executable name (default "claude").
	Command string

	// Args precede the task description on the command line.
	Args []string
}

// DefaultSpawnerArgs are the arguments for a non-interactive agent run.
var DefaultSpawnerArgs = []string{"--print", "--dangerously-skip-permissions"}

// Spawn runs the agent CLI with the task description. A command missing
// from PATH is a no-op, not an error.
func (s *ExecSpawner) Spawn(ctx context.Context, task string) error {
	command := s.Command
	if command == "" {
		command = "claude"
	}
	if !CheckAvailability(command)[command] {
		return nil
	}

	args := s.Args
	if args == nil {
		args = DefaultSpawnerArgs
	}
	cmd := exec.CommandContext(ctx, command, append(append([]string{}, args...), task)...)
	return cmd.Run()
}

// CheckAvailability checks if the given tools are available in PATH.
// Returns a map of tool name to availability status.
func CheckAvailability(tools ...string) map[string]bool {
	result := make(map[string]bool, len(tools))
	for _, tool := range tools {
		_, err := exec.LookPath(tool)
		result[tool] = err == nil
	}
	return result
}

// ParseEnabledFlag interprets a boolean-like enablement string
// case-insensitively. Empty or unrecognized values yield the default.
func ParseEnabledFlag(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return def
	}
}
