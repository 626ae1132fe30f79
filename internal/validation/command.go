package validation

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CommandValidator runs an external check command over the modified files.
// Exit status zero means the check passed; any other outcome is a failed
// result carrying the command output as diagnostic detail.
type CommandValidator struct {
	Dim     string
	Command string
	Args    []string

	// AppendFiles appends the modified file paths to the argument list.
	AppendFiles bool
}

func (v *CommandValidator) Dimension() string { return v.Dim }

// Validate executes the check command. Internal failures (missing
// executable, non-zero exit) are reported as a failed Result, never as
// an error.
func (v *CommandValidator) Validate(ctx context.Context, files []string) Result {
	start := time.Now()

	args := append([]string{}, v.Args...)
	if v.AppendFiles {
		args = append(args, files...)
	}

	cmd := exec.CommandContext(ctx, v.Command, args...)
	out, err := cmd.CombinedOutput()

	res := Result{
		Dimension:  v.Dim,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		res.Passed = false
		res.Detail = strings.TrimSpace(fmt.Sprintf("%s: %v\n%s", v.Command, err, out))
		return res
	}
	res.Passed = true
	return res
}

// Spec describes one registered validator in the config file.
type Spec struct {
	Tier        int      `yaml:"tier"`
	Dimension   string   `yaml:"dimension"`
	Command     string   `yaml:"command"`
	Args        []string `yaml:"args"`
	AppendFiles bool     `yaml:"append_files"`
}

// LoadSpecs reads the "validators" list from a YAML config file.
// A missing or unreadable file yields no specs and no error; malformed
// entries are skipped.
func LoadSpecs(path string) []Spec {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var doc struct {
		Validators []Spec `yaml:"validators"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil
	}

	var specs []Spec
	for _, s := range doc.Validators {
		if s.Dimension == "" || s.Command == "" {
			continue
		}
		if s.Tier < int(TierBlocker) || s.Tier > int(TierMonitor) {
			continue
		}
		specs = append(specs, s)
	}
	return specs
}

// Register adds validators for the given specs to the orchestrator.
func Register(o *Orchestrator, specs []Spec) {
	for _, s := range specs {
		o.Register(Tier(s.Tier), &CommandValidator{
			Dim:         s.Dimension,
			Command:     s.Command,
			Args:        s.Args,
			AppendFiles: s.AppendFiles,
		})
	}
}
