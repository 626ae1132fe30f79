package validation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandValidatorPasses(t *testing.T) {
	v := &CommandValidator{Dim: "lint", Command: "true"}

	res := v.Validate(context.Background(), nil)

	assert.True(t, res.Passed)
	assert.Equal(t, "lint", res.Dimension)
	assert.Empty(t, res.Detail)
}

func TestCommandValidatorFailsWithDetail(t *testing.T) {
	v := &CommandValidator{Dim: "lint", Command: "sh", Args: []string{"-c", "echo broken; exit 1"}}

	res := v.Validate(context.Background(), nil)

	assert.False(t, res.Passed)
	assert.Contains(t, res.Detail, "broken")
}

func TestCommandValidatorMissingExecutable(t *testing.T) {
	v := &CommandValidator{Dim: "lint", Command: "definitely-not-a-command-xyz"}

	res := v.Validate(context.Background(), nil)

	// Missing executables fail the check, they never error out.
	assert.False(t, res.Passed)
	assert.NotEmpty(t, res.Detail)
}

func TestCommandValidatorAppendsFiles(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "out.txt")
	v := &CommandValidator{
		Dim:         "files",
		Command:     "sh",
		Args:        []string{"-c", `echo "$0 $1" > ` + marker},
		AppendFiles: true,
	}

	res := v.Validate(context.Background(), []string{"a.go", "b.go"})
	require.True(t, res.Passed)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Contains(t, string(data), "a.go b.go")
}

func TestLoadSpecs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validators.yaml")
	content := `validators:
  - tier: 1
    dimension: behavioral
    command: go
    args: ["test", "./..."]
  - tier: 2
    dimension: lint
    command: golangci-lint
    args: ["run"]
    append_files: true
  - tier: 9
    dimension: bogus-tier
    command: "true"
  - tier: 3
    command: "missing-dimension"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	specs := LoadSpecs(path)

	require.Len(t, specs, 2)
	assert.Equal(t, 1, specs[0].Tier)
	assert.Equal(t, "behavioral", specs[0].Dimension)
	assert.True(t, specs[1].AppendFiles)
}

func TestLoadSpecsMissingFile(t *testing.T) {
	assert.Nil(t, LoadSpecs(filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestRegisterSpecs(t *testing.T) {
	o := NewOrchestrator(OrchestratorConfig{})
	Register(o, []Spec{
		{Tier: 1, Dimension: "behavioral", Command: "true"},
		{Tier: 3, Dimension: "complexity", Command: "true"},
	})

	require.Len(t, o.Validators(TierBlocker), 1)
	assert.Empty(t, o.Validators(TierWarning))
	require.Len(t, o.Validators(TierMonitor), 1)
	assert.Equal(t, "complexity", o.Validators(TierMonitor)[0].Dimension())
}
