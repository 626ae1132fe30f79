// Package cli provides flag binding, validation, and input resolution
// for the ralph-loop CLI.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gptcompany/claude-config-sub001/internal/loop"
)

// Default file locations under the working directory.
const (
	DefaultConfigFile     = ".ralph-loop/config.yaml"
	DefaultValidatorsFile = ".ralph-loop/validators.yaml"
)

// RunOptions holds everything the run command reads from flags.
type RunOptions struct {
	ConfigFile        string
	ValidatorsFile    string
	Files             string
	Project           string
	MaxIterations     int
	MinScoreThreshold float64
	Tier1TimeoutSecs  int
	Tier2TimeoutSecs  int
	NoSwarm           bool
	NoAgentSpawn      bool
	Resume            string
	MetricsWebhook    string
	JSON              bool
	Verbose           bool
}

// BindRunFlags registers the run command's flags. The flags directly
// modify fields in the provided options pointer; call ValidateRunOptions
// after parsing.
func BindRunFlags(cmd *cobra.Command, opts *RunOptions) {
	flags := cmd.Flags()

	flags.StringVar(&opts.ConfigFile, "config", DefaultConfigFile, "Path to loop config file")
	flags.StringVar(&opts.ValidatorsFile, "validators", DefaultValidatorsFile, "Path to validator definitions file")
	flags.StringVar(&opts.Files, "files", "", "Modified files, comma or newline separated ('-' reads stdin)")
	flags.StringVar(&opts.Project, "project", "", "Project name tag for reports and metrics")

	flags.IntVar(&opts.MaxIterations, "max-iterations", loop.DefaultMaxIterations, "Maximum loop iterations")
	flags.Float64Var(&opts.MinScoreThreshold, "min-score", loop.DefaultMinScoreThreshold, "Weighted score threshold for completion")
	flags.IntVar(&opts.Tier1TimeoutSecs, "tier1-timeout", int(loop.DefaultTier1Timeout.Seconds()), "Tier 1 timeout in seconds")
	flags.IntVar(&opts.Tier2TimeoutSecs, "tier2-timeout", int(loop.DefaultTier2Timeout.Seconds()), "Tier 2/3 timeout in seconds")

	flags.BoolVar(&opts.NoSwarm, "no-swarm", false, "Disable swarm parallelization for tier 3")
	flags.BoolVar(&opts.NoAgentSpawn, "no-agent-spawn", false, "Disable corrective agent spawning")

	flags.StringVar(&opts.Resume, "resume", "", "Resume the given run ID ('latest' picks the newest checkpoint)")
	flags.StringVar(&opts.MetricsWebhook, "metrics-webhook", "", "Webhook URL for run metrics")
	flags.BoolVar(&opts.JSON, "json", false, "Print the run report as JSON on stdout")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable debug logging")
}

// ValidateRunOptions checks flag values and combinations after parsing.
func ValidateRunOptions(cmd *cobra.Command, opts *RunOptions) error {
	if opts.MaxIterations <= 0 {
		return fmt.Errorf("--max-iterations must be positive, got: %d", opts.MaxIterations)
	}
	if opts.MinScoreThreshold < 0 || opts.MinScoreThreshold > 100 {
		return fmt.Errorf("--min-score must be in [0, 100], got: %g", opts.MinScoreThreshold)
	}
	if opts.Tier1TimeoutSecs <= 0 || opts.Tier2TimeoutSecs <= 0 {
		return fmt.Errorf("tier timeouts must be positive")
	}

	// An explicitly named config file must exist; the default location
	// is allowed to be absent.
	if cmd.Flags().Changed("config") {
		if _, err := os.Stat(opts.ConfigFile); err != nil {
			return fmt.Errorf("--config: %w", err)
		}
	}
	return nil
}

// ResolveConfig builds the loop config with the file/flag precedence
// chain: built-in defaults, then the config file, then only the flags
// the user explicitly set.
func ResolveConfig(cmd *cobra.Command, opts *RunOptions) loop.Config {
	cfg := loop.LoadConfigFile(opts.ConfigFile)

	flags := cmd.Flags()
	if flags.Changed("max-iterations") {
		cfg.MaxIterations = opts.MaxIterations
	}
	if flags.Changed("min-score") {
		cfg.MinScoreThreshold = opts.MinScoreThreshold
	}
	if flags.Changed("tier1-timeout") {
		cfg.Tier1Timeout = time.Duration(opts.Tier1TimeoutSecs) * time.Second
	}
	if flags.Changed("tier2-timeout") {
		cfg.Tier2Timeout = time.Duration(opts.Tier2TimeoutSecs) * time.Second
	}
	return cfg
}

// ResolveFiles merges positional arguments with the --files flag. A
// flag value of "-" reads one path per line from stdin.
func ResolveFiles(args []string, filesFlag string, stdin io.Reader) ([]string, error) {
	files := append([]string(nil), args...)

	if filesFlag == "-" {
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			// Lines may themselves be comma-separated lists.
			files = append(files, ParseFileList(scanner.Text())...)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read files from stdin: %w", err)
		}
		return files, nil
	}

	return append(files, ParseFileList(filesFlag)...), nil
}

// ParseFileList splits a comma or newline separated file list, dropping
// empty entries.
func ParseFileList(s string) []string {
	var files []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n'
	}) {
		if f := strings.TrimSpace(part); f != "" {
			files = append(files, f)
		}
	}
	return files
}
