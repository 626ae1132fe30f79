package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gptcompany/claude-config-sub001/internal/banner"
	"github.com/gptcompany/claude-config-sub001/internal/checkpoint"
	"github.com/gptcompany/claude-config-sub001/internal/cli"
	"github.com/gptcompany/claude-config-sub001/internal/exitcode"
	"github.com/gptcompany/claude-config-sub001/internal/logging"
	"github.com/gptcompany/claude-config-sub001/internal/loop"
	"github.com/gptcompany/claude-config-sub001/internal/metrics"
	sighandler "github.com/gptcompany/claude-config-sub001/internal/signal"
	"github.com/gptcompany/claude-config-sub001/internal/validation"
)

// version vars injected via ldflags at build time
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "ralph-loop",
		Short:   "Tiered validation loop for modified files",
		Long:    "Ralph Loop iterates blocking, warning, and monitor validation tiers over a set of modified files until the weighted score meets the threshold or the iteration budget runs out.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newRunCommand(), newStatusCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitcode.Usage)
	}
}

func newRunCommand() *cobra.Command {
	opts := &cli.RunOptions{}

	cmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Run the validation loop over the given files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.ValidateRunOptions(cmd, opts); err != nil {
				return err
			}
			runLoop(cmd, opts, args)
			return nil // unreachable, runLoop exits
		},
	}
	cli.BindRunFlags(cmd, opts)
	return cmd
}

func runLoop(cmd *cobra.Command, opts *cli.RunOptions, args []string) {
	logging.SetVerbose(opts.Verbose)

	files, err := cli.ResolveFiles(args, opts.Files, os.Stdin)
	if err != nil {
		logging.Errorf("resolve files: %v", err)
		os.Exit(exitcode.Usage)
	}

	// Piped stdin serves as the file list when neither positional args
	// nor --files were given.
	if len(files) == 0 && opts.Files != "-" {
		if stat, serr := os.Stdin.Stat(); serr == nil && stat.Mode()&os.ModeCharDevice == 0 {
			files, err = cli.ResolveFiles(nil, "-", os.Stdin)
			if err != nil {
				logging.Errorf("resolve files: %v", err)
				os.Exit(exitcode.Usage)
			}
		}
	}

	cfg := cli.ResolveConfig(cmd, opts)

	// Capability enablement: env var default, negated by flag.
	swarmEnabled := validation.ParseEnabledFlag(os.Getenv("RALPH_SWARM_ENABLED"), true) && !opts.NoSwarm
	agentEnabled := validation.ParseEnabledFlag(os.Getenv("RALPH_AGENT_SPAWN_ENABLED"), true) && !opts.NoAgentSpawn

	var recorder metrics.Recorder = metrics.Noop{}
	if opts.MetricsWebhook != "" {
		recorder = &metrics.Webhook{URL: opts.MetricsWebhook}
	}

	orch := validation.NewOrchestrator(validation.OrchestratorConfig{
		Tier1Timeout:      cfg.Tier1Timeout,
		Tier2Timeout:      cfg.Tier2Timeout,
		SwarmEnabled:      swarmEnabled,
		AgentSpawnEnabled: agentEnabled,
	})
	orch.Metrics = recorder
	if swarmEnabled {
		orch.Swarm = &validation.ExecCoordinator{}
	}
	if agentEnabled {
		orch.Spawner = &validation.ExecSpawner{Args: validation.DefaultSpawnerArgs}
	}

	specs := validation.LoadSpecs(opts.ValidatorsFile)
	if len(specs) == 0 {
		logging.Warnf("no validators configured at %s; all tiers will pass vacuously", opts.ValidatorsFile)
	}
	validation.Register(orch, specs)

	store := checkpoint.NewFileStore("")

	l := loop.New(cfg, orch)
	l.Checkpoints = store
	l.Metrics = recorder
	l.Project = opts.Project
	if agentEnabled {
		l.Fix = orch.Spawner
	}

	if opts.Resume != "" {
		snap, err := resolveSnapshot(store, opts.Resume)
		if err != nil {
			logging.Errorf("resume: %v", err)
			os.Exit(exitcode.Usage)
		}
		l.Restore(snap)
		logging.Infof("resuming run %s from iteration %d", snap.RunID, snap.Iteration)
	} else {
		l.RunID = uuid.New().String()
	}
	orch.RunID = l.RunID
	orch.Project = opts.Project

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var interrupted atomic.Bool
	sighandler.SetupHandler(ctx, cancel, func() {
		interrupted.Store(true)
		logging.Warn("Interrupted, stopping at the next tier boundary...")
	})

	banner.PrintStartup(l.RunID, cfg.MaxIterations, cfg.MinScoreThreshold, len(files))

	res := l.Run(ctx, files)

	if opts.JSON {
		printJSON(res.ToMap())
	} else {
		printSummary(res)
	}
	os.Exit(report(res, cfg, l.RunID, interrupted.Load()))
}

// report prints the terminal banner and maps the result to an exit code.
func report(res *loop.Result, cfg loop.Config, runID string, interrupted bool) int {
	durationSecs := int(res.ExecutionTimeMs / 1000)

	switch {
	case interrupted:
		banner.PrintInterrupted(runID)
		return exitcode.Interrupted

	case res.Fatal:
		banner.PrintFatal(res.Message)
		return exitcode.Fatal

	case res.State == loop.StateBlocked:
		banner.PrintBlocked(res.Blockers)
		return exitcode.Blocked

	case res.Score != nil && *res.Score >= cfg.MinScoreThreshold:
		banner.PrintComplete(*res.Score, cfg.MinScoreThreshold, res.Iteration, durationSecs)
		return exitcode.Success

	default:
		var score float64
		if res.Score != nil {
			score = *res.Score
		}
		banner.PrintExhausted(score, cfg.MinScoreThreshold, res.Iteration)
		return exitcode.BelowThreshold
	}
}

// resolveSnapshot loads the checkpoint named by the --resume value;
// "latest" picks the newest one.
func resolveSnapshot(store *checkpoint.FileStore, ref string) (checkpoint.Snapshot, error) {
	if ref == "latest" {
		return store.Latest()
	}
	return store.Load(ref)
}

func newStatusCommand() *cobra.Command {
	var runID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the checkpoint of the most recent run",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := checkpoint.NewFileStore("")

			var snap checkpoint.Snapshot
			var err error
			if runID == "" {
				snap, err = store.Latest()
			} else {
				snap, err = store.Load(runID)
			}
			if errors.Is(err, checkpoint.ErrNotFound) {
				logging.Info("No checkpoints found")
				return nil
			}
			if err != nil {
				return err
			}

			if asJSON {
				printJSON(snap)
				return nil
			}

			fmt.Printf("Run:        %s\n", snap.RunID)
			fmt.Printf("State:      %s\n", snap.State)
			fmt.Printf("Iteration:  %d\n", snap.Iteration)
			fmt.Printf("Saved:      %s\n", snap.SavedAt)
			if n := len(snap.History); n > 0 {
				if score, ok := snap.History[n-1]["score"].(float64); ok {
					fmt.Printf("Last score: %.1f\n", score)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Run ID to inspect (default: latest)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the checkpoint as JSON")
	return cmd
}

// printSummary writes the one-line KEY=VALUE run report to stdout.
func printSummary(res *loop.Result) {
	score := "none"
	if res.Score != nil {
		score = fmt.Sprintf("%.1f", *res.Score)
	}
	fmt.Printf("state=%s score=%s iterations=%d duration_ms=%d\n",
		res.State, score, res.Iteration, res.ExecutionTimeMs)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logging.Errorf("encode report: %v", err)
		return
	}
	fmt.Println(string(data))
}
