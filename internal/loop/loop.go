package loop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gptcompany/claude-config-sub001/internal/checkpoint"
	"github.com/gptcompany/claude-config-sub001/internal/logging"
	"github.com/gptcompany/claude-config-sub001/internal/metrics"
	"github.com/gptcompany/claude-config-sub001/internal/retry"
	"github.com/gptcompany/claude-config-sub001/internal/validation"
)

// Tier weights for the composite score. Blocking correctness dominates,
// design/quality warnings matter less, informational monitors least.
const (
	tier1Weight = 0.5
	tier2Weight = 0.3
	tier3Weight = 0.2
)

// TierRunner executes one validation tier. The orchestrator satisfies
// this; tests inject fakes.
type TierRunner interface {
	RunTier(ctx context.Context, tier validation.Tier, files []string) (validation.TierResult, error)
}

// Fixer requests an external corrective action between iterations.
type Fixer interface {
	Spawn(ctx context.Context, task string) error
}

// Loop drives iterations of "run blockers → gate → run warnings and
// monitors → score → decide continue/stop". It exclusively owns the run
// state and the in-progress iteration history; the tier runner is an
// injected capability with no back-reference.
type Loop struct {
	cfg    Config
	runner TierRunner

	// RunID keys checkpoint snapshots; a fresh UUID is assigned when
	// left empty.
	RunID string

	// Project tags emitted metric events; optional.
	Project string

	// Checkpoints persists run state between iterations; nil disables
	// persistence.
	Checkpoints checkpoint.Store

	// Metrics receives iteration and run events; nil means no-op.
	Metrics metrics.Recorder

	// Fix requests a corrective action when the loop enters
	// FIX_REQUESTED; nil skips the request. Fail-open.
	Fix Fixer

	state     State
	iteration int
	history   []IterationHistory
}

// New creates a loop over the given config and tier runner.
func New(cfg Config, runner TierRunner) *Loop {
	return &Loop{
		cfg:    cfg,
		runner: runner,
		state:  StateIdle,
	}
}

// State returns the loop's current state.
func (l *Loop) State() State { return l.state }

// Config returns the loop's configuration.
func (l *Loop) Config() Config { return l.cfg }

// Restore primes the loop from a checkpoint snapshot so Run continues
// from the next iteration. The snapshot's config is ignored; the caller
// decides which config wins.
func (l *Loop) Restore(snap checkpoint.Snapshot) {
	l.RunID = snap.RunID
	l.iteration = snap.Iteration
	l.history = historyFromMaps(snap.History)
}

// Run executes the loop to a terminal state. Always returns a Result;
// fatal failures and interruptions surface as a terminal Result rather
// than an error.
func (l *Loop) Run(ctx context.Context, files []string) *Result {
	start := time.Now()
	if l.RunID == "" {
		l.RunID = uuid.New().String()
	}

	for {
		l.iteration++
		l.state = StateValidating
		iterStart := time.Now()
		logging.Infof("iteration %d/%d", l.iteration, l.cfg.MaxIterations)

		// Tier 1 gates everything downstream.
		t1, err := l.runner.RunTier(ctx, validation.TierBlocker, files)
		if err != nil {
			return l.abort(ctx, err, start)
		}
		if !t1.Passed {
			return l.blocked(t1, start)
		}

		t2, err := l.runner.RunTier(ctx, validation.TierWarning, files)
		if err != nil {
			return l.abort(ctx, err, start)
		}
		t3, err := l.runner.RunTier(ctx, validation.TierMonitor, files)
		if err != nil {
			return l.abort(ctx, err, start)
		}

		score := WeightedScore(t1, t2, t3)
		entry := NewIterationHistory(l.iteration, score, t1.Passed,
			t2.FailedCount(), len(t3.Results), time.Since(iterStart).Milliseconds())
		l.history = append(l.history, entry)
		l.record("iteration", entry.ToMap())

		if score >= l.cfg.MinScoreThreshold {
			l.state = StateComplete
			msg := fmt.Sprintf("score %.1f met threshold %.1f in iteration %d",
				score, l.cfg.MinScoreThreshold, l.iteration)
			return l.finish(l.terminalResult(&score, nil, msg, start))
		}

		if l.iteration >= l.cfg.MaxIterations {
			// Graceful exhaustion: the run ends COMPLETE, but the score
			// tells the caller quality was not met.
			l.state = StateComplete
			msg := fmt.Sprintf("max iterations (%d) reached with score %.1f below threshold %.1f",
				l.cfg.MaxIterations, score, l.cfg.MinScoreThreshold)
			return l.finish(l.terminalResult(&score, nil, msg, start))
		}

		l.state = StateFixRequested
		l.saveCheckpoint()
		l.requestFix(ctx, score, t2, t3)
	}
}

// blocked terminates the run after a tier-1 failure. Tier 1 failure is
// always a hard stop regardless of the iteration budget.
func (l *Loop) blocked(t1 validation.TierResult, start time.Time) *Result {
	l.state = StateBlocked
	blockers := t1.FailedDimensions()
	msg := fmt.Sprintf("blocked by %d failing blocker check(s): %s",
		len(blockers), strings.Join(blockers, ", "))
	return l.finish(l.terminalResult(nil, blockers, msg, start))
}

// abort ends the run after a fatal error or interruption, forcing a
// terminal result that names the cause.
func (l *Loop) abort(ctx context.Context, err error, start time.Time) *Result {
	l.state = StateBlocked

	var msg string
	switch {
	case retry.IsFatal(err):
		msg = fmt.Sprintf("fatal error aborted the run: %v", err)
	case ctx.Err() != nil:
		msg = fmt.Sprintf("run interrupted: %v", ctx.Err())
	default:
		msg = fmt.Sprintf("run aborted: %v", err)
	}

	var score *float64
	if len(l.history) > 0 {
		s := l.history[len(l.history)-1].Score
		score = &s
	}

	res := l.terminalResult(score, nil, msg, start)
	res.Fatal = true
	return l.finish(res)
}

// terminalResult assembles the run's Result from current loop state.
func (l *Loop) terminalResult(score *float64, blockers []string, msg string, start time.Time) *Result {
	return &Result{
		State:           l.state,
		Iteration:       l.iteration,
		Score:           score,
		Blockers:        blockers,
		Message:         msg,
		History:         append([]IterationHistory(nil), l.history...),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
}

// finish saves the terminal checkpoint and emits the run metric.
func (l *Loop) finish(res *Result) *Result {
	l.saveCheckpoint()
	l.record("run_complete", res.ToMap())
	return res
}

// requestFix asks the external corrective-action capability to address
// the failing checks before the next pass. Fail-open: a missing or
// failing fixer only logs.
func (l *Loop) requestFix(ctx context.Context, score float64, t2, t3 validation.TierResult) {
	if l.Fix == nil {
		return
	}

	failing := append(t2.FailedDimensions(), t3.FailedDimensions()...)
	task := fmt.Sprintf("Validation score %.1f is below threshold %.1f; address the failing checks: %s",
		score, l.cfg.MinScoreThreshold, strings.Join(failing, ", "))
	if err := l.Fix.Spawn(ctx, task); err != nil {
		logging.Warnf("fix request failed: %v", err)
	}
}

// saveCheckpoint persists the current run state. Persistence failures
// are logged, never fatal.
func (l *Loop) saveCheckpoint() {
	if l.Checkpoints == nil {
		return
	}

	history := make([]map[string]any, 0, len(l.history))
	for _, h := range l.history {
		history = append(history, h.ToMap())
	}
	snap := checkpoint.Snapshot{
		RunID:     l.RunID,
		State:     string(l.state),
		Iteration: l.iteration,
		Config:    l.cfg.ToMap(),
		History:   history,
	}
	if err := l.Checkpoints.Save(l.RunID, snap); err != nil {
		logging.Warnf("checkpoint save failed: %v", err)
	}
}

func (l *Loop) record(name string, fields map[string]any) {
	if l.Metrics == nil {
		return
	}
	l.Metrics.Record(metrics.Event{Name: name, RunID: l.RunID, Project: l.Project, Fields: fields})
}

// WeightedScore computes the composite score from the three tier
// results: 0.5/0.3/0.2 for blocker/warning/monitor tiers.
func WeightedScore(t1, t2, t3 validation.TierResult) float64 {
	return t1.Score()*tier1Weight + t2.Score()*tier2Weight + t3.Score()*tier3Weight
}

// historyFromMaps rebuilds history entries from their mapping form.
func historyFromMaps(maps []map[string]any) []IterationHistory {
	history := make([]IterationHistory, 0, len(maps))
	for _, m := range maps {
		var h IterationHistory
		if v, ok := toInt(m["iteration"]); ok {
			h.Iteration = v
		}
		if v, ok := toFloat(m["score"]); ok {
			h.Score = v
		}
		if v, ok := m["tier1_passed"].(bool); ok {
			h.Tier1Passed = v
		}
		if v, ok := toInt(m["tier2_warnings"]); ok {
			h.Tier2Warnings = v
		}
		if v, ok := toInt(m["tier3_monitors"]); ok {
			h.Tier3Monitors = v
		}
		if v, ok := toInt(m["duration_ms"]); ok {
			h.DurationMs = int64(v)
		}
		if v, ok := m["timestamp"].(string); ok {
			h.Timestamp = v
		}
		history = append(history, h)
	}
	return history
}
