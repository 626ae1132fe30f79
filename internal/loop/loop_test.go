package loop

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gptcompany/claude-config-sub001/internal/checkpoint"
	"github.com/gptcompany/claude-config-sub001/internal/retry"
	"github.com/gptcompany/claude-config-sub001/internal/validation"
)

type fakeRunner struct {
	calls []validation.Tier

	// fn decides the outcome per call; call counts from 1.
	fn func(tier validation.Tier, call int) (validation.TierResult, error)
}

func (f *fakeRunner) RunTier(ctx context.Context, tier validation.Tier, files []string) (validation.TierResult, error) {
	f.calls = append(f.calls, tier)
	if err := ctx.Err(); err != nil {
		return validation.TierResult{}, err
	}
	return f.fn(tier, len(f.calls))
}

func (f *fakeRunner) tierCalls(tier validation.Tier) int {
	n := 0
	for _, t := range f.calls {
		if t == tier {
			n++
		}
	}
	return n
}

type fakeFixer struct {
	tasks []string
	err   error
}

func (f *fakeFixer) Spawn(ctx context.Context, task string) error {
	f.tasks = append(f.tasks, task)
	return f.err
}

type memStore struct {
	saves []checkpoint.Snapshot
}

func (m *memStore) Save(runID string, snap checkpoint.Snapshot) error {
	snap.RunID = runID
	m.saves = append(m.saves, snap)
	return nil
}

func (m *memStore) Load(runID string) (checkpoint.Snapshot, error) {
	for i := len(m.saves) - 1; i >= 0; i-- {
		if m.saves[i].RunID == runID {
			return m.saves[i], nil
		}
	}
	return checkpoint.Snapshot{}, checkpoint.ErrNotFound
}

func pass(dim string) validation.Result {
	return validation.Result{Passed: true, Dimension: dim}
}

func fail(dim string) validation.Result {
	return validation.Result{Passed: false, Dimension: dim}
}

func mkTier(tier validation.Tier, results ...validation.Result) validation.TierResult {
	tr := validation.TierResult{Tier: tier, Passed: true, Results: results}
	for _, r := range results {
		if !r.Passed {
			tr.Passed = false
		}
	}
	return tr
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxIterations = 5
	cfg.MinScoreThreshold = 70.0
	return cfg
}

func TestWeightedScore(t *testing.T) {
	t1 := mkTier(validation.TierBlocker, pass("behavioral"), pass("api-contract"))
	t2 := mkTier(validation.TierWarning, pass("design"), fail("coverage"))
	t3 := mkTier(validation.TierMonitor, pass("complexity"), fail("docs"))

	// 100*0.5 + 50*0.3 + 50*0.2
	assert.InDelta(t, 75.0, WeightedScore(t1, t2, t3), 0.001)
}

func TestWeightedScoreVacuousPass(t *testing.T) {
	t1 := mkTier(validation.TierBlocker)
	t2 := mkTier(validation.TierWarning)
	t3 := mkTier(validation.TierMonitor)

	assert.InDelta(t, 100.0, WeightedScore(t1, t2, t3), 0.001)
}

func TestRunCompletesOnFirstIteration(t *testing.T) {
	runner := &fakeRunner{fn: func(tier validation.Tier, _ int) (validation.TierResult, error) {
		switch tier {
		case validation.TierBlocker:
			return mkTier(tier, pass("behavioral"), pass("api-contract")), nil
		case validation.TierWarning:
			return mkTier(tier, pass("design")), nil
		default:
			return mkTier(tier, pass("complexity"), fail("docs")), nil
		}
	}}

	l := New(testConfig(), runner)
	res := l.Run(context.Background(), []string{"main.go"})

	require.Equal(t, StateComplete, res.State)
	assert.Equal(t, 1, res.Iteration)
	require.NotNil(t, res.Score)
	assert.InDelta(t, 90.0, *res.Score, 0.001)
	assert.Empty(t, res.Blockers)
	assert.False(t, res.Fatal)
	assert.Contains(t, res.Message, "met threshold")
	require.Len(t, res.History, 1)
	assert.Equal(t, 1, res.History[0].Iteration)
	assert.True(t, res.History[0].Tier1Passed)
	assert.Equal(t, 0, res.History[0].Tier2Warnings)
	assert.Equal(t, 2, res.History[0].Tier3Monitors)
}

func TestRunBlockedGatesLowerTiers(t *testing.T) {
	runner := &fakeRunner{fn: func(tier validation.Tier, _ int) (validation.TierResult, error) {
		return mkTier(tier, fail("behavioral"), pass("api-contract")), nil
	}}

	l := New(testConfig(), runner)
	res := l.Run(context.Background(), nil)

	require.Equal(t, StateBlocked, res.State)
	assert.Equal(t, 1, res.Iteration)
	assert.Nil(t, res.Score)
	assert.Equal(t, []string{"behavioral"}, res.Blockers)
	assert.Contains(t, res.Message, "blocked by 1 failing blocker check")
	assert.Empty(t, res.History)

	// Tier 1 failure is a hard stop: no lower tier ran and no further
	// iteration started.
	assert.Equal(t, []validation.Tier{validation.TierBlocker}, runner.calls)
}

func TestRunExhaustsIterationBudget(t *testing.T) {
	runner := &fakeRunner{fn: func(tier validation.Tier, _ int) (validation.TierResult, error) {
		switch tier {
		case validation.TierBlocker:
			return mkTier(tier, pass("behavioral")), nil
		default:
			return mkTier(tier, fail("design"), fail("coverage")), nil
		}
	}}

	l := New(testConfig(), runner)
	res := l.Run(context.Background(), nil)

	// Exhaustion is a graceful completion, not a failure state.
	require.Equal(t, StateComplete, res.State)
	assert.Equal(t, 5, res.Iteration)
	require.NotNil(t, res.Score)
	assert.InDelta(t, 50.0, *res.Score, 0.001)
	assert.Contains(t, res.Message, "max iterations (5) reached")
	assert.Len(t, res.History, 5)
	assert.Equal(t, 5, runner.tierCalls(validation.TierBlocker))
}

func TestRunCompletesAfterImprovement(t *testing.T) {
	iteration := 0
	runner := &fakeRunner{}
	runner.fn = func(tier validation.Tier, _ int) (validation.TierResult, error) {
		if tier == validation.TierBlocker {
			iteration++
			return mkTier(tier, pass("behavioral")), nil
		}
		if iteration < 3 {
			return mkTier(tier, fail("design")), nil
		}
		return mkTier(tier, pass("design")), nil
	}

	l := New(testConfig(), runner)
	res := l.Run(context.Background(), nil)

	require.Equal(t, StateComplete, res.State)
	assert.Equal(t, 3, res.Iteration)
	require.Len(t, res.History, 3)
	assert.Greater(t, res.History[2].Score, res.History[0].Score)
}

func TestRunFatalErrorAborts(t *testing.T) {
	runner := &fakeRunner{fn: func(tier validation.Tier, _ int) (validation.TierResult, error) {
		if tier == validation.TierWarning {
			return validation.TierResult{}, retry.Fatal(errors.New("auth rejected"))
		}
		return mkTier(tier, pass("behavioral")), nil
	}}

	l := New(testConfig(), runner)
	res := l.Run(context.Background(), nil)

	require.Equal(t, StateBlocked, res.State)
	assert.True(t, res.Fatal)
	assert.Nil(t, res.Score)
	assert.Contains(t, res.Message, "fatal error")
	assert.Contains(t, res.Message, "auth rejected")
}

func TestRunInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &fakeRunner{fn: func(tier validation.Tier, _ int) (validation.TierResult, error) {
		return mkTier(tier, pass("behavioral")), nil
	}}

	l := New(testConfig(), runner)
	res := l.Run(ctx, nil)

	require.Equal(t, StateBlocked, res.State)
	assert.True(t, res.Fatal)
	assert.Contains(t, res.Message, "interrupted")
}

func TestRunRequestsFixBetweenIterations(t *testing.T) {
	iteration := 0
	runner := &fakeRunner{}
	runner.fn = func(tier validation.Tier, _ int) (validation.TierResult, error) {
		if tier == validation.TierBlocker {
			iteration++
			return mkTier(tier, pass("behavioral")), nil
		}
		if iteration == 1 {
			return mkTier(tier, fail("coverage")), nil
		}
		return mkTier(tier, pass("coverage")), nil
	}

	fixer := &fakeFixer{}
	l := New(testConfig(), runner)
	l.Fix = fixer

	res := l.Run(context.Background(), nil)

	require.Equal(t, StateComplete, res.State)
	assert.Equal(t, 2, res.Iteration)
	require.Len(t, fixer.tasks, 1)
	assert.Contains(t, fixer.tasks[0], "coverage")
}

func TestRunFixFailureIsNotFatal(t *testing.T) {
	runner := &fakeRunner{fn: func(tier validation.Tier, _ int) (validation.TierResult, error) {
		if tier == validation.TierBlocker {
			return mkTier(tier, pass("behavioral")), nil
		}
		return mkTier(tier, fail("design")), nil
	}}

	l := New(testConfig(), runner)
	l.Fix = &fakeFixer{err: errors.New("spawn failed")}

	res := l.Run(context.Background(), nil)

	// The fixer failing never aborts the run.
	require.Equal(t, StateComplete, res.State)
	assert.False(t, res.Fatal)
	assert.Equal(t, 5, res.Iteration)
}

func TestRunSavesCheckpoints(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 2

	runner := &fakeRunner{fn: func(tier validation.Tier, _ int) (validation.TierResult, error) {
		if tier == validation.TierBlocker {
			return mkTier(tier, pass("behavioral")), nil
		}
		return mkTier(tier, fail("design")), nil
	}}

	store := &memStore{}
	l := New(cfg, runner)
	l.Checkpoints = store

	res := l.Run(context.Background(), nil)

	require.Equal(t, StateComplete, res.State)
	require.NotEmpty(t, store.saves)

	// One save after the first iteration's fix request, one terminal.
	require.Len(t, store.saves, 2)
	assert.Equal(t, string(StateFixRequested), store.saves[0].State)
	assert.Equal(t, 1, store.saves[0].Iteration)
	assert.Equal(t, string(StateComplete), store.saves[1].State)
	assert.Equal(t, 2, store.saves[1].Iteration)
	assert.NotEmpty(t, store.saves[0].RunID)
	assert.Equal(t, store.saves[0].RunID, store.saves[1].RunID)
	assert.Len(t, store.saves[1].History, 2)
}

func TestRunAssignsRunID(t *testing.T) {
	runner := &fakeRunner{fn: func(tier validation.Tier, _ int) (validation.TierResult, error) {
		return mkTier(tier, pass("behavioral")), nil
	}}

	l := New(testConfig(), runner)
	require.Empty(t, l.RunID)
	l.Run(context.Background(), nil)
	assert.NotEmpty(t, l.RunID)
}

func TestRestoreResumesIterationCount(t *testing.T) {
	snap := checkpoint.Snapshot{
		RunID:     "run-abc",
		State:     string(StateFixRequested),
		Iteration: 3,
		History: []map[string]any{
			{"iteration": 1, "score": 40.0, "tier1_passed": true, "tier2_warnings": 2, "tier3_monitors": 1, "duration_ms": 12, "timestamp": "2026-08-31T10:00:00Z"},
			{"iteration": 2, "score": 50.0, "tier1_passed": true, "tier2_warnings": 1, "tier3_monitors": 1, "duration_ms": 10, "timestamp": "2026-08-31T10:01:00Z"},
			{"iteration": 3, "score": 60.0, "tier1_passed": true, "tier2_warnings": 1, "tier3_monitors": 1, "duration_ms": 11, "timestamp": "2026-08-31T10:02:00Z"},
		},
	}

	runner := &fakeRunner{fn: func(tier validation.Tier, _ int) (validation.TierResult, error) {
		return mkTier(tier, pass("behavioral")), nil
	}}

	l := New(testConfig(), runner)
	l.Restore(snap)

	res := l.Run(context.Background(), nil)

	require.Equal(t, StateComplete, res.State)
	assert.Equal(t, "run-abc", l.RunID)
	assert.Equal(t, 4, res.Iteration)
	require.Len(t, res.History, 4)
	assert.Equal(t, 1, res.History[0].Iteration)
	assert.InDelta(t, 40.0, res.History[0].Score, 0.001)
	assert.Equal(t, 4, res.History[3].Iteration)
}
