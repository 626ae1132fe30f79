package validation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gptcompany/claude-config-sub001/internal/breaker"
	"github.com/gptcompany/claude-config-sub001/internal/logging"
	"github.com/gptcompany/claude-config-sub001/internal/metrics"
	"github.com/gptcompany/claude-config-sub001/internal/retry"
)

// MaxSwarmWorkers caps concurrent tier-3 validators during a swarm fan-out.
const MaxSwarmWorkers = 4

// Breaker resource names for the optional external capabilities.
const (
	ResourceSwarm = "swarm"
	ResourceAgent = "agent-spawn"
)

// OrchestratorConfig configures tier execution.
type OrchestratorConfig struct {
	// Tier1Timeout bounds the blocker tier; Tier2Timeout bounds the
	// warning and monitor tiers.
	Tier1Timeout time.Duration
	Tier2Timeout time.Duration

	// SwarmEnabled gates the parallel tier-3 fan-out.
	SwarmEnabled bool

	// AgentSpawnEnabled gates corrective-action agent spawning on tier
	// failure.
	AgentSpawnEnabled bool
}

// Orchestrator runs validation tiers. Validators are registered per tier;
// tier 3 may fan out in parallel through a swarm Coordinator, degrading
// to sequential execution when the swarm is unavailable.
type Orchestrator struct {
	cfg OrchestratorConfig

	mu         sync.Mutex
	validators map[Tier][]Validator

	// Swarm and Spawner are optional external capabilities. Nil values
	// select the baseline path.
	Swarm   Coordinator
	Spawner AgentSpawner

	// Breakers guards the external capabilities; a nil value disables
	// breaker checks.
	Breakers *breaker.Breaker

	// Metrics receives per-tier timing events; nil means no-op. RunID
	// and Project tag the events so sinks can correlate tier timings
	// with their run.
	Metrics metrics.Recorder
	RunID   string
	Project string

	// RetryCfg wraps the swarm acquire handshake.
	RetryCfg retry.Config
}

// NewOrchestrator creates an orchestrator with the given config, a no-op
// metrics recorder, and default retry and breaker parameters.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		validators: make(map[Tier][]Validator),
		Breakers:   breaker.New(breaker.DefaultFailureThreshold, breaker.DefaultCooldown),
		Metrics:    metrics.Noop{},
		RetryCfg: retry.Config{
			MaxAttempts: 2,
			BaseDelay:   time.Second,
			MaxDelay:    5 * time.Second,
		},
	}
}

// Register adds a validator to the given tier. Registration order is
// preserved for sequential execution.
func (o *Orchestrator) Register(tier Tier, v Validator) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.validators[tier] = append(o.validators[tier], v)
}

// Validators returns the validators registered for the tier.
func (o *Orchestrator) Validators(tier Tier) []Validator {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Validator(nil), o.validators[tier]...)
}

// timeoutFor returns the configured bound for the tier.
func (o *Orchestrator) timeoutFor(tier Tier) time.Duration {
	if tier == TierBlocker {
		if o.cfg.Tier1Timeout > 0 {
			return o.cfg.Tier1Timeout
		}
		return 30 * time.Second
	}
	if o.cfg.Tier2Timeout > 0 {
		return o.cfg.Tier2Timeout
	}
	return 120 * time.Second
}

// RunTier executes all validators registered for the tier and returns
// the aggregated result.
//
// Validator panics become failed results. A tier that exceeds its
// configured timeout is marked failed with a timeout diagnostic; the
// timeout never escapes as an error. The returned error is non-nil only
// when the parent context was canceled or a fatal condition aborted the
// tier.
func (o *Orchestrator) RunTier(ctx context.Context, tier Tier, files []string) (TierResult, error) {
	validators := o.Validators(tier)
	start := time.Now()

	timeout := o.timeoutFor(tier)
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var results []Result
	if tier == TierMonitor && o.cfg.SwarmEnabled && o.Swarm != nil && len(validators) > 1 {
		results = o.runParallel(tctx, validators, files, timeout)
	} else {
		results = o.runSequential(tctx, validators, files, timeout)
	}

	tr := TierResult{
		Tier:    tier,
		Passed:  allPassed(results),
		Results: results,
	}

	o.record("tier_complete", map[string]any{
		"tier":        int(tier),
		"passed":      tr.Passed,
		"score":       tr.Score(),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	// Parent cancellation (interrupt) aborts the run; a tier deadline
	// does not.
	if err := ctx.Err(); err != nil {
		return tr, err
	}

	if !tr.Passed {
		o.spawnFixAgent(ctx, tier, tr)
	}

	return tr, nil
}

// runSequential executes validators one after another, honoring the tier
// deadline between validators.
func (o *Orchestrator) runSequential(ctx context.Context, validators []Validator, files []string, timeout time.Duration) []Result {
	results := make([]Result, 0, len(validators))
	for _, v := range validators {
		if err := ctx.Err(); err != nil {
			results = append(results, timeoutResult(v.Dimension(), timeout, err))
			continue
		}
		results = append(results, o.runOne(ctx, v, files, timeout))
	}
	return results
}

// runParallel fans the validators out as bounded concurrent tasks under
// an acquired swarm session. Falls back to sequential execution when the
// swarm cannot be acquired. The swarm session is released regardless of
// outcome.
func (o *Orchestrator) runParallel(ctx context.Context, validators []Validator, files []string, timeout time.Duration) []Result {
	workers := len(validators)
	if workers > MaxSwarmWorkers {
		workers = MaxSwarmWorkers
	}

	handle, err := o.acquireSwarm(ctx, workers)
	if err != nil {
		logging.Warnf("swarm unavailable (%v), degrading to sequential execution", err)
		return o.runSequential(ctx, validators, files, timeout)
	}
	defer func() {
		if err := o.Swarm.Release(handle); err != nil {
			logging.Warnf("swarm release failed: %v", err)
		}
	}()

	var mu sync.Mutex
	results := make([]Result, 0, len(validators))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, v := range validators {
		v := v
		g.Go(func() error {
			var res Result
			if err := gctx.Err(); err != nil {
				res = timeoutResult(v.Dimension(), timeout, err)
			} else {
				res = o.runOne(gctx, v, files, timeout)
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			// Per-task isolation: a failed validator never aborts the
			// others.
			return nil
		})
	}
	_ = g.Wait()

	// Merge by dimension name for a stable report; completion order
	// carries no meaning.
	sort.Slice(results, func(i, j int) bool {
		return results[i].Dimension < results[j].Dimension
	})
	return results
}

// runOne executes a single validator with panic isolation.
func (o *Orchestrator) runOne(ctx context.Context, v Validator, files []string, timeout time.Duration) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Passed:     false,
				Dimension:  v.Dimension(),
				DurationMs: time.Since(start).Milliseconds(),
				Detail:     fmt.Sprintf("validator panic: %v", r),
			}
		}
	}()

	res = v.Validate(ctx, files)
	if res.Dimension == "" {
		res.Dimension = v.Dimension()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !res.Passed {
		res = timeoutResult(v.Dimension(), timeout, ctx.Err())
		res.DurationMs = time.Since(start).Milliseconds()
	}
	return res
}

// acquireSwarm reserves a swarm session, retry-wrapped and guarded by
// the circuit breaker.
func (o *Orchestrator) acquireSwarm(ctx context.Context, workers int) (SwarmHandle, error) {
	if o.Breakers != nil && !o.Breakers.AllowRequest(ResourceSwarm) {
		return "", fmt.Errorf("swarm circuit open")
	}

	var handle SwarmHandle
	err := retry.Do(ctx, o.RetryCfg, func() error {
		h, err := o.Swarm.Acquire(ctx, workers)
		if err != nil {
			return err
		}
		handle = h
		return nil
	})

	if o.Breakers != nil {
		if err != nil {
			o.Breakers.RecordFailure(ResourceSwarm)
		} else {
			o.Breakers.RecordSuccess(ResourceSwarm)
		}
	}
	return handle, err
}

// spawnFixAgent launches a corrective-action agent for the failed tier.
// Fail-open: spawn failures are logged and never propagate.
func (o *Orchestrator) spawnFixAgent(ctx context.Context, tier Tier, tr TierResult) {
	if !o.cfg.AgentSpawnEnabled || o.Spawner == nil {
		return
	}
	if o.Breakers != nil && !o.Breakers.AllowRequest(ResourceAgent) {
		logging.Debug("agent-spawn circuit open, skipping corrective agent")
		return
	}

	task := fmt.Sprintf("Fix the failing %s-tier checks: %s",
		tier, strings.Join(tr.FailedDimensions(), ", "))
	err := o.Spawner.Spawn(ctx, task)
	if o.Breakers != nil {
		if err != nil {
			o.Breakers.RecordFailure(ResourceAgent)
		} else {
			o.Breakers.RecordSuccess(ResourceAgent)
		}
	}
	if err != nil {
		logging.Warnf("corrective agent spawn failed: %v", err)
	}
}

func (o *Orchestrator) record(name string, fields map[string]any) {
	if o.Metrics == nil {
		return
	}
	o.Metrics.Record(metrics.Event{Name: name, RunID: o.RunID, Project: o.Project, Fields: fields})
}

// timeoutResult builds the failed result used when a tier deadline cuts
// a validator off.
func timeoutResult(dimension string, timeout time.Duration, cause error) Result {
	detail := fmt.Sprintf("tier timeout after %s", timeout)
	if cause != nil && !errors.Is(cause, context.DeadlineExceeded) {
		detail = fmt.Sprintf("aborted: %v", cause)
	}
	return Result{
		Passed:    false,
		Dimension: dimension,
		Detail:    detail,
	}
}

func allPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
