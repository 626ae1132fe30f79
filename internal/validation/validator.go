// Package validation defines the tier validator contract and the
// orchestrator that executes validation tiers over a set of modified
// files.
//
// Tier 1 checks are blocking, tier 2 checks are warnings, and tier 3
// checks are informational monitors. Concrete validators live outside
// this package; everything here consumes the uniform Validate contract.
package validation

import (
	"context"
	"fmt"
)

// Tier identifies a validation phase.
type Tier int

const (
	// TierBlocker holds correctness checks that halt the run on failure.
	TierBlocker Tier = 1

	// TierWarning holds design and quality checks surfaced as warnings.
	TierWarning Tier = 2

	// TierMonitor holds informational monitors, eligible for parallel
	// execution.
	TierMonitor Tier = 3
)

// String returns the tier's display name.
func (t Tier) String() string {
	switch t {
	case TierBlocker:
		return "blocker"
	case TierWarning:
		return "warning"
	case TierMonitor:
		return "monitor"
	default:
		return fmt.Sprintf("tier-%d", int(t))
	}
}

// Result is the outcome of a single validator run. A failed result is
// normal data consumed by scoring, never an error.
type Result struct {
	Passed        bool   `json:"passed"`
	Dimension     string `json:"dimension"`
	DurationMs    int64  `json:"duration_ms"`
	Detail        string `json:"detail,omitempty"`
	FixSuggestion string `json:"fix_suggestion,omitempty"`
}

// Validator is the uniform contract every tier check implements.
// Implementations must honor ctx cancellation; any panic or internal
// error is converted by the orchestrator into a failed Result.
type Validator interface {
	// Dimension names the check (e.g. "behavioral", "api-contract").
	Dimension() string

	// Validate runs the check against the modified files.
	Validate(ctx context.Context, files []string) Result
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc struct {
	Dim string
	Fn  func(ctx context.Context, files []string) Result
}

func (v ValidatorFunc) Dimension() string { return v.Dim }

func (v ValidatorFunc) Validate(ctx context.Context, files []string) Result {
	return v.Fn(ctx, files)
}

// TierResult aggregates the validator outcomes of one tier run.
type TierResult struct {
	Tier    Tier     `json:"tier"`
	Passed  bool     `json:"passed"`
	Results []Result `json:"results"`
}

// Score returns the tier score in [0, 100]: passed count over total,
// times 100. A tier with no results scores 100, a vacuous pass by
// policy, so unconfigured tiers never drag the weighted score down.
func (tr TierResult) Score() float64 {
	if len(tr.Results) == 0 {
		return 100.0
	}
	passed := 0
	for _, r := range tr.Results {
		if r.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(tr.Results)) * 100.0
}

// FailedDimensions returns the dimension names of failed results, in
// result order.
func (tr TierResult) FailedDimensions() []string {
	var dims []string
	for _, r := range tr.Results {
		if !r.Passed {
			dims = append(dims, r.Dimension)
		}
	}
	return dims
}

// FailedCount returns the number of failed results.
func (tr TierResult) FailedCount() int {
	n := 0
	for _, r := range tr.Results {
		if !r.Passed {
			n++
		}
	}
	return n
}
