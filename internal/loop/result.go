package loop

import "time"

// State is the loop's run state.
//
// IDLE is initial; VALIDATING and FIX_REQUESTED are transient; BLOCKED
// and COMPLETE are terminal; no transition leaves them within a run.
type State string

const (
	StateIdle         State = "IDLE"
	StateValidating   State = "VALIDATING"
	StateBlocked      State = "BLOCKED"
	StateFixRequested State = "FIX_REQUESTED"
	StateComplete     State = "COMPLETE"
)

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateBlocked || s == StateComplete
}

// IterationHistory records one completed (scored) iteration. Entries are
// immutable and appended in chronological order.
type IterationHistory struct {
	Iteration     int     `json:"iteration"`
	Score         float64 `json:"score"`
	Tier1Passed   bool    `json:"tier1_passed"`
	Tier2Warnings int     `json:"tier2_warnings"`
	Tier3Monitors int     `json:"tier3_monitors"`
	DurationMs    int64   `json:"duration_ms"`
	Timestamp     string  `json:"timestamp"`
}

// NewIterationHistory creates a history entry, stamping it with the
// current time.
func NewIterationHistory(iteration int, score float64, tier1Passed bool, tier2Warnings, tier3Monitors int, durationMs int64) IterationHistory {
	return IterationHistory{
		Iteration:     iteration,
		Score:         score,
		Tier1Passed:   tier1Passed,
		Tier2Warnings: tier2Warnings,
		Tier3Monitors: tier3Monitors,
		DurationMs:    durationMs,
		Timestamp:     time.Now().Format(time.RFC3339),
	}
}

// ToMap serializes the entry as a plain mapping of primitives.
func (h IterationHistory) ToMap() map[string]any {
	return map[string]any{
		"iteration":      h.Iteration,
		"score":          h.Score,
		"tier1_passed":   h.Tier1Passed,
		"tier2_warnings": h.Tier2Warnings,
		"tier3_monitors": h.Tier3Monitors,
		"duration_ms":    h.DurationMs,
		"timestamp":      h.Timestamp,
	}
}

// Result is the terminal artifact of a loop run.
type Result struct {
	// State is a terminal LoopState.
	State State `json:"state"`

	// Iteration is the final iteration count.
	Iteration int `json:"iteration"`

	// Score is the last computed weighted score; nil when the run was
	// blocked before any scoring.
	Score *float64 `json:"score"`

	// Blockers lists the failed blocker dimensions, in result order.
	// Empty unless State is BLOCKED.
	Blockers []string `json:"blockers"`

	// Message is a human-readable summary.
	Message string `json:"message"`

	// History holds one entry per scored iteration, chronological.
	History []IterationHistory `json:"history"`

	// Fatal marks a run ended by a non-retryable error or interruption
	// rather than a validation verdict.
	Fatal bool `json:"fatal"`

	// ExecutionTimeMs is the wall-clock duration of the whole run.
	ExecutionTimeMs int64 `json:"execution_time_ms"`
}

// ToMap serializes the result as a plain mapping: every value is a
// primitive or a list of primitives/mappings, suitable for any
// structured-data encoding. This is the wire contract toward callers
// and metric sinks.
func (r *Result) ToMap() map[string]any {
	history := make([]map[string]any, 0, len(r.History))
	for _, h := range r.History {
		history = append(history, h.ToMap())
	}

	blockers := make([]string, 0, len(r.Blockers))
	blockers = append(blockers, r.Blockers...)

	m := map[string]any{
		"state":             string(r.State),
		"iteration":         r.Iteration,
		"score":             nil,
		"blockers":          blockers,
		"message":           r.Message,
		"history":           history,
		"fatal":             r.Fatal,
		"execution_time_ms": r.ExecutionTimeMs,
	}
	if r.Score != nil {
		m["score"] = *r.Score
	}
	return m
}
