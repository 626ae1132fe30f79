// Package exitcode defines named exit codes for the ralph-loop CLI.
//
// Each code maps a terminal run condition to a numeric value recognized
// by shell scripts and CI pipelines.
package exitcode

// Exit code constants matching the loop's terminal states.
const (
	Success        = 0   // Run completed with score at or above threshold
	Blocked        = 1   // A blocking (tier 1) validator failed
	BelowThreshold = 2   // Iteration budget exhausted below the score threshold
	Fatal          = 3   // Non-retryable failure aborted the run
	Usage          = 64  // Invalid arguments or misconfiguration
	Interrupted    = 130 // SIGINT/SIGTERM received
)

// Name returns the human-readable name for the given exit code.
// Unknown codes return "unknown".
func Name(code int) string {
	switch code {
	case Success:
		return "Success"
	case Blocked:
		return "Blocked"
	case BelowThreshold:
		return "BelowThreshold"
	case Fatal:
		return "Fatal"
	case Usage:
		return "Usage"
	case Interrupted:
		return "Interrupted"
	default:
		return "unknown"
	}
}
