// Package banner renders colored banners for run state transitions.
//
// Banners go to stderr together with the rest of the human-readable
// output; stdout stays reserved for the machine-readable run report.
package banner

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/gptcompany/claude-config-sub001/internal/logging"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold).SprintFunc()
	successColor = color.New(color.FgGreen, color.Bold).SprintFunc()
	errorColor   = color.New(color.FgRed, color.Bold).SprintFunc()
	warnColor    = color.New(color.FgYellow, color.Bold).SprintFunc()

	// out is swapped in tests.
	out io.Writer = os.Stderr
)

const separator = "═══════════════════════════════════════════════════"

// PrintStartup displays the run banner with configuration summary.
func PrintStartup(runID string, maxIterations int, threshold float64, fileCount int) {
	sep := headerColor(separator)
	fmt.Fprintln(out, sep)
	fmt.Fprintln(out, headerColor("  ralph-loop - Tiered Validation Loop"))
	fmt.Fprintln(out, sep)
	fmt.Fprintf(out, "  Run:        %s\n", runID)
	fmt.Fprintf(out, "  Iterations: max %d\n", maxIterations)
	fmt.Fprintf(out, "  Threshold:  %.1f\n", threshold)
	fmt.Fprintf(out, "  Files:      %d\n", fileCount)
	fmt.Fprintln(out, sep)
}

// PrintComplete displays the success banner after the score met the
// threshold.
func PrintComplete(score, threshold float64, iterations int, durationSecs int) {
	sep := successColor(separator)
	fmt.Fprintln(out, sep)
	fmt.Fprintln(out, successColor("  ✓ Validation complete"))
	fmt.Fprintf(out, "  Score:      %.1f (threshold %.1f)\n", score, threshold)
	fmt.Fprintf(out, "  Iterations: %d\n", iterations)
	fmt.Fprintf(out, "  Duration:   %s\n", logging.FormatDuration(durationSecs))
	fmt.Fprintln(out, sep)
}

// PrintBlocked displays the hard-stop banner with the failing blocker
// dimensions.
func PrintBlocked(blockers []string) {
	sep := errorColor(separator)
	fmt.Fprintln(out, sep)
	fmt.Fprintln(out, errorColor("  ✗ BLOCKED"))
	fmt.Fprintln(out, sep)
	if len(blockers) > 0 {
		fmt.Fprintln(out, "  Failing blocker checks:")
		for _, b := range blockers {
			fmt.Fprintf(out, "    - %s\n", b)
		}
	}
	fmt.Fprintln(out, sep)
}

// PrintExhausted displays the budget-exhaustion banner. The run ended
// cleanly but never reached the threshold.
func PrintExhausted(score, threshold float64, iterations int) {
	sep := warnColor(separator)
	fmt.Fprintln(out, sep)
	fmt.Fprintf(out, "%s\n", warnColor(fmt.Sprintf("  ⚠ Iteration budget exhausted (%d)", iterations)))
	fmt.Fprintf(out, "  Score:      %.1f (threshold %.1f)\n", score, threshold)
	fmt.Fprintln(out, sep)
}

// PrintInterrupted displays the interruption banner with the resume
// hint.
func PrintInterrupted(runID string) {
	sep := warnColor(separator)
	fmt.Fprintln(out, sep)
	fmt.Fprintln(out, warnColor("  ⚠ Run interrupted"))
	fmt.Fprintf(out, "  Checkpoint saved; resume with --resume %s\n", runID)
	fmt.Fprintln(out, sep)
}

// PrintFatal displays the fatal-error banner.
func PrintFatal(msg string) {
	sep := errorColor(separator)
	fmt.Fprintln(out, sep)
	fmt.Fprintln(out, errorColor("  ✗ FATAL"))
	fmt.Fprintf(out, "  %s\n", msg)
	fmt.Fprintln(out, sep)
}
