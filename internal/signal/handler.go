// Package signal wires SIGINT/SIGTERM into context cancellation so an
// in-flight validation run can checkpoint before exiting.
package signal

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SetupHandler registers SIGINT and SIGTERM handlers. On the first
// signal it runs the onInterrupt callback (if non-nil), then cancels the
// context; the validation loop observes the cancellation and stops at
// the next tier boundary.
//
// The listening goroutine exits when a signal arrives or the context is
// canceled by other means.
func SetupHandler(ctx context.Context, cancel context.CancelFunc, onInterrupt func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			if onInterrupt != nil {
				onInterrupt()
			}
			cancel()
		case <-ctx.Done():
		}
	}()
}
