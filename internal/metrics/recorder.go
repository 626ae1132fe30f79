// Package metrics provides an explicitly-lifetimed side-channel for run
// telemetry. The loop and orchestrator receive a Recorder at construction;
// when no backend is configured the no-op implementation is used, so the
// absence of a sink is decided once instead of checked everywhere.
package metrics

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// Event is a single metric emission. Fields must stay primitive (or
// lists/maps of primitives) so any structured-data sink can encode it.
type Event struct {
	Name    string         `json:"name"`
	RunID   string         `json:"run_id"`
	Project string         `json:"project,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Recorder receives metric events. Implementations must never block the
// loop and must never surface errors to the caller.
type Recorder interface {
	Record(ev Event)
}

// Noop discards every event.
type Noop struct{}

// Record discards ev.
func (Noop) Record(ev Event) {}

// Webhook posts events as JSON to a webhook URL.
// Fire-and-forget: never blocks the loop, silent on failure.
type Webhook struct {
	URL string

	// Client is replaceable in tests; nil uses a 10-second-timeout default.
	Client *http.Client
}

// Record posts ev in a background goroutine, ignoring all errors.
func (w *Webhook) Record(ev Event) {
	if w.URL == "" {
		return
	}
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return
	}

	go func() {
		resp, err := client.Post(w.URL, "application/json", bytes.NewReader(body))
		if err != nil {
			return
		}
		resp.Body.Close()
	}()
}
