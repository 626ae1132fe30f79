// Package breaker implements a per-resource circuit breaker.
//
// Each named external resource (agent spawner, swarm coordinator, ...)
// gets its own failure counter and state. After a configurable number of
// consecutive failures the circuit opens and requests are rejected until
// a cooldown elapses, at which point a single probe request is allowed.
package breaker

import (
	"sync"
	"time"
)

// State represents the state of one resource's circuit.
type State int

const (
	// Closed allows requests through normally.
	Closed State = iota

	// Open rejects all requests until the cooldown elapses.
	Open

	// HalfOpen means a single probe request has been granted and its
	// outcome has not been recorded yet.
	HalfOpen
)

// String returns the human-readable name for the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Default breaker parameters.
const (
	DefaultFailureThreshold = 3
	DefaultCooldown         = 60 * time.Second
)

// resourceState holds the circuit state for one resource. Access is
// serialized by its own mutex so that contention on one resource does
// not block callers touching another.
type resourceState struct {
	mu           sync.Mutex
	state        State
	failureCount int
	openedAt     time.Time
}

// Breaker tracks consecutive failures per named resource.
// Safe for concurrent use.
type Breaker struct {
	failureThreshold int
	cooldown         time.Duration

	mu        sync.Mutex
	resources map[string]*resourceState

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Breaker with the given threshold and cooldown.
// Non-positive arguments fall back to the package defaults.
func New(failureThreshold int, cooldown time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		resources:        make(map[string]*resourceState),
		now:              time.Now,
	}
}

// resource returns the state for the named resource, creating it if needed.
func (b *Breaker) resource(name string) *resourceState {
	b.mu.Lock()
	defer b.mu.Unlock()
	rs, ok := b.resources[name]
	if !ok {
		rs = &resourceState{state: Closed}
		b.resources[name] = rs
	}
	return rs
}

// AllowRequest reports whether a request to the named resource may proceed.
//
// Returns true when the circuit is closed, false while it is open and the
// cooldown has not elapsed, and true exactly once (the probe) after the
// cooldown elapses, transitioning the circuit to half-open.
func (b *Breaker) AllowRequest(name string) bool {
	rs := b.resource(name)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	switch rs.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(rs.openedAt) >= b.cooldown {
			rs.state = HalfOpen
			return true
		}
		return false
	case HalfOpen:
		// Probe already outstanding.
		return false
	default:
		return false
	}
}

// RecordSuccess resets the failure count for the named resource and
// closes its circuit.
func (b *Breaker) RecordSuccess(name string) {
	rs := b.resource(name)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.failureCount = 0
	rs.state = Closed
}

// RecordFailure increments the failure count for the named resource.
// The circuit opens once the count reaches the failure threshold. A
// failure recorded while half-open reopens the circuit immediately and
// restarts the cooldown clock.
func (b *Breaker) RecordFailure(name string) {
	rs := b.resource(name)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	switch rs.state {
	case Closed:
		rs.failureCount++
		if rs.failureCount >= b.failureThreshold {
			rs.state = Open
			rs.openedAt = b.now()
		}
	case HalfOpen:
		rs.failureCount++
		rs.state = Open
		rs.openedAt = b.now()
	case Open:
		// Already open; nothing to do until the cooldown elapses.
		rs.failureCount++
	}
}

// StateOf returns the current circuit state for the named resource.
// Unknown resources report Closed.
func (b *Breaker) StateOf(name string) State {
	rs := b.resource(name)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.state
}

// FailureCount returns the consecutive failure count for the named resource.
func (b *Breaker) FailureCount(name string) int {
	rs := b.resource(name)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.failureCount
}

// Reset returns the named resource to a closed circuit with zero failures.
func (b *Breaker) Reset(name string) {
	rs := b.resource(name)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.state = Closed
	rs.failureCount = 0
	rs.openedAt = time.Time{}
}
