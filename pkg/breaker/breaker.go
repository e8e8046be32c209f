// Package breaker implements a circuit breaker for the LLM adjudicator's
// outbound calls, keyed by (provider, endpoint), so a failing provider
// stops taking traffic without one bad endpoint tripping every other
// provider sharing the process (spec §4.6).
package breaker

import (
	"sync"
	"time"
)

// FailureThreshold is the number of consecutive failures that opens a
// circuit (spec §4.6).
const FailureThreshold = 5

// OpenDuration is how long a tripped circuit stays open before a call is
// allowed through again (spec §4.6).
const OpenDuration = 300 * time.Second

// Registry holds one circuit per (provider, endpoint) key.
type Registry struct {
	mu       sync.Mutex
	circuits map[string]*circuit
}

type circuit struct {
	mu       sync.Mutex
	failures int
	openedAt time.Time
	open     bool
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{circuits: make(map[string]*circuit)}
}

func key(provider, endpoint string) string {
	return provider + "|" + endpoint
}

func (r *Registry) circuitFor(provider, endpoint string) *circuit {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(provider, endpoint)
	c, ok := r.circuits[k]
	if !ok {
		c = &circuit{}
		r.circuits[k] = c
	}
	return c
}

// Allow reports whether a call to (provider, endpoint) may proceed. A
// circuit open for less than OpenDuration blocks the call; once
// OpenDuration has elapsed the circuit resets to closed and the call is
// allowed (spec §4.6 "resets after 300s").
func (r *Registry) Allow(provider, endpoint string, now time.Time) bool {
	c := r.circuitFor(provider, endpoint)
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return true
	}
	if now.Sub(c.openedAt) >= OpenDuration {
		c.open = false
		c.failures = 0
		return true
	}
	return false
}

// RecordSuccess zeroes the failure counter for (provider, endpoint) and
// closes the circuit if it was open (spec §4.6 "success zeroes the
// counter").
func (r *Registry) RecordSuccess(provider, endpoint string) {
	c := r.circuitFor(provider, endpoint)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.open = false
}

// RecordFailure increments the failure counter for (provider, endpoint)
// and opens the circuit once FailureThreshold consecutive failures have
// been recorded (spec §4.6 "failure >= 5 in a window opens for 300s").
func (r *Registry) RecordFailure(provider, endpoint string, now time.Time) {
	c := r.circuitFor(provider, endpoint)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.failures >= FailureThreshold && !c.open {
		c.open = true
		c.openedAt = now
	}
}

// State reports whether (provider, endpoint)'s circuit is currently open,
// for health/diagnostic reporting.
func (r *Registry) State(provider, endpoint string) (open bool, failures int) {
	c := r.circuitFor(provider, endpoint)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open, c.failures
}
