// Package queue implements the Dispatcher: the worker pool that reserves
// queued Application Requests, runs them through the five pipeline
// stages, and finalizes or retries them (spec §4.4).
package queue

import (
	"errors"
	"time"
)

// ErrNoEntriesAvailable names the "nothing claimable" condition within this
// package. Reservations through *store.Client return store.ErrNoEntriesAvailable
// instead, and that is the sentinel Worker matches on before sleeping and
// retrying.
var ErrNoEntriesAvailable = errors.New("queue: no entries available")

// PoolHealth reports the health of the entire worker pool, consumed by
// the HTTP health handler (spec §6 "services.queue").
type PoolHealth struct {
	Status       string         `json:"status"` // healthy, degraded, overloaded
	QueueDepth   int            `json:"queue_depth"`
	FailedRecent int            `json:"failed_recent"`
	Workers      []WorkerHealth `json:"workers"`
}

// WorkerHealth reports the health of a single Dispatcher worker.
type WorkerHealth struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"` // idle, working
	CurrentRequestID  string    `json:"current_request_id,omitempty"`
	RequestsProcessed int       `json:"requests_processed"`
	LastActivity      time.Time `json:"last_activity"`
}
