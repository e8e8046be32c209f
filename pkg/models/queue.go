package models

import "time"

// QueueEntry is the durable queue row backing the Dispatcher (spec §3, §4.3).
// JobID equals the owning ApplicationRequest's RequestID.
type QueueEntry struct {
	JobID         string
	Attempts      int
	ReservedUntil *time.Time
	AvailableAt   time.Time
	NextBackoff   time.Duration
}
