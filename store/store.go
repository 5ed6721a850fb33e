package store

import (
	"context"
	"time"
)

// Store is the shared counter store behind the pipeline's two pieces of
// mutable state: sliding-window rate counters and accepted-submission
// counts. The service runs as multiple stateless replicas, so every
// read-modify-write here must be atomic in the store, not in process memory.
type Store interface {
	// Slide atomically records an event for key at now and returns the
	// number of events inside the trailing window (including this one)
	// together with the oldest counted event time.
	Slide(ctx context.Context, key string, now time.Time, window time.Duration) (count int64, oldest time.Time, err error)

	// CountInWindow returns the number of events recorded for key within the
	// trailing window without recording a new one.
	CountInWindow(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error)

	// IncrAccepted increments and returns the accepted-submission total for
	// a project.
	IncrAccepted(ctx context.Context, projectID string) (int64, error)

	// AcceptedCount returns the accepted-submission total for a project.
	AcceptedCount(ctx context.Context, projectID string) (int64, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
