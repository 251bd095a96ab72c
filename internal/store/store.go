// Package store persists runs and their samples.
package store

import (
	"context"
	"time"

	"github.com/josefbacik/fsperf/internal/metrics"
)

// Filter selects runs. Empty fields match everything.
type Filter struct {
	Name    string
	Config  string
	Purpose string
	Since   time.Time
	// IncludeFailed also returns runs marked failed.
	IncludeFailed bool
}

// Store is where runs are appended and queried.
type Store interface {
	// Append stores run and all of its sample groups atomically and sets
	// run.ID.
	Append(ctx context.Context, run *metrics.Run) error
	// Query returns matching runs ordered by ID, with their groups.
	Query(ctx context.Context, f Filter) ([]*metrics.Run, error)
	// DeleteByPurpose removes every run with one of the purposes and,
	// through the cascade, its samples. It returns the number of runs
	// removed.
	DeleteByPurpose(ctx context.Context, purposes ...string) (int64, error)
	Close() error
}
