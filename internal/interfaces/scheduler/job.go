// Package scheduler runs periodic background syncs through a bounded worker
// pool, so a large user base cannot stampede the provider.
package scheduler

import "context"

// Job is one unit of scheduled work.
type Job interface {
	// Execute runs the job. The context carries the pool's timeout.
	Execute(ctx context.Context) error

	// UserID identifies the affected user, for logs and traces.
	UserID() string

	// Description says what the job does, for logs and traces.
	Description() string
}
