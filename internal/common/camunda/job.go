// internal/common/camunda/job.go
package camunda

import (
	"context"
	"time"
)

// ReportTimeout bounds one complete, fail or throw command.
const ReportTimeout = 10 * time.Second

// ExecTimeout is the share of a job timeout a handler may spend on the work
// itself. A tenth of the timeout, at most ReportTimeout, is held back for
// reporting the outcome.
func ExecTimeout(jobTimeout time.Duration) time.Duration {
	reserve := jobTimeout / 10
	if reserve > ReportTimeout {
		reserve = ReportTimeout
	}
	return jobTimeout - reserve
}

// ExecContext returns the context a handler runs Execute under.
func ExecContext(jobTimeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), ExecTimeout(jobTimeout))
}

// ReportContext returns a fresh context for sending a job outcome to the
// gateway, independent of how long the work took.
func ReportContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), ReportTimeout)
}
