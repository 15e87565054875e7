package gaudit

import (
	"time"
)

// Commit outcomes reported to an Observer.
const (
	OutcomeCommitted = "committed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomePartial   = "partial"
)

// Observer receives commit telemetry. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveCommit(outcome string, d time.Duration)
	ObserveAuditRows(table string, n int)
}

type nopObserver struct{}

func (nopObserver) ObserveCommit(string, time.Duration) {}
func (nopObserver) ObserveAuditRows(string, int)        {}
