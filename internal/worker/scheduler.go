package worker

import (
	"math/rand"
	"time"
)

// Next is the state transition the scheduler picked for a finished cycle.
type Next int

const (
	// NextSucceed marks the attempt terminally delivered.
	NextSucceed Next = iota
	// NextRetry requeues the attempt with a backoff delay.
	NextRetry
	// NextFail marks the attempt terminally failed (retry ceiling reached).
	NextFail
)

// Decision carries the chosen transition; DelayUntil is set only for NextRetry.
type Decision struct {
	Next       Next
	DelayUntil time.Time
}

// Scheduler turns a delivery outcome into the attempt's next state. The
// backoff schedule must be non-decreasing; the last entry caps the delay for
// retry counts beyond the schedule's length.
type Scheduler struct {
	maxRetries int
	schedule   []time.Duration
	jitterPct  float64
}

func NewScheduler(maxRetries int, schedule []time.Duration, jitterPct float64) *Scheduler {
	return &Scheduler{
		maxRetries: maxRetries,
		schedule:   schedule,
		jitterPct:  jitterPct,
	}
}

// Schedule decides the next state for an attempt whose current retry count is
// retryCount. On failure below the ceiling the attempt is requeued with
// delay_until = now + Backoff(retryCount+1), matching the store's increment.
func (s *Scheduler) Schedule(retryCount int, outcome Outcome, now time.Time) Decision {
	if outcome.Success {
		return Decision{Next: NextSucceed}
	}
	if retryCount >= s.maxRetries {
		return Decision{Next: NextFail}
	}
	return Decision{
		Next:       NextRetry,
		DelayUntil: now.Add(s.Backoff(retryCount + 1)),
	}
}

// Backoff returns the jittered delay before retry n (1-based). The expected
// delay is non-decreasing in n and bounded by the schedule's last entry; the
// jitter clamp keeps every delay strictly positive so attempts never
// busy-loop.
func (s *Scheduler) Backoff(n int) time.Duration {
	idx := n - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.schedule) {
		idx = len(s.schedule) - 1
	}
	base := s.schedule[idx]
	// jitter: +/- jitterPct
	j := 1 + (rand.Float64()*2-1)*s.jitterPct
	if j < 0.1 {
		j = 0.1
	}
	return time.Duration(float64(base) * j)
}

// MaxRetries exposes the configured ceiling for logging.
func (s *Scheduler) MaxRetries() int {
	return s.maxRetries
}
