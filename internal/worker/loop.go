package worker

import (
	"context"
	"math/rand"
	"time"

	"github.com/hookline/hookline/internal/health"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/store"
	"github.com/hookline/hookline/internal/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// Claim is one locked attempt plus its finalizers. Exactly one finalizer (or
// Release) must be called; each releases the row lock.
type Claim interface {
	Attempt() store.ClaimedAttempt
	Succeed(ctx context.Context, now time.Time, httpStatus int) error
	Retry(ctx context.Context, delayUntil time.Time, lastError string, httpStatus int) error
	Fail(ctx context.Context, now time.Time, lastError string, httpStatus int) error
	Release(ctx context.Context) error
}

// Claimer hands out locked attempts for a worker partition. A (nil, nil)
// return means the queue is empty for this worker.
type Claimer interface {
	ClaimNext(ctx context.Context, worker string) (Claim, error)
}

// StoreClaimer adapts store.Store to the Claimer interface.
type StoreClaimer struct {
	Store *store.Store
}

func (s StoreClaimer) ClaimNext(ctx context.Context, worker string) (Claim, error) {
	c, err := s.Store.ClaimNext(ctx, worker)
	if err != nil || c == nil {
		return nil, err
	}
	return storeClaim{c}, nil
}

type storeClaim struct {
	c *store.Claim
}

func (s storeClaim) Attempt() store.ClaimedAttempt { return s.c.Attempt }
func (s storeClaim) Succeed(ctx context.Context, now time.Time, httpStatus int) error {
	return s.c.Succeed(ctx, now, httpStatus)
}
func (s storeClaim) Retry(ctx context.Context, delayUntil time.Time, lastError string, httpStatus int) error {
	return s.c.Retry(ctx, delayUntil, lastError, httpStatus)
}
func (s storeClaim) Fail(ctx context.Context, now time.Time, lastError string, httpStatus int) error {
	return s.c.Fail(ctx, now, lastError, httpStatus)
}
func (s storeClaim) Release(ctx context.Context) error { return s.c.Release(ctx) }

// storeDownAfter is how many consecutive claim failures flip the health
// endpoint to unavailable.
const storeDownAfter = 3

// Loop is one claim→execute→schedule cycle runner for a worker partition.
// Run several Loops with the same dependencies to process attempts
// concurrently; each performs its own independent claim.
type Loop struct {
	Worker    string
	Claimer   Claimer
	Executor  *Executor
	Scheduler *Scheduler
	Logger    *logging.Logger
	Live      *health.Liveness

	// Idle sleep between claim misses, with +/- JitterPct applied.
	Interval  time.Duration
	JitterPct float64

	// Wake shortcuts the idle sleep when an attempt-created nudge arrives.
	// Nil disables the shortcut; polling alone stays correct.
	Wake <-chan struct{}
}

// Run polls until ctx is cancelled. A claim in flight when shutdown starts
// finishes its full unit of work before Run returns.
func (l *Loop) Run(ctx context.Context) {
	l.Logger.Plain().WithWorker(l.Worker).WithField("interval", l.Interval.String()).Info("polling loop started")

	storeFailures := 0
	for {
		select {
		case <-ctx.Done():
			l.Logger.Plain().WithWorker(l.Worker).Info("polling loop stopped")
			return
		default:
		}

		claim, err := l.Claimer.ClaimNext(ctx, l.Worker)
		if err != nil {
			// Fatal to this cycle only; sustained failure surfaces through
			// the health endpoint.
			metrics.RecordClaim("error")
			metrics.RecordStoreError("claim")
			storeFailures++
			if storeFailures >= storeDownAfter && l.Live != nil {
				l.Live.MarkStoreDown()
			}
			l.Logger.Plain().WithWorker(l.Worker).WithError(err).Error("claim failed")
			l.sleep(ctx, l.errBackoff(storeFailures))
			continue
		}
		storeFailures = 0
		if l.Live != nil {
			l.Live.MarkStoreUp()
		}

		if claim == nil {
			metrics.RecordClaim("miss")
			metrics.SetQueueIdle(l.Worker, true)
			l.idle(ctx)
			continue
		}

		metrics.RecordClaim("hit")
		metrics.SetQueueIdle(l.Worker, false)
		l.process(ctx, claim)
	}
}

// process runs one claimed attempt to a finalized outcome. The shutdown
// signal is deliberately masked here: once a row is locked the cycle always
// finishes its unit of work, leaving no ambiguous in-flight state.
func (l *Loop) process(ctx context.Context, claim Claim) {
	ctx = context.WithoutCancel(ctx)
	att := claim.Attempt()

	ctx, span := tracing.StartSpan(ctx, "worker.delivery",
		attribute.String("attempt_id", att.AttemptID),
		attribute.String("event_id", att.EventID),
		attribute.String("subscription_id", att.SubscriptionID),
		attribute.String("worker", l.Worker),
		attribute.Int("retry_count", att.RetryCount),
	)
	defer span.End()

	outcome := l.Executor.Execute(ctx, att)
	span.SetAttributes(
		attribute.Int("http.status_code", outcome.HTTPStatus),
		attribute.Int64("http.latency_ms", outcome.Latency.Milliseconds()),
	)

	now := time.Now().UTC()
	decision := l.Scheduler.Schedule(att.RetryCount, outcome, now)

	log := l.Logger.WithContext(ctx).WithWorker(l.Worker).WithAttempt(att.AttemptID).
		WithEvent(att.EventID).WithSubscription(att.SubscriptionID)

	var finErr error
	switch decision.Next {
	case NextSucceed:
		tracing.AddSpanEvent(ctx, "delivery.success")
		finErr = claim.Succeed(ctx, now, outcome.HTTPStatus)
		if finErr == nil {
			metrics.RecordDelivery("succeeded", outcome.Latency)
			log.WithField("http_status", outcome.HTTPStatus).Info("delivered")
		}
	case NextRetry:
		tracing.AddSpanEvent(ctx, "delivery.requeue",
			attribute.String("reason", outcome.Reason),
			attribute.String("delay_until", decision.DelayUntil.Format(time.RFC3339)),
		)
		finErr = claim.Retry(ctx, decision.DelayUntil, outcome.LastError, outcome.HTTPStatus)
		if finErr == nil {
			metrics.RecordDelivery("retried", outcome.Latency)
			metrics.RecordRetry(outcome.Reason)
			log.WithFields(map[string]any{
				"reason":      outcome.Reason,
				"retry_count": att.RetryCount + 1,
				"delay_until": decision.DelayUntil.Format(time.RFC3339),
			}).Info("requeued")
		}
	case NextFail:
		tracing.AddSpanEvent(ctx, "delivery.permanent_failure", attribute.String("reason", outcome.Reason))
		finErr = claim.Fail(ctx, now, outcome.LastError, outcome.HTTPStatus)
		if finErr == nil {
			metrics.RecordDelivery("failed", outcome.Latency)
			metrics.RecordPermanentFailure()
			log.WithFields(map[string]any{
				"reason":      outcome.Reason,
				"retry_count": att.RetryCount,
			}).Warn("retry ceiling reached, attempt failed permanently")
		}
	}

	if finErr != nil {
		// The transaction rolls back and the row becomes claimable again; a
		// later cycle redelivers (at-least-once).
		metrics.RecordStoreError("finalize")
		tracing.SetSpanError(ctx, finErr)
		log.WithError(finErr).Error("finalize failed, releasing claim")
		_ = claim.Release(ctx)
	}
}

// idle waits out the poll interval, returning early on a wake nudge or
// shutdown.
func (l *Loop) idle(ctx context.Context) {
	d := l.Interval
	if l.JitterPct > 0 {
		j := 1 + (rand.Float64()*2-1)*l.JitterPct
		d = time.Duration(float64(d) * j)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	case <-l.Wake:
	}
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// errBackoff grows the pause after consecutive store failures, capped so the
// loop keeps probing for recovery.
func (l *Loop) errBackoff(failures int) time.Duration {
	d := l.Interval * time.Duration(failures)
	if limit := 30 * time.Second; d > limit {
		d = limit
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}
