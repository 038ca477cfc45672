package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	// Panics on duplicate or invalid collectors.
	MustRegister(reg)
}

func TestRecordClaim(t *testing.T) {
	before := testutil.ToFloat64(ClaimsTotal.WithLabelValues("hit"))
	RecordClaim("hit")
	if got := testutil.ToFloat64(ClaimsTotal.WithLabelValues("hit")); got != before+1 {
		t.Errorf("claims_total{result=hit} = %v, want %v", got, before+1)
	}
}

func TestRecordDelivery(t *testing.T) {
	before := testutil.ToFloat64(DeliveriesTotal.WithLabelValues("succeeded"))
	RecordDelivery("succeeded", 120*time.Millisecond)
	if got := testutil.ToFloat64(DeliveriesTotal.WithLabelValues("succeeded")); got != before+1 {
		t.Errorf("deliveries_total{outcome=succeeded} = %v, want %v", got, before+1)
	}
}

func TestRecordRetry(t *testing.T) {
	before := testutil.ToFloat64(RetriesTotal.WithLabelValues("http_5xx"))
	RecordRetry("http_5xx")
	if got := testutil.ToFloat64(RetriesTotal.WithLabelValues("http_5xx")); got != before+1 {
		t.Errorf("retries_total{reason=http_5xx} = %v, want %v", got, before+1)
	}
}

func TestRecordPermanentFailure(t *testing.T) {
	before := testutil.ToFloat64(PermanentFailuresTotal)
	RecordPermanentFailure()
	if got := testutil.ToFloat64(PermanentFailuresTotal); got != before+1 {
		t.Errorf("permanent_failures_total = %v, want %v", got, before+1)
	}
}

func TestRecordStoreError(t *testing.T) {
	before := testutil.ToFloat64(StoreErrorsTotal.WithLabelValues("claim"))
	RecordStoreError("claim")
	if got := testutil.ToFloat64(StoreErrorsTotal.WithLabelValues("claim")); got != before+1 {
		t.Errorf("store_errors_total{op=claim} = %v, want %v", got, before+1)
	}
}

func TestSetQueueIdle(t *testing.T) {
	SetQueueIdle("delivery-test", true)
	if got := testutil.ToFloat64(QueueIdle.WithLabelValues("delivery-test")); got != 1 {
		t.Errorf("queue_idle = %v after idle, want 1", got)
	}
	SetQueueIdle("delivery-test", false)
	if got := testutil.ToFloat64(QueueIdle.WithLabelValues("delivery-test")); got != 0 {
		t.Errorf("queue_idle = %v after busy, want 0", got)
	}
}
