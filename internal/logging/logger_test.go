package logging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hookline/hookline/internal/tracing"
)

func TestNew(t *testing.T) {
	logger := New("hookline-worker")
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.service != "hookline-worker" {
		t.Errorf("New() service = %q, want %q", logger.service, "hookline-worker")
	}
}

func TestLoggerWithContext(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	otel.SetTracerProvider(trace.NewTracerProvider(trace.WithSyncer(exporter)))

	logger := New("hookline-worker")

	t.Run("without trace", func(t *testing.T) {
		entry := logger.WithContext(context.Background())
		if entry.TraceID != "" {
			t.Errorf("TraceID = %q for context without span, want empty", entry.TraceID)
		}
		if entry.Service != "hookline-worker" {
			t.Errorf("Service = %q, want hookline-worker", entry.Service)
		}
	})

	t.Run("with trace", func(t *testing.T) {
		ctx, span := tracing.StartSpan(context.Background(), "deliver")
		defer span.End()

		entry := logger.WithContext(ctx)
		if entry.TraceID == "" {
			t.Error("TraceID empty for context with active span")
		}
	})
}

func TestLogEntryFluentMethods(t *testing.T) {
	entry := New("hookline-worker").Plain().
		WithWorker("delivery-01").
		WithAttempt("att-1").
		WithEvent("evt-1").
		WithSubscription("sub-1").
		WithField("http_status", 200)

	if entry.Worker != "delivery-01" {
		t.Errorf("Worker = %q, want delivery-01", entry.Worker)
	}
	if entry.AttemptID != "att-1" {
		t.Errorf("AttemptID = %q, want att-1", entry.AttemptID)
	}
	if entry.EventID != "evt-1" {
		t.Errorf("EventID = %q, want evt-1", entry.EventID)
	}
	if entry.SubscriptionID != "sub-1" {
		t.Errorf("SubscriptionID = %q, want sub-1", entry.SubscriptionID)
	}
	if got := entry.Fields["http_status"]; got != 200 {
		t.Errorf("Fields[http_status] = %v, want 200", got)
	}
}

func TestLogEntryWithFields(t *testing.T) {
	entry := New("test").Plain().WithFields(map[string]any{
		"reason":      "http_5xx",
		"retry_count": 2,
	})
	entry.WithField("delay_until", "2026-03-01T12:00:00Z")

	if len(entry.Fields) != 3 {
		t.Fatalf("Fields len = %d, want 3", len(entry.Fields))
	}
	if entry.Fields["reason"] != "http_5xx" {
		t.Errorf("Fields[reason] = %v, want http_5xx", entry.Fields["reason"])
	}
}

func TestLogEntryWithError(t *testing.T) {
	t.Run("non-nil error", func(t *testing.T) {
		entry := New("test").Plain().WithError(errors.New("connection refused"))
		if got := entry.Fields["error"]; got != "connection refused" {
			t.Errorf("Fields[error] = %v, want connection refused", got)
		}
	})

	t.Run("nil error adds nothing", func(t *testing.T) {
		entry := New("test").Plain().WithError(nil)
		if _, ok := entry.Fields["error"]; ok {
			t.Error("Fields[error] set for nil error")
		}
	})

	t.Run("nil fields map initialized", func(t *testing.T) {
		entry := &LogEntry{}
		entry.WithError(errors.New("boom"))
		if got := entry.Fields["error"]; got != "boom" {
			t.Errorf("Fields[error] = %v, want boom", got)
		}
	})
}

func TestLogEntryJSONShape(t *testing.T) {
	entry := LogEntry{
		Time:           time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Level:          LevelInfo,
		Message:        "delivered",
		Service:        "hookline-worker",
		Worker:         "delivery-01",
		AttemptID:      "att-1",
		EventID:        "evt-1",
		SubscriptionID: "sub-1",
		Fields:         map[string]any{"http_status": 200},
	}

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := map[string]string{
		"level":           "info",
		"msg":             "delivered",
		"service":         "hookline-worker",
		"worker":          "delivery-01",
		"attempt_id":      "att-1",
		"event_id":        "evt-1",
		"subscription_id": "sub-1",
	}
	for key, val := range want {
		if decoded[key] != val {
			t.Errorf("json key %q = %v, want %q", key, decoded[key], val)
		}
	}
	if _, ok := decoded["trace_id"]; ok {
		t.Error("empty trace_id serialized, want omitted")
	}
}

func TestSetDefaultService(t *testing.T) {
	orig := defaultLogger.service
	defer func() { defaultLogger.service = orig }()

	SetDefaultService("hookline-ctl")
	if entry := Plain(); entry.Service != "hookline-ctl" {
		t.Errorf("Plain() service = %q, want hookline-ctl", entry.Service)
	}
}
