package worker

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/signature"
	"github.com/hookline/hookline/internal/store"
	"github.com/hookline/hookline/internal/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// Outcome is the classified result of one delivery attempt. Reason is for
// observability only; the scheduler treats every failure identically.
type Outcome struct {
	Success    bool
	Reason     string // timeout, connection_refused, dns_error, network, http_5xx, http_429, http_4xx, other
	HTTPStatus int
	LastError  string
	Latency    time.Duration
}

// Executor builds the signed HTTP request for a claimed attempt and performs
// exactly one outbound call per invocation. Retries happen across polling
// cycles, never inside this component.
type Executor struct {
	client  *http.Client
	headers config.Delivery
}

func NewExecutor(timeout time.Duration, headers config.Delivery) *Executor {
	return &Executor{
		client:  &http.Client{Timeout: timeout},
		headers: headers,
	}
}

// Execute sends the attempt's payload to its subscription target. Any 2xx
// status is success; network errors, timeouts, and every other status are
// failures subject to retry.
func (e *Executor) Execute(ctx context.Context, att store.ClaimedAttempt) Outcome {
	method := att.TargetMethod
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, att.TargetURL, bytes.NewReader(att.Payload))
	if err != nil {
		return Outcome{Success: false, Reason: "other", LastError: err.Error()}
	}

	// Static subscription headers first so framework headers always win.
	for k, v := range att.TargetHeaders {
		req.Header.Set(k, v)
	}
	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	ts := signature.Timestamp(time.Now())
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(e.headers.TimestampHeader, ts)
	req.Header.Set(e.headers.SignatureHeader, signature.Compute(att.Secret, att.Payload, ts))
	req.Header.Set(e.headers.EventIDHeader, att.EventID)
	req.Header.Set(e.headers.EventTypeHeader, att.EventType)
	req.Header.Set(e.headers.AttemptIDHeader, att.AttemptID)

	// Add trace ID to HTTP headers for correlation
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}

	tracing.AddSpanEvent(ctx, "http.send_webhook", attribute.String("url", att.TargetURL))
	start := time.Now()
	resp, doErr := e.client.Do(req)
	latency := time.Since(start)

	status := 0
	if doErr == nil {
		status = resp.StatusCode
		_ = resp.Body.Close()
	}

	out := Outcome{
		HTTPStatus: status,
		Latency:    latency,
	}
	if doErr == nil && status >= 200 && status < 300 {
		out.Success = true
		return out
	}

	out.Reason = classifyReason(doErr, status)
	if doErr != nil {
		out.LastError = doErr.Error()
	} else {
		out.LastError = "unexpected status " + resp.Status
	}
	return out
}

// classifyReason buckets a delivery failure for metrics. The retry policy
// ignores the distinction.
func classifyReason(doErr error, status int) string {
	if doErr != nil {
		if errors.Is(doErr, context.DeadlineExceeded) {
			return "timeout"
		}
		errLower := strings.ToLower(doErr.Error())
		if strings.Contains(errLower, "timeout") {
			return "timeout"
		}
		if strings.Contains(errLower, "connection refused") {
			return "connection_refused"
		}
		if strings.Contains(errLower, "no such host") || strings.Contains(errLower, "dns") {
			return "dns_error"
		}
		return "network"
	}
	if status >= 500 {
		return "http_5xx"
	}
	if status == 429 {
		return "http_429"
	}
	if status >= 400 {
		return "http_4xx"
	}
	return "other"
}
