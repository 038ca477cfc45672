package worker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/signature"
	"github.com/hookline/hookline/internal/store"
)

func testDeliveryHeaders() config.Delivery {
	return config.Delivery{
		SignatureHeader: "X-Hookline-Signature",
		TimestampHeader: "X-Hookline-Timestamp",
		EventIDHeader:   "X-Hookline-Event-Id",
		EventTypeHeader: "X-Hookline-Event-Type",
		AttemptIDHeader: "X-Hookline-Attempt-Id",
	}
}

func testAttempt(url string) store.ClaimedAttempt {
	return store.ClaimedAttempt{
		AttemptID:      "att-1",
		EventID:        "evt-1",
		EventType:      "order.created",
		Payload:        []byte(`{"order_id":"o-42"}`),
		ContentType:    "application/json",
		SubscriptionID: "sub-1",
		Secret:         "whsec_test",
		TargetURL:      url,
	}
}

func TestExecuteSuccess(t *testing.T) {
	var gotReq *http.Request
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewExecutor(2*time.Second, testDeliveryHeaders())
	att := testAttempt(srv.URL)

	out := e.Execute(context.Background(), att)

	if !out.Success {
		t.Fatalf("Execute() success = false, reason %q, err %q", out.Reason, out.LastError)
	}
	if out.HTTPStatus != http.StatusOK {
		t.Errorf("Execute() status = %d, want 200", out.HTTPStatus)
	}
	if out.Latency <= 0 {
		t.Error("Execute() latency not recorded")
	}

	if gotReq.Method != http.MethodPost {
		t.Errorf("request method = %s, want POST (default)", gotReq.Method)
	}
	if ct := gotReq.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if got := gotReq.Header.Get("X-Hookline-Event-Id"); got != "evt-1" {
		t.Errorf("event id header = %q, want evt-1", got)
	}
	if got := gotReq.Header.Get("X-Hookline-Event-Type"); got != "order.created" {
		t.Errorf("event type header = %q, want order.created", got)
	}
	if got := gotReq.Header.Get("X-Hookline-Attempt-Id"); got != "att-1" {
		t.Errorf("attempt id header = %q, want att-1", got)
	}

	// The signature must verify against the body and timestamp the receiver
	// actually saw.
	ts := gotReq.Header.Get("X-Hookline-Timestamp")
	sig := gotReq.Header.Get("X-Hookline-Signature")
	if ok, reason := signature.Verify(att.Secret, gotBody, ts, sig, time.Minute); !ok {
		t.Errorf("signature did not verify: %s", reason)
	}
}

func TestExecuteHeaderPrecedence(t *testing.T) {
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewExecutor(2*time.Second, testDeliveryHeaders())
	att := testAttempt(srv.URL)
	att.TargetHeaders = map[string]string{
		"Authorization":       "Bearer static-token",
		"X-Hookline-Event-Id": "spoofed",
		"Content-Type":        "text/plain",
	}

	if out := e.Execute(context.Background(), att); !out.Success {
		t.Fatalf("Execute() failed: %q", out.LastError)
	}

	// Static subscription headers pass through.
	if got := gotHeader.Get("Authorization"); got != "Bearer static-token" {
		t.Errorf("Authorization = %q, want Bearer static-token", got)
	}
	// Framework headers win over static ones with the same name.
	if got := gotHeader.Get("X-Hookline-Event-Id"); got != "evt-1" {
		t.Errorf("event id header = %q, want evt-1 (framework header must win)", got)
	}
	if got := gotHeader.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json (framework header must win)", got)
	}
}

func TestExecuteCustomMethod(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewExecutor(2*time.Second, testDeliveryHeaders())
	att := testAttempt(srv.URL)
	att.TargetMethod = http.MethodPut

	if out := e.Execute(context.Background(), att); !out.Success {
		t.Fatalf("Execute() failed: %q", out.LastError)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("request method = %s, want PUT", gotMethod)
	}
}

func TestExecuteHTTPFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantReason string
	}{
		{"server error", http.StatusInternalServerError, "http_5xx"},
		{"bad gateway", http.StatusBadGateway, "http_5xx"},
		{"rate limited", http.StatusTooManyRequests, "http_429"},
		{"not found", http.StatusNotFound, "http_4xx"},
		{"redirect not followed as success", http.StatusNotModified, "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			e := NewExecutor(2*time.Second, testDeliveryHeaders())
			out := e.Execute(context.Background(), testAttempt(srv.URL))

			if out.Success {
				t.Fatalf("Execute() success = true for status %d", tt.status)
			}
			if out.HTTPStatus != tt.status {
				t.Errorf("Execute() status = %d, want %d", out.HTTPStatus, tt.status)
			}
			if out.Reason != tt.wantReason {
				t.Errorf("Execute() reason = %q, want %q", out.Reason, tt.wantReason)
			}
			if out.LastError == "" {
				t.Error("Execute() LastError empty for failed delivery")
			}
		})
	}
}

func TestExecuteConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // nothing listening anymore

	e := NewExecutor(2*time.Second, testDeliveryHeaders())
	out := e.Execute(context.Background(), testAttempt(url))

	if out.Success {
		t.Fatal("Execute() success = true against closed listener")
	}
	if out.Reason != "connection_refused" {
		t.Errorf("Execute() reason = %q, want connection_refused", out.Reason)
	}
	if out.HTTPStatus != 0 {
		t.Errorf("Execute() status = %d, want 0 for transport error", out.HTTPStatus)
	}
}

func TestExecuteTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() { close(release); srv.Close() }()

	e := NewExecutor(50*time.Millisecond, testDeliveryHeaders())
	out := e.Execute(context.Background(), testAttempt(srv.URL))

	if out.Success {
		t.Fatal("Execute() success = true for timed-out request")
	}
	if out.Reason != "timeout" {
		t.Errorf("Execute() reason = %q, want timeout", out.Reason)
	}
}

func TestClassifyReason(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   string
	}{
		{"deadline exceeded", context.DeadlineExceeded, 0, "timeout"},
		{"5xx", nil, 500, "http_5xx"},
		{"429", nil, 429, "http_429"},
		{"4xx", nil, 400, "http_4xx"},
		{"3xx falls through", nil, 301, "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyReason(tt.err, tt.status); got != tt.want {
				t.Errorf("classifyReason() = %q, want %q", got, tt.want)
			}
		})
	}
}
