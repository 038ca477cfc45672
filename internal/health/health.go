package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Status struct {
	OK       bool   `json:"ok"`
	Message  string `json:"message,omitempty"`
	Database bool   `json:"database,omitempty"`
	Store    bool   `json:"store,omitempty"`
}

// Liveness tracks whether the attempt store has been reachable recently.
// The polling loop marks it down after repeated store failures and back up
// on the next successful claim.
type Liveness struct {
	down atomic.Bool
}

// MarkStoreDown flags sustained store unavailability.
func (l *Liveness) MarkStoreDown() {
	l.down.Store(true)
}

// MarkStoreUp clears the store-unavailable flag.
func (l *Liveness) MarkStoreUp() {
	l.down.Store(false)
}

// StoreOK reports whether the store was reachable on the last claim cycle.
func (l *Liveness) StoreOK() bool {
	return !l.down.Load()
}

// HTTPHandler returns an HTTP handler that reports the health status of the service
func HTTPHandler(pool *pgxpool.Pool, live *Liveness) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := Status{OK: true, Message: "ok", Database: true, Store: true}

		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				st.OK = false
				st.Message = "db ping failed"
				st.Database = false
			}
		}
		if live != nil && !live.StoreOK() {
			st.OK = false
			st.Message = "attempt store unavailable"
			st.Store = false
		}
		w.Header().Set("Content-Type", "application/json")
		if !st.OK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(st)
	}
}
