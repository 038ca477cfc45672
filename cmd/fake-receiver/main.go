package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/signature"
)

var (
	cfg      config.FakeReceiver
	sigHdr   string
	tsHdr    string
	reqCount = 0
)

func main() {
	c := config.FromEnv()
	cfg = c.FakeReceiver
	sigHdr = c.Delivery.SignatureHeader
	tsHdr = c.Delivery.TimestampHeader

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/hook", handleHook)

	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	log.Printf("fake-receiver listening on %s", cfg.Port)
	log.Fatal(srv.ListenAndServe())
}

func handleHook(w http.ResponseWriter, r *http.Request) {
	reqCount++
	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if cfg.ResponseDelayMS > 0 {
		time.Sleep(time.Duration(cfg.ResponseDelayMS) * time.Millisecond)
	}

	if cfg.EndpointSecret != "" {
		leeway := time.Duration(cfg.SigningLeewaySeconds) * time.Second
		if ok, msg := signature.Verify(cfg.EndpointSecret, b, r.Header.Get(tsHdr), r.Header.Get(sigHdr), leeway); !ok {
			log.Printf("fake-receiver failed to verify signature: %s", msg)
			http.Error(w, "invalid signature: "+msg, http.StatusUnauthorized)
			return
		}
	}

	// Simulate flakiness: first N requests -> 500
	if reqCount <= cfg.FailFirstN {
		log.Printf("FAILING (%d/%d) %s headers=%d body=%s", reqCount, cfg.FailFirstN, r.URL.Path, len(r.Header), truncate(string(b), 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("fake-receiver OK %s  headers=%d body=%q", r.URL.Path, len(r.Header), truncate(string(b), 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

// truncate truncates a string to the specified length and adds an ellipsis if truncated
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
