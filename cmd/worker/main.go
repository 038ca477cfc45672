package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/db"
	"github.com/hookline/hookline/internal/health"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/notify"
	"github.com/hookline/hookline/internal/store"
	"github.com/hookline/hookline/internal/tracing"
	"github.com/hookline/hookline/internal/worker"
)

func main() {
	cfg := config.FromEnv()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize structured logging
	logger := logging.New("hookline-worker")

	// Initialize OpenTelemetry tracing
	shutdown, err := tracing.InitTracing(ctx, "hookline-worker")
	if err != nil {
		logger.Plain().WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdown()

	// DB connect
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	// Prom metrics
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	// HTTP health/metrics
	live := &health.Liveness{}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(pool, live))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Worker.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("worker HTTP server failed")
		}
	}()

	// Optional NSQ wake channel; polling alone is sufficient without it
	var waker *notify.Waker
	if cfg.Notify.Enabled {
		waker, err = notify.Start(cfg.Notify, cfg.Worker.Name, logger)
		if err != nil {
			logger.Plain().WithError(err).Fatal("wake notification setup failed")
		}
		defer waker.Stop()
	}

	st := store.New(pool)
	executor := worker.NewExecutor(cfg.Worker.DeliveryTimeout, cfg.Delivery)
	scheduler := worker.NewScheduler(cfg.Worker.MaxRetries, cfg.Worker.BackoffSchedule, cfg.Worker.JitterPercent)
	claimer := worker.StoreClaimer{Store: st}

	// Subscriptions with no resolvable assignment are silently unclaimable;
	// surface them at startup so the management layer can repair the gap.
	if assignments, err := st.ListAssignments(ctx); err != nil {
		logger.Plain().WithError(err).Warn("assignment check skipped")
	} else {
		for _, sa := range assignments {
			if _, ok := worker.ResolveWorker(sa.DedicatedWorker, sa.DefaultWorker); !ok {
				logger.Plain().WithSubscription(sa.SubscriptionID).Warn("subscription has no resolvable worker assignment")
			}
		}
	}

	concurrency := cfg.Worker.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		loop := &worker.Loop{
			Worker:    cfg.Worker.Name,
			Claimer:   claimer,
			Executor:  executor,
			Scheduler: scheduler,
			Logger:    logger,
			Live:      live,
			Interval:  cfg.Worker.PollInterval,
			JitterPct: cfg.Worker.PollJitterPct,
		}
		if waker != nil {
			loop.Wake = waker.C()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop.Run(ctx)
		}()
	}

	logger.Plain().WithWorker(cfg.Worker.Name).WithField("concurrency", concurrency).Info("worker service started")

	// Graceful stop: cancel the loops, let in-flight claims finish
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("Shutting down worker service")
	cancel()
	wg.Wait()
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("worker service stopped")
}
