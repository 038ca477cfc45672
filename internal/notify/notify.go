package notify

import (
	"github.com/nsqio/go-nsq"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/logging"
)

// Waker listens for attempt-created nudges and turns them into wake signals
// for the polling loops. It is an accelerator only: the claim/lock contract is
// carried entirely by the store, so a lost or duplicate nudge costs at most
// one poll interval of latency.
type Waker struct {
	consumer *nsq.Consumer
	c        chan struct{}
}

// Start connects an ephemeral NSQ channel for this worker and begins
// forwarding nudges. Every worker process gets its own channel so each fleet
// member wakes independently; ephemeral channels keep nudges from backing up
// while a worker is down.
func Start(cfg config.Notify, workerName string, logger *logging.Logger) (*Waker, error) {
	consumer, err := nsq.NewConsumer(cfg.Topic, workerName+"#ephemeral", nsq.NewConfig())
	if err != nil {
		return nil, err
	}

	w := &Waker{
		consumer: consumer,
		c:        make(chan struct{}, 1),
	}

	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		w.nudge()
		return nil
	}))

	if err := consumer.ConnectToNSQD(cfg.NsqdTCPAddr); err != nil {
		logger.Plain().WithError(err).Warn("nsqd connect failed, trying lookupd")
		if err := consumer.ConnectToNSQLookupd(cfg.LookupHTTPAddr); err != nil {
			consumer.Stop()
			return nil, err
		}
	}

	logger.Plain().WithField("topic", cfg.Topic).Info("wake notifications enabled")
	return w, nil
}

// nudge coalesces bursts of notifications: one pending wake is enough.
func (w *Waker) nudge() {
	select {
	case w.c <- struct{}{}:
	default:
	}
}

// C is the wake channel consumed by the polling loops.
func (w *Waker) C() <-chan struct{} {
	return w.c
}

// Stop tears down the NSQ consumer and waits for it to drain.
func (w *Waker) Stop() {
	w.consumer.Stop()
	<-w.consumer.StopChan
}
