package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type Worker struct {
	Name            string          // Partition identity this process claims for
	Concurrency     int             // Independent claim/execute/schedule cycles per process
	PollInterval    time.Duration   // Idle sleep between claim misses
	PollJitterPct   float64         // Jitter applied to the idle sleep (0.0-1.0)
	DeliveryTimeout time.Duration   // Outbound HTTP request timeout
	MaxRetries      int             // Retry ceiling before an attempt fails permanently
	BackoffSchedule []time.Duration // Retry backoff durations, indexed by retry count
	JitterPercent   float64         // Backoff jitter percentage (0.0-1.0)
	HTTPPort        string          // Worker HTTP metrics/health port
}

type Delivery struct {
	SignatureHeader string // HTTP header carrying the payload signature
	TimestampHeader string // HTTP header carrying the signing timestamp
	EventIDHeader   string // HTTP header identifying the event
	EventTypeHeader string // HTTP header carrying the event type
	AttemptIDHeader string // HTTP header identifying the delivery attempt
}

type Notify struct {
	Enabled        bool   // Whether to listen for attempt-created nudges
	NsqdTCPAddr    string // e.g. nsqd:4150
	LookupHTTPAddr string // e.g. http://nsqlookupd:4161
	Topic          string // NSQ topic carrying attempt-created nudges
}

type FakeReceiver struct {
	FailFirstN           int           // Number of requests to fail initially
	EndpointSecret       string        // Secret for webhook signature verification
	SigningLeewaySeconds int           // Allowed timestamp skew in seconds
	ResponseDelayMS      int           // Simulated response delay in milliseconds
	Port                 string        // Server listen port
	ReadTimeout          time.Duration // HTTP read timeout
	WriteTimeout         time.Duration // HTTP write timeout
	IdleTimeout          time.Duration // HTTP idle timeout
}

type Config struct {
	AppName      string
	DB           DB
	Worker       Worker
	Delivery     Delivery
	Notify       Notify
	FakeReceiver FakeReceiver
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func defaultBackoffSchedule() []time.Duration {
	return []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second, 1 * time.Minute, 4 * time.Minute, 10 * time.Minute}
}

func parseBackoffSchedule(schedule string) []time.Duration {
	if schedule == "" {
		return defaultBackoffSchedule()
	}

	parts := strings.Split(schedule, ",")
	durations := make([]time.Duration, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if d, err := time.ParseDuration(part); err == nil {
			durations = append(durations, d)
		}
	}

	if len(durations) == 0 {
		// Fallback to default if parsing failed
		return defaultBackoffSchedule()
	}

	return durations
}

func FromEnv() Config {
	return Config{
		AppName: getenv("APP_NAME", "hookline"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "hookline"),
		},
		Worker: Worker{
			Name:            getenv("WORKER_NAME", hostnameOr("default")),
			Concurrency:     getenvInt("WORKER_CONCURRENCY", 1),
			PollInterval:    getenvDuration("POLL_INTERVAL", 1*time.Second),
			PollJitterPct:   getenvFloat("POLL_JITTER_PCT", 0.2),
			DeliveryTimeout: getenvDuration("DELIVERY_TIMEOUT", 5*time.Second),
			MaxRetries:      getenvInt("MAX_RETRIES", 6),
			BackoffSchedule: parseBackoffSchedule(getenv("BACKOFF_SCHEDULE", "")),
			JitterPercent:   getenvFloat("BACKOFF_JITTER_PCT", 0.25),
			HTTPPort:        ":" + getenv("WORKER_HTTP_PORT", "8083"),
		},
		Delivery: Delivery{
			SignatureHeader: getenv("WEBHOOK_SIGNATURE_HEADER", "X-Hookline-Signature"),
			TimestampHeader: getenv("WEBHOOK_TIMESTAMP_HEADER", "X-Hookline-Timestamp"),
			EventIDHeader:   getenv("WEBHOOK_EVENT_ID_HEADER", "X-Hookline-Event-Id"),
			EventTypeHeader: getenv("WEBHOOK_EVENT_TYPE_HEADER", "X-Hookline-Event-Type"),
			AttemptIDHeader: getenv("WEBHOOK_ATTEMPT_ID_HEADER", "X-Hookline-Attempt-Id"),
		},
		Notify: Notify{
			Enabled:        getenvBool("NOTIFY_ENABLED", false),
			NsqdTCPAddr:    getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr: getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			Topic:          getenv("NSQ_NOTIFY_TOPIC", "attempts"),
		},
		FakeReceiver: FakeReceiver{
			FailFirstN:           getenvInt("FAIL_FIRST_N", 0),
			EndpointSecret:       getenv("ENDPOINT_SECRET", ""),
			SigningLeewaySeconds: getenvInt("SIGNING_LEEWAY_SECONDS", 300),
			ResponseDelayMS:      getenvInt("RESPONSE_DELAY_MS", 0),
			Port:                 getenv("FAKE_RECEIVER_PORT", ":8081"),
			ReadTimeout:          getenvDuration("FAKE_RECEIVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:         getenvDuration("FAKE_RECEIVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:          getenvDuration("FAKE_RECEIVER_IDLE_TIMEOUT", 60*time.Second),
		},
	}
}

func hostnameOr(def string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return def
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
