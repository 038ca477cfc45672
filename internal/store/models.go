package store

import "time"

// Attempt statuses as derived from the terminal timestamps. Attempts carry no
// status column; the timestamps are the source of truth.
const (
	StatusPending   = "pending"
	StatusDelayed   = "delayed"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Attempt is the reporting view of a delivery attempt row.
type Attempt struct {
	ID             string     `json:"id"`
	EventID        string     `json:"event_id"`
	SubscriptionID string     `json:"subscription_id"`
	CreatedAt      time.Time  `json:"created_at"`
	RetryCount     int        `json:"retry_count"`
	DelayUntil     *time.Time `json:"delay_until,omitempty"`
	SucceededAt    *time.Time `json:"succeeded_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	HTTPStatus     *int       `json:"http_status,omitempty"`
	ReplayOf       string     `json:"replay_of,omitempty"`
}

// Status derives the attempt state at the given instant.
func (a Attempt) Status(now time.Time) string {
	switch {
	case a.SucceededAt != nil:
		return StatusSucceeded
	case a.FailedAt != nil:
		return StatusFailed
	case a.DelayUntil != nil && a.DelayUntil.After(now):
		return StatusDelayed
	default:
		return StatusPending
	}
}

// Ready reports whether the attempt is claimable at the given instant.
func (a Attempt) Ready(now time.Time) bool {
	return a.Status(now) == StatusPending
}

// ClaimedAttempt carries every field the delivery executor needs, joined from
// the attempt, its event, and its subscription in the claim transaction.
type ClaimedAttempt struct {
	AttemptID      string
	RetryCount     int
	CreatedAt      time.Time
	EventID        string
	EventType      string
	Payload        []byte
	ContentType    string
	SubscriptionID string
	Secret         string
	TargetMethod   string
	TargetURL      string
	TargetHeaders  map[string]string
}
