package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the engine's access layer over the shared delivery_attempts table.
// All mutation happens inside a claim's transaction; the read methods are the
// reporting path and never lock rows.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// claimSQL selects the oldest ready attempt owned by the calling worker's
// partition and locks it for the transaction. SKIP LOCKED keeps concurrent
// claimers from blocking on each other's in-flight rows; the COALESCE is the
// partition resolution (subscription override wins over the organization
// default). Disabled subscriptions are filtered alongside the ready predicate.
const claimSQL = `
	SELECT da.id, da.retry_count, da.created_at,
	       e.id, e.event_type, e.payload, e.content_type,
	       s.id, s.secret, s.target_method, s.target_url, s.target_headers
	FROM hookline.delivery_attempts da
	JOIN hookline.events e ON e.id = da.event_id
	JOIN hookline.subscriptions s ON s.id = da.subscription_id
	JOIN hookline.applications a ON a.id = s.application_id
	JOIN hookline.organizations o ON o.id = a.organization_id
	WHERE da.succeeded_at IS NULL
	  AND da.failed_at IS NULL
	  AND (da.delay_until IS NULL OR da.delay_until <= now())
	  AND s.is_enabled
	  AND COALESCE(s.dedicated_worker, o.default_worker) = $1
	ORDER BY da.created_at ASC
	LIMIT 1
	FOR UPDATE OF da SKIP LOCKED`

// Claim is one locked delivery attempt. The row stays locked until exactly one
// finalizer commits the transaction (or Release rolls it back); a worker crash
// aborts the transaction and the row becomes claimable again.
type Claim struct {
	Attempt ClaimedAttempt

	tx   pgx.Tx
	done bool
}

// ClaimNext atomically selects and locks the oldest ready attempt for the
// given worker partition. It returns (nil, nil) when no ready, unlocked,
// partition-matching attempt exists, which is the normal idle condition.
func (s *Store) ClaimNext(ctx context.Context, worker string) (*Claim, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}

	var (
		ca         ClaimedAttempt
		rawHeaders []byte
	)
	err = tx.QueryRow(ctx, claimSQL, worker).Scan(
		&ca.AttemptID, &ca.RetryCount, &ca.CreatedAt,
		&ca.EventID, &ca.EventType, &ca.Payload, &ca.ContentType,
		&ca.SubscriptionID, &ca.Secret, &ca.TargetMethod, &ca.TargetURL, &rawHeaders,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		return nil, nil
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("claim select: %w", err)
	}

	if len(rawHeaders) > 0 {
		if err := json.Unmarshal(rawHeaders, &ca.TargetHeaders); err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("decode target headers: %w", err)
		}
	}

	return &Claim{Attempt: ca, tx: tx}, nil
}

var errClaimFinalized = errors.New("claim already finalized")

// Succeed marks the attempt terminally succeeded and releases the lock.
func (c *Claim) Succeed(ctx context.Context, now time.Time, httpStatus int) error {
	return c.finalize(ctx, `
		UPDATE hookline.delivery_attempts
		SET succeeded_at = $2, http_status = $3, last_error = NULL
		WHERE id = $1 AND succeeded_at IS NULL AND failed_at IS NULL`,
		c.Attempt.AttemptID, now, httpStatus)
}

// Retry increments the retry count, sets the next eligibility time, and
// releases the lock. The attempt becomes claimable again by any worker in its
// partition once delayUntil passes.
func (c *Claim) Retry(ctx context.Context, delayUntil time.Time, lastError string, httpStatus int) error {
	return c.finalize(ctx, `
		UPDATE hookline.delivery_attempts
		SET retry_count = retry_count + 1, delay_until = $2, last_error = $3, http_status = NULLIF($4, 0)
		WHERE id = $1 AND succeeded_at IS NULL AND failed_at IS NULL`,
		c.Attempt.AttemptID, delayUntil, lastError, httpStatus)
}

// Fail marks the attempt terminally failed (retry ceiling exhausted) and
// releases the lock. The retry count is left as-is.
func (c *Claim) Fail(ctx context.Context, now time.Time, lastError string, httpStatus int) error {
	return c.finalize(ctx, `
		UPDATE hookline.delivery_attempts
		SET failed_at = $2, last_error = $3, http_status = NULLIF($4, 0)
		WHERE id = $1 AND succeeded_at IS NULL AND failed_at IS NULL`,
		c.Attempt.AttemptID, now, lastError, httpStatus)
}

// Release abandons the claim without recording an outcome. The rollback frees
// the row lock so another cycle can pick the attempt up immediately.
func (c *Claim) Release(ctx context.Context) error {
	if c.done {
		return nil
	}
	c.done = true
	return c.tx.Rollback(ctx)
}

func (c *Claim) finalize(ctx context.Context, sql string, args ...any) error {
	if c.done {
		return errClaimFinalized
	}
	c.done = true

	if _, err := c.tx.Exec(ctx, sql, args...); err != nil {
		_ = c.tx.Rollback(ctx)
		return fmt.Errorf("finalize attempt: %w", err)
	}
	if err := c.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit claim: %w", err)
	}
	return nil
}

// --- reporting read path ---

const attemptColumns = `
	da.id, da.event_id, da.subscription_id, da.created_at, da.retry_count,
	da.delay_until, da.succeeded_at, da.failed_at, da.last_error, da.http_status, da.replay_of`

// GetAttempt returns a single attempt by id.
func (s *Store) GetAttempt(ctx context.Context, id string) (*Attempt, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM hookline.delivery_attempts da WHERE da.id = $1`, attemptColumns), id)
	a, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("attempt %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListFilter narrows ListAttempts. Zero values mean "no filter".
type ListFilter struct {
	EventID        string
	SubscriptionID string
	Status         string // pending, succeeded, failed
	Limit          int
}

// ListAttempts returns attempts ordered by creation time, oldest first.
func (s *Store) ListAttempts(ctx context.Context, f ListFilter) ([]Attempt, error) {
	args := []any{}
	where := "1=1"
	argn := 0
	if f.EventID != "" {
		argn++
		where += fmt.Sprintf(" AND da.event_id = $%d", argn)
		args = append(args, f.EventID)
	}
	if f.SubscriptionID != "" {
		argn++
		where += fmt.Sprintf(" AND da.subscription_id = $%d", argn)
		args = append(args, f.SubscriptionID)
	}
	switch f.Status {
	case StatusSucceeded:
		where += " AND da.succeeded_at IS NOT NULL"
	case StatusFailed:
		where += " AND da.failed_at IS NOT NULL"
	case StatusPending:
		where += " AND da.succeeded_at IS NULL AND da.failed_at IS NULL"
	}
	limit := 20
	if f.Limit > 0 {
		limit = f.Limit
	}
	argn++
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT %s FROM hookline.delivery_attempts da
		WHERE %s
		ORDER BY da.created_at ASC
		LIMIT $%d`, attemptColumns, where, argn)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// SubscriptionAssignment is the partition configuration of one enabled
// subscription, as the resolver sees it. Empty strings mean unset.
type SubscriptionAssignment struct {
	SubscriptionID  string
	DedicatedWorker string
	DefaultWorker   string
}

// ListAssignments returns the partition configuration of every enabled
// subscription. Callers run the resolver over it to spot subscriptions no
// worker can ever claim for.
func (s *Store) ListAssignments(ctx context.Context) ([]SubscriptionAssignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, COALESCE(s.dedicated_worker, ''), COALESCE(o.default_worker, '')
		FROM hookline.subscriptions s
		JOIN hookline.applications a ON a.id = s.application_id
		JOIN hookline.organizations o ON o.id = a.organization_id
		WHERE s.is_enabled`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SubscriptionAssignment
	for rows.Next() {
		var sa SubscriptionAssignment
		if err := rows.Scan(&sa.SubscriptionID, &sa.DedicatedWorker, &sa.DefaultWorker); err != nil {
			return nil, err
		}
		out = append(out, sa)
	}
	return out, rows.Err()
}

// Replay inserts a fresh attempt for the same event and subscription,
// referencing the source attempt. The new row starts ready with retry_count 0
// and competes for claims like any other attempt.
func (s *Store) Replay(ctx context.Context, attemptID, reason string) (string, error) {
	var eventID, subscriptionID string
	err := s.pool.QueryRow(ctx, `
		SELECT event_id, subscription_id FROM hookline.delivery_attempts WHERE id = $1`,
		attemptID,
	).Scan(&eventID, &subscriptionID)
	if err != nil {
		return "", fmt.Errorf("source attempt not found: %w", err)
	}

	newID := uuid.NewString()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO hookline.delivery_attempts(id, event_id, subscription_id, replay_of, replay_reason)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))`,
		newID, eventID, subscriptionID, attemptID, reason,
	)
	if err != nil {
		return "", fmt.Errorf("insert replay: %w", err)
	}
	return newID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*Attempt, error) {
	var (
		a                                 Attempt
		delayUntil, succeededAt, failedAt *time.Time
		lastError, replayOf               *string
		httpStatus                        *int
	)
	if err := row.Scan(
		&a.ID, &a.EventID, &a.SubscriptionID, &a.CreatedAt, &a.RetryCount,
		&delayUntil, &succeededAt, &failedAt, &lastError, &httpStatus, &replayOf,
	); err != nil {
		return nil, err
	}
	a.DelayUntil = delayUntil
	a.SucceededAt = succeededAt
	a.FailedAt = failedAt
	a.HTTPStatus = httpStatus
	if lastError != nil {
		a.LastError = *lastError
	}
	if replayOf != nil {
		a.ReplayOf = *replayOf
	}
	return &a, nil
}
