package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestClaimSQLContract(t *testing.T) {
	// The claim query carries the engine's concurrency contract; these
	// clauses must survive any edit to it.
	for _, clause := range []string{
		"FOR UPDATE OF da SKIP LOCKED",
		"COALESCE(s.dedicated_worker, o.default_worker) = $1",
		"da.succeeded_at IS NULL",
		"da.failed_at IS NULL",
		"da.delay_until IS NULL OR da.delay_until <= now()",
		"s.is_enabled",
		"ORDER BY da.created_at ASC",
		"LIMIT 1",
	} {
		if !strings.Contains(claimSQL, clause) {
			t.Errorf("claim query lost clause %q", clause)
		}
	}
}

func TestClaimFinalizeOnce(t *testing.T) {
	// A finalized claim must reject further finalizers without touching the
	// transaction.
	c := &Claim{done: true}

	if err := c.Succeed(context.Background(), time.Now(), 200); !errors.Is(err, errClaimFinalized) {
		t.Errorf("Succeed() on finalized claim = %v, want errClaimFinalized", err)
	}
	if err := c.Retry(context.Background(), time.Now(), "", 0); !errors.Is(err, errClaimFinalized) {
		t.Errorf("Retry() on finalized claim = %v, want errClaimFinalized", err)
	}
	if err := c.Fail(context.Background(), time.Now(), "", 0); !errors.Is(err, errClaimFinalized) {
		t.Errorf("Fail() on finalized claim = %v, want errClaimFinalized", err)
	}
	// Release after a finalizer is a no-op, not an error.
	if err := c.Release(context.Background()); err != nil {
		t.Errorf("Release() on finalized claim = %v, want nil", err)
	}
}
