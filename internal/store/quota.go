package store

import (
	"context"
	"fmt"
	"time"
)

// CheckAndMaybeReset reads the counter for the window starting at
// windowStart, resetting a stale row in place so subsequent readers see
// the reset. A missing row reads as zero without creating one.
//
// The reset is a single UPDATE guarded by last_reset < windowStart, so two
// concurrent readers racing across the boundary both land on the same
// zeroed state.
func (p *Postgres) CheckAndMaybeReset(ctx context.Context, accountID string, windowStart time.Time) (int64, time.Time, error) {
	_, err := p.pool.Exec(ctx, `
		UPDATE quota_counters
		SET count = 0, last_reset = $2
		WHERE account_id = $1 AND last_reset < $2`,
		accountID, windowStart,
	)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("reset stale counter: %w", err)
	}

	var count int64
	var lastReset time.Time
	err = p.pool.QueryRow(ctx, `
		SELECT count, last_reset FROM quota_counters WHERE account_id = $1`,
		accountID,
	).Scan(&count, &lastReset)
	if err != nil {
		if IsNotFound(err) {
			return 0, windowStart, nil
		}
		return 0, time.Time{}, fmt.Errorf("read counter: %w", err)
	}
	return count, lastReset, nil
}

// Increment applies the staleness check and adds one in a single atomic
// upsert. Two concurrent increments starting from count=5 always end at 7:
// the read-modify-write happens inside one statement at the storage layer.
func (p *Postgres) Increment(ctx context.Context, accountID string, windowStart time.Time) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, `
		INSERT INTO quota_counters (account_id, count, last_reset)
		VALUES ($1, 1, $2)
		ON CONFLICT (account_id) DO UPDATE SET
			count = CASE
				WHEN quota_counters.last_reset < $2 THEN 1
				ELSE quota_counters.count + 1
			END,
			last_reset = GREATEST(quota_counters.last_reset, $2)
		RETURNING count`,
		accountID, windowStart,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return count, nil
}
