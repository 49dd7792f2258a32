package store

import (
	"context"
	"fmt"
	"time"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

// DefaultClaimBatchSize bounds one publisher sweep unless the repo is
// configured otherwise.
const DefaultClaimBatchSize = 100

// OutboxRepo manages the transactional outbox rows.
type OutboxRepo struct {
	batchSize int
}

// NewOutboxRepo creates a new repository instance. batchSize <= 0 applies
// DefaultClaimBatchSize.
func NewOutboxRepo(batchSize int) *OutboxRepo {
	if batchSize <= 0 {
		batchSize = DefaultClaimBatchSize
	}
	return &OutboxRepo{batchSize: batchSize}
}

// Claim locks up to the configured batch size of due rows and marks them
// PROCESSING. FOR UPDATE SKIP LOCKED keeps concurrent publishers from
// fighting over the same rows; rows stuck in PROCESSING become
// reclaimable once their next_retry_at passes.
func (r *OutboxRepo) Claim(ctx context.Context) ([]models.OutboxEvent, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, proposal_id, event_type, payload, status, retry_count, next_retry_at, created_at
		FROM calc_outbox
		WHERE status IN ('PENDING', 'PROCESSING') AND next_retry_at <= now()
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, r.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox rows: %w", err)
	}

	var events []models.OutboxEvent
	for rows.Next() {
		var e models.OutboxEvent
		if err := rows.Scan(&e.ID, &e.ProposalID, &e.EventType, &e.Payload,
			&e.Status, &e.RetryCount, &e.NextRetryAt, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		events = append(events, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outbox rows: %w", err)
	}

	if len(events) > 0 {
		ids := make([]int64, len(events))
		for i, e := range events {
			ids[i] = e.ID
		}
		// Push next_retry_at forward so a crashed publisher's claim expires
		// instead of wedging the rows.
		_, err = tx.Exec(ctx, `
			UPDATE calc_outbox
			SET status = 'PROCESSING', next_retry_at = now() + interval '60 seconds', updated_at = now()
			WHERE id = ANY($1)`, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to mark outbox rows processing: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit outbox claim: %w", err)
	}
	return events, nil
}

// MarkCompleted finalizes a successfully published row.
func (r *OutboxRepo) MarkCompleted(ctx context.Context, id int64) error {
	pool := GetPool()
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}

	_, err := pool.Exec(ctx, `
		UPDATE calc_outbox
		SET status = 'COMPLETED', updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox row completed: %w", err)
	}
	return nil
}

// MarkFailed records a failed publish attempt: the retry count increments
// and the row is rescheduled, or parked as DEAD_LETTER once maxRetries is
// exhausted.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, lastError string, dead bool) error {
	pool := GetPool()
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}

	status := models.OutboxPending
	if dead {
		status = models.OutboxDeadLetter
	}
	_, err := pool.Exec(ctx, `
		UPDATE calc_outbox
		SET status = $2, retry_count = $3, next_retry_at = $4, last_error = $5, updated_at = now()
		WHERE id = $1`, id, status, retryCount, nextRetryAt, lastError)
	if err != nil {
		return fmt.Errorf("failed to mark outbox row failed: %w", err)
	}
	return nil
}
