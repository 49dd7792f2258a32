package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

// AuditGroup is one adjustment group amount recorded for the audit trail.
type AuditGroup struct {
	GroupKey string
	Amount   string
}

// CommitRecord bundles everything one commit writes atomically.
type CommitRecord struct {
	ProposalID       string
	Checksum         string
	InputFingerprint string
	EngineVersion    string
	ResultJSON       []byte
	Groups           []AuditGroup
	EventType        string
	EventPayload     []byte
}

// ResultRepo persists calculation results, their audit trail, and the
// outbox row that announces them.
type ResultRepo struct{}

// NewResultRepo creates a new repository instance.
func NewResultRepo() *ResultRepo {
	return &ResultRepo{}
}

// LookupByChecksum returns the stored result JSON for a checksum, or nil
// when no identical calculation has been committed.
func (r *ResultRepo) LookupByChecksum(ctx context.Context, checksum string) ([]byte, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	var resultJSON []byte
	err := pool.QueryRow(ctx,
		`SELECT result_json FROM calculation_results WHERE checksum = $1`, checksum).Scan(&resultJSON)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up result by checksum: %w", err)
	}
	return resultJSON, nil
}

// LookupByProposal returns the latest committed result JSON for a proposal.
func (r *ResultRepo) LookupByProposal(ctx context.Context, proposalID string) ([]byte, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	var resultJSON []byte
	err := pool.QueryRow(ctx,
		`SELECT result_json FROM calculation_results WHERE proposal_id = $1`, proposalID).Scan(&resultJSON)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up result by proposal: %w", err)
	}
	return resultJSON, nil
}

// SaveCommit writes the result row, the audit record with its group
// amounts, and the outbox event in one transaction. Either everything
// lands or nothing does.
func (r *ResultRepo) SaveCommit(ctx context.Context, rec *CommitRecord) error {
	pool := GetPool()
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin commit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()

	_, err = tx.Exec(ctx, `
		INSERT INTO calculation_results (proposal_id, checksum, input_fingerprint, engine_version, result_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (proposal_id)
		DO UPDATE SET
			checksum = EXCLUDED.checksum,
			input_fingerprint = EXCLUDED.input_fingerprint,
			engine_version = EXCLUDED.engine_version,
			result_json = EXCLUDED.result_json,
			updated_at = EXCLUDED.updated_at`,
		rec.ProposalID, rec.Checksum, rec.InputFingerprint, rec.EngineVersion, rec.ResultJSON, now)
	if err != nil {
		return fmt.Errorf("failed to save calculation result: %w", err)
	}

	// The audit trail is append-only and keyed by checksum: replays of an
	// identical calculation leave the original record untouched.
	tag, err := tx.Exec(ctx, `
		INSERT INTO calc_audit (checksum, proposal_id, input_fingerprint, engine_version, result_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (checksum) DO NOTHING`,
		rec.Checksum, rec.ProposalID, rec.InputFingerprint, rec.EngineVersion, rec.ResultJSON, now)
	if err != nil {
		return fmt.Errorf("failed to save audit record: %w", err)
	}

	if tag.RowsAffected() > 0 {
		for i, g := range rec.Groups {
			_, err = tx.Exec(ctx, `
				INSERT INTO calc_audit_groups (checksum, ordinal, group_key, amount)
				VALUES ($1, $2, $3, $4)`,
				rec.Checksum, i, g.GroupKey, g.Amount)
			if err != nil {
				return fmt.Errorf("failed to save audit group: %w", err)
			}
		}
	}

	eventType := rec.EventType
	if eventType == "" {
		eventType = models.EventCalculationCompleted
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO calc_outbox (proposal_id, event_type, payload, status, next_retry_at, created_at, updated_at)
		VALUES ($1, $2, $3, 'PENDING', $4, $4, $4)`,
		rec.ProposalID, eventType, rec.EventPayload, now)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit calculation: %w", err)
	}
	return nil
}
