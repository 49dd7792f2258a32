package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/money"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

// SnapshotRepo reads a proposal's complete pricing inputs.
type SnapshotRepo struct{}

// NewSnapshotRepo creates a new repository instance.
func NewSnapshotRepo() *SnapshotRepo {
	return &SnapshotRepo{}
}

// FetchSnapshot reads the proposal and all of its pricing inputs in one
// REPEATABLE READ read-only transaction, so every array reflects the same
// instant. The per-entity queries travel in a single batch round trip.
func (r *SnapshotRepo) FetchSnapshot(ctx context.Context, proposalID string) (*models.Snapshot, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(`SELECT tenant_id, metadata, tax_config FROM proposals WHERE id = $1`, proposalID)
	batch.Queue(`SELECT id, unit_price::text, quantity::text, cost::text, tax_setting,
                        use_tax_eligible, vendor_tax_collected
                 FROM line_items WHERE proposal_id = $1 ORDER BY id`, proposalID)
	batch.Queue(`SELECT id, kind, value::text, tax_setting, category, affects_quantity,
                        cost_percentage::text, display_mode, application_type, product_id,
                        chain_priority, line_item_id, missing_cost_strategy, created_at
                 FROM modifiers WHERE proposal_id = $1 ORDER BY chain_priority, id`, proposalID)
	batch.Queue(`SELECT modifier_id, depends_on, dep_type
                 FROM modifier_dependencies WHERE proposal_id = $1
                 ORDER BY depends_on, modifier_id`, proposalID)
	batch.Queue(`SELECT modifier_id, expression
                 FROM modifier_rules WHERE proposal_id = $1 ORDER BY modifier_id, id`, proposalID)

	results := tx.SendBatch(ctx, batch)

	snap := &models.Snapshot{ProposalID: proposalID}

	var metadataJSON, configJSON []byte
	if err := results.QueryRow().Scan(&snap.TenantID, &metadataJSON, &configJSON); err != nil {
		results.Close()
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("proposal %s not found", proposalID)
		}
		return nil, fmt.Errorf("failed to read proposal: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &snap.Metadata); err != nil {
			results.Close()
			return nil, fmt.Errorf("failed to decode proposal metadata: %w", err)
		}
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &snap.Config); err != nil {
			results.Close()
			return nil, fmt.Errorf("failed to decode tax config: %w", err)
		}
	}

	if snap.LineItems, err = scanLineItems(results); err != nil {
		results.Close()
		return nil, err
	}
	if snap.Modifiers, err = scanModifiers(results); err != nil {
		results.Close()
		return nil, err
	}
	if snap.Dependencies, err = scanDependencies(results); err != nil {
		results.Close()
		return nil, err
	}
	if snap.Rules, err = scanRules(results); err != nil {
		results.Close()
		return nil, err
	}

	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("failed to close snapshot batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot transaction: %w", err)
	}

	snap.FetchedAt = time.Now()
	return snap, nil
}

func scanLineItems(results pgx.BatchResults) ([]models.LineItem, error) {
	rows, err := results.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	var out []models.LineItem
	for rows.Next() {
		var li models.LineItem
		var unitPrice, quantity string
		var cost *string
		if err := rows.Scan(&li.ID, &unitPrice, &quantity, &cost, &li.TaxSetting,
			&li.UseTaxEligible, &li.VendorTaxCollected); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		if li.UnitPrice, err = money.ParseDecimal(unitPrice); err != nil {
			return nil, fmt.Errorf("bad unit price for line item %s: %w", li.ID, err)
		}
		if li.Quantity, err = money.ParseDecimal(quantity); err != nil {
			return nil, fmt.Errorf("bad quantity for line item %s: %w", li.ID, err)
		}
		if cost != nil {
			c, err := money.ParseDecimal(*cost)
			if err != nil {
				return nil, fmt.Errorf("bad cost for line item %s: %w", li.ID, err)
			}
			li.Cost = &c
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

func scanModifiers(results pgx.BatchResults) ([]models.Modifier, error) {
	rows, err := results.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query modifiers: %w", err)
	}
	defer rows.Close()

	var out []models.Modifier
	for rows.Next() {
		var m models.Modifier
		var value, costPercentage string
		var productID, lineItemID, missingCost *string
		if err := rows.Scan(&m.ID, &m.Kind, &value, &m.TaxSetting, &m.Category,
			&m.AffectsQuantity, &costPercentage, &m.DisplayMode, &m.ApplicationType,
			&productID, &m.ChainPriority, &lineItemID, &missingCost, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan modifier: %w", err)
		}
		if m.Value, err = money.ParseDecimal(value); err != nil {
			return nil, fmt.Errorf("bad value for modifier %s: %w", m.ID, err)
		}
		if m.CostPercentage, err = money.ParseDecimal(costPercentage); err != nil {
			return nil, fmt.Errorf("bad cost percentage for modifier %s: %w", m.ID, err)
		}
		if productID != nil {
			m.ProductID = *productID
		}
		if lineItemID != nil {
			m.LineItemID = *lineItemID
		}
		if missingCost != nil {
			m.MissingCostStrategy = models.MissingCostStrategy(*missingCost)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanDependencies(results pgx.BatchResults) ([]models.Dependency, error) {
	rows, err := results.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer rows.Close()

	var out []models.Dependency
	for rows.Next() {
		var d models.Dependency
		if err := rows.Scan(&d.ModifierID, &d.DependsOn, &d.Type); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanRules(results pgx.BatchResults) ([]models.Rule, error) {
	rows, err := results.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var out []models.Rule
	for rows.Next() {
		var r models.Rule
		if err := rows.Scan(&r.ModifierID, &r.Expression); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
