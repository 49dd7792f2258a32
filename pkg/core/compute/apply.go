package compute

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/money"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

var oneHundred = decimal.NewFromInt(100)

// runningState tracks the evolving totals during group application. The
// taxable and non-taxable partitions stay strictly segregated: every
// allocated amount moves the partition of its own line item, so the
// partitions always sum to the running total.
type runningState struct {
	running    decimal.Decimal
	taxable    decimal.Decimal
	nonTaxable decimal.Decimal
	// lineBases are the original Q7 per-line subtotals, the proportional
	// shares for fixed allocations.
	lineBases map[string]decimal.Decimal
	// lineRunning are the evolving per-line totals percentage groups draw
	// their base from.
	lineRunning map[string]decimal.Decimal
	settings    map[string]models.TaxSetting
	lineItems   []models.LineItem
}

func newRunningState(lineItems []models.LineItem) *runningState {
	st := &runningState{
		lineBases:   make(map[string]decimal.Decimal, len(lineItems)),
		lineRunning: make(map[string]decimal.Decimal, len(lineItems)),
		settings:    make(map[string]models.TaxSetting, len(lineItems)),
		lineItems:   lineItems,
	}
	for _, li := range lineItems {
		base := money.MulQ7(li.UnitPrice, li.Quantity)
		st.lineBases[li.ID] = base
		st.lineRunning[li.ID] = base
		st.settings[li.ID] = li.TaxSetting
		st.running = st.running.Add(base)
		if li.TaxSetting == models.TaxSettingTaxable {
			st.taxable = st.taxable.Add(base)
		} else {
			st.nonTaxable = st.nonTaxable.Add(base)
		}
	}
	return st
}

// absorb folds per-line allocations into the running total, each line's
// own partition, and the per-line running bases.
func (st *runningState) absorb(allocations []models.LineAllocation) {
	for _, a := range allocations {
		st.running = st.running.Add(a.AmountQ7)
		st.lineRunning[a.LineItemID] = st.lineRunning[a.LineItemID].Add(a.AmountQ7)
		if st.settings[a.LineItemID] == models.TaxSettingTaxable {
			st.taxable = st.taxable.Add(a.AmountQ7)
		} else {
			st.nonTaxable = st.nonTaxable.Add(a.AmountQ7)
		}
	}
}

// applyGroup computes one group's Q7 adjustment and its per-line
// allocations, then folds it into the running state.
func applyGroup(st *runningState, g *Group) (*models.Adjustment, error) {
	var amount decimal.Decimal
	var allocations []models.LineAllocation
	var err error

	switch g.Kind {
	case models.KindPercentage:
		// Each line contributes its own rounded share, so the partitions
		// shrink by exactly what their lines were charged.
		for _, li := range st.lineItems {
			share := money.Percent(st.lineRunning[li.ID], g.CombinedValue)
			if share.IsZero() {
				continue
			}
			amount = amount.Add(share)
			allocations = append(allocations, models.LineAllocation{LineItemID: li.ID, AmountQ7: share})
		}

	case models.KindFixed:
		amount = money.Q7(g.CombinedValue)
		allocations = allocateProportionally(st, g.TaxSetting, amount)

	case models.KindMargin:
		amount, allocations, err = applyMargin(st, g)
		if err != nil {
			return nil, err
		}

	default:
		return nil, models.NewErrorf(models.ErrInvalidInput, "cannot apply modifier kind %q", g.Kind)
	}

	st.absorb(allocations)

	return &models.Adjustment{
		GroupKey:        g.Key,
		Kind:            g.Kind,
		Category:        g.Category,
		TaxSetting:      g.TaxSetting,
		ApplicationType: g.ApplicationType,
		ModifierIDs:     append([]string(nil), g.ModifierIDs...),
		CombinedValue:   g.CombinedValue,
		AmountQ7:        amount,
		AmountQ2:        money.Q2(amount),
		Allocations:     allocations,
	}, nil
}

// allocateProportionally splits amount across the line items of the
// group's partition by their share of the partition's original base.
// First-pass shares round to Q7; the residual delta is pinned onto the
// last allocation so allocations always sum exactly to the amount.
func allocateProportionally(st *runningState, ts models.TaxSetting, amount decimal.Decimal) []models.LineAllocation {
	if amount.IsZero() {
		return nil
	}

	var members []models.LineItem
	var base decimal.Decimal
	for _, li := range st.lineItems {
		if li.TaxSetting == ts {
			members = append(members, li)
			base = base.Add(st.lineBases[li.ID])
		}
	}
	if len(members) == 0 {
		// No line in the partition: fall back to all lines so the
		// allocation closure invariant still holds.
		members = st.lineItems
		base = decimal.Zero
		for _, li := range members {
			base = base.Add(st.lineBases[li.ID])
		}
	}
	if len(members) == 0 {
		return nil
	}

	allocations := make([]models.LineAllocation, 0, len(members))
	var assigned decimal.Decimal
	for i, li := range members {
		var share decimal.Decimal
		if i == len(members)-1 {
			// Residual lands on the last allocation.
			share = amount.Sub(assigned)
		} else if base.IsZero() {
			share = money.Q7(amount.Div(decimal.NewFromInt(int64(len(members)))))
		} else {
			share = money.Q7(amount.Mul(st.lineBases[li.ID]).Div(base))
		}
		assigned = assigned.Add(share)
		allocations = append(allocations, models.LineAllocation{LineItemID: li.ID, AmountQ7: share})
	}
	return allocations
}

// applyMargin reprices each line to hit the target margin m = value/100:
// newPrice = cost / (1 - m). The per-line adjustment is
// (newPrice - currentUnitPrice) * quantity at Q7.
func applyMargin(st *runningState, g *Group) (decimal.Decimal, []models.LineAllocation, error) {
	m := g.CombinedValue.Div(oneHundred)
	if m.IsNegative() || m.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, nil, models.NewErrorf(models.ErrInvalidMargin, "target margin %s is outside [0,1)", m.String())
	}
	one := decimal.NewFromInt(1)
	strategy := marginStrategy(g)

	var total decimal.Decimal
	var allocations []models.LineAllocation
	for _, li := range st.lineItems {
		cost, ok, err := lineCost(li, g, strategy)
		if err != nil {
			return decimal.Zero, nil, err
		}
		if !ok {
			continue
		}
		newPrice := money.Q7(cost.Div(one.Sub(m)))
		adj := money.MulQ7(newPrice.Sub(li.UnitPrice), li.Quantity)
		if adj.IsZero() {
			continue
		}
		total = total.Add(adj)
		allocations = append(allocations, models.LineAllocation{LineItemID: li.ID, AmountQ7: adj})
	}
	return total, allocations, nil
}

// marginStrategy picks the missing-cost strategy for a group: the first
// modifier's setting, defaulting to SKIP. CostPercentage is part of the
// group key, so USE_DEFAULT's percentage is uniform within a group.
func marginStrategy(g *Group) models.MissingCostStrategy {
	for _, m := range g.Modifiers {
		if m.MissingCostStrategy != "" {
			return m.MissingCostStrategy
		}
	}
	return models.MissingCostSkip
}

func lineCost(li models.LineItem, g *Group, strategy models.MissingCostStrategy) (decimal.Decimal, bool, error) {
	if li.Cost != nil {
		return *li.Cost, true, nil
	}
	switch strategy {
	case models.MissingCostSkip:
		return decimal.Zero, false, nil
	case models.MissingCostUseDefault:
		return money.Q7(li.UnitPrice.Mul(g.CostPercentage).Div(oneHundred)), true, nil
	case models.MissingCostFail:
		return decimal.Zero, false, models.NewError(models.ErrInvalidInput, "margin modifier requires line cost").
			WithViolations([]string{fmt.Sprintf("line item %q has no cost", li.ID)})
	default:
		return decimal.Zero, false, nil
	}
}
