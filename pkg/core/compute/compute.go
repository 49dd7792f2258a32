// Package compute is the pure pricing stage: a side-effect-free function
// from a frozen input to a canonical result. No I/O, no clocks, no
// randomness, no mutation of inputs — same bytes in, same bytes out.
package compute

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/canonical"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/money"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/rules"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

// Options bounds one computation. Deadline is the only impurity: it aborts
// long runs between phases without affecting any produced value.
type Options struct {
	Deadline time.Time
}

func (o Options) expired() bool {
	return !o.Deadline.IsZero() && time.Now().After(o.Deadline)
}

// Compute validates the frozen input, resolves and groups the modifiers,
// applies groups in deterministic order at Q7, computes taxes with strict
// taxable/non-taxable segregation, and emits a checksummed result. All
// failures are deterministic and no partial result is ever returned.
func Compute(in *models.FrozenInput, opts Options) (*models.Result, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	// 1. Base subtotal with taxable/non-taxable partitions.
	st := newRunningState(in.LineItems)
	subtotalQ7 := st.running
	taxableSubtotalQ7 := st.taxable
	nonTaxableSubtotalQ7 := st.nonTaxable

	// 2. Tax-setting resolution.
	resolved := resolveTaxSettings(in.Modifiers, in.LineItems)

	// 3. Dependency resolution.
	survivors, rejected, err := resolveDependencies(resolved, in.Dependencies)
	if err != nil {
		return nil, err
	}
	if opts.expired() {
		return nil, models.NewError(models.ErrTimeout, "computation exceeded its deadline")
	}

	// 4. Rule filtering.
	survivors, ruleRejected := filterByRules(in, survivors, subtotalQ7, taxableSubtotalQ7, nonTaxableSubtotalQ7)
	rejected = append(rejected, ruleRejected...)

	// 5-6. Grouping and deterministic ordering.
	groups := groupModifiers(survivors)
	if err := checkGroupCount(len(groups)); err != nil {
		return nil, err
	}
	sortGroups(groups)

	var preTax, postTax []*Group
	for _, g := range groups {
		if g.ApplicationType == models.ApplyPostTax {
			postTax = append(postTax, g)
		} else {
			preTax = append(preTax, g)
		}
	}

	// 7. Pre-tax application.
	var adjustments []models.Adjustment
	var preTaxTotalQ7 decimal.Decimal
	for _, g := range preTax {
		adj, err := applyGroup(st, g)
		if err != nil {
			return nil, err
		}
		preTaxTotalQ7 = preTaxTotalQ7.Add(adj.AmountQ7)
		adjustments = append(adjustments, *adj)
	}
	if opts.expired() {
		return nil, models.NewError(models.ErrTimeout, "computation exceeded its deadline")
	}

	// 8. Tax computation on the post-pre-tax bases. Post-tax adjustments
	// never re-open the tax base.
	taxableBaseQ7 := st.taxable
	nonTaxableBaseQ7 := st.nonTaxable
	tax := computeTax(in.Config, taxableBaseQ7, in.LineItems)

	// 9. Post-tax application.
	var postTaxTotalQ7 decimal.Decimal
	for _, g := range postTax {
		adj, err := applyGroup(st, g)
		if err != nil {
			return nil, err
		}
		postTaxTotalQ7 = postTaxTotalQ7.Add(adj.AmountQ7)
		adjustments = append(adjustments, *adj)
	}

	// 10. Result construction.
	runningQ7 := st.running
	customerGrandTotal := money.Q2(runningQ7.Add(tax.retailTax))
	result := &models.Result{
		ProposalID:         in.ProposalID,
		SchemaVersion:      in.SchemaVersion,
		TaxMode:            in.Config.Mode,
		Subtotal:           money.Q2(subtotalQ7),
		ModifierTotal:      money.Q2(preTaxTotalQ7.Add(postTaxTotalQ7)),
		RetailTax:          money.Q2(tax.retailTax),
		CustomerGrandTotal: customerGrandTotal,
		Adjustments:        adjustments,
		Rejected:           rejected,
		JurisdictionTaxes:  tax.jurisdictions,
		Components: models.Components{
			SubtotalQ7:           subtotalQ7,
			TaxableBaseQ7:        taxableBaseQ7,
			NonTaxableBaseQ7:     nonTaxableBaseQ7,
			PreTaxAdjustmentsQ7:  preTaxTotalQ7,
			PostTaxAdjustmentsQ7: postTaxTotalQ7,
			RetailTaxQ7:          tax.retailTax,
			UseTaxBaseQ7:         tax.useTaxBase,
			UseTaxQ7:             tax.useTax,
			RunningQ7:            runningQ7,
		},
	}
	if tax.hasUseTax {
		useTax := money.Q2(tax.useTax)
		internal := money.Q2(customerGrandTotal.Add(tax.useTax))
		result.UseTax = &useTax
		result.InternalGrandTotal = &internal
	}

	// 11. Checksum over the canonical encoding, excluding the checksum and
	// diagnostic timings themselves.
	checksum, err := canonical.Fingerprint(result)
	if err != nil {
		return nil, models.WrapError(models.ErrInternal, "checksum result", err)
	}
	result.Checksum = checksum
	return result, nil
}

// filterByRules evaluates each surviving modifier's compiled rules against
// the evaluation context. A false tree discards the modifier with
// "rule_failed"; an evaluation error discards only that modifier with
// "rule_error:".
func filterByRules(in *models.FrozenInput, survivors []models.Modifier, subtotal, taxable, nonTaxable decimal.Decimal) ([]models.Modifier, []models.RejectedModifier) {
	if len(in.CompiledRules) == 0 {
		return survivors, nil
	}
	ctx := buildEvalContext(in, subtotal, taxable, nonTaxable)

	var kept []models.Modifier
	var rejected []models.RejectedModifier
	for _, m := range survivors {
		programs := in.CompiledRules[m.ID]
		pass := true
		var evalErr error
		for _, p := range programs {
			ok, err := p.Eval(ctx)
			if err != nil {
				evalErr = err
				break
			}
			if !ok {
				pass = false
				break
			}
		}
		switch {
		case evalErr != nil:
			rejected = append(rejected, models.RejectedModifier{ModifierID: m.ID, Reason: "rule_error:" + evalErr.Error()})
		case !pass:
			rejected = append(rejected, models.RejectedModifier{ModifierID: m.ID, Reason: "rule_failed"})
		default:
			kept = append(kept, m)
		}
	}
	return kept, rejected
}

// buildEvalContext assembles the read-only rule context: base subtotal,
// line items, proposal metadata, and computed aggregates.
func buildEvalContext(in *models.FrozenInput, subtotal, taxable, nonTaxable decimal.Decimal) rules.Context {
	proposal := map[string]interface{}{
		"id":       in.ProposalID,
		"tenantId": in.TenantID,
	}
	for k, v := range in.Metadata {
		proposal[k] = v
	}

	items := make([]interface{}, 0, len(in.LineItems))
	for _, li := range in.LineItems {
		items = append(items, map[string]interface{}{
			"id":         li.ID,
			"unitPrice":  li.UnitPrice,
			"quantity":   li.Quantity,
			"taxSetting": string(li.TaxSetting),
		})
	}

	return rules.Context{
		"proposal": proposal,
		"computed": map[string]interface{}{
			"subtotal":           subtotal,
			"taxableSubtotal":    taxable,
			"nonTaxableSubtotal": nonTaxable,
			"lineItemCount":      len(in.LineItems),
			"modifierCount":      len(in.Modifiers),
		},
		"evaluationContext": map[string]interface{}{
			"lineItems": items,
		},
		"running": map[string]interface{}{
			"total": subtotal,
		},
	}
}
