package compute

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/money"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

// taxOutcome carries the Q7 tax computation results.
type taxOutcome struct {
	retailTax     decimal.Decimal
	jurisdictions []models.JurisdictionTax
	useTaxBase    decimal.Decimal
	useTax        decimal.Decimal
	hasUseTax     bool
}

// computeTax runs the retail and use-tax engines against the post-pre-tax
// bases. Taxable and non-taxable bases never mix: retail tax reads only
// the taxable base, and is zero when that base is zero.
func computeTax(cfg models.TaxConfig, taxableBase decimal.Decimal, lineItems []models.LineItem) taxOutcome {
	var out taxOutcome

	if cfg.Mode == models.TaxModeRetail || cfg.Mode == models.TaxModeMixed {
		if len(cfg.Jurisdictions) == 0 {
			out.retailTax = money.MulQ7(taxableBase, cfg.RetailRate)
		} else {
			sorted := append([]models.Jurisdiction(nil), cfg.Jurisdictions...)
			sort.Slice(sorted, func(i, j int) bool {
				if sorted[i].Order != sorted[j].Order {
					return sorted[i].Order < sorted[j].Order
				}
				return sorted[i].Code < sorted[j].Code
			})
			for _, j := range sorted {
				amount := money.MulQ7(taxableBase, j.Rate)
				out.retailTax = out.retailTax.Add(amount)
				out.jurisdictions = append(out.jurisdictions, models.JurisdictionTax{
					Code:     j.Code,
					Rate:     j.Rate,
					AmountQ7: amount,
				})
			}
		}
	}

	if cfg.Mode == models.TaxModeUseTax || cfg.Mode == models.TaxModeMixed {
		out.hasUseTax = true
		for _, li := range lineItems {
			if !li.UseTaxEligible || li.VendorTaxCollected || li.Cost == nil {
				continue
			}
			out.useTaxBase = out.useTaxBase.Add(money.MulQ7(*li.Cost, li.Quantity))
		}
		out.useTax = money.MulQ7(out.useTaxBase, cfg.UseTaxRate)
	}

	return out
}
