package compute

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/money"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func decPtr(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d := dec(t, s)
	return &d
}

func frozen(t *testing.T, lineItems []models.LineItem, modifiers []models.Modifier, deps []models.Dependency, cfg models.TaxConfig) *models.FrozenInput {
	t.Helper()
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = "v1"
	}
	return &models.FrozenInput{
		ProposalID:    "p-1",
		TenantID:      "t-1",
		SchemaVersion: cfg.SchemaVersion,
		LineItems:     lineItems,
		Modifiers:     modifiers,
		Dependencies:  deps,
		Config:        cfg,
	}
}

func taxableLine(t *testing.T, id, unitPrice string, quantity int64) models.LineItem {
	t.Helper()
	return models.LineItem{
		ID:         id,
		UnitPrice:  dec(t, unitPrice),
		Quantity:   decimal.NewFromInt(quantity),
		TaxSetting: models.TaxSettingTaxable,
	}
}

func wantQ2(t *testing.T, label string, got decimal.Decimal, expected string) {
	t.Helper()
	if money.StringQ2(got) != expected {
		t.Errorf("%s = %s, want %s", label, money.StringQ2(got), expected)
	}
}

// =============================================================================
// END-TO-END PRICING SCENARIOS
// =============================================================================

func TestSimpleTaxableSale(t *testing.T) {
	in := frozen(t,
		[]models.LineItem{taxableLine(t, "a", "100.00", 2)},
		nil, nil,
		models.TaxConfig{Mode: models.TaxModeRetail, RetailRate: dec(t, "0.10")},
	)
	result, err := Compute(in, Options{})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	wantQ2(t, "subtotal", result.Subtotal, "200.00")
	wantQ2(t, "retailTax", result.RetailTax, "20.00")
	wantQ2(t, "customerGrandTotal", result.CustomerGrandTotal, "220.00")
	if result.UseTax != nil {
		t.Error("retail mode must not emit use tax")
	}
	if result.Checksum == "" {
		t.Error("checksum missing")
	}
}

func TestPercentageDiscount(t *testing.T) {
	in := frozen(t,
		[]models.LineItem{taxableLine(t, "a", "100.00", 2)},
		[]models.Modifier{{
			ID:              "d",
			Kind:            models.KindPercentage,
			Value:           dec(t, "-15"),
			TaxSetting:      models.TaxSettingTaxable,
			Category:        "discount",
			ApplicationType: models.ApplyPreTax,
			ChainPriority:   999,
		}},
		nil,
		models.TaxConfig{Mode: models.TaxModeRetail, RetailRate: dec(t, "0.10")},
	)
	result, err := Compute(in, Options{})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	wantQ2(t, "modifierTotal", result.ModifierTotal, "-30.00")
	wantQ2(t, "retailTax", result.RetailTax, "17.00")
	wantQ2(t, "customerGrandTotal", result.CustomerGrandTotal, "187.00")
}

func TestMixedTaxSettings(t *testing.T) {
	lineItems := []models.LineItem{
		taxableLine(t, "a", "150.00", 2),
		{ID: "b", UnitPrice: dec(t, "75.00"), Quantity: decimal.NewFromInt(3), TaxSetting: models.TaxSettingNonTaxable},
	}
	modifiers := []models.Modifier{
		{
			ID:              "d",
			Kind:            models.KindPercentage,
			Value:           dec(t, "-10"),
			TaxSetting:      models.TaxSettingTaxable,
			Category:        "discount",
			ApplicationType: models.ApplyPreTax,
			ChainPriority:   999,
		},
		{
			ID:              "f",
			Kind:            models.KindFixed,
			Value:           dec(t, "25.00"),
			TaxSetting:      models.TaxSettingTaxable,
			Category:        "fee",
			ApplicationType: models.ApplyPostTax,
			ChainPriority:   999,
		},
	}
	in := frozen(t, lineItems, modifiers, nil,
		models.TaxConfig{Mode: models.TaxModeRetail, RetailRate: dec(t, "0.0875")})

	result, err := Compute(in, Options{})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	wantQ2(t, "subtotal", result.Subtotal, "525.00")
	// The discount charges each line its own 10%: 30.00 off the taxable
	// partition and 22.50 off the non-taxable one.
	if got := money.StringQ7(result.Components.TaxableBaseQ7); got != "270.0000000" {
		t.Errorf("taxable base = %s, want 270.0000000", got)
	}
	wantQ2(t, "retailTax", result.RetailTax, "23.63")
	wantQ2(t, "customerGrandTotal", result.CustomerGrandTotal, "521.13")
}

func TestMarginModifier(t *testing.T) {
	in := frozen(t,
		[]models.LineItem{{
			ID:         "a",
			UnitPrice:  dec(t, "100.00"),
			Quantity:   decimal.NewFromInt(1),
			Cost:       decPtr(t, "60.00"),
			TaxSetting: models.TaxSettingTaxable,
		}},
		[]models.Modifier{{
			ID:              "m",
			Kind:            models.KindMargin,
			Value:           dec(t, "50"),
			TaxSetting:      models.TaxSettingTaxable,
			Category:        "adjustment",
			ApplicationType: models.ApplyPreTax,
			ChainPriority:   999,
		}},
		nil,
		models.TaxConfig{Mode: models.TaxModeRetail, RetailRate: decimal.Zero},
	)
	result, err := Compute(in, Options{})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(result.Adjustments) != 1 {
		t.Fatalf("adjustments = %d, want 1", len(result.Adjustments))
	}
	wantQ2(t, "margin adjustment", result.Adjustments[0].AmountQ2, "20.00")
	wantQ2(t, "customerGrandTotal", result.CustomerGrandTotal, "120.00")
}

func TestDependencyExclusion(t *testing.T) {
	modifiers := []models.Modifier{
		{ID: "m1", Kind: models.KindPercentage, Value: dec(t, "-5"), TaxSetting: models.TaxSettingTaxable,
			Category: "discount", ApplicationType: models.ApplyPreTax, ChainPriority: 1},
		{ID: "m2", Kind: models.KindPercentage, Value: dec(t, "-10"), TaxSetting: models.TaxSettingTaxable,
			Category: "discount", ApplicationType: models.ApplyPreTax, ChainPriority: 2},
	}
	deps := []models.Dependency{{ModifierID: "m2", DependsOn: "m1", Type: models.DependencyExcludes}}

	in := frozen(t,
		[]models.LineItem{taxableLine(t, "a", "100.00", 1)},
		modifiers, deps,
		models.TaxConfig{Mode: models.TaxModeRetail, RetailRate: decimal.Zero},
	)
	result, err := Compute(in, Options{})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(result.Adjustments) != 1 || result.Adjustments[0].ModifierIDs[0] != "m1" {
		t.Fatalf("expected only m1 applied, got %+v", result.Adjustments)
	}
	if len(result.Rejected) != 1 {
		t.Fatalf("rejected = %d, want 1", len(result.Rejected))
	}
	if result.Rejected[0].ModifierID != "m2" || result.Rejected[0].Reason != "excluded_by:m1" {
		t.Errorf("rejection = %+v, want m2 excluded_by:m1", result.Rejected[0])
	}
}

func TestUseTaxMode(t *testing.T) {
	in := frozen(t,
		[]models.LineItem{{
			ID:             "a",
			UnitPrice:      decimal.Zero,
			Quantity:       decimal.NewFromInt(1),
			Cost:           decPtr(t, "1000.00"),
			TaxSetting:     models.TaxSettingTaxable,
			UseTaxEligible: true,
		}},
		nil, nil,
		models.TaxConfig{Mode: models.TaxModeUseTax, UseTaxRate: dec(t, "0.08")},
	)
	result, err := Compute(in, Options{})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if got := money.StringQ7(result.Components.UseTaxBaseQ7); got != "1000.0000000" {
		t.Errorf("useTaxBase = %s, want 1000.0000000", got)
	}
	if result.UseTax == nil || result.InternalGrandTotal == nil {
		t.Fatal("use-tax mode must emit useTax and internalGrandTotal")
	}
	wantQ2(t, "useTax", *result.UseTax, "80.00")
	wantQ2(t, "customerGrandTotal", result.CustomerGrandTotal, "0.00")
	wantQ2(t, "internalGrandTotal", *result.InternalGrandTotal, "80.00")
}

// =============================================================================
// INVARIANTS
// =============================================================================

func TestChecksumDeterminism(t *testing.T) {
	build := func() *models.FrozenInput {
		return frozen(t,
			[]models.LineItem{
				taxableLine(t, "a", "19.99", 3),
				{ID: "b", UnitPrice: dec(t, "5.25"), Quantity: decimal.NewFromInt(7), TaxSetting: models.TaxSettingNonTaxable},
			},
			[]models.Modifier{
				{ID: "d1", Kind: models.KindPercentage, Value: dec(t, "-7.5"), TaxSetting: models.TaxSettingTaxable,
					Category: "discount", ApplicationType: models.ApplyPreTax, ChainPriority: 10},
				{ID: "f1", Kind: models.KindFixed, Value: dec(t, "4.99"), TaxSetting: models.TaxSettingTaxable,
					Category: "fee", ApplicationType: models.ApplyPreTax, ChainPriority: 20},
			},
			nil,
			models.TaxConfig{Mode: models.TaxModeRetail, RetailRate: dec(t, "0.0625")},
		)
	}

	first, err := Compute(build(), Options{})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Compute(build(), Options{})
		if err != nil {
			t.Fatalf("Compute failed on iteration %d: %v", i, err)
		}
		if again.Checksum != first.Checksum {
			t.Fatalf("checksum not deterministic: %s vs %s", first.Checksum, again.Checksum)
		}
	}
}

func TestConservation(t *testing.T) {
	in := frozen(t,
		[]models.LineItem{
			taxableLine(t, "a", "33.33", 3),
			{ID: "b", UnitPrice: dec(t, "12.47"), Quantity: decimal.NewFromInt(5), TaxSetting: models.TaxSettingNonTaxable},
		},
		[]models.Modifier{
			{ID: "d", Kind: models.KindPercentage, Value: dec(t, "-12.5"), TaxSetting: models.TaxSettingTaxable,
				Category: "discount", ApplicationType: models.ApplyPreTax, ChainPriority: 1},
			{ID: "f", Kind: models.KindFixed, Value: dec(t, "9.99"), TaxSetting: models.TaxSettingNonTaxable,
				Category: "fee", ApplicationType: models.ApplyPreTax, ChainPriority: 2},
		},
		nil,
		models.TaxConfig{Mode: models.TaxModeRetail, RetailRate: dec(t, "0.07")},
	)
	result, err := Compute(in, Options{})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	c := result.Components

	// running = subtotal + all adjustments, exactly at Q7.
	wantRunning := c.SubtotalQ7.Add(c.PreTaxAdjustmentsQ7).Add(c.PostTaxAdjustmentsQ7)
	if !c.RunningQ7.Equal(wantRunning) {
		t.Errorf("running %s != subtotal+adjustments %s", c.RunningQ7, wantRunning)
	}

	// Partition sums track the same identity.
	wantPartitions := c.SubtotalQ7.Add(c.PreTaxAdjustmentsQ7)
	if got := c.TaxableBaseQ7.Add(c.NonTaxableBaseQ7); !got.Equal(wantPartitions) {
		t.Errorf("taxable+nonTaxable %s != subtotal+preTax %s", got, wantPartitions)
	}
}

func TestAllocationClosure(t *testing.T) {
	in := frozen(t,
		[]models.LineItem{
			taxableLine(t, "a", "10.01", 1),
			taxableLine(t, "b", "20.02", 1),
			taxableLine(t, "c", "30.03", 1),
		},
		[]models.Modifier{
			{ID: "f", Kind: models.KindFixed, Value: dec(t, "-10.00"), TaxSetting: models.TaxSettingTaxable,
				Category: "discount", ApplicationType: models.ApplyPreTax, ChainPriority: 1},
		},
		nil,
		models.TaxConfig{Mode: models.TaxModeRetail, RetailRate: decimal.Zero},
	)
	result, err := Compute(in, Options{})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(result.Adjustments) != 1 {
		t.Fatalf("adjustments = %d, want 1", len(result.Adjustments))
	}
	adj := result.Adjustments[0]
	var sum decimal.Decimal
	for _, a := range adj.Allocations {
		sum = sum.Add(a.AmountQ7)
	}
	if !sum.Equal(adj.AmountQ7) {
		t.Errorf("allocations sum %s != group amount %s", sum, adj.AmountQ7)
	}
}

func TestTaxSegregationZeroTaxableBase(t *testing.T) {
	in := frozen(t,
		[]models.LineItem{{ID: "a", UnitPrice: dec(t, "50.00"), Quantity: decimal.NewFromInt(2), TaxSetting: models.TaxSettingNonTaxable}},
		nil, nil,
		models.TaxConfig{Mode: models.TaxModeRetail, RetailRate: dec(t, "0.10")},
	)
	result, err := Compute(in, Options{})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	wantQ2(t, "retailTax", result.RetailTax, "0.00")
	wantQ2(t, "customerGrandTotal", result.CustomerGrandTotal, "100.00")
}

func TestJurisdictionTaxes(t *testing.T) {
	in := frozen(t,
		[]models.LineItem{taxableLine(t, "a", "100.00", 1)},
		nil, nil,
		models.TaxConfig{
			Mode: models.TaxModeRetail,
			Jurisdictions: []models.Jurisdiction{
				{Code: "CITY", Order: 2, Rate: dec(t, "0.01")},
				{Code: "STATE", Order: 1, Rate: dec(t, "0.06")},
			},
		},
	)
	result, err := Compute(in, Options{})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(result.JurisdictionTaxes) != 2 {
		t.Fatalf("jurisdiction taxes = %d, want 2", len(result.JurisdictionTaxes))
	}
	if result.JurisdictionTaxes[0].Code != "STATE" || result.JurisdictionTaxes[1].Code != "CITY" {
		t.Errorf("jurisdictions out of order: %+v", result.JurisdictionTaxes)
	}
	wantQ2(t, "retailTax", result.RetailTax, "7.00")
}

// =============================================================================
// FAILURE PATHS
// =============================================================================

func TestDuplicateModifierIDs(t *testing.T) {
	in := frozen(t,
		[]models.LineItem{taxableLine(t, "a", "10.00", 1)},
		[]models.Modifier{
			{ID: "m", Kind: models.KindFixed, Value: dec(t, "1"), TaxSetting: models.TaxSettingTaxable,
				Category: "fee", ApplicationType: models.ApplyPreTax},
			{ID: "m", Kind: models.KindFixed, Value: dec(t, "2"), TaxSetting: models.TaxSettingTaxable,
				Category: "fee", ApplicationType: models.ApplyPreTax},
		},
		nil,
		models.TaxConfig{Mode: models.TaxModeRetail},
	)
	_, err := Compute(in, Options{})
	if !models.IsKind(err, models.ErrInvalidInput) {
		t.Errorf("kind = %s, want INVALID_INPUT", models.KindOf(err))
	}
}

func TestCircularDependencies(t *testing.T) {
	modifiers := []models.Modifier{
		{ID: "m1", Kind: models.KindFixed, Value: dec(t, "1"), TaxSetting: models.TaxSettingTaxable,
			Category: "fee", ApplicationType: models.ApplyPreTax},
		{ID: "m2", Kind: models.KindFixed, Value: dec(t, "2"), TaxSetting: models.TaxSettingTaxable,
			Category: "fee", ApplicationType: models.ApplyPreTax},
	}
	deps := []models.Dependency{
		{ModifierID: "m1", DependsOn: "m2", Type: models.DependencyRequires},
		{ModifierID: "m2", DependsOn: "m1", Type: models.DependencyRequires},
	}
	in := frozen(t, []models.LineItem{taxableLine(t, "a", "10.00", 1)}, modifiers, deps,
		models.TaxConfig{Mode: models.TaxModeRetail})
	_, err := Compute(in, Options{})
	if !models.IsKind(err, models.ErrInvalidInput) {
		t.Errorf("kind = %s, want INVALID_INPUT for cycle", models.KindOf(err))
	}
}

func TestMissingRequirement(t *testing.T) {
	modifiers := []models.Modifier{
		{ID: "m1", Kind: models.KindFixed, Value: dec(t, "1"), TaxSetting: models.TaxSettingTaxable,
			Category: "fee", ApplicationType: models.ApplyPreTax},
		{ID: "m2", Kind: models.KindFixed, Value: dec(t, "2"), TaxSetting: models.TaxSettingTaxable,
			Category: "bonus", ApplicationType: models.ApplyPreTax},
		{ID: "m3", Kind: models.KindFixed, Value: dec(t, "3"), TaxSetting: models.TaxSettingTaxable,
			Category: "adjustment", ApplicationType: models.ApplyPreTax},
	}
	// m1 wins the mutual exclusion against m2; m3's requirement on m2 then
	// cascades out.
	deps := []models.Dependency{
		{ModifierID: "m2", DependsOn: "m1", Type: models.DependencyExcludes},
		{ModifierID: "m3", DependsOn: "m2", Type: models.DependencyRequires},
	}
	in := frozen(t, []models.LineItem{taxableLine(t, "a", "10.00", 1)}, modifiers, deps,
		models.TaxConfig{Mode: models.TaxModeRetail})
	result, err := Compute(in, Options{})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	// m1 wins the exclusion, m2 is excluded, m3 cascades out.
	reasons := make(map[string]string, len(result.Rejected))
	for _, r := range result.Rejected {
		reasons[r.ModifierID] = r.Reason
	}
	if reasons["m2"] != "excluded_by:m1" {
		t.Errorf("m2 reason = %q, want excluded_by:m1", reasons["m2"])
	}
	if reasons["m3"] != "missing_requirement" {
		t.Errorf("m3 reason = %q, want missing_requirement", reasons["m3"])
	}
}

func TestInvalidMargin(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"Negative margin", "-10"},
		{"Margin of one", "100"},
		{"Margin above one", "150"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := frozen(t,
				[]models.LineItem{{ID: "a", UnitPrice: dec(t, "100.00"), Quantity: decimal.NewFromInt(1),
					Cost: decPtr(t, "60.00"), TaxSetting: models.TaxSettingTaxable}},
				[]models.Modifier{{ID: "m", Kind: models.KindMargin, Value: dec(t, tt.value),
					TaxSetting: models.TaxSettingTaxable, Category: "adjustment", ApplicationType: models.ApplyPreTax}},
				nil,
				models.TaxConfig{Mode: models.TaxModeRetail},
			)
			_, err := Compute(in, Options{})
			if !models.IsKind(err, models.ErrInvalidMargin) {
				t.Errorf("kind = %s, want INVALID_MARGIN", models.KindOf(err))
			}
		})
	}
}

func TestMissingCostStrategies(t *testing.T) {
	line := func() []models.LineItem {
		return []models.LineItem{{ID: "a", UnitPrice: dec(t, "100.00"), Quantity: decimal.NewFromInt(1),
			TaxSetting: models.TaxSettingTaxable}}
	}
	margin := func(strategy models.MissingCostStrategy, costPct string) []models.Modifier {
		return []models.Modifier{{ID: "m", Kind: models.KindMargin, Value: dec(t, "50"),
			TaxSetting: models.TaxSettingTaxable, Category: "adjustment", ApplicationType: models.ApplyPreTax,
			MissingCostStrategy: strategy, CostPercentage: dec(t, costPct)}}
	}

	t.Run("Skip leaves line untouched", func(t *testing.T) {
		in := frozen(t, line(), margin(models.MissingCostSkip, "0"), nil,
			models.TaxConfig{Mode: models.TaxModeRetail})
		result, err := Compute(in, Options{})
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}
		wantQ2(t, "customerGrandTotal", result.CustomerGrandTotal, "100.00")
	})

	t.Run("UseDefault derives cost", func(t *testing.T) {
		// cost = 60% of 100 = 60; newPrice = 120; adjustment = 20.
		in := frozen(t, line(), margin(models.MissingCostUseDefault, "60"), nil,
			models.TaxConfig{Mode: models.TaxModeRetail})
		result, err := Compute(in, Options{})
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}
		wantQ2(t, "customerGrandTotal", result.CustomerGrandTotal, "120.00")
	})

	t.Run("Fail rejects", func(t *testing.T) {
		in := frozen(t, line(), margin(models.MissingCostFail, "0"), nil,
			models.TaxConfig{Mode: models.TaxModeRetail})
		_, err := Compute(in, Options{})
		if !models.IsKind(err, models.ErrInvalidInput) {
			t.Errorf("kind = %s, want INVALID_INPUT", models.KindOf(err))
		}
	})
}

func TestHardModifierCeiling(t *testing.T) {
	modifiers := make([]models.Modifier, HardMaxModifiers+1)
	for i := range modifiers {
		modifiers[i] = models.Modifier{
			ID: fmt.Sprintf("m%d", i), Kind: models.KindFixed, Value: decimal.NewFromInt(1),
			TaxSetting: models.TaxSettingTaxable, Category: "fee", ApplicationType: models.ApplyPreTax,
		}
	}
	in := frozen(t, []models.LineItem{taxableLine(t, "a", "10.00", 1)}, modifiers, nil,
		models.TaxConfig{Mode: models.TaxModeRetail})
	_, err := Compute(in, Options{})
	if !models.IsKind(err, models.ErrResourceLimit) {
		t.Errorf("kind = %s, want RESOURCE_LIMIT", models.KindOf(err))
	}
}

func TestDeadlineAborts(t *testing.T) {
	in := frozen(t, []models.LineItem{taxableLine(t, "a", "10.00", 1)}, nil, nil,
		models.TaxConfig{Mode: models.TaxModeRetail})
	_, err := Compute(in, Options{Deadline: time.Now().Add(-time.Second)})
	if !models.IsKind(err, models.ErrTimeout) {
		t.Errorf("kind = %s, want RESOURCE_LIMIT:timeout", models.KindOf(err))
	}
}

// =============================================================================
// GROUPING
// =============================================================================

func TestGroupingCollapsesEqualAttributes(t *testing.T) {
	// Two 5% discounts with identical attributes behave as one 10% group.
	modifiers := []models.Modifier{
		{ID: "d1", Kind: models.KindPercentage, Value: dec(t, "-5"), TaxSetting: models.TaxSettingTaxable,
			Category: "discount", ApplicationType: models.ApplyPreTax, ChainPriority: 1},
		{ID: "d2", Kind: models.KindPercentage, Value: dec(t, "-5"), TaxSetting: models.TaxSettingTaxable,
			Category: "discount", ApplicationType: models.ApplyPreTax, ChainPriority: 2},
	}
	in := frozen(t, []models.LineItem{taxableLine(t, "a", "100.00", 1)}, modifiers, nil,
		models.TaxConfig{Mode: models.TaxModeRetail})
	result, err := Compute(in, Options{})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(result.Adjustments) != 1 {
		t.Fatalf("adjustments = %d, want 1 collapsed group", len(result.Adjustments))
	}
	wantQ2(t, "combined adjustment", result.Adjustments[0].AmountQ2, "-10.00")
	if len(result.Adjustments[0].ModifierIDs) != 2 {
		t.Errorf("group members = %d, want 2", len(result.Adjustments[0].ModifierIDs))
	}
}

func TestGroupOrdering(t *testing.T) {
	// discount before fee within the pre-tax cohort, post-tax last.
	modifiers := []models.Modifier{
		{ID: "post", Kind: models.KindFixed, Value: dec(t, "5"), TaxSetting: models.TaxSettingTaxable,
			Category: "fee", ApplicationType: models.ApplyPostTax, ChainPriority: 1},
		{ID: "fee", Kind: models.KindFixed, Value: dec(t, "10"), TaxSetting: models.TaxSettingTaxable,
			Category: "fee", ApplicationType: models.ApplyPreTax, ChainPriority: 1},
		{ID: "disc", Kind: models.KindPercentage, Value: dec(t, "-10"), TaxSetting: models.TaxSettingTaxable,
			Category: "discount", ApplicationType: models.ApplyPreTax, ChainPriority: 99},
	}
	in := frozen(t, []models.LineItem{taxableLine(t, "a", "100.00", 1)}, modifiers, nil,
		models.TaxConfig{Mode: models.TaxModeRetail})
	result, err := Compute(in, Options{})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(result.Adjustments) != 3 {
		t.Fatalf("adjustments = %d, want 3", len(result.Adjustments))
	}
	order := []string{
		result.Adjustments[0].ModifierIDs[0],
		result.Adjustments[1].ModifierIDs[0],
		result.Adjustments[2].ModifierIDs[0],
	}
	want := []string{"disc", "fee", "post"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("application order = %v, want %v", order, want)
		}
	}
}
