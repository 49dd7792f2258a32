package compute

import (
	"fmt"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

// Validation floor and hard resource ceilings, per computation.
const (
	MaxLineItems     = 5000
	MaxModifiers     = 1000
	HardMaxModifiers = 2000
	MaxGroups        = 100
	HardMaxGroups    = 250
	MaxChainDepth    = 10
	// WallBudgetMs is the estimated wall-clock ceiling; the estimate is a
	// pure function of input sizes so the check stays deterministic.
	WallBudgetMs = 5000
)

// validate enforces the validation floor before any arithmetic runs.
// Soft-limit and shape violations are INVALID_INPUT; hard ceilings abort
// with RESOURCE_LIMIT.
func validate(in *models.FrozenInput) error {
	if len(in.Modifiers) > HardMaxModifiers {
		return models.NewErrorf(models.ErrResourceLimit, "modifier count %d exceeds hard ceiling %d", len(in.Modifiers), HardMaxModifiers)
	}

	var violations []string
	if in.SchemaVersion == "" {
		violations = append(violations, "missing schemaVersion")
	}
	if in.Config.Mode == "" {
		violations = append(violations, "missing tax mode")
	}
	if len(in.LineItems) > MaxLineItems {
		violations = append(violations, fmt.Sprintf("line item count %d exceeds %d", len(in.LineItems), MaxLineItems))
	}
	if len(in.Modifiers) > MaxModifiers {
		violations = append(violations, fmt.Sprintf("modifier count %d exceeds %d", len(in.Modifiers), MaxModifiers))
	}

	switch in.Config.Mode {
	case models.TaxModeRetail, models.TaxModeUseTax, models.TaxModeMixed:
	default:
		if in.Config.Mode != "" {
			violations = append(violations, fmt.Sprintf("unknown tax mode %q", in.Config.Mode))
		}
	}

	seenLines := make(map[string]bool, len(in.LineItems))
	for _, li := range in.LineItems {
		if li.ID == "" {
			violations = append(violations, "line item with empty id")
			continue
		}
		if seenLines[li.ID] {
			violations = append(violations, fmt.Sprintf("duplicate line item id %q", li.ID))
		}
		seenLines[li.ID] = true
		if li.Quantity.IsNegative() {
			violations = append(violations, fmt.Sprintf("line item %q has negative quantity", li.ID))
		}
		switch li.TaxSetting {
		case models.TaxSettingTaxable, models.TaxSettingNonTaxable:
		default:
			violations = append(violations, fmt.Sprintf("line item %q has invalid taxSetting %q", li.ID, li.TaxSetting))
		}
	}

	seenMods := make(map[string]bool, len(in.Modifiers))
	for _, m := range in.Modifiers {
		if m.ID == "" {
			violations = append(violations, "modifier with empty id")
			continue
		}
		if seenMods[m.ID] {
			violations = append(violations, fmt.Sprintf("duplicate modifier id %q", m.ID))
		}
		seenMods[m.ID] = true
		switch m.Kind {
		case models.KindPercentage, models.KindFixed, models.KindMargin:
		default:
			violations = append(violations, fmt.Sprintf("modifier %q has unknown kind %q", m.ID, m.Kind))
		}
		switch m.ApplicationType {
		case models.ApplyPreTax, models.ApplyPostTax:
		default:
			violations = append(violations, fmt.Sprintf("modifier %q has unknown applicationType %q", m.ID, m.ApplicationType))
		}
	}

	for _, d := range in.Dependencies {
		if !seenMods[d.ModifierID] {
			violations = append(violations, fmt.Sprintf("dependency references unknown modifier %q", d.ModifierID))
		}
		if !seenMods[d.DependsOn] {
			violations = append(violations, fmt.Sprintf("dependency target %q is not a known modifier", d.DependsOn))
		}
		if d.Type != models.DependencyRequires && d.Type != models.DependencyExcludes {
			violations = append(violations, fmt.Sprintf("dependency %s->%s has unknown type %q", d.ModifierID, d.DependsOn, d.Type))
		}
	}

	if len(violations) > 0 {
		return models.NewError(models.ErrInvalidInput, "input validation failed").WithViolations(violations)
	}

	if estimateWallMs(len(in.LineItems), len(in.Modifiers)) > WallBudgetMs {
		return models.NewError(models.ErrResourceLimit, "estimated computation exceeds the wall budget")
	}
	return nil
}

// estimateWallMs is a deterministic cost model: roughly one microsecond
// per line-modifier pair plus a per-entity floor.
func estimateWallMs(lineItems, modifiers int) int {
	pairs := lineItems * modifiers
	return pairs/1000 + lineItems/100 + modifiers/100
}

// checkGroupCount enforces the group limits once grouping is done.
func checkGroupCount(n int) error {
	if n > HardMaxGroups {
		return models.NewErrorf(models.ErrResourceLimit, "group count %d exceeds hard ceiling %d", n, HardMaxGroups)
	}
	if n > MaxGroups {
		return models.NewError(models.ErrInvalidInput, "group count exceeds limit").
			WithViolations([]string{fmt.Sprintf("group count %d exceeds %d", n, MaxGroups)})
	}
	return nil
}
