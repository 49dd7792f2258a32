package prepare

import (
	"fmt"
	"sort"
	"strings"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

// DefaultChainPriority fills a modifier without an explicit priority. The
// wire format has no zero priority: zero means unset.
const DefaultChainPriority = 999

// normalize produces the canonical input arrays the pure stage consumes:
// line items sorted by id, modifiers sorted by (chainPriority, id) with
// defaults filled, dependencies sorted by (dependsOn, modifierId), tax
// settings upper-cased, and referential integrity verified. All sorting is
// byte-wise and therefore locale-insensitive, which neutralises database
// collation variance.
func normalize(snap *models.Snapshot) (*models.Snapshot, error) {
	var violations []string

	lineItems := append([]models.LineItem(nil), snap.LineItems...)
	seenLines := make(map[string]bool, len(lineItems))
	for i := range lineItems {
		li := &lineItems[i]
		if li.ID == "" {
			violations = append(violations, "line item with empty id")
			continue
		}
		if seenLines[li.ID] {
			violations = append(violations, fmt.Sprintf("duplicate line item id %q", li.ID))
		}
		seenLines[li.ID] = true
		li.TaxSetting = canonicalTaxSetting(li.TaxSetting, models.TaxSettingTaxable)
	}
	sort.Slice(lineItems, func(i, j int) bool { return lineItems[i].ID < lineItems[j].ID })

	modifiers := append([]models.Modifier(nil), snap.Modifiers...)
	seenMods := make(map[string]bool, len(modifiers))
	for i := range modifiers {
		m := &modifiers[i]
		if m.ID == "" {
			violations = append(violations, "modifier with empty id")
			continue
		}
		if seenMods[m.ID] {
			violations = append(violations, fmt.Sprintf("duplicate modifier id %q", m.ID))
		}
		seenMods[m.ID] = true
		if m.ChainPriority == 0 {
			m.ChainPriority = DefaultChainPriority
		}
		if m.ApplicationType == "" {
			m.ApplicationType = models.ApplyPreTax
		}
		m.TaxSetting = canonicalTaxSetting(m.TaxSetting, models.TaxSettingInherit)
		m.Kind = models.ModifierKind(strings.ToLower(string(m.Kind)))
		m.Category = strings.ToLower(m.Category)
	}
	sort.Slice(modifiers, func(i, j int) bool {
		if modifiers[i].ChainPriority != modifiers[j].ChainPriority {
			return modifiers[i].ChainPriority < modifiers[j].ChainPriority
		}
		return modifiers[i].ID < modifiers[j].ID
	})

	dependencies := append([]models.Dependency(nil), snap.Dependencies...)
	for _, d := range dependencies {
		if !seenMods[d.ModifierID] {
			violations = append(violations, fmt.Sprintf("dependency references unknown modifier %q", d.ModifierID))
		}
		if !seenMods[d.DependsOn] {
			violations = append(violations, fmt.Sprintf("dependency target %q is not a known modifier", d.DependsOn))
		}
	}
	sort.Slice(dependencies, func(i, j int) bool {
		if dependencies[i].DependsOn != dependencies[j].DependsOn {
			return dependencies[i].DependsOn < dependencies[j].DependsOn
		}
		return dependencies[i].ModifierID < dependencies[j].ModifierID
	})

	for _, r := range snap.Rules {
		if !seenMods[r.ModifierID] {
			violations = append(violations, fmt.Sprintf("rule references unknown modifier %q", r.ModifierID))
		}
	}

	if len(violations) > 0 {
		return nil, models.NewError(models.ErrInvalidInput, "input integrity validation failed").WithViolations(violations)
	}

	out := *snap
	out.LineItems = lineItems
	out.Modifiers = modifiers
	out.Dependencies = dependencies
	return &out, nil
}

// canonicalTaxSetting upper-cases a tax setting and applies the fallback
// for empty values. Modifiers arrive lower-cased on the wire; line items
// upper-cased; both collapse to the canonical constants.
func canonicalTaxSetting(ts models.TaxSetting, fallback models.TaxSetting) models.TaxSetting {
	switch strings.ToUpper(string(ts)) {
	case "TAXABLE":
		return models.TaxSettingTaxable
	case "NON_TAXABLE":
		return models.TaxSettingNonTaxable
	case "INHERIT":
		return models.TaxSettingInherit
	case "":
		return fallback
	default:
		// Unknown values survive normalisation and fail validation in the
		// pure stage with a specific violation.
		return ts
	}
}
