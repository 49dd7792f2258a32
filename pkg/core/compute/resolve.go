package compute

import (
	"fmt"
	"sort"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

// resolveTaxSettings replaces "inherit" on each modifier with the tax
// setting of the referenced line item, defaulting to taxable when no line
// is named or the reference is unknown.
func resolveTaxSettings(modifiers []models.Modifier, lineItems []models.LineItem) []models.Modifier {
	byID := make(map[string]models.TaxSetting, len(lineItems))
	for _, li := range lineItems {
		byID[li.ID] = li.TaxSetting
	}

	out := append([]models.Modifier(nil), modifiers...)
	for i := range out {
		if out[i].TaxSetting != models.TaxSettingInherit {
			continue
		}
		resolved := models.TaxSettingTaxable
		if out[i].LineItemID != "" {
			if ts, ok := byID[out[i].LineItemID]; ok {
				resolved = ts
			}
		}
		out[i].TaxSetting = resolved
	}
	return out
}

// resolveDependencies builds the modifier DAG, detects cycles, sorts
// topologically (ties broken by chainPriority then id), drops modifiers
// whose REQUIRES target is absent or itself dropped, and applies EXCLUDES
// with first-accepted-wins semantics. It returns the surviving modifiers in
// topological order and the rejection records.
func resolveDependencies(modifiers []models.Modifier, deps []models.Dependency) ([]models.Modifier, []models.RejectedModifier, error) {
	index := make(map[string]int, len(modifiers))
	for i, m := range modifiers {
		index[m.ID] = i
	}

	// Adjacency over REQUIRES edges: a modifier sorts after its target.
	requires := make(map[string][]string)
	excludes := make(map[string][]string) // winner candidate -> excluded
	indegree := make(map[string]int, len(modifiers))
	for _, m := range modifiers {
		indegree[m.ID] = 0
	}
	for _, d := range deps {
		switch d.Type {
		case models.DependencyRequires:
			requires[d.ModifierID] = append(requires[d.ModifierID], d.DependsOn)
			indegree[d.ModifierID]++
		case models.DependencyExcludes:
			// Exclusion is mutual; whichever side is accepted first wins.
			excludes[d.DependsOn] = append(excludes[d.DependsOn], d.ModifierID)
			excludes[d.ModifierID] = append(excludes[d.ModifierID], d.DependsOn)
		}
	}

	// Kahn's algorithm with a deterministic frontier. Dependents are sorted
	// after their requirements; the frontier pops by (chainPriority, id).
	dependents := make(map[string][]string)
	for id, targets := range requires {
		for _, t := range targets {
			dependents[t] = append(dependents[t], id)
		}
	}

	frontier := make([]string, 0, len(modifiers))
	for _, m := range modifiers {
		if indegree[m.ID] == 0 {
			frontier = append(frontier, m.ID)
		}
	}
	less := func(a, b string) bool {
		ma, mb := modifiers[index[a]], modifiers[index[b]]
		if ma.ChainPriority != mb.ChainPriority {
			return ma.ChainPriority < mb.ChainPriority
		}
		return ma.ID < mb.ID
	}
	sort.Slice(frontier, func(i, j int) bool { return less(frontier[i], frontier[j]) })

	var order []string
	depth := make(map[string]int, len(modifiers))
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)
		for _, dep := range dependents[id] {
			indegree[dep]--
			if d := depth[id] + 1; d > depth[dep] {
				depth[dep] = d
			}
			if indegree[dep] == 0 {
				frontier = append(frontier, dep)
				sort.Slice(frontier, func(i, j int) bool { return less(frontier[i], frontier[j]) })
			}
		}
	}

	if len(order) != len(modifiers) {
		var cyclic []string
		for id, deg := range indegree {
			if deg > 0 {
				cyclic = append(cyclic, id)
			}
		}
		sort.Strings(cyclic)
		return nil, nil, models.NewError(models.ErrInvalidInput, "circular modifier dependencies").
			WithViolations([]string{fmt.Sprintf("cycle involving %v", cyclic)})
	}
	for id, d := range depth {
		if d > MaxChainDepth {
			return nil, nil, models.NewError(models.ErrInvalidInput, "dependency chain too deep").
				WithViolations([]string{fmt.Sprintf("modifier %q at depth %d, limit %d", id, d, MaxChainDepth)})
		}
	}

	// Walk in topological order: drop missing requirements, then apply
	// exclusions. The first accepted modifier wins its exclusion edges.
	accepted := make(map[string]bool, len(order))
	excludedBy := make(map[string]string)
	var rejected []models.RejectedModifier
	var survivors []models.Modifier

	for _, id := range order {
		m := modifiers[index[id]]

		if winner, ok := excludedBy[id]; ok {
			rejected = append(rejected, models.RejectedModifier{ModifierID: id, Reason: "excluded_by:" + winner})
			continue
		}

		dropped := false
		for _, target := range requires[id] {
			if !accepted[target] {
				rejected = append(rejected, models.RejectedModifier{ModifierID: id, Reason: "missing_requirement"})
				dropped = true
				break
			}
		}
		if dropped {
			continue
		}

		accepted[id] = true
		survivors = append(survivors, m)
		for _, loser := range excludes[id] {
			if !accepted[loser] {
				if _, already := excludedBy[loser]; !already {
					excludedBy[loser] = id
				}
			}
		}
	}

	return survivors, rejected, nil
}
