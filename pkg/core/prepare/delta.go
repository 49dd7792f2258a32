package prepare

import (
	"time"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

// Delta policy thresholds. A full rebuild is forced when any is exceeded.
const (
	MaxChangedRatio    = 0.30
	MaxDeltaComplexity = 5
	MaxCascadeDepth    = 3
	MaxRecentFailures  = 3
	FailureWindow      = 5 * time.Minute
)

// deltaDecision explains why a delta patch was or was not taken.
type deltaDecision struct {
	Patch  bool
	Reason string
}

// decideDelta applies the full-rebuild triggers against a cached entry and
// an incoming change set.
func (s *Stage) decideDelta(ent *entry, req *models.CalculateRequest) deltaDecision {
	changes := req.Changes
	if changes == nil {
		return deltaDecision{Patch: false, Reason: "no_changes"}
	}
	if changes.Type != models.DeltaModifierOnly && changes.Type != models.DeltaLineItem {
		return deltaDecision{Patch: false, Reason: "structural_change"}
	}
	if changes.DependenciesChanged || changes.RulesChanged {
		return deltaDecision{Patch: false, Reason: "dependency_or_rule_change"}
	}
	if ent.schemaVersion != req.Config.SchemaVersion {
		return deltaDecision{Patch: false, Reason: "schema_version_mismatch"}
	}
	if s.cfg.CacheTTL > 0 && ent.Age() > s.cfg.CacheTTL {
		return deltaDecision{Patch: false, Reason: "cache_expired"}
	}

	changed := len(changes.LineItems) + len(changes.Modifiers) +
		len(changes.RemovedLineItems) + len(changes.RemovedModifiers)
	if ent.itemCount > 0 && float64(changed) > MaxChangedRatio*float64(ent.itemCount) {
		return deltaDecision{Patch: false, Reason: "change_ratio_exceeded"}
	}
	if deltaComplexity(changes) > MaxDeltaComplexity {
		return deltaDecision{Patch: false, Reason: "complexity_exceeded"}
	}
	if cascadeDepth(ent.frozen.Dependencies, changes) > MaxCascadeDepth {
		return deltaDecision{Patch: false, Reason: "cascade_depth_exceeded"}
	}
	if s.recentFailures(req.ProposalID) > MaxRecentFailures {
		return deltaDecision{Patch: false, Reason: "recent_delta_failures"}
	}
	return deltaDecision{Patch: true, Reason: "delta"}
}

// deltaComplexity is a synthetic score: removals weigh double because they
// can orphan dependents, and margin modifiers weigh double because they
// reprice whole lines.
func deltaComplexity(changes *models.Delta) int {
	score := 2 * (len(changes.RemovedLineItems) + len(changes.RemovedModifiers))
	for _, m := range changes.Modifiers {
		if m.Kind == models.KindMargin {
			score += 2
		} else {
			score++
		}
	}
	score += len(changes.LineItems)
	if len(changes.LineItems) > 0 && len(changes.Modifiers) > 0 {
		score++
	}
	return score
}

// cascadeDepth walks REQUIRES edges outward from the changed modifiers and
// reports the deepest dependent chain the change can reach.
func cascadeDepth(deps []models.Dependency, changes *models.Delta) int {
	changedIDs := make(map[string]bool)
	for _, m := range changes.Modifiers {
		changedIDs[m.ID] = true
	}
	for _, id := range changes.RemovedModifiers {
		changedIDs[id] = true
	}
	if len(changedIDs) == 0 {
		return 0
	}

	dependents := make(map[string][]string)
	for _, d := range deps {
		if d.Type == models.DependencyRequires {
			dependents[d.DependsOn] = append(dependents[d.DependsOn], d.ModifierID)
		}
	}

	max := 0
	for id := range changedIDs {
		if d := walkDepth(dependents, id, make(map[string]bool)); d > max {
			max = d
		}
	}
	return max
}

func walkDepth(dependents map[string][]string, id string, seen map[string]bool) int {
	if seen[id] {
		return 0
	}
	seen[id] = true
	max := 0
	for _, next := range dependents[id] {
		if d := 1 + walkDepth(dependents, next, seen); d > max {
			max = d
		}
	}
	return max
}

// applyDelta produces a fresh frozen input by patching a clone of the
// cached one. The cached value itself is never touched.
func (s *Stage) applyDelta(ent *entry, req *models.CalculateRequest) (*models.FrozenInput, error) {
	patched := ent.frozen.Clone()

	if len(req.Changes.RemovedLineItems) > 0 {
		removed := make(map[string]bool, len(req.Changes.RemovedLineItems))
		for _, id := range req.Changes.RemovedLineItems {
			removed[id] = true
		}
		kept := patched.LineItems[:0]
		for _, li := range patched.LineItems {
			if !removed[li.ID] {
				kept = append(kept, li)
			}
		}
		patched.LineItems = kept
	}
	if len(req.Changes.RemovedModifiers) > 0 {
		removed := make(map[string]bool, len(req.Changes.RemovedModifiers))
		for _, id := range req.Changes.RemovedModifiers {
			removed[id] = true
		}
		kept := patched.Modifiers[:0]
		for _, m := range patched.Modifiers {
			if !removed[m.ID] {
				kept = append(kept, m)
			}
		}
		patched.Modifiers = kept
	}

	upsertLineItems(patched, req.Changes.LineItems)
	upsertModifiers(patched, req.Changes.Modifiers)

	// Re-normalise so patched arrays regain canonical order and defaults.
	snap := &models.Snapshot{
		ProposalID:   patched.ProposalID,
		TenantID:     patched.TenantID,
		Metadata:     patched.Metadata,
		LineItems:    patched.LineItems,
		Modifiers:    patched.Modifiers,
		Dependencies: patched.Dependencies,
		Config:       patched.Config,
	}
	norm, err := normalize(snap)
	if err != nil {
		return nil, err
	}
	patched.LineItems = norm.LineItems
	patched.Modifiers = norm.Modifiers
	patched.Dependencies = norm.Dependencies

	fp, err := inputFingerprint(patched)
	if err != nil {
		return nil, err
	}
	patched.Fingerprint = fp
	return patched, nil
}

func upsertLineItems(frozen *models.FrozenInput, changes []models.LineItem) {
	index := make(map[string]int, len(frozen.LineItems))
	for i, li := range frozen.LineItems {
		index[li.ID] = i
	}
	for _, li := range changes {
		if i, ok := index[li.ID]; ok {
			frozen.LineItems[i] = li
		} else {
			frozen.LineItems = append(frozen.LineItems, li)
		}
	}
}

func upsertModifiers(frozen *models.FrozenInput, changes []models.Modifier) {
	index := make(map[string]int, len(frozen.Modifiers))
	for i, m := range frozen.Modifiers {
		index[m.ID] = i
	}
	for _, m := range changes {
		if i, ok := index[m.ID]; ok {
			frozen.Modifiers[i] = m
		} else {
			frozen.Modifiers = append(frozen.Modifiers, m)
		}
	}
}
