package models

import (
	"time"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/rules"
)

// Snapshot is the raw, consistent read of one proposal's pricing inputs.
// All arrays arrive in the canonical fetch order; the normalizer re-sorts
// them in process memory to neutralise database collation variance.
type Snapshot struct {
	ProposalID   string
	TenantID     string
	Metadata     map[string]interface{}
	LineItems    []LineItem
	Modifiers    []Modifier
	Dependencies []Dependency
	Rules        []Rule
	Config       TaxConfig
	FetchedAt    time.Time
}

// FrozenInput is the single owned, immutable value produced by preparation
// and consumed by the pure compute stage. No stage mutates it after
// construction; deltas produce a new value via Clone.
type FrozenInput struct {
	ProposalID    string
	TenantID      string
	SchemaVersion string
	Metadata      map[string]interface{}
	LineItems     []LineItem
	Modifiers     []Modifier
	Dependencies  []Dependency
	Config        TaxConfig
	// CompiledRules maps modifier ID to its compiled rule programs.
	CompiledRules map[string][]*rules.Program
	// Fingerprint is the canonical fingerprint of the request with the
	// changes delta removed; it keys the preparation cache.
	Fingerprint string
	PreparedAt  time.Time
}

// Clone deep-copies the frozen input so delta patching never aliases the
// cached value. Compiled rule programs are themselves immutable and are
// shared, not copied.
func (f *FrozenInput) Clone() *FrozenInput {
	c := &FrozenInput{
		ProposalID:    f.ProposalID,
		TenantID:      f.TenantID,
		SchemaVersion: f.SchemaVersion,
		Config:        f.Config,
		Fingerprint:   f.Fingerprint,
		PreparedAt:    f.PreparedAt,
	}
	c.Config.Jurisdictions = append([]Jurisdiction(nil), f.Config.Jurisdictions...)
	c.LineItems = append([]LineItem(nil), f.LineItems...)
	for i := range c.LineItems {
		if c.LineItems[i].Cost != nil {
			cost := *c.LineItems[i].Cost
			c.LineItems[i].Cost = &cost
		}
	}
	c.Modifiers = append([]Modifier(nil), f.Modifiers...)
	c.Dependencies = append([]Dependency(nil), f.Dependencies...)
	if f.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(f.Metadata))
		for k, v := range f.Metadata {
			c.Metadata[k] = v
		}
	}
	if f.CompiledRules != nil {
		c.CompiledRules = make(map[string][]*rules.Program, len(f.CompiledRules))
		for k, v := range f.CompiledRules {
			c.CompiledRules[k] = append([]*rules.Program(nil), v...)
		}
	}
	return c
}
