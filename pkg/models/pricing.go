// Package models defines the domain types shared by every stage of the
// pricing pipeline: line items, modifiers, dependencies, rules, tax
// configuration, and the frozen input handed from preparation to compute.
package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LINE ITEMS
// =============================================================================

// TaxSetting classifies an amount for retail tax purposes.
type TaxSetting string

const (
	TaxSettingTaxable    TaxSetting = "TAXABLE"
	TaxSettingNonTaxable TaxSetting = "NON_TAXABLE"
	// TaxSettingInherit is only valid on modifiers; it resolves from the
	// referenced line item, defaulting to taxable.
	TaxSettingInherit TaxSetting = "INHERIT"
)

// LineItem is one priced row of a proposal. Monetary fields are decimal
// strings on the wire; shopspring unmarshals both quoted and bare numbers.
// Cost is a pointer because absence is meaningful: margin modifiers
// consult their MissingCostStrategy when it is nil.
type LineItem struct {
	ID                 string           `json:"id"`
	UnitPrice          decimal.Decimal  `json:"unitPrice"`
	Quantity           decimal.Decimal  `json:"quantity"`
	Cost               *decimal.Decimal `json:"cost,omitempty"`
	TaxSetting         TaxSetting       `json:"taxSetting"`
	UseTaxEligible     bool             `json:"useTaxEligible"`
	VendorTaxCollected bool             `json:"vendorTaxCollected"`
}

// =============================================================================
// MODIFIERS
// =============================================================================

// ModifierKind is the arithmetic family of a modifier.
type ModifierKind string

const (
	KindPercentage ModifierKind = "percentage"
	KindFixed      ModifierKind = "fixed"
	KindMargin     ModifierKind = "margin"
)

// ApplicationType decides whether a modifier applies before or after tax.
type ApplicationType string

const (
	ApplyPreTax  ApplicationType = "pre_tax"
	ApplyPostTax ApplicationType = "post_tax"
)

// MissingCostStrategy controls margin modifiers over line items without cost.
type MissingCostStrategy string

const (
	MissingCostSkip       MissingCostStrategy = "SKIP"
	MissingCostUseDefault MissingCostStrategy = "USE_DEFAULT"
	MissingCostFail       MissingCostStrategy = "FAIL"
)

// Modifier is a discount, fee, or margin adjustment attached to a proposal.
type Modifier struct {
	ID                  string              `json:"id"`
	Kind                ModifierKind        `json:"kind"`
	Value               decimal.Decimal     `json:"value"`
	TaxSetting          TaxSetting          `json:"taxSetting"`
	Category            string              `json:"category"`
	AffectsQuantity     bool                `json:"affectsQuantity"`
	CostPercentage      decimal.Decimal     `json:"costPercentage"`
	DisplayMode         string              `json:"displayMode"`
	ApplicationType     ApplicationType     `json:"applicationType"`
	ProductID           string              `json:"productId,omitempty"`
	ChainPriority       int                 `json:"chainPriority"`
	LineItemID          string              `json:"lineItemId,omitempty"`
	MissingCostStrategy MissingCostStrategy `json:"missingCostStrategy,omitempty"`
	CreatedAt           time.Time           `json:"createdAt,omitempty"`
}

// =============================================================================
// DEPENDENCIES
// =============================================================================

// DependencyType is the edge semantics in the modifier DAG.
type DependencyType string

const (
	DependencyRequires DependencyType = "REQUIRES"
	DependencyExcludes DependencyType = "EXCLUDES"
)

// Dependency is a directed edge: ModifierID depends on DependsOn.
type Dependency struct {
	ModifierID string         `json:"modifierId"`
	DependsOn  string         `json:"dependsOn"`
	Type       DependencyType `json:"type"`
}

// =============================================================================
// RULES
// =============================================================================

// Rule attaches a boolean expression tree to a modifier. The expression
// stays an uninterpreted JSON object here so requests can carry it inline;
// the preparation stage compiles it into a bounded AST.
type Rule struct {
	ModifierID string          `json:"modifierId"`
	Expression json.RawMessage `json:"expression"`
}

// =============================================================================
// TAX CONFIGURATION
// =============================================================================

// TaxMode selects which tax computations run.
type TaxMode string

const (
	TaxModeRetail TaxMode = "RETAIL"
	TaxModeUseTax TaxMode = "USE_TAX"
	TaxModeMixed  TaxMode = "MIXED"
)

// Jurisdiction is one taxing authority in a multi-jurisdiction retail setup.
type Jurisdiction struct {
	Code  string          `json:"code"`
	Order int             `json:"order"`
	Rate  decimal.Decimal `json:"rate"`
}

// TaxConfig carries the tax mode and rates for one computation.
type TaxConfig struct {
	Mode          TaxMode         `json:"mode"`
	RetailRate    decimal.Decimal `json:"retailRate"`
	UseTaxRate    decimal.Decimal `json:"useTaxRate"`
	Jurisdictions []Jurisdiction  `json:"jurisdictions,omitempty"`
	SchemaVersion string          `json:"schemaVersion"`
}

// =============================================================================
// DELTAS
// =============================================================================

// DeltaType classifies an incremental change set.
type DeltaType string

const (
	DeltaModifierOnly DeltaType = "MODIFIER_ONLY"
	DeltaLineItem     DeltaType = "LINE_ITEM"
	DeltaStructural   DeltaType = "STRUCTURAL"
)

// Delta describes what changed since the cached preparation of a proposal.
// Changed entities replace their cached counterparts by ID; removed IDs are
// dropped.
type Delta struct {
	Type             DeltaType  `json:"type"`
	LineItems        []LineItem `json:"lineItems,omitempty"`
	Modifiers        []Modifier `json:"modifiers,omitempty"`
	RemovedLineItems []string   `json:"removedLineItems,omitempty"`
	RemovedModifiers []string   `json:"removedModifiers,omitempty"`
	// DependenciesChanged or RulesChanged force a full rebuild.
	DependenciesChanged bool `json:"dependenciesChanged,omitempty"`
	RulesChanged        bool `json:"rulesChanged,omitempty"`
}

// =============================================================================
// REQUEST
// =============================================================================

// CalculateRequest is the single compute RPC payload.
type CalculateRequest struct {
	ProposalID   string       `json:"proposalId"`
	TenantID     string       `json:"tenantId,omitempty"`
	LineItems    []LineItem   `json:"lineItems"`
	Modifiers    []Modifier   `json:"modifiers"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
	Rules        []Rule       `json:"rules,omitempty"`
	Config       TaxConfig    `json:"config"`
	Changes      *Delta       `json:"changes,omitempty"`
	// Proposal metadata exposed to rule evaluation under "proposal.*".
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
