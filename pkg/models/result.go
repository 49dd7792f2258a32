package models

import "github.com/shopspring/decimal"

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// LineAllocation is one line item's share of a group adjustment, at Q7.
type LineAllocation struct {
	LineItemID string          `json:"lineItemId"`
	AmountQ7   decimal.Decimal `json:"amountQ7"`
}

// Adjustment records the effect of one applied modifier group.
type Adjustment struct {
	GroupKey        string           `json:"groupKey"`
	Kind            ModifierKind     `json:"kind"`
	Category        string           `json:"category"`
	TaxSetting      TaxSetting       `json:"taxSetting"`
	ApplicationType ApplicationType  `json:"applicationType"`
	ModifierIDs     []string         `json:"modifierIds"`
	CombinedValue   decimal.Decimal  `json:"combinedValue"`
	AmountQ7        decimal.Decimal  `json:"amountQ7"`
	AmountQ2        decimal.Decimal  `json:"amount"`
	Allocations     []LineAllocation `json:"allocations,omitempty"`
}

// RejectedModifier records a modifier dropped before application and why.
// Reasons: "missing_requirement", "excluded_by:<id>", "rule_failed",
// "rule_error:<detail>".
type RejectedModifier struct {
	ModifierID string `json:"modifierId"`
	Reason     string `json:"reason"`
}

// JurisdictionTax is one jurisdiction's share of the retail tax.
type JurisdictionTax struct {
	Code     string          `json:"code"`
	Rate     decimal.Decimal `json:"rate"`
	AmountQ7 decimal.Decimal `json:"amountQ7"`
}

// =============================================================================
// RESULT
// =============================================================================

// Components holds the Q7 internals a result was built from. They feed the
// audit row and the conservation checks; customer-facing fields are Q2.
type Components struct {
	SubtotalQ7           decimal.Decimal `json:"subtotalQ7"`
	TaxableBaseQ7        decimal.Decimal `json:"taxableBaseQ7"`
	NonTaxableBaseQ7     decimal.Decimal `json:"nonTaxableBaseQ7"`
	PreTaxAdjustmentsQ7  decimal.Decimal `json:"preTaxAdjustmentsQ7"`
	PostTaxAdjustmentsQ7 decimal.Decimal `json:"postTaxAdjustmentsQ7"`
	RetailTaxQ7          decimal.Decimal `json:"retailTaxQ7"`
	UseTaxBaseQ7         decimal.Decimal `json:"useTaxBaseQ7"`
	UseTaxQ7             decimal.Decimal `json:"useTaxQ7"`
	RunningQ7            decimal.Decimal `json:"runningQ7"`
}

// Result is the canonical output of the pure compute stage. The checksum is
// the SHA-256 of the canonical encoding of the result with the Checksum and
// Timings fields cleared.
type Result struct {
	ProposalID         string             `json:"proposalId"`
	SchemaVersion      string             `json:"schemaVersion"`
	TaxMode            TaxMode            `json:"taxMode"`
	Subtotal           decimal.Decimal    `json:"subtotal"`
	ModifierTotal      decimal.Decimal    `json:"modifierTotal"`
	RetailTax          decimal.Decimal    `json:"retailTax"`
	CustomerGrandTotal decimal.Decimal    `json:"customerGrandTotal"`
	UseTax             *decimal.Decimal   `json:"useTax,omitempty"`
	InternalGrandTotal *decimal.Decimal   `json:"internalGrandTotal,omitempty"`
	Adjustments        []Adjustment       `json:"adjustments"`
	Rejected           []RejectedModifier `json:"rejected,omitempty"`
	JurisdictionTaxes  []JurisdictionTax  `json:"jurisdictionTaxes,omitempty"`
	Components         Components         `json:"components"`
	Checksum           string             `json:"checksum,omitempty"`
	Timings            *Timings           `json:"timings,omitempty"`
}

// Timings reports per-stage latencies back to the caller.
type Timings struct {
	PreparationMs int64 `json:"preparationMs"`
	ComputeMs     int64 `json:"computeMs"`
	CommitMs      int64 `json:"commitMs"`
	TotalMs       int64 `json:"totalMs"`
}

// CalculateResponse is the RPC reply: the result plus commit diagnostics.
type CalculateResponse struct {
	Result *Result `json:"result"`
	// Replayed is set when the commit stage answered from the idempotency
	// store without writing.
	Replayed bool `json:"replayed,omitempty"`
}
