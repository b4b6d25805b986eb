package model

// BillableItem is a priced line of a contract's rate schedule.
type BillableItem struct {
	Description string  `json:"description"`
	UnitPrice   float64 `json:"unitPrice"`
	Unit        string  `json:"unit"`
	Quantity    float64 `json:"quantity,omitempty"`   // contracted cap, 0 when uncapped
	Conditions  string  `json:"conditions,omitempty"`
	PageNumber  int     `json:"pageNumber"`
	Confidence  float64 `json:"confidence"`
}

// ContractData is the structured record extracted from a contract document.
type ContractData struct {
	ContractID             string         `json:"contractId"`
	VendorName             string         `json:"vendorName"`
	EffectiveDate          Date           `json:"effectiveDate"`
	ExpirationDate         Date           `json:"expirationDate"`
	BillableItems          []BillableItem `json:"billableItems"`
	PaymentTerms           string         `json:"paymentTerms"`
	PenaltyClauses         []string       `json:"penaltyClauses"`
	ComplianceRequirements []string       `json:"complianceRequirements"`
	Confidence             float64        `json:"confidence"`
	PageReferences         map[string]int `json:"pageReferences,omitempty"`
}

// Covers reports whether d falls inside the contract's validity window.
// Unset bounds are treated as open.
func (c *ContractData) Covers(d Date) bool {
	if d.IsZero() {
		return true
	}
	if !c.EffectiveDate.IsZero() && d.Before(c.EffectiveDate.Time) {
		return false
	}
	if !c.ExpirationDate.IsZero() && d.After(c.ExpirationDate.Time) {
		return false
	}
	return true
}
