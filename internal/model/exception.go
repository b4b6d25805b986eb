package model

// ExceptionType classifies a validation finding.
type ExceptionType string

const (
	ExceptionPriceMismatch    ExceptionType = "price_mismatch"
	ExceptionQuantityExceeded ExceptionType = "quantity_exceeded"
	ExceptionUnauthorizedItem ExceptionType = "unauthorized_item"
	ExceptionExpiredContract  ExceptionType = "expired_contract"
	ExceptionInfo             ExceptionType = "info"
)

// Valid reports whether t is one of the known exception types.
func (t ExceptionType) Valid() bool {
	switch t {
	case ExceptionPriceMismatch, ExceptionQuantityExceeded, ExceptionUnauthorizedItem,
		ExceptionExpiredContract, ExceptionInfo:
		return true
	}
	return false
}

// Label is the human-facing name used in the record store.
func (t ExceptionType) Label() string {
	switch t {
	case ExceptionPriceMismatch:
		return "Price Mismatch"
	case ExceptionQuantityExceeded:
		return "Quantity Exceeded"
	case ExceptionUnauthorizedItem:
		return "Business Rule"
	case ExceptionExpiredContract:
		return "Expired Contract"
	default:
		return "General Exception"
	}
}

// Category groups exception types for reporting.
func (t ExceptionType) Category() string {
	switch t {
	case ExceptionPriceMismatch, ExceptionQuantityExceeded:
		return "Out of Range"
	case ExceptionUnauthorizedItem:
		return "Permission Denied"
	case ExceptionExpiredContract:
		return "Missing Data"
	default:
		return "General"
	}
}

// Recommendation is the suggested next step for a reviewer.
func (t ExceptionType) Recommendation() string {
	switch t {
	case ExceptionPriceMismatch:
		return "Review contract pricing terms and invoice unit price. Contact vendor if overcharge is confirmed."
	case ExceptionQuantityExceeded:
		return "Verify purchase order against invoice quantity. Check for partial shipments or billing errors."
	case ExceptionUnauthorizedItem:
		return "Confirm if item should be added to the contract or if it was billed in error."
	case ExceptionExpiredContract:
		return "Invoice falls outside the contract term. Check for a contract renewal or extension."
	default:
		return "Manual review required."
	}
}

// Severity ranks how urgently a finding needs attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// VarianceCalculation shows the arithmetic behind a finding.
type VarianceCalculation struct {
	ContractPrice   float64 `json:"contractPrice"`
	InvoicePrice    float64 `json:"invoicePrice"`
	Difference      float64 `json:"difference"`
	Quantity        float64 `json:"quantity"`
	TotalOvercharge float64 `json:"totalOvercharge"`
}

// ProofData is the side-by-side evidence for a finding. It is derived from
// the line item, the matched term and the token streams and can always be
// regenerated.
type ProofData struct {
	ContractPageNumber  int                 `json:"contractPageNumber"`
	ContractText        string              `json:"contractText"`
	ContractHighlight   BoundingBox         `json:"contractHighlight"`
	InvoicePageNumber   int                 `json:"invoicePageNumber"`
	InvoiceText         string              `json:"invoiceText"`
	InvoiceHighlight    BoundingBox         `json:"invoiceHighlight"`
	VarianceCalculation VarianceCalculation `json:"varianceCalculation"`
}

// ValidationException is one finding against an invoice.
type ValidationException struct {
	ID           string          `json:"id"`
	Type         ExceptionType   `json:"type"`
	Severity     Severity        `json:"severity"`
	LineIndex    int             `json:"lineIndex"` // -1 for document-level notices
	LineItem     InvoiceLineItem `json:"lineItem"`
	ContractTerm *BillableItem   `json:"contractTerm,omitempty"`
	Variance     float64         `json:"variance"`
	Percent      float64         `json:"variancePercent,omitempty"`
	Description  string          `json:"description"`
	Proof        ProofData       `json:"proofData"`
}
