package model

// ComparisonResult is the outcome of validating one invoice against one
// contract. Every line item is either compliant or referenced by exactly one
// entry in Exceptions.
type ComparisonResult struct {
	InvoiceID          string                `json:"invoiceId"`
	ContractID         string                `json:"contractId"`
	OverallMatch       bool                  `json:"overallMatch"`
	Confidence         float64               `json:"confidence"`
	Exceptions         []ValidationException `json:"exceptions"`
	Notices            []ValidationException `json:"notices,omitempty"`
	TotalVariance      float64               `json:"totalVariance"`
	PotentialSavings   float64               `json:"potentialSavings"`
	TotalLineItems     int                   `json:"totalLineItems"`
	CompliantLineItems int                   `json:"compliantLineItems"`
	LineItems          []InvoiceLineItem     `json:"lineItems"`
}

// Compliant returns the line items that raised no exception, in invoice order.
func (r *ComparisonResult) Compliant() []InvoiceLineItem {
	flagged := make(map[int]bool, len(r.Exceptions))
	for _, ex := range r.Exceptions {
		flagged[ex.LineIndex] = true
	}
	out := make([]InvoiceLineItem, 0, r.CompliantLineItems)
	for i, li := range r.LineItems {
		if !flagged[i] {
			out = append(out, li)
		}
	}
	return out
}

// CountBySeverity tallies exceptions per severity.
func (r *ComparisonResult) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, ex := range r.Exceptions {
		counts[ex.Severity]++
	}
	return counts
}
