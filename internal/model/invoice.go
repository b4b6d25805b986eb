package model

import "math"

// InvoiceLineItem is a single billed line on an invoice.
type InvoiceLineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	TotalPrice  float64 `json:"totalPrice"`
	PageNumber  int     `json:"pageNumber"`
}

// TotalConsistent reports whether TotalPrice equals Quantity*UnitPrice within
// one cent of rounding.
func (li InvoiceLineItem) TotalConsistent() bool {
	return math.Abs(li.Quantity*li.UnitPrice-li.TotalPrice) <= 0.01
}

// InvoiceData is the structured record extracted from an invoice document.
type InvoiceData struct {
	InvoiceID     string            `json:"invoiceId"`
	InvoiceNumber string            `json:"invoiceNumber"`
	VendorName    string            `json:"vendorName"`
	InvoiceDate   Date              `json:"invoiceDate"`
	DueDate       Date              `json:"dueDate"`
	LineItems     []InvoiceLineItem `json:"lineItems"`
	TotalAmount   float64           `json:"totalAmount"`
	Confidence    float64           `json:"confidence"`
}

// LineTotal sums the line item totals.
func (inv *InvoiceData) LineTotal() float64 {
	var sum float64
	for _, li := range inv.LineItems {
		sum += li.TotalPrice
	}
	return sum
}
