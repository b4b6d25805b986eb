package model

import "time"

// ValidationStatus is the review state of a validation run.
type ValidationStatus string

const (
	ValidationApproved    ValidationStatus = "approved"
	ValidationUnderReview ValidationStatus = "under_review"
)

// ValidationStatusFor derives the review state from a comparison result.
func ValidationStatusFor(r *ComparisonResult) ValidationStatus {
	if r.OverallMatch && len(r.Notices) == 0 {
		return ValidationApproved
	}
	return ValidationUnderReview
}

// ValidationRun is a persisted comparison of one invoice against one
// contract. A newer run for the same pair supersedes older ones.
type ValidationRun struct {
	ID         string           `json:"id"`
	InvoiceID  string           `json:"invoiceId"`
	ContractID string           `json:"contractId"`
	VendorName string           `json:"vendorName"`
	Status     ValidationStatus `json:"status"`
	Result     ComparisonResult `json:"result"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// ApprovalStatus is the decision state of an approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalRequest asks a reviewer to accept or dispute one exception.
type ApprovalRequest struct {
	ID            string         `json:"id"`
	ValidationID  string         `json:"validationId"`
	ExceptionID   string         `json:"exceptionId"`
	InvoiceID     string         `json:"invoiceId"`
	VendorName    string         `json:"vendorName"`
	Amount        float64        `json:"amount"`
	ExceptionType ExceptionType  `json:"exceptionType"`
	Status        ApprovalStatus `json:"status"`
	DecidedBy     string         `json:"decidedBy,omitempty"`
	Note          string         `json:"note,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	DecidedAt     *time.Time     `json:"decidedAt,omitempty"`
}
