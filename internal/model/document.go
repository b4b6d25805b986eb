package model

import (
	"strings"
	"time"
)

// DocumentKind distinguishes contracts from invoices.
type DocumentKind string

const (
	DocumentContract DocumentKind = "contract"
	DocumentInvoice  DocumentKind = "invoice"
)

// ParseDocumentKind accepts "contract" or "invoice" in any case.
func ParseDocumentKind(s string) (DocumentKind, bool) {
	switch DocumentKind(strings.ToLower(strings.TrimSpace(s))) {
	case DocumentContract:
		return DocumentContract, true
	case DocumentInvoice:
		return DocumentInvoice, true
	}
	return "", false
}

// DocumentStatus tracks an uploaded document through processing.
type DocumentStatus string

const (
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// ErrorCategory tells whether a failure is worth retrying.
type ErrorCategory string

const (
	ErrorCategoryTransient ErrorCategory = "transient"
	ErrorCategoryPermanent ErrorCategory = "permanent"
)

// Document is the processing record for one uploaded file.
type Document struct {
	ID            string         `json:"id"`
	Kind          DocumentKind   `json:"kind"`
	FileName      string         `json:"fileName"`
	SourcePath    string         `json:"sourcePath"`
	Status        DocumentStatus `json:"status"`
	Progress      int            `json:"progress"`
	StatusDetails string         `json:"statusDetails,omitempty"`
	ErrorCategory ErrorCategory  `json:"errorCategory,omitempty"`
	RecordID      string         `json:"recordId,omitempty"` // contract or invoice ID once extracted
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// StoredContract is a persisted contract with the token stream of its source.
type StoredContract struct {
	Data       ContractData      `json:"data"`
	Tokens     []PositionedToken `json:"tokens,omitempty"`
	DocumentID string            `json:"documentId,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// StoredInvoice is a persisted invoice with the token stream of its source.
type StoredInvoice struct {
	Data       InvoiceData       `json:"data"`
	ContractID string            `json:"contractId,omitempty"`
	Tokens     []PositionedToken `json:"tokens,omitempty"`
	DocumentID string            `json:"documentId,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}
