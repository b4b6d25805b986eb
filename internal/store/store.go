// Package store persists documents, extracted records, validation runs,
// approvals and the dead letter queue.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-validator/internal/config"
	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/resilience"
)

var (
	// ErrNotFound is wrapped by every lookup that matches no row.
	ErrNotFound = eris.New("store: not found")
	// ErrAlreadyDecided is returned when deciding an approval that is no
	// longer pending.
	ErrAlreadyDecided = eris.New("store: approval already decided")
)

const defaultListLimit = 100

// DocumentFilter narrows a document listing.
type DocumentFilter struct {
	Kind   model.DocumentKind   `json:"kind,omitempty"`
	Status model.DocumentStatus `json:"status,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
	Offset int                  `json:"offset,omitempty"`
}

// ValidationFilter narrows a validation run listing.
type ValidationFilter struct {
	Status     model.ValidationStatus `json:"status,omitempty"`
	VendorName string                 `json:"vendorName,omitempty"`
	ContractID string                 `json:"contractId,omitempty"`
	InvoiceID  string                 `json:"invoiceId,omitempty"`
	// Latest keeps only the newest run per invoice/contract pair.
	Latest bool `json:"latest,omitempty"`
	Limit  int  `json:"limit,omitempty"`
	Offset int  `json:"offset,omitempty"`
}

// ApprovalFilter narrows an approval listing.
type ApprovalFilter struct {
	Status       model.ApprovalStatus `json:"status,omitempty"`
	ValidationID string               `json:"validationId,omitempty"`
	Limit        int                  `json:"limit,omitempty"`
}

// Store defines the persistence interface for the validation workflow.
type Store interface {
	// Documents
	CreateDocument(ctx context.Context, doc *model.Document) error
	UpdateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error)

	// Extracted records
	SaveContract(ctx context.Context, c *model.StoredContract) error
	GetContract(ctx context.Context, id string) (*model.StoredContract, error)
	ListContracts(ctx context.Context, vendor string) ([]model.StoredContract, error)
	SaveInvoice(ctx context.Context, inv *model.StoredInvoice) error
	GetInvoice(ctx context.Context, id string) (*model.StoredInvoice, error)
	ListInvoices(ctx context.Context, contractID string) ([]model.StoredInvoice, error)

	// Validation runs and approvals
	SaveValidation(ctx context.Context, run *model.ValidationRun, approvals []model.ApprovalRequest) error
	GetValidation(ctx context.Context, id string) (*model.ValidationRun, error)
	ListValidations(ctx context.Context, filter ValidationFilter) ([]model.ValidationRun, error)
	ListApprovals(ctx context.Context, filter ApprovalFilter) ([]model.ApprovalRequest, error)
	DecideApproval(ctx context.Context, id string, status model.ApprovalStatus, decidedBy, note string) (*model.ApprovalRequest, error)

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, documentID string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, documentID string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns})
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

func newID() string {
	return uuid.New().String()
}

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

// validDecision reports whether status is a terminal approval decision.
func validDecision(status model.ApprovalStatus) bool {
	return status == model.ApprovalApproved || status == model.ApprovalRejected
}

// prepareValidation assigns IDs and timestamps before a run is written.
func prepareValidation(run *model.ValidationRun, approvals []model.ApprovalRequest, now time.Time) {
	if run.ID == "" {
		run.ID = newID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	for _, list := range [][]model.ValidationException{run.Result.Exceptions, run.Result.Notices} {
		for i := range list {
			if list[i].ID == "" {
				list[i].ID = newID()
			}
		}
	}
	for i := range approvals {
		a := &approvals[i]
		if a.ID == "" {
			a.ID = newID()
		}
		a.ValidationID = run.ID
		if a.Status == "" {
			a.Status = model.ApprovalPending
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
	}
}

// latestPerPair keeps the first run seen for each invoice/contract pair.
// Input must be ordered newest first.
func latestPerPair(runs []model.ValidationRun, offset, limit int) []model.ValidationRun {
	seen := make(map[[2]string]bool, len(runs))
	out := runs[:0]
	for _, r := range runs {
		key := [2]string{r.InvoiceID, r.ContractID}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func assignContractID(c *model.StoredContract) {
	if c.Data.ContractID == "" {
		c.Data.ContractID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
}

func assignInvoiceID(inv *model.StoredInvoice) {
	if inv.Data.InvoiceID == "" {
		inv.Data.InvoiceID = newID()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
}
