package resilience

import (
	"time"

	"github.com/sells-group/contract-validator/internal/model"
)

// DLQEntry is a document whose processing failed and may be retried.
type DLQEntry struct {
	DocumentID  string              `json:"documentId"`
	Kind        model.DocumentKind  `json:"kind"`
	FileName    string              `json:"fileName"`
	SourcePath  string              `json:"sourcePath"`
	ContractID  string              `json:"contractId,omitempty"`
	Error       string              `json:"error"`
	Category    model.ErrorCategory `json:"category"`
	Stage       string              `json:"stage,omitempty"`
	RetryCount  int                 `json:"retryCount"`
	MaxRetries  int                 `json:"maxRetries"`
	NextRetryAt time.Time           `json:"nextRetryAt"`
	CreatedAt   time.Time           `json:"createdAt"`
	LastFailure time.Time           `json:"lastFailure"`
}

// DLQFilter narrows a dead letter queue listing.
type DLQFilter struct {
	Category  model.ErrorCategory `json:"category,omitempty"`
	// DueBefore selects entries scheduled at or before it. Zero means now.
	DueBefore time.Time           `json:"dueBefore,omitempty"`
	Limit     int                 `json:"limit,omitempty"`
}

// CanRetry reports whether the entry has retries left. Permanent failures
// never retry.
func (e *DLQEntry) CanRetry() bool {
	return e.Category != model.ErrorCategoryPermanent && e.RetryCount < e.MaxRetries
}

// NewDLQEntry builds an entry for a document that failed at stage.
func NewDLQEntry(doc model.Document, contractID, stage string, err error, maxRetries int, now time.Time) DLQEntry {
	return DLQEntry{
		DocumentID:  doc.ID,
		Kind:        doc.Kind,
		FileName:    doc.FileName,
		SourcePath:  doc.SourcePath,
		ContractID:  contractID,
		Error:       err.Error(),
		Category:    Classify(err),
		Stage:       stage,
		MaxRetries:  maxRetries,
		NextRetryAt: NextRetryAt(now, 0),
		CreatedAt:   now,
		LastFailure: now,
	}
}

// NextRetryAt schedules the next attempt after retryCount failed retries:
// one minute, doubling, capped at one hour.
func NextRetryAt(now time.Time, retryCount int) time.Time {
	delay := time.Minute << min(max(retryCount, 0), 6)
	return now.Add(min(delay, time.Hour))
}
