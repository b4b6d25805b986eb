// Package monitoring watches document processing, the dead letter queue and
// the approval backlog, and raises webhook alerts when thresholds are crossed.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/store"
)

// scanLimit bounds each listing the collector reads.
const scanLimit = 10000

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Documents created within the lookback window.
	DocumentsTotal      int     `json:"documents_total"`
	DocumentsCompleted  int     `json:"documents_completed"`
	DocumentsFailed     int     `json:"documents_failed"`
	DocumentsProcessing int     `json:"documents_processing"`
	DocumentFailRate    float64 `json:"document_fail_rate"`
	// Failures by error category.
	FailuresByCategory map[model.ErrorCategory]int `json:"failures_by_category,omitempty"`

	// Validation runs within the lookback window.
	ValidationsTotal   int     `json:"validations_total"`
	ValidationsFlagged int     `json:"validations_flagged"`
	CriticalExceptions int     `json:"critical_exceptions"`
	TotalVariance      float64 `json:"total_variance"`

	// Backlogs, regardless of age.
	PendingApprovals int `json:"pending_approvals"`
	DLQDepth         int `json:"dlq_depth"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Source is the slice of the store the collector reads.
type Source interface {
	ListDocuments(ctx context.Context, filter store.DocumentFilter) ([]model.Document, error)
	ListValidations(ctx context.Context, filter store.ValidationFilter) ([]model.ValidationRun, error)
	ListApprovals(ctx context.Context, filter store.ApprovalFilter) ([]model.ApprovalRequest, error)
	CountDLQ(ctx context.Context) (int, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	src Source
	now func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(src Source) *Collector {
	return &Collector{src: src, now: time.Now}
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		FailuresByCategory: make(map[model.ErrorCategory]int),
		LookbackHours:      lookbackHours,
		CollectedAt:        now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	docs, err := c.src.ListDocuments(ctx, store.DocumentFilter{Limit: scanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list documents")
	}
	for _, d := range docs {
		if d.CreatedAt.Before(cutoff) {
			continue
		}
		snap.DocumentsTotal++
		switch d.Status {
		case model.DocumentCompleted:
			snap.DocumentsCompleted++
		case model.DocumentFailed:
			snap.DocumentsFailed++
			snap.FailuresByCategory[d.ErrorCategory]++
		case model.DocumentProcessing:
			snap.DocumentsProcessing++
		}
	}
	if finished := snap.DocumentsCompleted + snap.DocumentsFailed; finished > 0 {
		snap.DocumentFailRate = float64(snap.DocumentsFailed) / float64(finished)
	}

	runs, err := c.src.ListValidations(ctx, store.ValidationFilter{Limit: scanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list validations")
	}
	for i := range runs {
		r := &runs[i]
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.ValidationsTotal++
		if !r.Result.OverallMatch {
			snap.ValidationsFlagged++
		}
		snap.CriticalExceptions += r.Result.CountBySeverity()[model.SeverityCritical]
		snap.TotalVariance += r.Result.TotalVariance
	}

	pending, err := c.src.ListApprovals(ctx, store.ApprovalFilter{Status: model.ApprovalPending, Limit: scanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list approvals")
	}
	snap.PendingApprovals = len(pending)

	dlqCount, err := c.src.CountDLQ(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dlq")
	}
	snap.DLQDepth = dlqCount

	return snap, nil
}
