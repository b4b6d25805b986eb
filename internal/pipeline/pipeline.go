// Package pipeline runs the upload and validation workflow: documents are
// read, tokenized and extracted into stored records, and stored records are
// compared to produce validation runs and approval requests.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/contract-validator/internal/extract"
	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/ocr"
	"github.com/sells-group/contract-validator/internal/publish"
	"github.com/sells-group/contract-validator/internal/resilience"
	"github.com/sells-group/contract-validator/internal/store"
	"github.com/sells-group/contract-validator/internal/tokens"
	"github.com/sells-group/contract-validator/internal/validation"
)

const (
	defaultDLQMaxRetries = 3
	defaultConcurrency   = 4
	retryBatchSize       = 50
)

// Pipeline wires the collaborators of the workflow. Store and Extractor are
// required; OCR is only needed for PDF sources.
type Pipeline struct {
	Store     store.Store
	OCR       ocr.Extractor
	Tokens    tokens.Source
	Extractor extract.Extractor
	Publisher publish.Publisher
	Policies  *validation.PolicySet
	Matcher   validation.MatchStrategy

	DLQMaxRetries int
	Now           func() time.Time
}

// BatchSummary counts the outcome of a revalidation batch.
type BatchSummary struct {
	Total     int                   `json:"total"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
	Runs      []model.ValidationRun `json:"runs"`
}

// RetrySummary counts the outcome of a DLQ drain.
type RetrySummary struct {
	Attempted int `json:"attempted"`
	Recovered int `json:"recovered"`
	Failed    int `json:"failed"`
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p *Pipeline) publisher() publish.Publisher {
	if p.Publisher == nil {
		return publish.NopPublisher{}
	}
	return p.Publisher
}

func (p *Pipeline) maxRetries() int {
	if p.DLQMaxRetries <= 0 {
		return defaultDLQMaxRetries
	}
	return p.DLQMaxRetries
}

func (p *Pipeline) comparator(vendor string) *validation.Comparator {
	policy := validation.DefaultPolicy()
	if p.Policies != nil {
		policy = p.Policies.For(vendor)
	}
	opts := []validation.Option{validation.WithPolicy(policy)}
	if p.Matcher != nil {
		opts = append(opts, validation.WithMatchStrategy(p.Matcher))
	}
	return validation.NewComparator(opts...)
}

// IngestContract turns the document at path into a stored contract.
func (p *Pipeline) IngestContract(ctx context.Context, path string) (*model.StoredContract, error) {
	doc, err := p.startDocument(ctx, model.DocumentContract, path)
	if err != nil {
		return nil, err
	}
	stored, err := p.processContract(ctx, doc)
	if err != nil {
		p.deadLetter(ctx, doc, "", err)
		return nil, err
	}
	return stored, nil
}

// IngestInvoice turns the document at path into a stored invoice linked to
// contractID, which may be empty.
func (p *Pipeline) IngestInvoice(ctx context.Context, path, contractID string) (*model.StoredInvoice, error) {
	doc, err := p.startDocument(ctx, model.DocumentInvoice, path)
	if err != nil {
		return nil, err
	}
	stored, err := p.processInvoice(ctx, doc, contractID)
	if err != nil {
		p.deadLetter(ctx, doc, contractID, err)
		return nil, err
	}
	return stored, nil
}

func (p *Pipeline) startDocument(ctx context.Context, kind model.DocumentKind, path string) (*model.Document, error) {
	doc := &model.Document{
		Kind:       kind,
		FileName:   filepath.Base(path),
		SourcePath: path,
		Status:     model.DocumentProcessing,
		Progress:   10,
	}
	if err := p.Store.CreateDocument(ctx, doc); err != nil {
		return nil, eris.Wrap(err, "pipeline: create document")
	}
	return doc, nil
}

func (p *Pipeline) processContract(ctx context.Context, doc *model.Document) (*model.StoredContract, error) {
	log := zap.L().With(zap.String("document_id", doc.ID), zap.String("file", doc.FileName))

	text, toks, err := p.readDocument(ctx, log, doc)
	if err != nil {
		return nil, err
	}

	var data *model.ContractData
	err = p.stage(log, StageExtract, func() error {
		var extractErr error
		data, extractErr = p.Extractor.ExtractContract(ctx, text)
		if extractErr != nil {
			return extractErr
		}
		return extract.ValidateContract(data)
	})
	if err != nil {
		return nil, p.fail(ctx, doc, StageExtract, err)
	}
	if strings.TrimSpace(data.ContractID) == "" {
		data.ContractID = uuid.New().String()
	}
	p.progress(ctx, log, doc, 80)

	stored := &model.StoredContract{Data: *data, Tokens: toks, DocumentID: doc.ID}
	if err := p.stage(log, StageStore, func() error { return p.Store.SaveContract(ctx, stored) }); err != nil {
		return nil, p.fail(ctx, doc, StageStore, err)
	}
	p.complete(ctx, log, doc, data.ContractID)
	return stored, nil
}

func (p *Pipeline) processInvoice(ctx context.Context, doc *model.Document, contractID string) (*model.StoredInvoice, error) {
	log := zap.L().With(zap.String("document_id", doc.ID), zap.String("file", doc.FileName))

	text, toks, err := p.readDocument(ctx, log, doc)
	if err != nil {
		return nil, err
	}

	var data *model.InvoiceData
	err = p.stage(log, StageExtract, func() error {
		var extractErr error
		data, extractErr = p.Extractor.ExtractInvoice(ctx, text)
		if extractErr != nil {
			return extractErr
		}
		return extract.ValidateInvoice(data)
	})
	if err != nil {
		return nil, p.fail(ctx, doc, StageExtract, err)
	}
	if strings.TrimSpace(data.InvoiceID) == "" {
		data.InvoiceID = uuid.New().String()
	}
	p.progress(ctx, log, doc, 80)

	stored := &model.StoredInvoice{Data: *data, ContractID: contractID, Tokens: toks, DocumentID: doc.ID}
	if err := p.stage(log, StageStore, func() error { return p.Store.SaveInvoice(ctx, stored) }); err != nil {
		return nil, p.fail(ctx, doc, StageStore, err)
	}
	p.complete(ctx, log, doc, data.InvoiceID)
	return stored, nil
}

// readDocument returns the document text and its positioned tokens. Text and
// JSON sources are read directly; anything else goes through OCR.
func (p *Pipeline) readDocument(ctx context.Context, log *zap.Logger, doc *model.Document) (string, []model.PositionedToken, error) {
	ext := strings.ToLower(filepath.Ext(doc.SourcePath))
	plain := ext == ".txt" || ext == ".json"

	var text string
	if plain {
		err := p.stage(log, StageRead, func() error {
			b, readErr := os.ReadFile(doc.SourcePath)
			if readErr != nil {
				return eris.Wrap(readErr, "pipeline: read document")
			}
			text = string(b)
			return nil
		})
		if err != nil {
			return "", nil, p.fail(ctx, doc, StageRead, err)
		}
	} else {
		err := p.stage(log, StageOCR, func() error {
			if p.OCR == nil {
				return eris.New("pipeline: no OCR extractor configured")
			}
			var ocrErr error
			text, ocrErr = p.OCR.ExtractText(ctx, doc.SourcePath)
			return ocrErr
		})
		if err != nil {
			return "", nil, p.fail(ctx, doc, StageOCR, err)
		}
	}
	if strings.TrimSpace(text) == "" {
		return "", nil, p.fail(ctx, doc, StageRead, eris.New("pipeline: document has no text"))
	}
	p.progress(ctx, log, doc, 30)

	var toks []model.PositionedToken
	if !plain && p.Tokens != nil {
		err := p.stage(log, StageTokens, func() error {
			var tokErr error
			toks, tokErr = p.Tokens.Tokens(ctx, doc.SourcePath)
			return tokErr
		})
		if err != nil {
			log.Warn("pipeline: falling back to plain-text tokens", zap.Error(err))
			toks = nil
		}
	}
	if len(toks) == 0 {
		toks = tokens.FromPlainText(text)
	}
	p.progress(ctx, log, doc, 50)
	return text, toks, nil
}

// stage runs fn and logs its duration under the stage name.
func (p *Pipeline) stage(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()
	if err != nil {
		log.Error("pipeline: stage failed",
			zap.String("stage", name),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
		return err
	}
	log.Debug("pipeline: stage complete",
		zap.String("stage", name),
		zap.Int64("duration_ms", duration),
	)
	return nil
}

func (p *Pipeline) progress(ctx context.Context, log *zap.Logger, doc *model.Document, pct int) {
	doc.Progress = pct
	if err := p.Store.UpdateDocument(ctx, doc); err != nil {
		log.Warn("pipeline: failed to update progress", zap.Int("progress", pct), zap.Error(err))
	}
}

func (p *Pipeline) complete(ctx context.Context, log *zap.Logger, doc *model.Document, recordID string) {
	doc.Status = model.DocumentCompleted
	doc.Progress = 100
	doc.StatusDetails = ""
	doc.ErrorCategory = ""
	doc.RecordID = recordID
	if err := p.Store.UpdateDocument(ctx, doc); err != nil {
		log.Warn("pipeline: failed to mark document completed", zap.Error(err))
	}
	log.Info("pipeline: document processed", zap.String("kind", string(doc.Kind)), zap.String("record_id", recordID))
}

// fail marks doc failed and returns the matching *ProcessingError.
func (p *Pipeline) fail(ctx context.Context, doc *model.Document, stage string, err error) error {
	category := resilience.Classify(err)
	doc.Status = model.DocumentFailed
	doc.ErrorCategory = category
	doc.StatusDetails = stage + ": " + err.Error()
	if updateErr := p.Store.UpdateDocument(ctx, doc); updateErr != nil {
		zap.L().Warn("pipeline: failed to mark document failed",
			zap.String("document_id", doc.ID),
			zap.Error(updateErr),
		)
	}
	return &ProcessingError{DocumentID: doc.ID, Stage: stage, Category: category, Err: err}
}

func (p *Pipeline) deadLetter(ctx context.Context, doc *model.Document, contractID string, err error) {
	stage := ""
	if pe, ok := AsProcessingError(err); ok {
		stage = pe.Stage
		err = pe.Err
	}
	entry := resilience.NewDLQEntry(*doc, contractID, stage, err, p.maxRetries(), p.now())
	if dlqErr := p.Store.EnqueueDLQ(ctx, entry); dlqErr != nil {
		zap.L().Error("pipeline: failed to enqueue dlq entry",
			zap.String("document_id", doc.ID),
			zap.Error(dlqErr),
		)
	}
}

// Compare runs the comparison core on records that are not stored, using
// the policy configured for the invoice vendor.
func (p *Pipeline) Compare(inv *model.InvoiceData, contract *model.ContractData, invTokens, contractTokens []model.PositionedToken) model.ComparisonResult {
	return p.comparator(inv.VendorName).Compare(inv, contract, invTokens, contractTokens)
}

// Validate compares a stored invoice with a stored contract, persists the
// run with one approval request per exception and publishes it.
func (p *Pipeline) Validate(ctx context.Context, invoiceID, contractID string) (*model.ValidationRun, error) {
	inv, err := p.Store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load invoice %s", invoiceID)
	}
	contract, err := p.Store.GetContract(ctx, contractID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load contract %s", contractID)
	}

	result := p.comparator(inv.Data.VendorName).Compare(&inv.Data, &contract.Data, inv.Tokens, contract.Tokens)
	for _, list := range [][]model.ValidationException{result.Exceptions, result.Notices} {
		for i := range list {
			list[i].ID = uuid.New().String()
		}
	}

	run := &model.ValidationRun{
		ID:         uuid.New().String(),
		InvoiceID:  inv.Data.InvoiceID,
		ContractID: contract.Data.ContractID,
		VendorName: inv.Data.VendorName,
		Status:     model.ValidationStatusFor(&result),
		Result:     result,
		CreatedAt:  p.now(),
	}

	approvals := make([]model.ApprovalRequest, 0, len(result.Exceptions))
	for _, ex := range result.Exceptions {
		approvals = append(approvals, model.ApprovalRequest{
			ValidationID:  run.ID,
			ExceptionID:   ex.ID,
			InvoiceID:     run.InvoiceID,
			VendorName:    run.VendorName,
			Amount:        ex.Variance,
			ExceptionType: ex.Type,
			Status:        model.ApprovalPending,
			CreatedAt:     run.CreatedAt,
		})
	}

	if err := p.Store.SaveValidation(ctx, run, approvals); err != nil {
		return nil, eris.Wrap(err, "pipeline: save validation")
	}

	log := zap.L().With(
		zap.String("validation_id", run.ID),
		zap.String("invoice_id", run.InvoiceID),
		zap.String("contract_id", run.ContractID),
	)
	log.Info("pipeline: validation complete",
		zap.String("status", string(run.Status)),
		zap.Int("exceptions", len(result.Exceptions)),
		zap.Float64("total_variance", result.TotalVariance),
	)

	if err := p.publisher().Publish(ctx, run); err != nil {
		log.Warn("pipeline: publish failed", zap.Error(err))
	}
	return run, nil
}

// RevalidateContract validates every stored invoice linked to contractID.
// Individual failures are counted, not returned.
func (p *Pipeline) RevalidateContract(ctx context.Context, contractID string, concurrency int) (*BatchSummary, error) {
	invoices, err := p.Store.ListInvoices(ctx, contractID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: list invoices for contract %s", contractID)
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	summary := &BatchSummary{Total: len(invoices), Runs: make([]model.ValidationRun, 0, len(invoices))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, inv := range invoices {
		invoiceID := inv.Data.InvoiceID
		g.Go(func() error {
			run, runErr := p.Validate(gctx, invoiceID, contractID)
			mu.Lock()
			defer mu.Unlock()
			if runErr != nil {
				summary.Failed++
				zap.L().Error("pipeline: revalidation failed",
					zap.String("invoice_id", invoiceID),
					zap.String("contract_id", contractID),
					zap.Error(runErr),
				)
				return nil
			}
			summary.Succeeded++
			summary.Runs = append(summary.Runs, *run)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return summary, eris.Wrap(err, "pipeline: revalidate contract")
	}
	zap.L().Info("pipeline: revalidation complete",
		zap.String("contract_id", contractID),
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// RetryFailed re-runs ingestion for DLQ entries that are due. Recovered
// documents leave the queue; failures are rescheduled with backoff, and a
// failure that turns permanent is parked.
func (p *Pipeline) RetryFailed(ctx context.Context) (*RetrySummary, error) {
	entries, err := p.Store.DequeueDLQ(ctx, resilience.DLQFilter{DueBefore: p.now(), Limit: retryBatchSize})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: dequeue dlq")
	}

	summary := &RetrySummary{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, eris.Wrap(err, "pipeline: retry failed")
		}
		if !entry.CanRetry() {
			continue
		}
		summary.Attempted++

		log := zap.L().With(zap.String("document_id", entry.DocumentID), zap.Int("retry", entry.RetryCount+1))
		procErr := p.retryEntry(ctx, entry)
		if procErr == nil {
			summary.Recovered++
			if err := p.Store.RemoveDLQ(ctx, entry.DocumentID); err != nil {
				log.Warn("pipeline: failed to remove dlq entry", zap.Error(err))
			}
			log.Info("pipeline: dlq entry recovered")
			continue
		}

		summary.Failed++
		log.Warn("pipeline: dlq retry failed", zap.Error(procErr))
		p.reschedule(ctx, log, entry, procErr)
	}
	return summary, nil
}

func (p *Pipeline) retryEntry(ctx context.Context, entry resilience.DLQEntry) error {
	doc, err := p.Store.GetDocument(ctx, entry.DocumentID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: load document %s", entry.DocumentID)
	}
	doc.Status = model.DocumentProcessing
	doc.Progress = 10
	doc.StatusDetails = ""
	doc.ErrorCategory = ""

	switch doc.Kind {
	case model.DocumentContract:
		_, err = p.processContract(ctx, doc)
	case model.DocumentInvoice:
		_, err = p.processInvoice(ctx, doc, entry.ContractID)
	default:
		err = eris.Errorf("pipeline: unknown document kind %q", doc.Kind)
	}
	return err
}

func (p *Pipeline) reschedule(ctx context.Context, log *zap.Logger, entry resilience.DLQEntry, procErr error) {
	now := p.now()
	cause := procErr
	stage := entry.Stage
	if pe, ok := AsProcessingError(procErr); ok {
		cause = pe.Err
		stage = pe.Stage
	}

	if resilience.Classify(cause) == model.ErrorCategoryPermanent {
		entry.Category = model.ErrorCategoryPermanent
		entry.Error = cause.Error()
		entry.Stage = stage
		entry.RetryCount++
		entry.LastFailure = now
		if err := p.Store.EnqueueDLQ(ctx, entry); err != nil {
			log.Error("pipeline: failed to park dlq entry", zap.Error(err))
		}
		return
	}

	next := resilience.NextRetryAt(now, entry.RetryCount+1)
	if err := p.Store.IncrementDLQRetry(ctx, entry.DocumentID, next, cause.Error()); err != nil {
		log.Error("pipeline: failed to reschedule dlq entry", zap.Error(err))
	}
}
