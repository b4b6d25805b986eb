package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-validator/internal/extract"
	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/resilience"
	"github.com/sells-group/contract-validator/internal/store"
	"github.com/sells-group/contract-validator/internal/validation"
)

const contractJSON = `{
  "contractId": "C-100",
  "vendorName": "Cardinal Health",
  "effectiveDate": "2024-01-01",
  "expirationDate": "2026-12-31",
  "confidence": 0.95,
  "billableItems": [
    {"description": "Surgical Gloves, Size L", "unitPrice": 4.75, "unit": "box", "pageNumber": 2},
    {"description": "N95 Respirator Masks", "unitPrice": 1.10, "unit": "each", "pageNumber": 2}
  ]
}`

func invoiceJSON(id string) string {
	return `{
  "invoiceId": "` + id + `",
  "invoiceNumber": "` + id + `",
  "vendorName": "Cardinal Health",
  "invoiceDate": "2025-03-01",
  "totalAmount": 5310,
  "confidence": 0.9,
  "lineItems": [
    {"description": "Surgical Gloves, Size L", "quantity": 1000, "unitPrice": 5.20, "totalPrice": 5200, "pageNumber": 1},
    {"description": "N95 Respirator Masks", "quantity": 100, "unitPrice": 1.10, "totalPrice": 110, "pageNumber": 1}
  ]
}`
}

type stubOCR struct {
	mu   sync.Mutex
	text string
	err  error
}

func (s *stubOCR) ExtractText(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, s.err
}

func (s *stubOCR) set(text string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text, s.err = text, err
}

type stubTokens struct {
	toks []model.PositionedToken
	err  error
}

func (s stubTokens) Tokens(context.Context, string) ([]model.PositionedToken, error) {
	return s.toks, s.err
}

type recordingPublisher struct {
	mu   sync.Mutex
	runs []string
	err  error
}

func (r *recordingPublisher) Publish(_ context.Context, run *model.ValidationRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run.ID)
	return r.err
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	return &Pipeline{
		Store:     st,
		Extractor: extract.JSONExtractor{},
		Policies:  validation.NewPolicySet(validation.DefaultPolicy()),
	}
}

func writeDoc(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestIngestContract_JSON(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t)

	stored, err := p.IngestContract(ctx, writeDoc(t, "contract.json", contractJSON))
	require.NoError(t, err)
	assert.Equal(t, "C-100", stored.Data.ContractID)
	assert.Len(t, stored.Data.BillableItems, 2)
	assert.NotEmpty(t, stored.Tokens)

	doc, err := p.Store.GetDocument(ctx, stored.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentCompleted, doc.Status)
	assert.Equal(t, 100, doc.Progress)
	assert.Equal(t, "C-100", doc.RecordID)
	assert.Equal(t, "contract.json", doc.FileName)

	got, err := p.Store.GetContract(ctx, "C-100")
	require.NoError(t, err)
	assert.Equal(t, "Cardinal Health", got.Data.VendorName)
}

func TestIngestContract_AssignsMissingID(t *testing.T) {
	p := newTestPipeline(t)

	stored, err := p.IngestContract(context.Background(), writeDoc(t, "c.json", `{"vendorName": "Acme", "billableItems": []}`))
	require.NoError(t, err)
	assert.NotEmpty(t, stored.Data.ContractID)
}

func TestIngestInvoice_ShapeErrorIsPermanent(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t)

	_, err := p.IngestInvoice(ctx, writeDoc(t, "bad.json", `{"invoiceId": "I-1", "lineItems": [{"description": "x"}]}`), "C-100")
	require.Error(t, err)

	pe, ok := AsProcessingError(err)
	require.True(t, ok)
	assert.Equal(t, StageExtract, pe.Stage)
	assert.Equal(t, model.ErrorCategoryPermanent, pe.Category)
	assert.True(t, extract.IsShapeError(err))

	doc, err := p.Store.GetDocument(ctx, pe.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentFailed, doc.Status)
	assert.Equal(t, model.ErrorCategoryPermanent, doc.ErrorCategory)
	assert.Contains(t, doc.StatusDetails, "extract:")

	n, err := p.Store.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Permanent entries are never handed out for retry.
	due, err := p.Store.DequeueDLQ(ctx, resilience.DLQFilter{DueBefore: time.Now().Add(48 * time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestIngestInvoice_EmptyText(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.IngestInvoice(context.Background(), writeDoc(t, "empty.txt", "   \n"), "")
	pe, ok := AsProcessingError(err)
	require.True(t, ok)
	assert.Equal(t, StageRead, pe.Stage)
}

func TestIngestInvoice_PDFUsesOCRAndTokens(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t)
	p.OCR = &stubOCR{text: invoiceJSON("INV-1")}
	p.Tokens = stubTokens{toks: []model.PositionedToken{{Text: "Surgical", Page: 1, X: 10, Y: 20, Width: 40, Height: 10}}}

	stored, err := p.IngestInvoice(ctx, writeDoc(t, "invoice.pdf", "%PDF"), "C-100")
	require.NoError(t, err)
	assert.Equal(t, "INV-1", stored.Data.InvoiceID)
	assert.Equal(t, "C-100", stored.ContractID)
	require.Len(t, stored.Tokens, 1)
	assert.Equal(t, "Surgical", stored.Tokens[0].Text)
}

func TestIngestInvoice_TokenFailureFallsBack(t *testing.T) {
	p := newTestPipeline(t)
	p.OCR = &stubOCR{text: invoiceJSON("INV-2")}
	p.Tokens = stubTokens{err: errors.New("pdftotext: not installed")}

	stored, err := p.IngestInvoice(context.Background(), writeDoc(t, "invoice.pdf", "%PDF"), "")
	require.NoError(t, err)
	assert.NotEmpty(t, stored.Tokens)
}

func TestIngestInvoice_NoOCRConfigured(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.IngestInvoice(context.Background(), writeDoc(t, "invoice.pdf", "%PDF"), "")
	pe, ok := AsProcessingError(err)
	require.True(t, ok)
	assert.Equal(t, StageOCR, pe.Stage)
	assert.Equal(t, model.ErrorCategoryPermanent, pe.Category)
}

func TestRetryFailed_RecoversTransientFailure(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t)
	base := time.Now().UTC()
	p.Now = func() time.Time { return base }

	ocr := &stubOCR{err: resilience.NewTransientError(eris.New("mistral: overloaded"), 503)}
	p.OCR = ocr

	_, err := p.IngestInvoice(ctx, writeDoc(t, "invoice.pdf", "%PDF"), "C-100")
	pe, ok := AsProcessingError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrorCategoryTransient, pe.Category)

	// Nothing is due yet.
	summary, err := p.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Attempted)

	ocr.set(invoiceJSON("INV-9"), nil)
	p.Now = func() time.Time { return base.Add(2 * time.Hour) }

	summary, err = p.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, RetrySummary{Attempted: 1, Recovered: 1}, *summary)

	n, err := p.Store.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	doc, err := p.Store.GetDocument(ctx, pe.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentCompleted, doc.Status)
	assert.Equal(t, "INV-9", doc.RecordID)

	inv, err := p.Store.GetInvoice(ctx, "INV-9")
	require.NoError(t, err)
	assert.Equal(t, "C-100", inv.ContractID)
}

func TestRetryFailed_ReschedulesStillFailing(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t)
	base := time.Now().UTC()
	p.Now = func() time.Time { return base }
	p.OCR = &stubOCR{err: resilience.NewTransientError(eris.New("mistral: overloaded"), 503)}

	_, err := p.IngestContract(ctx, writeDoc(t, "contract.pdf", "%PDF"))
	require.Error(t, err)

	p.Now = func() time.Time { return base.Add(2 * time.Hour) }
	summary, err := p.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, RetrySummary{Attempted: 1, Failed: 1}, *summary)

	entries, err := p.Store.DequeueDLQ(ctx, resilience.DLQFilter{DueBefore: base.Add(48 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RetryCount)
	assert.True(t, entries[0].NextRetryAt.After(base.Add(2*time.Hour)))
}

func TestRetryFailed_ParksPermanentFailure(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t)
	base := time.Now().UTC()
	p.Now = func() time.Time { return base }
	ocr := &stubOCR{err: resilience.NewTransientError(eris.New("mistral: overloaded"), 503)}
	p.OCR = ocr

	_, err := p.IngestInvoice(ctx, writeDoc(t, "invoice.pdf", "%PDF"), "")
	require.Error(t, err)

	ocr.set(`{"lineItems": "nope"}`, nil)
	p.Now = func() time.Time { return base.Add(2 * time.Hour) }
	summary, err := p.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	entries, err := p.Store.DequeueDLQ(ctx, resilience.DLQFilter{DueBefore: base.Add(48 * time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, entries)

	n, err := p.Store.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func ingestPair(t *testing.T, p *Pipeline, invoiceIDs ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := p.IngestContract(ctx, writeDoc(t, "contract.json", contractJSON))
	require.NoError(t, err)
	for _, id := range invoiceIDs {
		_, err := p.IngestInvoice(ctx, writeDoc(t, id+".json", invoiceJSON(id)), "C-100")
		require.NoError(t, err)
	}
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t)
	pub := &recordingPublisher{}
	p.Publisher = pub
	ingestPair(t, p, "INV-1")

	run, err := p.Validate(ctx, "INV-1", "C-100")
	require.NoError(t, err)

	assert.Equal(t, model.ValidationUnderReview, run.Status)
	assert.Equal(t, "Cardinal Health", run.VendorName)
	assert.False(t, run.Result.OverallMatch)
	require.Len(t, run.Result.Exceptions, 1)
	ex := run.Result.Exceptions[0]
	assert.Equal(t, model.ExceptionPriceMismatch, ex.Type)
	assert.NotEmpty(t, ex.ID)
	assert.InDelta(t, 450.0, ex.Variance, 1e-9)
	assert.Equal(t, 2, run.Result.TotalLineItems)
	assert.Equal(t, 1, run.Result.CompliantLineItems)

	approvals, err := p.Store.ListApprovals(ctx, store.ApprovalFilter{ValidationID: run.ID})
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	assert.Equal(t, ex.ID, approvals[0].ExceptionID)
	assert.Equal(t, model.ApprovalPending, approvals[0].Status)
	assert.InDelta(t, 450.0, approvals[0].Amount, 1e-9)

	saved, err := p.Store.GetValidation(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.InvoiceID, saved.InvoiceID)

	assert.Equal(t, []string{run.ID}, pub.runs)
}

func TestValidate_PolicyOverride(t *testing.T) {
	p := newTestPipeline(t)
	threshold := 100.0
	p.Policies.Vendors["Cardinal Health"] = validation.PolicyOverride{CriticalOverchargeThreshold: &threshold}
	ingestPair(t, p, "INV-1")

	run, err := p.Validate(context.Background(), "INV-1", "C-100")
	require.NoError(t, err)
	require.Len(t, run.Result.Exceptions, 1)
	assert.Equal(t, model.SeverityCritical, run.Result.Exceptions[0].Severity)
}

func TestValidate_PublishFailureIsNotFatal(t *testing.T) {
	p := newTestPipeline(t)
	p.Publisher = &recordingPublisher{err: errors.New("notion: 502")}
	ingestPair(t, p, "INV-1")

	run, err := p.Validate(context.Background(), "INV-1", "C-100")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
}

func TestValidate_NotFound(t *testing.T) {
	p := newTestPipeline(t)
	ingestPair(t, p)

	_, err := p.Validate(context.Background(), "missing", "C-100")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.Contains(t, err.Error(), "load invoice")
}

func TestRevalidateContract(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t)
	pub := &recordingPublisher{}
	p.Publisher = pub
	ingestPair(t, p, "INV-1", "INV-2", "INV-3")

	summary, err := p.RevalidateContract(ctx, "C-100", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Len(t, summary.Runs, 3)
	assert.Len(t, pub.runs, 3)

	runs, err := p.Store.ListValidations(ctx, store.ValidationFilter{ContractID: "C-100"})
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRevalidateContract_NoInvoices(t *testing.T) {
	p := newTestPipeline(t)

	summary, err := p.RevalidateContract(context.Background(), "C-404", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
}

func TestProcessingError(t *testing.T) {
	t.Parallel()

	cause := eris.New("ocr: timeout")
	var err error = &ProcessingError{DocumentID: "d1", Stage: StageOCR, Category: model.ErrorCategoryTransient, Err: cause}
	wrapped := eris.Wrap(err, "api: upload")

	pe, ok := AsProcessingError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "d1", pe.DocumentID)
	assert.True(t, errors.Is(wrapped, cause))
	assert.Contains(t, err.Error(), "failed at ocr (transient)")

	_, ok = AsProcessingError(eris.New("plain"))
	assert.False(t, ok)
}
