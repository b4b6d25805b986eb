package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-validator/internal/config"
	"github.com/sells-group/contract-validator/internal/extract"
	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/monitoring"
	"github.com/sells-group/contract-validator/internal/pipeline"
	"github.com/sells-group/contract-validator/internal/report"
	"github.com/sells-group/contract-validator/internal/store"
)

const contractJSON = `{
  "contractId": "C-100",
  "vendorName": "Cardinal Health",
  "billableItems": [
    {"description": "Surgical Gloves, Size L", "unitPrice": 4.75, "unit": "box", "pageNumber": 2}
  ]
}`

const invoiceJSON = `{
  "invoiceId": "INV-1",
  "vendorName": "Cardinal Health",
  "lineItems": [
    {"description": "Surgical Gloves, Size L", "quantity": 1000, "unitPrice": 5.20, "totalPrice": 5200, "pageNumber": 1},
    {"description": "Courier Fee", "quantity": 1, "unitPrice": 35, "totalPrice": 35, "pageNumber": 1}
  ]
}`

func newTestServer(t *testing.T) (*httptest.Server, *pipeline.Pipeline) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	p := &pipeline.Pipeline{Store: st, Extractor: extract.JSONExtractor{}}
	srv := httptest.NewServer(New(p, config.ServerConfig{UploadDir: t.TempDir()}).Routes())
	t.Cleanup(srv.Close)
	return srv, p
}

func upload(t *testing.T, srv *httptest.Server, kind, name, body string, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("documentType", kind))
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/documents", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck
	return resp
}

func postJSON(t *testing.T, srv *httptest.Server, path string, v any) *http.Response {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck
	return resp
}

func get(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func seed(t *testing.T, srv *httptest.Server) {
	t.Helper()
	resp := upload(t, srv, "contract", "contract.json", contractJSON, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = upload(t, srv, "invoice", "invoice.json", invoiceJSON, map[string]string{"contractId": "C-100"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, resp))
}

func TestUploadDocument(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := upload(t, srv, "Contract", "contract.json", contractJSON, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode[uploadResponse](t, resp)
	assert.Equal(t, model.DocumentContract, body.Kind)
	assert.Equal(t, "C-100", body.RecordID)
	require.NotNil(t, body.Contract)
	assert.Len(t, body.Contract.BillableItems, 1)

	resp = get(t, srv, "/api/documents/"+body.DocumentID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := decode[model.Document](t, resp)
	assert.Equal(t, model.DocumentCompleted, doc.Status)
	assert.Equal(t, 100, doc.Progress)
}

func TestUploadDocument_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := upload(t, srv, "receipt", "contract.json", contractJSON, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = upload(t, srv, "contract", "contract.docx", "x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err := http.Post(srv.URL+"/api/documents", "text/plain", strings.NewReader("nope"))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadDocument_ShapeError(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := upload(t, srv, "invoice", "invoice.json", `{"lineItems": [{"description": ""}]}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.NotEmpty(t, body.DocumentID)
	assert.Equal(t, pipeline.StageExtract, body.Stage)
	assert.Equal(t, string(model.ErrorCategoryPermanent), body.Category)

	resp = get(t, srv, "/api/documents/"+body.DocumentID)
	doc := decode[model.Document](t, resp)
	assert.Equal(t, model.DocumentFailed, doc.Status)
}

func TestGetDocument_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := get(t, srv, "/api/documents/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListRecords(t *testing.T) {
	srv, _ := newTestServer(t)
	seed(t, srv)

	contracts := decode[[]model.ContractData](t, get(t, srv, "/api/contracts"))
	require.Len(t, contracts, 1)
	assert.Equal(t, "C-100", contracts[0].ContractID)

	invoices := decode[[]invoiceSummary](t, get(t, srv, "/api/invoices?contractId=C-100"))
	require.Len(t, invoices, 1)
	assert.Equal(t, "INV-1", invoices[0].InvoiceID)
	assert.Equal(t, "C-100", invoices[0].ContractID)
}

func TestValidationFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	seed(t, srv)

	resp := postJSON(t, srv, "/api/validations", validationRequest{InvoiceID: "INV-1", ContractID: "C-100"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	run := decode[model.ValidationRun](t, resp)
	assert.Equal(t, model.ValidationUnderReview, run.Status)
	require.Len(t, run.Result.Exceptions, 2)

	got := decode[model.ValidationRun](t, get(t, srv, "/api/validations/"+run.ID))
	assert.Equal(t, run.ID, got.ID)

	runs := decode[[]model.ValidationRun](t, get(t, srv, "/api/validations?status=under_review&latest=true"))
	assert.Len(t, runs, 1)

	approvals := decode[[]model.ApprovalRequest](t, get(t, srv, "/api/approvals?status=pending"))
	require.Len(t, approvals, 2)

	resp = postJSON(t, srv, "/api/approvals/"+approvals[0].ID+"/decision", decisionRequest{
		Status: model.ApprovalRejected, DecidedBy: "ap-team", Note: "dispute with vendor",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decided := decode[model.ApprovalRequest](t, resp)
	assert.Equal(t, model.ApprovalRejected, decided.Status)
	assert.Equal(t, "ap-team", decided.DecidedBy)

	resp = postJSON(t, srv, "/api/approvals/"+approvals[0].ID+"/decision", decisionRequest{
		Status: model.ApprovalApproved, DecidedBy: "ap-team",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	rep := decode[report.AnalysisReport](t, get(t, srv, "/api/report"))
	assert.Equal(t, 1, rep.Summary.InvoicesProcessed)
	assert.Equal(t, 2, rep.Summary.TotalExceptions)
}

func TestCreateValidation_Errors(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv, "/api/validations", validationRequest{InvoiceID: "INV-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv, "/api/validations", validationRequest{InvoiceID: "INV-1", ContractID: "C-1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err := http.Post(srv.URL+"/api/validations", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDecideApproval_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv, "/api/approvals/a1/decision", decisionRequest{Status: "maybe", DecidedBy: "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv, "/api/approvals/a1/decision", decisionRequest{Status: model.ApprovalApproved})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv, "/api/approvals/a1/decision", decisionRequest{Status: model.ApprovalApproved, DecidedBy: "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCompare(t *testing.T) {
	srv, _ := newTestServer(t)

	var inv model.InvoiceData
	require.NoError(t, json.Unmarshal([]byte(invoiceJSON), &inv))
	var contract model.ContractData
	require.NoError(t, json.Unmarshal([]byte(contractJSON), &contract))

	resp := postJSON(t, srv, "/api/compare", compareRequest{Invoice: &inv, Contract: &contract})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[model.ComparisonResult](t, resp)
	assert.False(t, res.OverallMatch)
	assert.Len(t, res.Exceptions, 2)
	assert.InDelta(t, 450.0, res.TotalVariance, 1e-9)

	resp = postJSON(t, srv, "/api/compare", compareRequest{Contract: &contract})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestEvidence(t *testing.T) {
	srv, _ := newTestServer(t)

	toks := []model.PositionedToken{
		{Text: "Surgical", Page: 1, X: 10, Y: 50, Width: 48, Height: 12},
		{Text: "Gloves", Page: 1, X: 62, Y: 50, Width: 36, Height: 12},
	}
	resp := postJSON(t, srv, "/api/evidence", evidenceRequest{Tokens: toks, SearchText: "Surgical Gloves", Page: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[evidenceResponse](t, resp)
	assert.True(t, body.Found)
	assert.Equal(t, model.BoundingBox{X: 10, Y: 50, Width: 88, Height: 12}, body.Box)

	body = decode[evidenceResponse](t, postJSON(t, srv, "/api/evidence", evidenceRequest{Tokens: toks, SearchText: "Masks", Page: 1}))
	assert.False(t, body.Found)
}

func TestListValidations_BadPaging(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := get(t, srv, "/api/validations?limit=-1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := upload(t, srv, "Contract", "contract.json", contractJSON, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = upload(t, srv, "Contract", "broken.json", `{"vendorName": "x"}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = get(t, srv, "/api/metrics?hours=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[monitoring.MetricsSnapshot](t, resp)
	assert.Equal(t, 2, snap.DocumentsTotal)
	assert.Equal(t, 1, snap.DocumentsCompleted)
	assert.Equal(t, 1, snap.DocumentsFailed)
	assert.Equal(t, 1, snap.LookbackHours)

	resp = get(t, srv, "/api/metrics?hours=zero")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/validations", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://ap.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusBadRequest, statusFor(badRequest("x")))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(&extract.RejectedError{Kind: model.DocumentInvoice, Reason: "not an invoice"}))
	assert.Equal(t, http.StatusBadGateway, statusFor(&pipeline.ProcessingError{Category: model.ErrorCategoryTransient, Err: context.DeadlineExceeded}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(&pipeline.ProcessingError{Category: model.ErrorCategoryPermanent, Err: context.Canceled}))
}
