package api

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-validator/internal/extract"
	"github.com/sells-group/contract-validator/internal/fetcher"
	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/monitoring"
	"github.com/sells-group/contract-validator/internal/report"
	"github.com/sells-group/contract-validator/internal/store"
	"github.com/sells-group/contract-validator/internal/validation"
)

const reportLimit = 10000

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type uploadResponse struct {
	DocumentID string              `json:"documentId"`
	Kind       model.DocumentKind  `json:"kind"`
	RecordID   string              `json:"recordId"`
	Contract   *model.ContractData `json:"contract,omitempty"`
	Invoice    *model.InvoiceData  `json:"invoice,omitempty"`
}

func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, badRequest("invalid multipart form: "+err.Error()))
		return
	}

	kind, ok := model.ParseDocumentKind(r.FormValue("documentType"))
	if !ok {
		writeError(w, badRequest("documentType must be contract or invoice"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, badRequest("file is required"))
		return
	}
	defer file.Close() //nolint:errcheck

	name := filepath.Base(header.Filename)
	if !fetcher.IsDocument(name) {
		writeError(w, badRequest("unsupported file type "+filepath.Ext(name)))
		return
	}
	path, err := s.saveUpload(name, file)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	switch kind {
	case model.DocumentContract:
		stored, err := s.pipeline.IngestContract(ctx, path)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, uploadResponse{
			DocumentID: stored.DocumentID,
			Kind:       kind,
			RecordID:   stored.Data.ContractID,
			Contract:   &stored.Data,
		})
	case model.DocumentInvoice:
		stored, err := s.pipeline.IngestInvoice(ctx, path, strings.TrimSpace(r.FormValue("contractId")))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, uploadResponse{
			DocumentID: stored.DocumentID,
			Kind:       kind,
			RecordID:   stored.Data.InvoiceID,
			Invoice:    &stored.Data,
		})
	}
}

func (s *Server) saveUpload(name string, src multipart.File) (string, error) {
	dir := s.uploadDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "contract-validator")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "api: create upload dir")
	}
	dest := filepath.Join(dir, uuid.New().String()+"-"+name)
	f, err := os.Create(dest)
	if err != nil {
		return "", eris.Wrap(err, "api: create upload")
	}
	defer f.Close() //nolint:errcheck
	if _, err := io.Copy(f, src); err != nil {
		return "", eris.Wrap(err, "api: write upload")
	}
	return dest, nil
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.pipeline.Store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) listContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := s.pipeline.Store.ListContracts(r.Context(), r.URL.Query().Get("vendor"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]model.ContractData, len(contracts))
	for i, c := range contracts {
		out[i] = c.Data
	}
	writeJSON(w, http.StatusOK, out)
}

type invoiceSummary struct {
	model.InvoiceData
	ContractID string `json:"contractId,omitempty"`
}

func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.pipeline.Store.ListInvoices(r.Context(), r.URL.Query().Get("contractId"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]invoiceSummary, len(invoices))
	for i, inv := range invoices {
		out[i] = invoiceSummary{InvoiceData: inv.Data, ContractID: inv.ContractID}
	}
	writeJSON(w, http.StatusOK, out)
}

type validationRequest struct {
	InvoiceID  string `json:"invoiceId"`
	ContractID string `json:"contractId"`
}

func (s *Server) createValidation(w http.ResponseWriter, r *http.Request) {
	var req validationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.InvoiceID == "" || req.ContractID == "" {
		writeError(w, badRequest("invoiceId and contractId are required"))
		return
	}
	run, err := s.pipeline.Validate(r.Context(), req.InvoiceID, req.ContractID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) listValidations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, err := paging(q.Get("limit"), q.Get("offset"))
	if err != nil {
		writeError(w, err)
		return
	}
	runs, err := s.pipeline.Store.ListValidations(r.Context(), store.ValidationFilter{
		Status:     model.ValidationStatus(q.Get("status")),
		VendorName: q.Get("vendor"),
		ContractID: q.Get("contractId"),
		InvoiceID:  q.Get("invoiceId"),
		Latest:     q.Get("latest") == "true",
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getValidation(w http.ResponseWriter, r *http.Request) {
	run, err := s.pipeline.Store.GetValidation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type compareRequest struct {
	Invoice        *model.InvoiceData      `json:"invoice"`
	Contract       *model.ContractData     `json:"contract"`
	InvoiceTokens  []model.PositionedToken `json:"invoiceTokens"`
	ContractTokens []model.PositionedToken `json:"contractTokens"`
}

// compare runs the comparison core on posted records without storing them.
func (s *Server) compare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := extract.ValidateInvoice(req.Invoice); err != nil {
		writeError(w, err)
		return
	}
	if err := extract.ValidateContract(req.Contract); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.Compare(req.Invoice, req.Contract, req.InvoiceTokens, req.ContractTokens))
}

type evidenceRequest struct {
	Tokens     []model.PositionedToken `json:"tokens"`
	SearchText string                  `json:"searchText"`
	Page       int                     `json:"page"`
}

type evidenceResponse struct {
	Found bool              `json:"found"`
	Box   model.BoundingBox `json:"box"`
}

func (s *Server) evidence(w http.ResponseWriter, r *http.Request) {
	var req evidenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	box := validation.FindEvidence(req.Tokens, req.SearchText, req.Page)
	writeJSON(w, http.StatusOK, evidenceResponse{Found: !box.IsZero(), Box: box})
}

func (s *Server) listApprovals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _, err := paging(q.Get("limit"), "")
	if err != nil {
		writeError(w, err)
		return
	}
	approvals, err := s.pipeline.Store.ListApprovals(r.Context(), store.ApprovalFilter{
		Status:       model.ApprovalStatus(q.Get("status")),
		ValidationID: q.Get("validationId"),
		Limit:        limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approvals)
}

type decisionRequest struct {
	Status    model.ApprovalStatus `json:"status"`
	DecidedBy string               `json:"decidedBy"`
	Note      string               `json:"note"`
}

func (s *Server) decideApproval(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Status != model.ApprovalApproved && req.Status != model.ApprovalRejected {
		writeError(w, badRequest("status must be approved or rejected"))
		return
	}
	if strings.TrimSpace(req.DecidedBy) == "" {
		writeError(w, badRequest("decidedBy is required"))
		return
	}
	approval, err := s.pipeline.Store.DecideApproval(r.Context(), chi.URLParam(r, "id"), req.Status, req.DecidedBy, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	runs, err := s.pipeline.Store.ListValidations(r.Context(), store.ValidationFilter{
		VendorName: q.Get("vendor"),
		ContractID: q.Get("contractId"),
		Latest:     true,
		Limit:      reportLimit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report.Analyze(runs))
}

const defaultMetricsHours = 24

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	hours := defaultMetricsHours
	if h := r.URL.Query().Get("hours"); h != "" {
		n, err := strconv.Atoi(h)
		if err != nil || n <= 0 {
			writeError(w, badRequest("hours must be a positive integer"))
			return
		}
		hours = n
	}
	snap, err := monitoring.NewCollector(s.pipeline.Store).Collect(r.Context(), hours)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func paging(limitStr, offsetStr string) (int, int, error) {
	var limit, offset int
	var err error
	if limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil || limit < 0 {
			return 0, 0, badRequest("limit must be a non-negative integer")
		}
	}
	if offsetStr != "" {
		if offset, err = strconv.Atoi(offsetStr); err != nil || offset < 0 {
			return 0, 0, badRequest("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
