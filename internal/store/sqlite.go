package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	file_name      TEXT NOT NULL,
	source_path    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'processing',
	progress       INTEGER NOT NULL DEFAULT 0,
	status_details TEXT NOT NULL DEFAULT '',
	error_category TEXT NOT NULL DEFAULT '',
	record_id      TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contracts (
	id          TEXT PRIMARY KEY,
	vendor_name TEXT NOT NULL DEFAULT '',
	data        TEXT NOT NULL,
	tokens      TEXT,
	document_id TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS invoices (
	id             TEXT PRIMARY KEY,
	contract_id    TEXT NOT NULL DEFAULT '',
	vendor_name    TEXT NOT NULL DEFAULT '',
	invoice_number TEXT NOT NULL DEFAULT '',
	data           TEXT NOT NULL,
	tokens         TEXT,
	document_id    TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS validations (
	id              TEXT PRIMARY KEY,
	invoice_id      TEXT NOT NULL,
	contract_id     TEXT NOT NULL,
	vendor_name     TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	overall_match   INTEGER NOT NULL,
	total_variance  REAL NOT NULL DEFAULT 0,
	exception_count INTEGER NOT NULL DEFAULT 0,
	result          TEXT NOT NULL,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS exceptions (
	id            TEXT PRIMARY KEY,
	validation_id TEXT NOT NULL REFERENCES validations(id),
	invoice_id    TEXT NOT NULL,
	type          TEXT NOT NULL,
	severity      TEXT NOT NULL,
	line_index    INTEGER NOT NULL,
	variance      REAL NOT NULL,
	description   TEXT NOT NULL,
	data          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS approvals (
	id             TEXT PRIMARY KEY,
	validation_id  TEXT NOT NULL REFERENCES validations(id),
	exception_id   TEXT NOT NULL,
	invoice_id     TEXT NOT NULL,
	vendor_name    TEXT NOT NULL DEFAULT '',
	amount         REAL NOT NULL,
	exception_type TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	decided_by     TEXT NOT NULL DEFAULT '',
	note           TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL,
	decided_at     DATETIME
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	document_id   TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	file_name     TEXT NOT NULL,
	source_path   TEXT NOT NULL,
	contract_id   TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL,
	category      TEXT NOT NULL,
	stage         TEXT NOT NULL DEFAULT '',
	retry_count   INTEGER NOT NULL DEFAULT 0,
	max_retries   INTEGER NOT NULL DEFAULT 3,
	next_retry_at DATETIME NOT NULL,
	created_at    DATETIME NOT NULL,
	last_failure  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_contracts_vendor ON contracts(vendor_name);
CREATE INDEX IF NOT EXISTS idx_invoices_contract ON invoices(contract_id);
CREATE INDEX IF NOT EXISTS idx_validations_pair ON validations(invoice_id, contract_id);
CREATE INDEX IF NOT EXISTS idx_exceptions_validation ON exceptions(validation_id);
CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals(status);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Documents ---

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = newID()
	}
	now := time.Now().UTC()
	doc.CreatedAt, doc.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, kind, file_name, source_path, status, progress, status_details, error_category, record_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, string(doc.Kind), doc.FileName, doc.SourcePath, string(doc.Status), doc.Progress,
		doc.StatusDetails, string(doc.ErrorCategory), doc.RecordID, now, now,
	)
	return eris.Wrap(err, "sqlite: insert document")
}

func (s *SQLiteStore) UpdateDocument(ctx context.Context, doc *model.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, progress = ?, status_details = ?, error_category = ?, record_id = ?, updated_at = ?
		 WHERE id = ?`,
		string(doc.Status), doc.Progress, doc.StatusDetails, string(doc.ErrorCategory), doc.RecordID, doc.UpdatedAt, doc.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document %s", doc.ID)
	}
	return checkRowsAffected(res, "document", doc.ID)
}

const sqliteDocumentColumns = `id, kind, file_name, source_path, status, progress, status_details, error_category, record_id, created_at, updated_at`

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteDocumentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if err != nil {
		return nil, notFound(err, "sqlite: get document", id)
	}
	return d, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error) {
	query := `SELECT ` + sqliteDocumentColumns + ` FROM documents WHERE 1=1`
	var args []any
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close() //nolint:errcheck

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: list documents iterate")
}

// --- Contracts and invoices ---

func (s *SQLiteStore) SaveContract(ctx context.Context, c *model.StoredContract) error {
	assignContractID(c)
	data, tokens, err := marshalRecord(c.Data, c.Tokens)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal contract")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contracts (id, vendor_name, data, tokens, document_id, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET vendor_name = excluded.vendor_name, data = excluded.data,
		   tokens = excluded.tokens, document_id = excluded.document_id`,
		c.Data.ContractID, c.Data.VendorName, string(data), string(tokens), c.DocumentID, c.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: save contract %s", c.Data.ContractID)
}

func (s *SQLiteStore) GetContract(ctx context.Context, id string) (*model.StoredContract, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data, tokens, document_id, created_at FROM contracts WHERE id = ?`, id)
	c, err := scanContract(row)
	if err != nil {
		return nil, notFound(err, "sqlite: get contract", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListContracts(ctx context.Context, vendor string) ([]model.StoredContract, error) {
	query := `SELECT data, tokens, document_id, created_at FROM contracts`
	var args []any
	if vendor != "" {
		query += ` WHERE lower(vendor_name) = lower(?)`
		args = append(args, vendor)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contracts")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.StoredContract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contract")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list contracts iterate")
}

func (s *SQLiteStore) SaveInvoice(ctx context.Context, inv *model.StoredInvoice) error {
	assignInvoiceID(inv)
	data, tokens, err := marshalRecord(inv.Data, inv.Tokens)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal invoice")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO invoices (id, contract_id, vendor_name, invoice_number, data, tokens, document_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET contract_id = excluded.contract_id, vendor_name = excluded.vendor_name,
		   invoice_number = excluded.invoice_number, data = excluded.data, tokens = excluded.tokens,
		   document_id = excluded.document_id`,
		inv.Data.InvoiceID, inv.ContractID, inv.Data.VendorName, inv.Data.InvoiceNumber,
		string(data), string(tokens), inv.DocumentID, inv.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: save invoice %s", inv.Data.InvoiceID)
}

func (s *SQLiteStore) GetInvoice(ctx context.Context, id string) (*model.StoredInvoice, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data, contract_id, tokens, document_id, created_at FROM invoices WHERE id = ?`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		return nil, notFound(err, "sqlite: get invoice", id)
	}
	return inv, nil
}

func (s *SQLiteStore) ListInvoices(ctx context.Context, contractID string) ([]model.StoredInvoice, error) {
	query := `SELECT data, contract_id, tokens, document_id, created_at FROM invoices`
	var args []any
	if contractID != "" {
		query += ` WHERE contract_id = ?`
		args = append(args, contractID)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list invoices")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.StoredInvoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan invoice")
		}
		out = append(out, *inv)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list invoices iterate")
}

// --- Validations and approvals ---

func (s *SQLiteStore) SaveValidation(ctx context.Context, run *model.ValidationRun, approvals []model.ApprovalRequest) error {
	prepareValidation(run, approvals, time.Now().UTC())
	result, err := json.Marshal(run.Result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal validation result")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO validations (id, invoice_id, contract_id, vendor_name, status, overall_match, total_variance, exception_count, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.InvoiceID, run.ContractID, run.VendorName, string(run.Status), run.Result.OverallMatch,
		run.Result.TotalVariance, len(run.Result.Exceptions), string(result), run.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert validation")
	}

	rows, err := exceptionRows(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal exceptions")
	}
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO exceptions (`+exceptionColumnList+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, r...); err != nil {
			return eris.Wrap(err, "sqlite: insert exception")
		}
	}

	for _, a := range approvals {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO approvals (id, validation_id, exception_id, invoice_id, vendor_name, amount, exception_type, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.ValidationID, a.ExceptionID, a.InvoiceID, a.VendorName, a.Amount,
			string(a.ExceptionType), string(a.Status), a.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert approval")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit validation")
}

func (s *SQLiteStore) GetValidation(ctx context.Context, id string) (*model.ValidationRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, invoice_id, contract_id, vendor_name, status, result, created_at FROM validations WHERE id = ?`, id)
	run, err := scanValidation(row)
	if err != nil {
		return nil, notFound(err, "sqlite: get validation", id)
	}
	return run, nil
}

func (s *SQLiteStore) ListValidations(ctx context.Context, filter ValidationFilter) ([]model.ValidationRun, error) {
	query := `SELECT id, invoice_id, contract_id, vendor_name, status, result, created_at FROM validations WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.VendorName != "" {
		query += ` AND lower(vendor_name) = lower(?)`
		args = append(args, filter.VendorName)
	}
	if filter.ContractID != "" {
		query += ` AND contract_id = ?`
		args = append(args, filter.ContractID)
	}
	if filter.InvoiceID != "" {
		query += ` AND invoice_id = ?`
		args = append(args, filter.InvoiceID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if !filter.Latest {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, listLimit(filter.Limit), max(filter.Offset, 0))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list validations")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.ValidationRun
	for rows.Next() {
		run, err := scanValidation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan validation")
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list validations iterate")
	}
	if filter.Latest {
		runs = latestPerPair(runs, max(filter.Offset, 0), listLimit(filter.Limit))
	}
	return runs, nil
}

const sqliteApprovalColumns = `id, validation_id, exception_id, invoice_id, vendor_name, amount, exception_type, status, decided_by, note, created_at, decided_at`

func (s *SQLiteStore) ListApprovals(ctx context.Context, filter ApprovalFilter) ([]model.ApprovalRequest, error) {
	query := `SELECT ` + sqliteApprovalColumns + ` FROM approvals WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ValidationID != "" {
		query += ` AND validation_id = ?`
		args = append(args, filter.ValidationID)
	}
	query += ` ORDER BY created_at DESC, amount DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list approvals")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan approval")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list approvals iterate")
}

func (s *SQLiteStore) DecideApproval(ctx context.Context, id string, status model.ApprovalStatus, decidedBy, note string) (*model.ApprovalRequest, error) {
	if !validDecision(status) {
		return nil, eris.Errorf("sqlite: invalid approval decision %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE approvals SET status = ?, decided_by = ?, note = ?, decided_at = ? WHERE id = ? AND status = ?`,
		string(status), decidedBy, note, time.Now().UTC(), id, string(model.ApprovalPending),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: decide approval %s", id)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteApprovalColumns+` FROM approvals WHERE id = ?`, id)
	a, err := scanApproval(row)
	if err != nil {
		return nil, notFound(err, "sqlite: get approval", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return a, eris.Wrapf(ErrAlreadyDecided, "approval %s is %s", id, a.Status)
	}
	return a, nil
}

// --- Dead letter queue ---

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, e resilience.DLQEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue
		 (document_id, kind, file_name, source_path, contract_id, error, category, stage, retry_count, max_retries, next_retry_at, created_at, last_failure)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (document_id) DO UPDATE SET
		   error = excluded.error, category = excluded.category, stage = excluded.stage,
		   retry_count = excluded.retry_count, next_retry_at = excluded.next_retry_at, last_failure = excluded.last_failure`,
		e.DocumentID, string(e.Kind), e.FileName, e.SourcePath, e.ContractID, e.Error, string(e.Category),
		e.Stage, e.RetryCount, e.MaxRetries, e.NextRetryAt.UTC(), e.CreatedAt.UTC(), e.LastFailure.UTC(),
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	due := filter.DueBefore
	if due.IsZero() {
		due = time.Now()
	}
	query := `SELECT document_id, kind, file_name, source_path, contract_id, error, category, stage,
	                 retry_count, max_retries, next_retry_at, created_at, last_failure
	          FROM dead_letter_queue
	          WHERE next_retry_at <= ? AND retry_count < max_retries AND category <> ?`
	args := []any{due.UTC(), string(model.ErrorCategoryPermanent)}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	query += ` ORDER BY next_retry_at ASC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dequeue dlq")
	}
	defer rows.Close() //nolint:errcheck

	var entries []resilience.DLQEntry
	for rows.Next() {
		e, err := scanDLQEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: dequeue dlq iterate")
}

func (s *SQLiteStore) IncrementDLQRetry(ctx context.Context, documentID string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failure = ?
		 WHERE document_id = ?`,
		nextRetryAt.UTC(), lastErr, time.Now().UTC(), documentID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment dlq retry %s", documentID)
	}
	return checkRowsAffected(res, "dlq entry", documentID)
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE document_id = ?`, documentID)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count dlq")
}

// --- helpers ---

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

// notFound maps a missing row to ErrNotFound and wraps anything else.
func notFound(err error, action, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "%s %s", action, id)
	}
	return eris.Wrapf(err, "%s %s", action, id)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDocument(row scannable) (*model.Document, error) {
	var d model.Document
	var kind, status, category string
	if err := row.Scan(&d.ID, &kind, &d.FileName, &d.SourcePath, &status, &d.Progress,
		&d.StatusDetails, &category, &d.RecordID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Kind = model.DocumentKind(kind)
	d.Status = model.DocumentStatus(status)
	d.ErrorCategory = model.ErrorCategory(category)
	return &d, nil
}

func scanContract(row scannable) (*model.StoredContract, error) {
	var c model.StoredContract
	var data string
	var tokens sql.NullString
	if err := row.Scan(&data, &tokens, &c.DocumentID, &c.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalRecord([]byte(data), []byte(tokens.String), &c.Data, &c.Tokens); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanInvoice(row scannable) (*model.StoredInvoice, error) {
	var inv model.StoredInvoice
	var data string
	var tokens sql.NullString
	if err := row.Scan(&data, &inv.ContractID, &tokens, &inv.DocumentID, &inv.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalRecord([]byte(data), []byte(tokens.String), &inv.Data, &inv.Tokens); err != nil {
		return nil, err
	}
	return &inv, nil
}

func scanValidation(row scannable) (*model.ValidationRun, error) {
	var run model.ValidationRun
	var status, result string
	if err := row.Scan(&run.ID, &run.InvoiceID, &run.ContractID, &run.VendorName, &status, &result, &run.CreatedAt); err != nil {
		return nil, err
	}
	run.Status = model.ValidationStatus(status)
	if err := json.Unmarshal([]byte(result), &run.Result); err != nil {
		return nil, eris.Wrap(err, "unmarshal validation result")
	}
	return &run, nil
}

func scanApproval(row scannable) (*model.ApprovalRequest, error) {
	var a model.ApprovalRequest
	var exType, status string
	var decidedAt sql.NullTime
	if err := row.Scan(&a.ID, &a.ValidationID, &a.ExceptionID, &a.InvoiceID, &a.VendorName, &a.Amount,
		&exType, &status, &a.DecidedBy, &a.Note, &a.CreatedAt, &decidedAt); err != nil {
		return nil, err
	}
	a.ExceptionType = model.ExceptionType(exType)
	a.Status = model.ApprovalStatus(status)
	if decidedAt.Valid {
		t := decidedAt.Time
		a.DecidedAt = &t
	}
	return &a, nil
}

func scanDLQEntry(row scannable) (*resilience.DLQEntry, error) {
	var e resilience.DLQEntry
	var kind, category string
	if err := row.Scan(&e.DocumentID, &kind, &e.FileName, &e.SourcePath, &e.ContractID, &e.Error, &category,
		&e.Stage, &e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailure); err != nil {
		return nil, err
	}
	e.Kind = model.DocumentKind(kind)
	e.Category = model.ErrorCategory(category)
	return &e, nil
}
