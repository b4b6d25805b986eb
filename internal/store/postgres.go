package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contract-validator/internal/db"
	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements are prepared on each new connection.
var preparedStatements = map[string]string{
	"get_document":   `SELECT ` + pgDocumentColumns + ` FROM documents WHERE id = $1`,
	"get_contract":   `SELECT data, tokens, document_id, created_at FROM contracts WHERE id = $1`,
	"get_invoice":    `SELECT data, contract_id, tokens, document_id, created_at FROM invoices WHERE id = $1`,
	"get_validation": `SELECT id, invoice_id, contract_id, vendor_name, status, result, created_at FROM validations WHERE id = $1`,
	"get_approval":   `SELECT ` + pgApprovalColumns + ` FROM approvals WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = min(minConns, maxConns)
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	zap.L().Debug("postgres: connected", zap.Int32("max_conns", maxConns))
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	kind           TEXT NOT NULL,
	file_name      TEXT NOT NULL,
	source_path    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'processing',
	progress       INTEGER NOT NULL DEFAULT 0,
	status_details TEXT NOT NULL DEFAULT '',
	error_category TEXT NOT NULL DEFAULT '',
	record_id      TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contracts (
	id          TEXT PRIMARY KEY,
	vendor_name TEXT NOT NULL DEFAULT '',
	data        JSONB NOT NULL,
	tokens      JSONB,
	document_id TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS invoices (
	id             TEXT PRIMARY KEY,
	contract_id    TEXT NOT NULL DEFAULT '',
	vendor_name    TEXT NOT NULL DEFAULT '',
	invoice_number TEXT NOT NULL DEFAULT '',
	data           JSONB NOT NULL,
	tokens         JSONB,
	document_id    TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS validations (
	id              TEXT PRIMARY KEY,
	invoice_id      TEXT NOT NULL,
	contract_id     TEXT NOT NULL,
	vendor_name     TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	overall_match   BOOLEAN NOT NULL,
	total_variance  NUMERIC(14,2) NOT NULL DEFAULT 0,
	exception_count INTEGER NOT NULL DEFAULT 0,
	result          JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS exceptions (
	id            TEXT PRIMARY KEY,
	validation_id TEXT NOT NULL REFERENCES validations(id) ON DELETE CASCADE,
	invoice_id    TEXT NOT NULL,
	type          TEXT NOT NULL,
	severity      TEXT NOT NULL,
	line_index    INTEGER NOT NULL,
	variance      DOUBLE PRECISION NOT NULL,
	description   TEXT NOT NULL,
	data          JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS approvals (
	id             TEXT PRIMARY KEY,
	validation_id  TEXT NOT NULL REFERENCES validations(id) ON DELETE CASCADE,
	exception_id   TEXT NOT NULL,
	invoice_id     TEXT NOT NULL,
	vendor_name    TEXT NOT NULL DEFAULT '',
	amount         DOUBLE PRECISION NOT NULL,
	exception_type TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	decided_by     TEXT NOT NULL DEFAULT '',
	note           TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	decided_at     TIMESTAMPTZ
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
	next_retry_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failure  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_contracts_vendor ON contracts(lower(vendor_name));
CREATE INDEX IF NOT EXISTS idx_invoices_contract ON invoices(contract_id);
CREATE INDEX IF NOT EXISTS idx_validations_pair ON validations(invoice_id, contract_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_exceptions_validation ON exceptions(validation_id);
CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals(status);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Documents ---

const pgDocumentColumns = `id, kind, file_name, source_path, status, progress, status_details, error_category, record_id, created_at, updated_at`

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = newID()
	}
	now := time.Now().UTC()
	doc.CreatedAt, doc.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (`+pgDocumentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		doc.ID, string(doc.Kind), doc.FileName, doc.SourcePath, string(doc.Status), doc.Progress,
		doc.StatusDetails, string(doc.ErrorCategory), doc.RecordID, now, now,
	)
	return eris.Wrap(err, "postgres: insert document")
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, doc *model.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $1, progress = $2, status_details = $3, error_category = $4, record_id = $5, updated_at = $6
		 WHERE id = $7`,
		string(doc.Status), doc.Progress, doc.StatusDetails, string(doc.ErrorCategory), doc.RecordID, doc.UpdatedAt, doc.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document %s", doc.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "document %s", doc.ID)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	d, err := scanDocument(s.pool.QueryRow(ctx, `SELECT `+pgDocumentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		return nil, pgNotFound(err, "postgres: get document", id)
	}
	return d, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error) {
	q := newQuery(`SELECT ` + pgDocumentColumns + ` FROM documents WHERE true`)
	if filter.Kind != "" {
		q.where("kind = %s", string(filter.Kind))
	}
	if filter.Status != "" {
		q.where("status = %s", string(filter.Status))
	}
	q.sql += ` ORDER BY created_at DESC`
	q.page(listLimit(filter.Limit), filter.Offset)

	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: list documents iterate")
}

// --- Contracts and invoices ---

func (s *PostgresStore) SaveContract(ctx context.Context, c *model.StoredContract) error {
	assignContractID(c)
	data, tokens, err := marshalRecord(c.Data, c.Tokens)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal contract")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO contracts (id, vendor_name, data, tokens, document_id, created_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET vendor_name = EXCLUDED.vendor_name, data = EXCLUDED.data,
		   tokens = EXCLUDED.tokens, document_id = EXCLUDED.document_id`,
		c.Data.ContractID, c.Data.VendorName, data, tokens, c.DocumentID, c.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save contract %s", c.Data.ContractID)
}

func (s *PostgresStore) GetContract(ctx context.Context, id string) (*model.StoredContract, error) {
	c, err := scanPgContract(s.pool.QueryRow(ctx,
		`SELECT data, tokens, document_id, created_at FROM contracts WHERE id = $1`, id))
	if err != nil {
		return nil, pgNotFound(err, "postgres: get contract", id)
	}
	return c, nil
}

func (s *PostgresStore) ListContracts(ctx context.Context, vendor string) ([]model.StoredContract, error) {
	q := newQuery(`SELECT data, tokens, document_id, created_at FROM contracts WHERE true`)
	if vendor != "" {
		q.where("lower(vendor_name) = lower(%s)", vendor)
	}
	q.sql += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contracts")
	}
	defer rows.Close()

	var out []model.StoredContract
	for rows.Next() {
		c, err := scanPgContract(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan contract")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list contracts iterate")
}

func (s *PostgresStore) SaveInvoice(ctx context.Context, inv *model.StoredInvoice) error {
	assignInvoiceID(inv)
	data, tokens, err := marshalRecord(inv.Data, inv.Tokens)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal invoice")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO invoices (id, contract_id, vendor_name, invoice_number, data, tokens, document_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET contract_id = EXCLUDED.contract_id, vendor_name = EXCLUDED.vendor_name,
		   invoice_number = EXCLUDED.invoice_number, data = EXCLUDED.data, tokens = EXCLUDED.tokens,
		   document_id = EXCLUDED.document_id`,
		inv.Data.InvoiceID, inv.ContractID, inv.Data.VendorName, inv.Data.InvoiceNumber,
		data, tokens, inv.DocumentID, inv.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save invoice %s", inv.Data.InvoiceID)
}

func (s *PostgresStore) GetInvoice(ctx context.Context, id string) (*model.StoredInvoice, error) {
	inv, err := scanPgInvoice(s.pool.QueryRow(ctx,
		`SELECT data, contract_id, tokens, document_id, created_at FROM invoices WHERE id = $1`, id))
	if err != nil {
		return nil, pgNotFound(err, "postgres: get invoice", id)
	}
	return inv, nil
}

func (s *PostgresStore) ListInvoices(ctx context.Context, contractID string) ([]model.StoredInvoice, error) {
	q := newQuery(`SELECT data, contract_id, tokens, document_id, created_at FROM invoices WHERE true`)
	if contractID != "" {
		q.where("contract_id = %s", contractID)
	}
	q.sql += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list invoices")
	}
	defer rows.Close()

	var out []model.StoredInvoice
	for rows.Next() {
		inv, err := scanPgInvoice(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan invoice")
		}
		out = append(out, *inv)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list invoices iterate")
}

// --- Validations and approvals ---

// SaveValidation writes the run, bulk-copies its exceptions and opens the
// approval requests in one transaction.
func (s *PostgresStore) SaveValidation(ctx context.Context, run *model.ValidationRun, approvals []model.ApprovalRequest) error {
	prepareValidation(run, approvals, time.Now().UTC())
	result, err := json.Marshal(run.Result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal validation result")
	}
	exRows, err := exceptionRows(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal exceptions")
	}

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO validations (id, invoice_id, contract_id, vendor_name, status, overall_match, total_variance, exception_count, result, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			run.ID, run.InvoiceID, run.ContractID, run.VendorName, string(run.Status), run.Result.OverallMatch,
			run.Result.TotalVariance, len(run.Result.Exceptions), result, run.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert validation")
		}

		if _, err := db.CopyFrom(ctx, tx, "exceptions", exceptionColumns, exRows); err != nil {
			return err
		}

		for _, a := range approvals {
			_, err := tx.Exec(ctx,
				`INSERT INTO approvals (id, validation_id, exception_id, invoice_id, vendor_name, amount, exception_type, status, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				a.ID, a.ValidationID, a.ExceptionID, a.InvoiceID, a.VendorName, a.Amount,
				string(a.ExceptionType), string(a.Status), a.CreatedAt,
			)
			if err != nil {
				return eris.Wrap(err, "postgres: insert approval")
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetValidation(ctx context.Context, id string) (*model.ValidationRun, error) {
	run, err := scanPgValidation(s.pool.QueryRow(ctx,
		`SELECT id, invoice_id, contract_id, vendor_name, status, result, created_at FROM validations WHERE id = $1`, id))
	if err != nil {
		return nil, pgNotFound(err, "postgres: get validation", id)
	}
	return run, nil
}

func (s *PostgresStore) ListValidations(ctx context.Context, filter ValidationFilter) ([]model.ValidationRun, error) {
	base := `SELECT id, invoice_id, contract_id, vendor_name, status, result, created_at FROM validations WHERE true`
	if filter.Latest {
		base = `SELECT DISTINCT ON (invoice_id, contract_id) id, invoice_id, contract_id, vendor_name, status, result, created_at
		        FROM validations WHERE true`
	}
	q := newQuery(base)
	if filter.Status != "" {
		q.where("status = %s", string(filter.Status))
	}
	if filter.VendorName != "" {
		q.where("lower(vendor_name) = lower(%s)", filter.VendorName)
	}
	if filter.ContractID != "" {
		q.where("contract_id = %s", filter.ContractID)
	}
	if filter.InvoiceID != "" {
		q.where("invoice_id = %s", filter.InvoiceID)
	}
	if filter.Latest {
		q.sql = `SELECT * FROM (` + q.sql + ` ORDER BY invoice_id, contract_id, created_at DESC) latest ORDER BY created_at DESC`
	} else {
		q.sql += ` ORDER BY created_at DESC`
	}
	q.page(listLimit(filter.Limit), filter.Offset)

	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list validations")
	}
	defer rows.Close()

	var runs []model.ValidationRun
	for rows.Next() {
		run, err := scanPgValidation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan validation")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list validations iterate")
}

const pgApprovalColumns = `id, validation_id, exception_id, invoice_id, vendor_name, amount, exception_type, status, decided_by, note, created_at, decided_at`

func (s *PostgresStore) ListApprovals(ctx context.Context, filter ApprovalFilter) ([]model.ApprovalRequest, error) {
	q := newQuery(`SELECT ` + pgApprovalColumns + ` FROM approvals WHERE true`)
	if filter.Status != "" {
		q.where("status = %s", string(filter.Status))
	}
	if filter.ValidationID != "" {
		q.where("validation_id = %s", filter.ValidationID)
	}
	q.sql += ` ORDER BY created_at DESC, amount DESC`
	q.page(listLimit(filter.Limit), 0)

	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list approvals")
	}
	defer rows.Close()

	var out []model.ApprovalRequest
	for rows.Next() {
		a, err := scanPgApproval(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan approval")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list approvals iterate")
}

func (s *PostgresStore) DecideApproval(ctx context.Context, id string, status model.ApprovalStatus, decidedBy, note string) (*model.ApprovalRequest, error) {
	if !validDecision(status) {
		return nil, eris.Errorf("postgres: invalid approval decision %q", status)
	}
	a, err := scanPgApproval(s.pool.QueryRow(ctx,
		`UPDATE approvals SET status = $1, decided_by = $2, note = $3, decided_at = now()
		 WHERE id = $4 AND status = $5
		 RETURNING `+pgApprovalColumns,
		string(status), decidedBy, note, id, string(model.ApprovalPending)))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: decide approval %s", id)
	}

	// Either the approval does not exist or it was already decided.
	existing, err := scanPgApproval(s.pool.QueryRow(ctx, `SELECT `+pgApprovalColumns+` FROM approvals WHERE id = $1`, id))
	if err != nil {
		return nil, pgNotFound(err, "postgres: get approval", id)
	}
	return existing, eris.Wrapf(ErrAlreadyDecided, "approval %s is %s", id, existing.Status)
}

// --- Dead letter queue ---

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, e resilience.DLQEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (document_id, kind, file_name, source_path, contract_id, error, category, stage, retry_count, max_retries, next_retry_at, created_at, last_failure)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (document_id) DO UPDATE SET
		   error = $6, category = $7, stage = $8, retry_count = $9, next_retry_at = $11, last_failure = $13`,
		e.DocumentID, string(e.Kind), e.FileName, e.SourcePath, e.ContractID, e.Error, string(e.Category),
		e.Stage, e.RetryCount, e.MaxRetries, e.NextRetryAt, e.CreatedAt, e.LastFailure,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	due := filter.DueBefore
	if due.IsZero() {
		due = time.Now()
	}
	q := newQuery(`SELECT document_id, kind, file_name, source_path, contract_id, error, category, stage,
	                      retry_count, max_retries, next_retry_at, created_at, last_failure
	               FROM dead_letter_queue
	               WHERE retry_count < max_retries`)
	q.where("next_retry_at <= %s", due)
	q.where("category <> %s", string(model.ErrorCategoryPermanent))
	if filter.Category != "" {
		q.where("category = %s", string(filter.Category))
	}
	q.sql += ` ORDER BY next_retry_at ASC`
	q.page(listLimit(filter.Limit), 0)

	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		e, err := scanDLQEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: dequeue dlq iterate")
}

func (s *PostgresStore) IncrementDLQRetry(ctx context.Context, documentID string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failure = now()
		 WHERE document_id = $3`,
		nextRetryAt, lastErr, documentID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment dlq retry %s", documentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "dlq entry %s", documentID)
	}
	return nil
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, documentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE document_id = $1`, documentID)
	return eris.Wrap(err, "postgres: remove dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}

// --- helpers ---

// query builds a statement with positional placeholders.
type query struct {
	sql  string
	args []any
}

func newQuery(base string) *query {
	return &query{sql: base}
}

// where appends an AND clause; cond holds one %s for the placeholder.
func (q *query) where(cond string, arg any) {
	q.args = append(q.args, arg)
	q.sql += " AND " + fmt.Sprintf(cond, fmt.Sprintf("$%d", len(q.args)))
}

func (q *query) page(limit, offset int) {
	q.args = append(q.args, limit)
	q.sql += fmt.Sprintf(" LIMIT $%d", len(q.args))
	if offset > 0 {
		q.args = append(q.args, offset)
		q.sql += fmt.Sprintf(" OFFSET $%d", len(q.args))
	}
}

func pgNotFound(err error, action, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "%s %s", action, id)
	}
	return eris.Wrapf(err, "%s %s", action, id)
}

func scanPgContract(row scannable) (*model.StoredContract, error) {
	var c model.StoredContract
	var data, tokens []byte
	if err := row.Scan(&data, &tokens, &c.DocumentID, &c.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalRecord(data, tokens, &c.Data, &c.Tokens); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanPgInvoice(row scannable) (*model.StoredInvoice, error) {
	var inv model.StoredInvoice
	var data, tokens []byte
	if err := row.Scan(&data, &inv.ContractID, &tokens, &inv.DocumentID, &inv.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalRecord(data, tokens, &inv.Data, &inv.Tokens); err != nil {
		return nil, err
	}
	return &inv, nil
}

func scanPgValidation(row scannable) (*model.ValidationRun, error) {
	var run model.ValidationRun
	var status string
	var result []byte
	if err := row.Scan(&run.ID, &run.InvoiceID, &run.ContractID, &run.VendorName, &status, &result, &run.CreatedAt); err != nil {
		return nil, err
	}
	run.Status = model.ValidationStatus(status)
	if err := json.Unmarshal(result, &run.Result); err != nil {
		return nil, eris.Wrap(err, "unmarshal validation result")
	}
	return &run, nil
}

func scanPgApproval(row scannable) (*model.ApprovalRequest, error) {
	var a model.ApprovalRequest
	var exType, status string
	if err := row.Scan(&a.ID, &a.ValidationID, &a.ExceptionID, &a.InvoiceID, &a.VendorName, &a.Amount,
		&exType, &status, &a.DecidedBy, &a.Note, &a.CreatedAt, &a.DecidedAt); err != nil {
		return nil, err
	}
	a.ExceptionType = model.ExceptionType(exType)
	a.Status = model.ApprovalStatus(status)
	return &a, nil
}
