package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

const (
	defaultListLimit = 100
	maxListLimit     = 10000
)

// InvoiceRepository keeps each record as JSONB next to the columns used for filtering.
type InvoiceRepository struct {
	db *sql.DB
}

func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) Upsert(ctx context.Context, record domain.InvoiceRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal invoice record: %w", err)
	}
	var invoiceDate any
	if !record.Fields.InvoiceDate.IsZero() {
		invoiceDate = record.Fields.InvoiceDate
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO invoices (
	invoice_id, batch_id, employee_name, employee_key, invoice_type, status,
	fraud_detected, amount, reimbursable_amount, invoice_date, record, processed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (invoice_id) DO UPDATE SET
	batch_id = EXCLUDED.batch_id,
	employee_name = EXCLUDED.employee_name,
	employee_key = EXCLUDED.employee_key,
	invoice_type = EXCLUDED.invoice_type,
	status = EXCLUDED.status,
	fraud_detected = EXCLUDED.fraud_detected,
	amount = EXCLUDED.amount,
	reimbursable_amount = EXCLUDED.reimbursable_amount,
	invoice_date = EXCLUDED.invoice_date,
	record = EXCLUDED.record,
	processed_at = EXCLUDED.processed_at
`,
		record.InvoiceID, record.BatchID, record.Fields.EmployeeName, employeeKey(record.Fields.EmployeeName),
		string(record.Category), string(record.Policy.Status), record.Fraud.IsFraud, record.Fields.Amount,
		record.Policy.ReimbursableAmount, invoiceDate, payload, record.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert invoice %s: %w", record.InvoiceID, err)
	}
	return nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*domain.InvoiceRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT record FROM invoices WHERE invoice_id = $1`, id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrInvoiceNotFound, "get invoice", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &record, nil
}

func (r *InvoiceRepository) List(ctx context.Context, filter domain.InvoiceFilter) ([]domain.InvoiceRecord, error) {
	where, args := buildInvoiceWhere(filter)
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	args = append(args, limit)

	query := "SELECT record FROM invoices"
	if where != "" {
		query += " WHERE " + where
	}
	query += fmt.Sprintf(" ORDER BY processed_at DESC, invoice_id ASC LIMIT $%d", len(args))
	return r.query(ctx, "list invoices", query, args...)
}

func (r *InvoiceRepository) ListByBatch(ctx context.Context, batchID string) ([]domain.InvoiceRecord, error) {
	return r.query(ctx, "list batch invoices",
		`SELECT record FROM invoices WHERE batch_id = $1 ORDER BY processed_at ASC, invoice_id ASC`, batchID)
}

func (r *InvoiceRepository) query(ctx context.Context, op, query string, args ...any) ([]domain.InvoiceRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]domain.InvoiceRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return out, nil
}

func buildInvoiceWhere(filter domain.InvoiceFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if name := strings.TrimSpace(filter.EmployeeName); name != "" {
		add("employee_key = $%d", employeeKey(name))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Category != "" {
		add("invoice_type = $%d", string(filter.Category))
	}
	if filter.FraudDetected != nil {
		add("fraud_detected = $%d", *filter.FraudDetected)
	}
	if filter.BatchID != "" {
		add("batch_id = $%d", filter.BatchID)
	}
	return strings.Join(clauses, " AND "), args
}

func scanRecord(row rowScanner) (domain.InvoiceRecord, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		return domain.InvoiceRecord{}, err
	}
	var record domain.InvoiceRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.InvoiceRecord{}, fmt.Errorf("unmarshal invoice record: %w", err)
	}
	return record, nil
}

func employeeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
