package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

type BatchRepository struct {
	db *sql.DB
}

func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) Create(ctx context.Context, batch *domain.Batch) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO batches (
	id, policy_filename, policy_key, archive_name, archive_key, status,
	document_count, recorded_count, skipped_count, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		batch.ID, batch.PolicyFilename, batch.PolicyKey, batch.ArchiveName, batch.ArchiveKey, string(batch.Status),
		batch.DocumentCount, batch.RecordedCount, batch.SkippedCount, batch.Error, batch.CreatedAt, batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (r *BatchRepository) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, policy_filename, policy_key, archive_name, archive_key, status,
	document_count, recorded_count, skipped_count, error_message, created_at, updated_at
FROM batches
WHERE id = $1
`, id)

	var batch domain.Batch
	var status string
	err := row.Scan(
		&batch.ID, &batch.PolicyFilename, &batch.PolicyKey, &batch.ArchiveName, &batch.ArchiveKey, &status,
		&batch.DocumentCount, &batch.RecordedCount, &batch.SkippedCount, &batch.Error, &batch.CreatedAt, &batch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrBatchNotFound, "get batch", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan batch: %w", err)
	}
	batch.Status = domain.BatchStatus(status)
	return &batch, nil
}

func (r *BatchRepository) UpdateStatus(ctx context.Context, id string, status domain.BatchStatus, progress domain.BatchProgress) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE batches
SET status = $2, document_count = $3, recorded_count = $4, skipped_count = $5, error_message = $6, updated_at = $7
WHERE id = $1
`, id, string(status), progress.DocumentCount, progress.RecordedCount, progress.SkippedCount, progress.Error, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update batch status rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrBatchNotFound, "update batch status", fmt.Errorf("id=%s", id))
	}
	return nil
}
