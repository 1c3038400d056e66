package usecase

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
	"github.com/kirillkom/invoice-reimbursement/internal/core/ports"
)

// SubmitBatchUseCase stores an upload and hands it to the worker via the queue.
type SubmitBatchUseCase struct {
	batches ports.BatchRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewSubmitBatchUseCase(
	batches ports.BatchRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *SubmitBatchUseCase {
	return &SubmitBatchUseCase{
		batches: batches,
		storage: storage,
		queue:   queue,
	}
}

func (uc *SubmitBatchUseCase) Submit(ctx context.Context, policy, invoices ports.UploadedFile) (*domain.Batch, error) {
	if err := validateUploads(policy, invoices); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	batch := &domain.Batch{
		ID:             id,
		PolicyFilename: policy.Filename,
		PolicyKey:      fmt.Sprintf("%s_policy_%s", id, sanitizeFilename(policy.Filename)),
		ArchiveName:    invoices.Filename,
		ArchiveKey:     fmt.Sprintf("%s_invoices_%s", id, sanitizeFilename(invoices.Filename)),
		Status:         domain.BatchQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := uc.storage.Save(ctx, batch.PolicyKey, bytes.NewReader(policy.Content)); err != nil {
		return nil, fmt.Errorf("save policy to object storage: %w", err)
	}
	if err := uc.storage.Save(ctx, batch.ArchiveKey, bytes.NewReader(invoices.Content)); err != nil {
		return nil, fmt.Errorf("save invoices to object storage: %w", err)
	}

	if err := uc.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	if err := uc.queue.PublishBatchSubmitted(ctx, batch.ID); err != nil {
		progress := domain.BatchProgress{Error: "publish failed: " + err.Error()}
		if markErr := uc.batches.UpdateStatus(context.WithoutCancel(ctx), batch.ID, domain.BatchFailed, progress); markErr != nil {
			return nil, fmt.Errorf("publish batch event: %w; mark failed status: %v", err, markErr)
		}
		return nil, fmt.Errorf("publish batch event: %w", err)
	}
	return batch, nil
}
