package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
	"github.com/kirillkom/invoice-reimbursement/internal/core/ports"
)

// RunBatchUseCase is the worker side of a submitted batch.
type RunBatchUseCase struct {
	batches   ports.BatchRepository
	storage   ports.ObjectStorage
	archives  ports.ArchiveReader
	pdf       ports.PDFTextExtractor
	processor *BatchProcessUseCase
	observer  ports.PipelineObserver
}

func NewRunBatchUseCase(
	batches ports.BatchRepository,
	storage ports.ObjectStorage,
	archives ports.ArchiveReader,
	pdf ports.PDFTextExtractor,
	processor *BatchProcessUseCase,
	observer ports.PipelineObserver,
) *RunBatchUseCase {
	if observer == nil {
		observer = noopObserver{}
	}
	return &RunBatchUseCase{
		batches:   batches,
		storage:   storage,
		archives:  archives,
		pdf:       pdf,
		processor: processor,
		observer:  observer,
	}
}

func (uc *RunBatchUseCase) RunBatch(ctx context.Context, batchID string) error {
	batch, err := uc.batches.GetByID(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}
	if batch.Status == domain.BatchCompleted {
		// Redelivered event.
		return nil
	}

	if err := uc.batches.UpdateStatus(ctx, batch.ID, domain.BatchProcessing, domain.BatchProgress{}); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	request, err := uc.prepare(ctx, batch)
	if err != nil {
		return uc.markFailed(ctx, batch.ID, domain.BatchProgress{}, err)
	}

	result, err := uc.processor.Process(ctx, request)
	if err != nil {
		return uc.markFailed(ctx, batch.ID, domain.BatchProgress{DocumentCount: len(request.Documents)}, err)
	}

	progress := domain.BatchProgress{
		DocumentCount: len(request.Documents),
		RecordedCount: len(result.Records),
		SkippedCount:  len(result.Skipped),
	}
	if err := uc.batches.UpdateStatus(context.WithoutCancel(ctx), batch.ID, domain.BatchCompleted, progress); err != nil {
		return fmt.Errorf("set status=completed: %w", err)
	}
	uc.observer.BatchFinished(domain.BatchCompleted)
	slog.Info("batch_completed",
		"batch_id", batch.ID,
		"recorded", progress.RecordedCount,
		"skipped", progress.SkippedCount,
	)
	return nil
}

func (uc *RunBatchUseCase) prepare(ctx context.Context, batch *domain.Batch) (BatchRequest, error) {
	policyContent, err := uc.load(ctx, batch.PolicyKey)
	if err != nil {
		return BatchRequest{}, fmt.Errorf("open policy: %w", err)
	}
	archiveContent, err := uc.load(ctx, batch.ArchiveKey)
	if err != nil {
		return BatchRequest{}, fmt.Errorf("open invoices: %w", err)
	}

	documents, err := expandUpload(uc.archives, ports.UploadedFile{Filename: batch.ArchiveName, Content: archiveContent})
	if err != nil {
		return BatchRequest{}, err
	}
	policyText, err := readPolicyText(ctx, uc.pdf, uc.processor.plainText, ports.UploadedFile{Filename: batch.PolicyFilename, Content: policyContent})
	if err != nil {
		return BatchRequest{}, err
	}
	return BatchRequest{BatchID: batch.ID, PolicyText: policyText, Documents: documents}, nil
}

func (uc *RunBatchUseCase) load(ctx context.Context, key string) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (uc *RunBatchUseCase) markFailed(ctx context.Context, batchID string, progress domain.BatchProgress, cause error) error {
	uc.observer.BatchFinished(domain.BatchFailed)
	progress.Error = cause.Error()
	if err := uc.batches.UpdateStatus(context.WithoutCancel(ctx), batchID, domain.BatchFailed, progress); err != nil {
		return errors.Join(cause, fmt.Errorf("mark failed status: %w", err))
	}
	return cause
}

// BatchQueryUseCase reads a batch together with its recorded invoices.
type BatchQueryUseCase struct {
	batches  ports.BatchRepository
	invoices ports.InvoiceRepository
}

func NewBatchQueryUseCase(batches ports.BatchRepository, invoices ports.InvoiceRepository) *BatchQueryUseCase {
	return &BatchQueryUseCase{batches: batches, invoices: invoices}
}

func (uc *BatchQueryUseCase) GetBatch(ctx context.Context, id string) (*domain.Batch, []domain.InvoiceRecord, error) {
	batch, err := uc.batches.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	records, err := uc.invoices.ListByBatch(ctx, batch.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list batch invoices: %w", err)
	}
	return batch, records, nil
}
