package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
	"github.com/kirillkom/invoice-reimbursement/internal/core/ports"
)

// AnalyzeUseCase processes an upload synchronously and returns the outcomes.
type AnalyzeUseCase struct {
	archives  ports.ArchiveReader
	pdf       ports.PDFTextExtractor
	processor *BatchProcessUseCase
	batches   ports.BatchRepository
	observer  ports.PipelineObserver
}

func NewAnalyzeUseCase(
	archives ports.ArchiveReader,
	pdf ports.PDFTextExtractor,
	processor *BatchProcessUseCase,
	batches ports.BatchRepository,
	observer ports.PipelineObserver,
) *AnalyzeUseCase {
	if observer == nil {
		observer = noopObserver{}
	}
	return &AnalyzeUseCase{
		archives:  archives,
		pdf:       pdf,
		processor: processor,
		batches:   batches,
		observer:  observer,
	}
}

func (uc *AnalyzeUseCase) Analyze(ctx context.Context, policy, invoices ports.UploadedFile) (*domain.BatchResult, error) {
	if err := validateUploads(policy, invoices); err != nil {
		return nil, err
	}
	documents, err := expandUpload(uc.archives, invoices)
	if err != nil {
		return nil, err
	}
	policyText, err := readPolicyText(ctx, uc.pdf, uc.processor.plainText, policy)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	batch := &domain.Batch{
		ID:             uuid.NewString(),
		PolicyFilename: policy.Filename,
		ArchiveName:    invoices.Filename,
		Status:         domain.BatchProcessing,
		DocumentCount:  len(documents),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if uc.batches != nil {
		if err := uc.batches.Create(ctx, batch); err != nil {
			return nil, fmt.Errorf("create batch: %w", err)
		}
	}

	result, err := uc.processor.Process(ctx, BatchRequest{
		BatchID:    batch.ID,
		PolicyText: policyText,
		Documents:  documents,
	})
	if err != nil {
		uc.finishBatch(ctx, batch.ID, domain.BatchFailed, domain.BatchProgress{DocumentCount: len(documents), Error: err.Error()})
		return nil, fmt.Errorf("process batch: %w", err)
	}
	uc.finishBatch(ctx, batch.ID, domain.BatchCompleted, domain.BatchProgress{
		DocumentCount: len(documents),
		RecordedCount: len(result.Records),
		SkippedCount:  len(result.Skipped),
	})
	return result, nil
}

func (uc *AnalyzeUseCase) finishBatch(ctx context.Context, id string, status domain.BatchStatus, progress domain.BatchProgress) {
	uc.observer.BatchFinished(status)
	if uc.batches == nil {
		return
	}
	if err := uc.batches.UpdateStatus(context.WithoutCancel(ctx), id, status, progress); err != nil {
		slog.Warn("batch_status_update_failed", "batch_id", id, "error", err.Error())
	}
}
