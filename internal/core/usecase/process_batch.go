package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/invoice-reimbursement/internal/core/classify"
	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
	"github.com/kirillkom/invoice-reimbursement/internal/core/extract"
	"github.com/kirillkom/invoice-reimbursement/internal/core/fraud"
	"github.com/kirillkom/invoice-reimbursement/internal/core/policy"
	"github.com/kirillkom/invoice-reimbursement/internal/core/ports"
)

type ProcessOptions struct {
	Concurrency    int
	DefaultAmounts map[domain.Category]float64
	Now            func() time.Time
}

func DefaultProcessOptions() ProcessOptions {
	return ProcessOptions{
		Concurrency: 4,
		DefaultAmounts: map[domain.Category]float64{
			domain.CategoryMeal:    850,
			domain.CategoryTravel:  15000,
			domain.CategoryCab:     1200,
			domain.CategoryGeneral: 1000,
		},
		Now: time.Now,
	}
}

// BatchRequest is one batch of documents judged against one policy text.
type BatchRequest struct {
	BatchID    string
	PolicyText string
	Documents  []domain.RawDocument
}

type BatchProcessUseCase struct {
	pdf       ports.PDFTextExtractor
	text      ports.TextDecoder
	extractor *extract.Extractor
	detector  *fraud.Detector
	engine    *policy.Engine
	sink      *RecordSink
	observer  ports.PipelineObserver
	opts      ProcessOptions
}

func NewBatchProcessUseCase(
	pdf ports.PDFTextExtractor,
	text ports.TextDecoder,
	extractor *extract.Extractor,
	detector *fraud.Detector,
	engine *policy.Engine,
	sink *RecordSink,
	observer ports.PipelineObserver,
	opts ProcessOptions,
) *BatchProcessUseCase {
	def := DefaultProcessOptions()
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.DefaultAmounts == nil {
		opts.DefaultAmounts = def.DefaultAmounts
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &BatchProcessUseCase{
		pdf:       pdf,
		text:      text,
		extractor: extractor,
		detector:  detector,
		engine:    engine,
		sink:      sink,
		observer:  observer,
		opts:      opts,
	}
}

// ProcessBatch returns one record per document that survives duplicate
// suppression, in input order.
func (uc *BatchProcessUseCase) ProcessBatch(ctx context.Context, policyText string, documents []domain.RawDocument) ([]domain.InvoiceRecord, error) {
	result, err := uc.Process(ctx, BatchRequest{PolicyText: policyText, Documents: documents})
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}

// Process runs every document through the pipeline. Document-level problems
// become Declined records. Cancelling ctx stops new documents from starting,
// while documents already in flight finish.
func (uc *BatchProcessUseCase) Process(ctx context.Context, req BatchRequest) (*domain.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("process batch: %w", err)
	}
	batchID := strings.TrimSpace(req.BatchID)
	if batchID == "" {
		batchID = uuid.NewString()
	}

	dedup := newDedupSet()
	jobs := make([]*documentJob, 0, len(req.Documents))
	for _, doc := range req.Documents {
		job := &documentJob{batchID: batchID, doc: doc, hash: contentHash(doc.Content)}
		job.invoiceID = invoiceID(doc.Filename, job.hash)
		if first, dup := dedup.claimContent(job.hash, doc.Filename); dup {
			job.skipAs(domain.SkipDuplicateContent, first)
		}
		jobs = append(jobs, job)
	}

	uc.runStage(ctx, jobs, true, uc.analyze)

	// Sequential fold in input order so the earliest duplicate always wins.
	for _, job := range jobs {
		if job.finished() {
			continue
		}
		key, ok := invoiceKey(job.fields, job.amountFound)
		if !ok {
			continue
		}
		if first, dup := dedup.claimInvoice(key, job.invoiceID); dup {
			job.skipAs(domain.SkipDuplicateInvoice, first)
		}
	}

	uc.runStage(ctx, jobs, false, func(ctx context.Context, job *documentJob) {
		uc.decide(ctx, job, req.PolicyText)
	})

	result := &domain.BatchResult{
		BatchID: batchID,
		Records: make([]domain.InvoiceRecord, 0, len(jobs)),
		Skipped: []domain.SkippedDocument{},
	}
	for _, job := range jobs {
		switch {
		case job.skip != nil:
			uc.observer.DocumentSkipped(job.skip.Reason)
			result.Skipped = append(result.Skipped, *job.skip)
		case job.done:
			uc.observer.DocumentProcessed(job.record, job.elapsed)
			result.Records = append(result.Records, job.record)
		}
	}
	slog.Info("batch_processed",
		"batch_id", batchID,
		"documents", len(req.Documents),
		"records", len(result.Records),
		"skipped", len(result.Skipped),
	)
	return result, nil
}

type documentJob struct {
	batchID   string
	invoiceID string
	doc       domain.RawDocument
	hash      string
	started   time.Time
	elapsed   time.Duration

	text        string
	category    domain.Category
	fields      domain.ExtractedFields
	amountFound bool
	estimated   bool
	fraud       domain.FraudVerdict
	stage       domain.ProcessingStage

	record domain.InvoiceRecord
	skip   *domain.SkippedDocument
	done   bool
}

func (j *documentJob) finished() bool {
	return j.done || j.skip != nil
}

func (j *documentJob) skipAs(reason domain.SkipReason, duplicateOf string) {
	j.skip = &domain.SkippedDocument{
		Filename:    j.doc.Filename,
		ArchiveName: j.doc.ArchiveName,
		Reason:      reason,
		DuplicateOf: duplicateOf,
	}
}

// runStage fans jobs out with bounded concurrency. A gated stage stops
// starting jobs once ctx is cancelled. Work already started runs detached from
// ctx cancellation.
func (uc *BatchProcessUseCase) runStage(ctx context.Context, jobs []*documentJob, gated bool, step func(context.Context, *documentJob)) {
	workCtx := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(uc.opts.Concurrency)
	for _, job := range jobs {
		if job.finished() {
			continue
		}
		g.Go(func() error {
			// Checked after a slot frees up so queued jobs see the cancellation.
			if gated && ctx.Err() != nil {
				job.skipAs(domain.SkipCancelled, "")
				return nil
			}
			uc.observer.DocumentStarted()
			defer uc.observer.DocumentStopped()
			uc.guard(workCtx, job, step)
			return nil
		})
	}
	_ = g.Wait()
}

func (uc *BatchProcessUseCase) guard(ctx context.Context, job *documentJob, step func(context.Context, *documentJob)) {
	defer func() {
		if r := recover(); r != nil {
			uc.fail(ctx, job, fmt.Errorf("panic: %v", r))
		}
	}()
	step(ctx, job)
}

// analyze covers received through fraud_checked.
func (uc *BatchProcessUseCase) analyze(ctx context.Context, job *documentJob) {
	job.started = uc.opts.Now()
	job.stage = domain.StageReceived

	job.text = extract.NormalizeText(uc.documentText(ctx, job.doc))
	job.category = classify.Resolve(
		classify.ArchivePrior(job.doc.ArchiveName),
		classify.Classify(job.text, job.doc.Filename),
	)
	job.stage = domain.StageClassified

	fields := uc.extractor.Fields(job.text, job.doc.Filename)
	fields.Details = uc.extractor.Details(job.text, job.category)
	job.fields = fields
	job.amountFound = fields.Amount != nil
	job.stage = domain.StageFieldsExtracted

	job.fraud = uc.detector.Detect(job.fields, job.category, job.text)
	job.stage = domain.StageFraudChecked

	if !job.amountFound {
		if fallback, ok := uc.opts.DefaultAmounts[job.category]; ok {
			job.fields.Amount = &fallback
			job.estimated = true
		}
	}
}

// decide covers the Declined or PolicyDecided transition and recording.
func (uc *BatchProcessUseCase) decide(ctx context.Context, job *documentJob, policyText string) {
	var verdict domain.PolicyVerdict
	if job.fraud.IsFraud {
		verdict = domain.PolicyVerdict{
			Status: domain.StatusDeclined,
			Reason: "Declined: fraud detected (" + job.fraud.Reason + ")",
		}
		if limit, ok := uc.engine.Limit(job.category); ok {
			verdict.Limit = limit
		}
		job.stage = domain.StageDeclined
	} else {
		amount := 0.0
		if job.fields.Amount != nil {
			amount = *job.fields.Amount
		}
		verdict = uc.engine.Decide(ctx, policy.Decision{
			Category:     job.category,
			Amount:       amount,
			Text:         job.text,
			PolicyText:   policyText,
			EmployeeName: job.fields.EmployeeName,
		})
		job.stage = domain.StagePolicyDecided
	}

	record := uc.buildRecord(job, verdict, "")
	if err := uc.sink.Record(ctx, record); err != nil {
		slog.Warn("invoice_record_failed", "invoice_id", record.InvoiceID, "error", err.Error())
		record.Error = err.Error()
	} else {
		record.Stage = domain.StageRecorded
	}
	uc.finish(job, record)
}

// fail turns a document-level failure into a terminal Declined record.
func (uc *BatchProcessUseCase) fail(ctx context.Context, job *documentJob, cause error) {
	if job.started.IsZero() {
		job.started = uc.opts.Now()
	}
	if job.stage == "" {
		job.stage = domain.StageReceived
	}
	if job.fields.EmployeeName == "" {
		job.fields = domain.NewExtractedFields("", nil, uc.opts.Now(), false, nil, nil)
	}
	slog.Error("invoice_failed",
		"invoice_id", job.invoiceID,
		"filename", job.doc.Filename,
		"stage", string(job.stage),
		"error", cause.Error(),
	)

	verdict := domain.PolicyVerdict{
		Status: domain.StatusDeclined,
		Reason: fmt.Sprintf("Processing failed at stage %s: %v", job.stage, cause),
	}
	record := uc.buildRecord(job, verdict, cause.Error())
	if err := uc.sink.Record(ctx, record); err != nil {
		record.Error = errors.Join(cause, err).Error()
	}
	uc.finish(job, record)
}

func (uc *BatchProcessUseCase) buildRecord(job *documentJob, verdict domain.PolicyVerdict, errMessage string) domain.InvoiceRecord {
	return domain.NewInvoiceRecord(domain.RecordInput{
		InvoiceID:       job.invoiceID,
		BatchID:         job.batchID,
		Document:        job.doc,
		Category:        job.category,
		Fields:          job.fields,
		AmountEstimated: job.estimated,
		Fraud:           job.fraud,
		Policy:          verdict,
		Text:            job.text,
		Stage:           job.stage,
		Error:           errMessage,
		ProcessedAt:     uc.opts.Now().UTC(),
	})
}

func (uc *BatchProcessUseCase) finish(job *documentJob, record domain.InvoiceRecord) {
	job.record = record
	job.done = true
	job.elapsed = uc.opts.Now().Sub(job.started)
}

// documentText decodes PDFs and plain-text uploads.
func (uc *BatchProcessUseCase) documentText(ctx context.Context, doc domain.RawDocument) string {
	if strings.EqualFold(filepath.Ext(doc.Filename), ".txt") {
		return uc.plainText(doc.Content)
	}
	if uc.pdf == nil {
		return ""
	}
	return uc.pdf.ExtractText(ctx, doc.Content)
}

// plainText falls back to the raw bytes with normalized line breaks when no
// decoder is configured.
func (uc *BatchProcessUseCase) plainText(content []byte) string {
	if uc.text == nil {
		return extract.NormalizeText(string(content))
	}
	return uc.text.DecodeText(content)
}

type noopObserver struct{}

func (noopObserver) DocumentStarted()                                      {}
func (noopObserver) DocumentStopped()                                      {}
func (noopObserver) DocumentProcessed(domain.InvoiceRecord, time.Duration) {}
func (noopObserver) DocumentSkipped(domain.SkipReason)                     {}
func (noopObserver) NarrativeFallback(string)                              {}
func (noopObserver) BatchFinished(domain.BatchStatus)                      {}
