package ports

import (
	"context"
	"io"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

// UploadedFile is a file received at the API boundary.
type UploadedFile struct {
	Filename string
	Content  []byte
}

// BatchProcessor is the core contract: one outcome per document that survives dedup.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, policyText string, documents []domain.RawDocument) ([]domain.InvoiceRecord, error)
}

// InvoiceAnalyzer processes an upload synchronously.
type InvoiceAnalyzer interface {
	Analyze(ctx context.Context, policy, invoices UploadedFile) (*domain.BatchResult, error)
}

// BatchSubmitter stores an upload and queues it for the worker.
type BatchSubmitter interface {
	Submit(ctx context.Context, policy, invoices UploadedFile) (*domain.Batch, error)
}

// BatchRunner is the inbound contract for asynchronous batch processing.
type BatchRunner interface {
	RunBatch(ctx context.Context, batchID string) error
}

// BatchReader exposes batch state with the records recorded so far.
type BatchReader interface {
	GetBatch(ctx context.Context, id string) (*domain.Batch, []domain.InvoiceRecord, error)
}

// InvoiceReader is the inbound read model for recorded invoices.
type InvoiceReader interface {
	GetByID(ctx context.Context, id string) (*domain.InvoiceRecord, error)
	List(ctx context.Context, filter domain.InvoiceFilter) ([]domain.InvoiceRecord, error)
}

// InvoiceQueryService answers questions over indexed invoices.
type InvoiceQueryService interface {
	Answer(ctx context.Context, question string, limit int, filter domain.InvoiceFilter) (*domain.Answer, error)
}

// ChatService answers within a session, extracting filters from the message.
type ChatService interface {
	Chat(ctx context.Context, sessionID, message string) (*domain.Answer, error)
	Reset(ctx context.Context, sessionID string) error
}

// InvoiceExporter streams filtered records as a spreadsheet.
type InvoiceExporter interface {
	Export(ctx context.Context, filter domain.InvoiceFilter, w io.Writer) error
	ContentType() string
	FileExtension() string
}
