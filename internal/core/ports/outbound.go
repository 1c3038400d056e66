package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

// PDFTextExtractor turns PDF bytes into plain text. Failures yield an empty string.
type PDFTextExtractor interface {
	ExtractText(ctx context.Context, content []byte) string
}

// TextDecoder turns an uploaded text file of unknown encoding into LF-delimited UTF-8.
type TextDecoder interface {
	DecodeText(content []byte) string
}

// TextCompleter generates free text for a prompt. It is optional and may be slow.
type TextCompleter interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Embedder builds vectors for records and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// InvoiceIndex stores record vectors and performs filtered semantic search.
type InvoiceIndex interface {
	Upsert(ctx context.Context, record domain.InvoiceRecord, vector []float32) error
	Search(ctx context.Context, queryVector []float32, limit int, filter domain.InvoiceFilter) ([]domain.RetrievedInvoice, error)
}

// InvoiceRepository persists records. Upsert is keyed by invoice id.
type InvoiceRepository interface {
	Upsert(ctx context.Context, record domain.InvoiceRecord) error
	GetByID(ctx context.Context, id string) (*domain.InvoiceRecord, error)
	List(ctx context.Context, filter domain.InvoiceFilter) ([]domain.InvoiceRecord, error)
	ListByBatch(ctx context.Context, batchID string) ([]domain.InvoiceRecord, error)
}

// BatchRepository persists submitted batches and their lifecycle.
type BatchRepository interface {
	Create(ctx context.Context, batch *domain.Batch) error
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	UpdateStatus(ctx context.Context, id string, status domain.BatchStatus, progress domain.BatchProgress) error
}

// ConversationStore keeps per-session chat history.
type ConversationStore interface {
	AppendMessage(ctx context.Context, message domain.ConversationMessage) error
	ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.ConversationMessage, error)
	ClearSession(ctx context.Context, sessionID string) error
}

// ObjectStorage stores uploaded policy files and archives.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes batch submission events.
type MessageQueue interface {
	PublishBatchSubmitted(ctx context.Context, batchID string) error
	SubscribeBatchSubmitted(ctx context.Context, handler func(context.Context, string) error) error
}

// ArchiveReader unpacks an uploaded bundle into individual documents.
type ArchiveReader interface {
	Expand(archiveName string, content []byte) ([]domain.RawDocument, error)
}

// RecordExporter writes records in a downloadable format.
type RecordExporter interface {
	Export(ctx context.Context, records []domain.InvoiceRecord, w io.Writer) error
	ContentType() string
	FileExtension() string
}

// AnswerGenerator answers questions grounded in retrieved invoices.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, history []domain.ConversationMessage, invoices []domain.RetrievedInvoice) (string, error)
}

// PipelineObserver receives processing outcomes for metrics.
// DocumentStarted and DocumentStopped bracket every unit of per-document work.
type PipelineObserver interface {
	DocumentStarted()
	DocumentStopped()
	DocumentProcessed(record domain.InvoiceRecord, duration time.Duration)
	DocumentSkipped(reason domain.SkipReason)
	NarrativeFallback(reason string)
	BatchFinished(status domain.BatchStatus)
}
