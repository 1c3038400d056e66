package domain

import "time"

type BatchStatus string

const (
	BatchQueued     BatchStatus = "queued"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// Batch is one submitted policy + invoice bundle awaiting asynchronous processing.
type Batch struct {
	ID             string      `json:"id"`
	PolicyFilename string      `json:"policy_filename"`
	PolicyKey      string      `json:"-"`
	ArchiveName    string      `json:"archive_name"`
	ArchiveKey     string      `json:"-"`
	Status         BatchStatus `json:"status"`
	DocumentCount  int         `json:"document_count"`
	RecordedCount  int         `json:"recorded_count"`
	SkippedCount   int         `json:"skipped_count"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

type BatchProgress struct {
	DocumentCount int
	RecordedCount int
	SkippedCount  int
	Error         string
}

type SkipReason string

const (
	SkipDuplicateContent SkipReason = "duplicate_content"
	SkipDuplicateInvoice SkipReason = "duplicate_invoice"
	SkipCancelled        SkipReason = "cancelled"
)

type SkippedDocument struct {
	Filename    string     `json:"filename"`
	ArchiveName string     `json:"archive_name,omitempty"`
	Reason      SkipReason `json:"reason"`
	DuplicateOf string     `json:"duplicate_of,omitempty"`
}

type BatchResult struct {
	BatchID string            `json:"batch_id"`
	Records []InvoiceRecord   `json:"records"`
	Skipped []SkippedDocument `json:"skipped"`
}
