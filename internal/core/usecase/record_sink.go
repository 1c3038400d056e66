package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
	"github.com/kirillkom/invoice-reimbursement/internal/core/ports"
)

// RecordSink persists a record and indexes it for semantic search. Any
// collaborator may be nil, which skips that step.
type RecordSink struct {
	repo     ports.InvoiceRepository
	embedder ports.Embedder
	index    ports.InvoiceIndex
}

func NewRecordSink(repo ports.InvoiceRepository, embedder ports.Embedder, index ports.InvoiceIndex) *RecordSink {
	return &RecordSink{repo: repo, embedder: embedder, index: index}
}

func (s *RecordSink) Record(ctx context.Context, record domain.InvoiceRecord) error {
	if s == nil {
		return nil
	}
	if s.repo != nil {
		if err := s.repo.Upsert(ctx, record); err != nil {
			return fmt.Errorf("persist invoice record: %w", err)
		}
	}
	if s.embedder == nil || s.index == nil {
		return nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{IndexText(record)})
	if err != nil {
		return fmt.Errorf("embed invoice record: %w", err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("embed invoice record: expected 1 vector, got %d", len(vectors))
	}
	if err := s.index.Upsert(ctx, record, vectors[0]); err != nil {
		return fmt.Errorf("index invoice record: %w", err)
	}
	return nil
}

// IndexText is the text block embedded for each record.
func IndexText(record domain.InvoiceRecord) string {
	lines := []string{
		"Invoice ID: " + record.InvoiceID,
		"Employee: " + record.Fields.EmployeeName,
		"Date: " + domain.FormatDate(record.Fields.InvoiceDate),
		fmt.Sprintf("Amount: %.2f", record.Amount()),
		"Status: " + string(record.Policy.Status),
		"Reason: " + record.Policy.Reason,
		"Type: " + string(record.Category),
	}
	if record.Fraud.IsFraud {
		lines = append(lines, "Fraud: "+record.Fraud.Reason)
	}
	if record.InvoiceText != "" {
		lines = append(lines, "Content: "+record.InvoiceText)
	}
	return strings.Join(lines, "\n")
}
