package usecase

import (
	"context"
	"fmt"
	"io"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
	"github.com/kirillkom/invoice-reimbursement/internal/core/ports"
)

const maxExportRows = 10000

type ExportUseCase struct {
	invoices ports.InvoiceRepository
	exporter ports.RecordExporter
}

func NewExportUseCase(invoices ports.InvoiceRepository, exporter ports.RecordExporter) *ExportUseCase {
	return &ExportUseCase{invoices: invoices, exporter: exporter}
}

func (uc *ExportUseCase) Export(ctx context.Context, filter domain.InvoiceFilter, w io.Writer) error {
	if filter.Limit <= 0 || filter.Limit > maxExportRows {
		filter.Limit = maxExportRows
	}
	records, err := uc.invoices.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("list invoices: %w", err)
	}
	if err := uc.exporter.Export(ctx, records, w); err != nil {
		return fmt.Errorf("export invoices: %w", err)
	}
	return nil
}

func (uc *ExportUseCase) ContentType() string   { return uc.exporter.ContentType() }
func (uc *ExportUseCase) FileExtension() string { return uc.exporter.FileExtension() }
