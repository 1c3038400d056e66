package xlsx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

const (
	invoicesSheet = "Invoices"
	summarySheet  = "Summary"
)

var invoiceHeaders = []string{
	"Invoice ID",
	"Employee",
	"Invoice Date",
	"Type",
	"Amount",
	"Amount Estimated",
	"Status",
	"Reimbursable Amount",
	"Reason",
	"Fraud Detected",
	"Fraud Reason",
	"Filename",
	"Archive",
	"Batch",
	"Processed At",
}

var statusOrder = []domain.ReimbursementStatus{
	domain.StatusFullyReimbursed,
	domain.StatusPartiallyReimbursed,
	domain.StatusDeclined,
}

// Exporter writes invoice records as an XLSX workbook.
type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

func (e *Exporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *Exporter) FileExtension() string { return ".xlsx" }

func (e *Exporter) Export(ctx context.Context, records []domain.InvoiceRecord, w io.Writer) error {
	start := time.Now()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", invoicesSheet); err != nil {
		return fmt.Errorf("xlsx rename sheet: %w", err)
	}
	if err := writeRow(f, invoicesSheet, 1, toAny(invoiceHeaders)); err != nil {
		return err
	}
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		var amount any = ""
		if r.Fields.Amount != nil {
			amount = *r.Fields.Amount
		}
		row := []any{
			r.InvoiceID,
			r.Fields.EmployeeName,
			domain.FormatDate(r.Fields.InvoiceDate),
			string(r.Category),
			amount,
			yesNo(r.AmountEstimated),
			string(r.Policy.Status),
			r.Policy.ReimbursableAmount,
			r.Policy.Reason,
			yesNo(r.Fraud.IsFraud),
			r.Fraud.Reason,
			r.Filename,
			r.SourceArchive,
			r.BatchID,
			r.ProcessedAt.UTC().Format(time.RFC3339),
		}
		if err := writeRow(f, invoicesSheet, i+2, row); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(invoicesSheet, "A", "A", 36)
	_ = f.SetColWidth(invoicesSheet, "B", "B", 22)
	_ = f.SetColWidth(invoicesSheet, "C", "H", 16)
	_ = f.SetColWidth(invoicesSheet, "I", "I", 60)
	_ = f.SetColWidth(invoicesSheet, "K", "K", 48)
	_ = f.SetPanes(invoicesSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if err := writeSummary(f, records); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	slog.Info("invoice_export_written",
		"rows", len(records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

type statusTotals struct {
	count        int
	claimed      float64
	reimbursable float64
}

func writeSummary(f *excelize.File, records []domain.InvoiceRecord) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("xlsx summary sheet: %w", err)
	}
	totals := make(map[domain.ReimbursementStatus]*statusTotals, len(statusOrder))
	for _, s := range statusOrder {
		totals[s] = &statusTotals{}
	}
	fraudCount := 0
	for _, r := range records {
		t, ok := totals[r.Policy.Status]
		if !ok {
			continue
		}
		t.count++
		t.claimed += r.Amount()
		t.reimbursable += r.Policy.ReimbursableAmount
		if r.Fraud.IsFraud {
			fraudCount++
		}
	}

	if err := writeRow(f, summarySheet, 1, []any{"Status", "Invoices", "Claimed", "Reimbursable"}); err != nil {
		return err
	}
	var all statusTotals
	for i, s := range statusOrder {
		t := totals[s]
		all.count += t.count
		all.claimed += t.claimed
		all.reimbursable += t.reimbursable
		if err := writeRow(f, summarySheet, i+2, []any{string(s), t.count, t.claimed, t.reimbursable}); err != nil {
			return err
		}
	}
	next := len(statusOrder) + 2
	if err := writeRow(f, summarySheet, next, []any{"Total", all.count, all.claimed, all.reimbursable}); err != nil {
		return err
	}
	if err := writeRow(f, summarySheet, next+1, []any{"Fraud flagged", fraudCount}); err != nil {
		return err
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 24)
	_ = f.SetColWidth(summarySheet, "B", "D", 16)
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("xlsx cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("xlsx write row %d of %s: %w", row, sheet, err)
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
