package httpadapter

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/kirillkom/invoice-reimbursement/internal/config"
	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
	"github.com/kirillkom/invoice-reimbursement/internal/core/ports"
)

type analyzerFake struct {
	policy, invoices ports.UploadedFile
	result           *domain.BatchResult
	err              error
}

func (f *analyzerFake) Analyze(_ context.Context, policy, invoices ports.UploadedFile) (*domain.BatchResult, error) {
	f.policy, f.invoices = policy, invoices
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type submitterFake struct {
	batch *domain.Batch
	err   error
}

func (f *submitterFake) Submit(context.Context, ports.UploadedFile, ports.UploadedFile) (*domain.Batch, error) {
	return f.batch, f.err
}

type batchReaderFake struct {
	batch   *domain.Batch
	records []domain.InvoiceRecord
	err     error
}

func (f *batchReaderFake) GetBatch(context.Context, string) (*domain.Batch, []domain.InvoiceRecord, error) {
	return f.batch, f.records, f.err
}

type invoiceReaderFake struct {
	records    []domain.InvoiceRecord
	err        error
	lastFilter domain.InvoiceFilter
}

func (f *invoiceReaderFake) GetByID(_ context.Context, id string) (*domain.InvoiceRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.records {
		if f.records[i].InvoiceID == id {
			return &f.records[i], nil
		}
	}
	return nil, domain.WrapError(domain.ErrInvoiceNotFound, "get invoice", errors.New("id="+id))
}

func (f *invoiceReaderFake) List(_ context.Context, filter domain.InvoiceFilter) ([]domain.InvoiceRecord, error) {
	f.lastFilter = filter
	return f.records, f.err
}

type queryFake struct {
	question string
	limit    int
	filter   domain.InvoiceFilter
	err      error
}

func (f *queryFake) Answer(_ context.Context, question string, limit int, filter domain.InvoiceFilter) (*domain.Answer, error) {
	f.question, f.limit, f.filter = question, limit, filter
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Answer{Text: "two invoices", Filters: filter}, nil
}

type chatFake struct {
	sessionID string
	reset     string
	err       error
}

func (f *chatFake) Chat(_ context.Context, sessionID, message string) (*domain.Answer, error) {
	if f.err != nil {
		return nil, f.err
	}
	if sessionID == "" {
		sessionID = "generated"
	}
	f.sessionID = sessionID
	return &domain.Answer{SessionID: sessionID, Text: "re: " + message}, nil
}

func (f *chatFake) Reset(_ context.Context, sessionID string) error {
	f.reset = sessionID
	return f.err
}

type exporterFake struct {
	filter domain.InvoiceFilter
	err    error
}

func (f *exporterFake) Export(_ context.Context, filter domain.InvoiceFilter, w io.Writer) error {
	f.filter = filter
	if f.err != nil {
		return f.err
	}
	_, err := w.Write([]byte("PK-workbook"))
	return err
}

func (f *exporterFake) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (f *exporterFake) FileExtension() string { return ".xlsx" }

func newTestHandler(cfg config.Config, svc Services) http.Handler {
	if cfg.RAGTopK == 0 {
		cfg.RAGTopK = 5
	}
	return NewRouter(cfg, svc, nil, []byte(`{"openapi":"3.0.3"}`)).Handler()
}
