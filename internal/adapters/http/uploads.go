package httpadapter

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
	"github.com/kirillkom/invoice-reimbursement/internal/core/ports"
)

const (
	policyField   = "policy"
	invoicesField = "invoices"

	multipartMemory = 32 << 20
)

func (rt *Router) analyzeInvoices(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Analyzer == nil {
		notImplemented(w)
		return
	}
	policy, invoices, err := rt.readUploads(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := rt.svc.Analyzer.Analyze(r.Context(), policy, invoices)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) submitBatch(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Submitter == nil {
		notImplemented(w)
		return
	}
	policy, invoices, err := rt.readUploads(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	batch, err := rt.svc.Submitter.Submit(r.Context(), policy, invoices)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/batches/"+batch.ID)
	writeJSON(w, http.StatusAccepted, batch)
}

func (rt *Router) getBatch(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Batches == nil {
		notImplemented(w)
		return
	}
	batch, records, err := rt.svc.Batches.GetBatch(r.Context(), r.PathValue("batch_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.InvoiceRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": batch, "records": records})
}

// readUploads reads the policy and invoices multipart fields fully into memory.
func (rt *Router) readUploads(w http.ResponseWriter, r *http.Request) (ports.UploadedFile, ports.UploadedFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ports.UploadedFile{}, ports.UploadedFile{}, fmt.Errorf("read upload: %w", err)
		}
		return ports.UploadedFile{}, ports.UploadedFile{}, domain.WrapError(domain.ErrInvalidInput, "read upload", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	policy, err := rt.readFormFile(r, policyField)
	if err != nil {
		return ports.UploadedFile{}, ports.UploadedFile{}, err
	}
	invoices, err := rt.readFormFile(r, invoicesField)
	if err != nil {
		return ports.UploadedFile{}, ports.UploadedFile{}, err
	}
	return policy, invoices, nil
}

func (rt *Router) readFormFile(r *http.Request, field string) (ports.UploadedFile, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return ports.UploadedFile{}, domain.WrapError(domain.ErrInvalidInput, "read upload",
			fmt.Errorf("multipart field %q is required", field))
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return ports.UploadedFile{}, fmt.Errorf("read %s upload: %w", field, err)
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, field, len(content))
	}
	return ports.UploadedFile{Filename: header.Filename, Content: content}, nil
}
