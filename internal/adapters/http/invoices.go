package httpadapter

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

func (rt *Router) listInvoices(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Invoices == nil {
		notImplemented(w)
		return
	}
	filter, err := bindInvoiceFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := rt.svc.Invoices.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.InvoiceRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": records})
}

func (rt *Router) getInvoice(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Invoices == nil {
		notImplemented(w)
		return
	}
	record, err := rt.svc.Invoices.GetByID(r.Context(), r.PathValue("invoice_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) exportInvoices(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Exporter == nil {
		notImplemented(w)
		return
	}
	filter, err := bindInvoiceFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := rt.svc.Exporter.Export(r.Context(), filter, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	filename := fmt.Sprintf("invoices-%s%s", time.Now().UTC().Format("20060102-150405"), rt.svc.Exporter.FileExtension())
	w.Header().Set("Content-Type", rt.svc.Exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// bindInvoiceFilter reads the shared list/export query parameters.
func bindInvoiceFilter(r *http.Request) (domain.InvoiceFilter, error) {
	query := r.URL.Query()
	var (
		employee *string
		status   *string
		category *string
		fraud    *bool
		batchID  *string
		limit    *int
	)
	bindings := []struct {
		name string
		dest any
	}{
		{"employee_name", &employee},
		{"status", &status},
		{"invoice_type", &category},
		{"fraud_detected", &fraud},
		{"batch_id", &batchID},
		{"limit", &limit},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, query, b.dest); err != nil {
			return domain.InvoiceFilter{}, domain.WrapError(domain.ErrInvalidInput, "bind query", err)
		}
	}

	var filter domain.InvoiceFilter
	if employee != nil {
		filter.EmployeeName = strings.TrimSpace(*employee)
	}
	if batchID != nil {
		filter.BatchID = strings.TrimSpace(*batchID)
	}
	filter.FraudDetected = fraud
	if limit != nil {
		if *limit < 0 {
			return domain.InvoiceFilter{}, domain.WrapError(domain.ErrInvalidInput, "bind query", fmt.Errorf("limit must not be negative"))
		}
		filter.Limit = *limit
	}
	var err error
	if status != nil {
		if filter.Status, err = parseStatus(*status); err != nil {
			return domain.InvoiceFilter{}, err
		}
	}
	if category != nil {
		if filter.Category, err = parseCategory(*category); err != nil {
			return domain.InvoiceFilter{}, err
		}
	}
	return filter, nil
}

func parseStatus(raw string) (domain.ReimbursementStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	status, ok := domain.ParseReimbursementStatus(raw)
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse status", fmt.Errorf("unknown status %q", raw))
	}
	return status, nil
}

func parseCategory(raw string) (domain.Category, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	category, ok := domain.ParseCategory(raw)
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse invoice type", fmt.Errorf("unknown invoice type %q", raw))
	}
	return category, nil
}
