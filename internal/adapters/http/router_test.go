package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/invoice-reimbursement/internal/config"
	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

func multipartBody(t *testing.T, files map[string][2]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, file := range files {
		part, err := mw.CreateFormFile(field, file[0])
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte(file[1])); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func TestAnalyzeReadsBothUploads(t *testing.T) {
	analyzer := &analyzerFake{result: &domain.BatchResult{BatchID: "b-1", Records: []domain.InvoiceRecord{{InvoiceID: "inv-1"}}}}
	h := newTestHandler(config.Config{}, Services{Analyzer: analyzer})

	body, contentType := multipartBody(t, map[string][2]string{
		"policy":   {"policy.txt", "Meals up to 200"},
		"invoices": {"bills.zip", "PK..."},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/invoices/analyze", body)
	req.Header.Set("Content-Type", contentType)
	res := serve(h, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if analyzer.policy.Filename != "policy.txt" || string(analyzer.policy.Content) != "Meals up to 200" {
		t.Fatalf("unexpected policy upload %+v", analyzer.policy)
	}
	if analyzer.invoices.Filename != "bills.zip" {
		t.Fatalf("unexpected invoices upload %+v", analyzer.invoices)
	}
	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["batch_id"] != "b-1" {
		t.Fatalf("unexpected body %v", out)
	}
}

func TestAnalyzeRequiresInvoicesField(t *testing.T) {
	h := newTestHandler(config.Config{}, Services{Analyzer: &analyzerFake{}})
	body, contentType := multipartBody(t, map[string][2]string{"policy": {"policy.txt", "x"}})
	req := httptest.NewRequest(http.MethodPost, "/v1/invoices/analyze", body)
	req.Header.Set("Content-Type", contentType)

	res := serve(h, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `invoices`) {
		t.Fatalf("expected field name in error, got %s", res.Body.String())
	}
}

func TestAnalyzeRejectsOversizedUpload(t *testing.T) {
	h := newTestHandler(config.Config{MaxUploadMB: 1}, Services{Analyzer: &analyzerFake{}})
	body, contentType := multipartBody(t, map[string][2]string{
		"policy":   {"policy.txt", "x"},
		"invoices": {"bills.zip", strings.Repeat("x", 2<<20)},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/invoices/analyze", body)
	req.Header.Set("Content-Type", contentType)

	if res := serve(h, req); res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestSubmitBatchReturnsAccepted(t *testing.T) {
	h := newTestHandler(config.Config{}, Services{Submitter: &submitterFake{batch: &domain.Batch{ID: "b-9", Status: domain.BatchQueued}}})
	body, contentType := multipartBody(t, map[string][2]string{
		"policy":   {"policy.pdf", "%PDF"},
		"invoices": {"bills.zip", "PK"},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/batches", body)
	req.Header.Set("Content-Type", contentType)

	res := serve(h, req)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if res.Header().Get("Location") != "/v1/batches/b-9" {
		t.Fatalf("unexpected Location %q", res.Header().Get("Location"))
	}
}

func TestGetBatchIncludesRecords(t *testing.T) {
	reader := &batchReaderFake{batch: &domain.Batch{ID: "b-1", Status: domain.BatchCompleted}}
	h := newTestHandler(config.Config{}, Services{Batches: reader})

	res := serve(h, httptest.NewRequest(http.MethodGet, "/v1/batches/b-1", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var out struct {
		Batch   domain.Batch      `json:"batch"`
		Records []json.RawMessage `json:"records"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Batch.Status != domain.BatchCompleted || out.Records == nil {
		t.Fatalf("unexpected body %+v", out)
	}
}

func TestListInvoicesBindsQueryFilters(t *testing.T) {
	reader := &invoiceReaderFake{}
	h := newTestHandler(config.Config{}, Services{Invoices: reader})

	res := serve(h, httptest.NewRequest(http.MethodGet,
		"/v1/invoices?employee_name=Priya%20Sharma&status=declined&invoice_type=Meal&fraud_detected=true&limit=10", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	f := reader.lastFilter
	if f.EmployeeName != "Priya Sharma" || f.Status != domain.StatusDeclined || f.Category != domain.CategoryMeal || f.Limit != 10 {
		t.Fatalf("unexpected filter %+v", f)
	}
	if f.FraudDetected == nil || !*f.FraudDetected {
		t.Fatalf("expected fraud_detected=true, got %v", f.FraudDetected)
	}
	if !strings.Contains(res.Body.String(), `"invoices":[]`) {
		t.Fatalf("expected empty invoices array, got %s", res.Body.String())
	}
}

func TestListInvoicesRejectsBadParameters(t *testing.T) {
	h := newTestHandler(config.Config{}, Services{Invoices: &invoiceReaderFake{}})
	for _, query := range []string{"fraud_detected=maybe", "limit=ten", "status=pending", "invoice_type=hotel", "limit=-1"} {
		res := serve(h, httptest.NewRequest(http.MethodGet, "/v1/invoices?"+query, nil))
		if res.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, res.Code)
		}
	}
}

func TestExportInvoicesStreamsWorkbook(t *testing.T) {
	exporter := &exporterFake{}
	h := newTestHandler(config.Config{}, Services{Exporter: exporter})

	res := serve(h, httptest.NewRequest(http.MethodGet, "/v1/invoices/export?status=Fully%20Reimbursed", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.HasPrefix(res.Header().Get("Content-Disposition"), `attachment; filename="invoices-`) {
		t.Fatalf("unexpected disposition %q", res.Header().Get("Content-Disposition"))
	}
	if res.Body.String() != "PK-workbook" || exporter.filter.Status != domain.StatusFullyReimbursed {
		t.Fatalf("unexpected export %q %+v", res.Body.String(), exporter.filter)
	}
}

func TestRAGQueryUsesDefaultLimitAndParsesFilters(t *testing.T) {
	query := &queryFake{}
	h := newTestHandler(config.Config{RAGTopK: 7}, Services{Query: query})

	payload := `{"question":"Which cab bills were declined?","filters":{"status":"declined","invoice_type":"cab"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/rag/query", strings.NewReader(payload))
	res := serve(h, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if query.limit != 7 || query.filter.Status != domain.StatusDeclined || query.filter.Category != domain.CategoryCab {
		t.Fatalf("unexpected query call limit=%d filter=%+v", query.limit, query.filter)
	}
}

func TestChatAndReset(t *testing.T) {
	chat := &chatFake{}
	h := newTestHandler(config.Config{}, Services{Chat: chat})

	res := serve(h, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"hello"}`)))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var answer domain.Answer
	if err := json.NewDecoder(res.Body).Decode(&answer); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if answer.SessionID != "generated" || answer.Text != "re: hello" {
		t.Fatalf("unexpected answer %+v", answer)
	}

	res = serve(h, httptest.NewRequest(http.MethodDelete, "/v1/chat/generated", nil))
	if res.Code != http.StatusNoContent || chat.reset != "generated" {
		t.Fatalf("expected 204 and reset of session, got %d %q", res.Code, chat.reset)
	}

	res = serve(h, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"  "}`)))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty message, got %d", res.Code)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newTestHandler(config.Config{}, Services{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")

	res := serve(h, req)
	if res.Header().Get(requestIDHeader) != "req-42" {
		t.Fatalf("expected echoed request id, got %q", res.Header().Get(requestIDHeader))
	}
	if generated := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Header().Get(requestIDHeader); generated == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestOpenAPIDocumentIsServed(t *testing.T) {
	h := newTestHandler(config.Config{}, Services{})
	res := serve(h, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "3.0.3") {
		t.Fatalf("unexpected openapi response %d %s", res.Code, res.Body.String())
	}
}

func TestUnconfiguredServiceReturns501(t *testing.T) {
	h := newTestHandler(config.Config{}, Services{})
	if res := serve(h, httptest.NewRequest(http.MethodGet, "/v1/invoices", nil)); res.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", res.Code)
	}
}

func TestAuthRequiresBearerTokenOnV1Routes(t *testing.T) {
	h := newTestHandler(config.Config{APIKey: "secret-key"}, Services{Invoices: &invoiceReaderFake{}})

	if res := serve(h, httptest.NewRequest(http.MethodGet, "/v1/invoices", nil)); res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/invoices", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if res := serve(h, req); res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/invoices", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	if res := serve(h, req); res.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", res.Code)
	}

	if res := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil)); res.Code != http.StatusOK {
		t.Fatalf("healthz must stay open, got %d", res.Code)
	}
}

func TestServiceErrorsAreNotLeaked(t *testing.T) {
	h := newTestHandler(config.Config{}, Services{Invoices: &invoiceReaderFake{err: errors.New("pq: connection refused")}})
	res := serve(h, httptest.NewRequest(http.MethodGet, "/v1/invoices", nil))
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "pq:") {
		t.Fatalf("internal error leaked: %s", res.Body.String())
	}
}
