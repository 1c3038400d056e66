package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

type invoicesFake struct {
	records    []domain.InvoiceRecord
	lastFilter domain.InvoiceFilter
}

func (f *invoicesFake) GetByID(_ context.Context, id string) (*domain.InvoiceRecord, error) {
	for i := range f.records {
		if f.records[i].InvoiceID == id {
			return &f.records[i], nil
		}
	}
	return nil, domain.WrapError(domain.ErrInvoiceNotFound, "get invoice", errors.New("id="+id))
}

func (f *invoicesFake) List(_ context.Context, filter domain.InvoiceFilter) ([]domain.InvoiceRecord, error) {
	f.lastFilter = filter
	return f.records, nil
}

type queryFake struct {
	limit  int
	filter domain.InvoiceFilter
}

func (f *queryFake) Answer(_ context.Context, question string, limit int, filter domain.InvoiceFilter) (*domain.Answer, error) {
	f.limit, f.filter = limit, filter
	return &domain.Answer{
		Text: "Priya has one partially reimbursed meal.",
		Sources: []domain.RetrievedInvoice{{
			Record: domain.InvoiceRecord{InvoiceID: "meal-1", Policy: domain.PolicyVerdict{Status: domain.StatusPartiallyReimbursed}},
			Score:  0.91,
		}},
	}, nil
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	default:
		t.Fatalf("unexpected content %T", c)
		return ""
	}
}

func TestSearchInvoicesAppliesFilters(t *testing.T) {
	invoices := &invoicesFake{records: []domain.InvoiceRecord{{InvoiceID: "meal-1"}}}
	s := NewServer(invoices, &queryFake{}, 5)

	res, err := s.searchInvoices(context.Background(), call("search_invoices", map[string]any{
		"employee_name":  " Priya Sharma ",
		"status":         "partial",
		"invoice_type":   "MEAL",
		"fraud_detected": false,
		"limit":          float64(3),
	}))
	if err != nil {
		t.Fatalf("searchInvoices() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	f := invoices.lastFilter
	if f.EmployeeName != "Priya Sharma" || f.Status != domain.StatusPartiallyReimbursed || f.Category != domain.CategoryMeal || f.Limit != 3 {
		t.Fatalf("unexpected filter %+v", f)
	}
	if f.FraudDetected == nil || *f.FraudDetected {
		t.Fatalf("expected fraud_detected=false, got %v", f.FraudDetected)
	}
	if !strings.Contains(resultText(t, res), `"invoice_id": "meal-1"`) {
		t.Fatalf("unexpected result %s", resultText(t, res))
	}
}

func TestSearchInvoicesRejectsUnknownStatus(t *testing.T) {
	s := NewServer(&invoicesFake{}, &queryFake{}, 5)
	res, err := s.searchInvoices(context.Background(), call("search_invoices", map[string]any{"status": "pending"}))
	if err != nil {
		t.Fatalf("searchInvoices() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error")
	}
}

func TestGetInvoiceNotFoundIsToolError(t *testing.T) {
	s := NewServer(&invoicesFake{}, &queryFake{}, 5)
	res, err := s.getInvoice(context.Background(), call("get_invoice", map[string]any{"invoice_id": "missing"}))
	if err != nil {
		t.Fatalf("getInvoice() error = %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "not found") {
		t.Fatalf("expected not-found tool error")
	}
}

func TestAskInvoicesUsesDefaultTopK(t *testing.T) {
	query := &queryFake{}
	s := NewServer(&invoicesFake{}, query, 7)

	res, err := s.askInvoices(context.Background(), call("ask_invoices", map[string]any{"question": "What did Priya claim?"}))
	if err != nil {
		t.Fatalf("askInvoices() error = %v", err)
	}
	if res.IsError || query.limit != 7 {
		t.Fatalf("unexpected result error=%v limit=%d", res.IsError, query.limit)
	}
	text := resultText(t, res)
	if !strings.Contains(text, "partially reimbursed meal") || !strings.Contains(text, `"invoice_id": "meal-1"`) {
		t.Fatalf("unexpected answer payload %s", text)
	}
}

func TestAskInvoicesRequiresQuestion(t *testing.T) {
	s := NewServer(&invoicesFake{}, &queryFake{}, 5)
	res, _ := s.askInvoices(context.Background(), call("ask_invoices", map[string]any{}))
	if !res.IsError {
		t.Fatalf("expected tool error for missing question")
	}
}

func TestMCPServerRegistersTools(t *testing.T) {
	srv := NewServer(&invoicesFake{}, &queryFake{}, 5).MCPServer("test")
	reply := srv.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(reply)
	if err != nil {
		t.Fatalf("marshal reply: %v", err)
	}
	for _, name := range []string{"search_invoices", "get_invoice", "ask_invoices"} {
		if !strings.Contains(string(raw), `"name":"`+name+`"`) {
			t.Fatalf("tool %s missing from tools/list: %s", name, raw)
		}
	}
}
