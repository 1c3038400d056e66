// Package mcpadapter exposes recorded invoices to MCP clients as tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
	"github.com/kirillkom/invoice-reimbursement/internal/core/ports"
)

const (
	serverName       = "invoice-reimbursement"
	defaultListLimit = 20
)

type Server struct {
	invoices ports.InvoiceReader
	query    ports.InvoiceQueryService
	topK     int
}

func NewServer(invoices ports.InvoiceReader, query ports.InvoiceQueryService, topK int) *Server {
	if topK <= 0 {
		topK = 5
	}
	return &Server{invoices: invoices, query: query, topK: topK}
}

// MCPServer registers the invoice tools on a new stdio-capable server.
func (s *Server) MCPServer(version string) *server.MCPServer {
	srv := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	srv.AddTool(searchInvoicesTool(), s.searchInvoices)
	srv.AddTool(getInvoiceTool(), s.getInvoice)
	srv.AddTool(askInvoicesTool(), s.askInvoices)
	return srv
}

func filterOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("employee_name", mcp.Description("Exact employee name, case-insensitive.")),
		mcp.WithString("status", mcp.Description("Reimbursement status."),
			mcp.Enum(string(domain.StatusFullyReimbursed), string(domain.StatusPartiallyReimbursed), string(domain.StatusDeclined))),
		mcp.WithString("invoice_type", mcp.Description("Invoice category."),
			mcp.Enum(string(domain.CategoryMeal), string(domain.CategoryTravel), string(domain.CategoryCab), string(domain.CategoryGeneral))),
		mcp.WithBoolean("fraud_detected", mcp.Description("Only invoices with (true) or without (false) fraud flags.")),
		mcp.WithString("batch_id", mcp.Description("Batch the invoices were submitted in.")),
	}
}

func searchInvoicesTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("List recorded invoice decisions matching the given filters, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of invoices to return.")),
	}, filterOptions()...)
	return mcp.NewTool("search_invoices", opts...)
}

func getInvoiceTool() mcp.Tool {
	return mcp.NewTool("get_invoice",
		mcp.WithDescription("Fetch one invoice decision by its invoice id."),
		mcp.WithString("invoice_id", mcp.Required(), mcp.Description("Invoice id as returned by search_invoices.")),
	)
}

func askInvoicesTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Answer a natural-language question grounded in the recorded invoices."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question about the invoices.")),
		mcp.WithNumber("limit", mcp.Description("How many invoices to retrieve as context.")),
	}, filterOptions()...)
	return mcp.NewTool("ask_invoices", opts...)
}

func (s *Server) searchInvoices(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter, err := filterFromArguments(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter.Limit = req.GetInt("limit", defaultListLimit)
	records, err := s.invoices.List(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list invoices: %v", err)), nil
	}
	return jsonResult(map[string]any{"count": len(records), "invoices": records})
}

func (s *Server) getInvoice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("invoice_id")
	if err != nil || strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("invoice_id is required"), nil
	}
	record, err := s.invoices.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if domain.IsKind(err, domain.ErrInvoiceNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("invoice %s not found", id)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("get invoice: %v", err)), nil
	}
	return jsonResult(record)
}

func (s *Server) askInvoices(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question is required"), nil
	}
	filter, err := filterFromArguments(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := s.query.Answer(ctx, question, req.GetInt("limit", s.topK), filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("answer question: %v", err)), nil
	}

	sources := make([]map[string]any, 0, len(answer.Sources))
	for _, src := range answer.Sources {
		sources = append(sources, map[string]any{
			"invoice_id":           src.Record.InvoiceID,
			"employee_name":        src.Record.Fields.EmployeeName,
			"reimbursement_status": src.Record.Policy.Status,
			"reimbursable_amount":  src.Record.Policy.ReimbursableAmount,
			"score":                src.Score,
		})
	}
	return jsonResult(map[string]any{"answer": answer.Text, "sources": sources})
}

func filterFromArguments(req mcp.CallToolRequest) (domain.InvoiceFilter, error) {
	filter := domain.InvoiceFilter{
		EmployeeName: strings.TrimSpace(req.GetString("employee_name", "")),
		BatchID:      strings.TrimSpace(req.GetString("batch_id", "")),
	}
	if raw := req.GetString("status", ""); strings.TrimSpace(raw) != "" {
		status, ok := domain.ParseReimbursementStatus(raw)
		if !ok {
			return domain.InvoiceFilter{}, fmt.Errorf("unknown status %q", raw)
		}
		filter.Status = status
	}
	if raw := req.GetString("invoice_type", ""); strings.TrimSpace(raw) != "" {
		category, ok := domain.ParseCategory(raw)
		if !ok {
			return domain.InvoiceFilter{}, fmt.Errorf("unknown invoice_type %q", raw)
		}
		filter.Category = category
	}
	if v, ok := req.GetArguments()["fraud_detected"].(bool); ok {
		filter.FraudDetected = &v
	}
	return filter, nil
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
