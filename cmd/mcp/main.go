package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/invoice-reimbursement/internal/adapters/mcp"
	"github.com/kirillkom/invoice-reimbursement/internal/bootstrap"
	"github.com/kirillkom/invoice-reimbursement/internal/config"
	"github.com/kirillkom/invoice-reimbursement/internal/observability/logging"
)

const version = "0.1.0"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))

	app, err := bootstrap.New(context.Background(), cfg, "mcp")
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := mcpadapter.NewServer(app.Invoices, app.QueryUC, cfg.RAGTopK).MCPServer(version)
	slog.Info("mcp_serving_stdio")
	if err := server.ServeStdio(srv); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
