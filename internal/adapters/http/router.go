package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kirillkom/invoice-reimbursement/internal/config"
	"github.com/kirillkom/invoice-reimbursement/internal/core/ports"
	"github.com/kirillkom/invoice-reimbursement/internal/observability/metrics"
)

const (
	serviceName        = "api"
	defaultMaxUploadMB = 64
)

// Services groups the inbound ports served over HTTP. Nil entries answer 501.
type Services struct {
	Analyzer  ports.InvoiceAnalyzer
	Submitter ports.BatchSubmitter
	Batches   ports.BatchReader
	Invoices  ports.InvoiceReader
	Query     ports.InvoiceQueryService
	Chat      ports.ChatService
	Exporter  ports.InvoiceExporter
}

type Router struct {
	svc     Services
	metrics *metrics.HTTPServerMetrics
	openAPI []byte

	maxUploadBytes int64
	queryTopK      int
	apiKey         string
	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
	inFlightWait   time.Duration
}

func NewRouter(cfg config.Config, svc Services, m *metrics.HTTPServerMetrics, openAPI []byte) *Router {
	maxUploadMB := cfg.MaxUploadMB
	if maxUploadMB <= 0 {
		maxUploadMB = defaultMaxUploadMB
	}
	return &Router{
		svc:            svc,
		metrics:        m,
		openAPI:        openAPI,
		maxUploadBytes: int64(maxUploadMB) << 20,
		queryTopK:      cfg.RAGTopK,
		apiKey:         cfg.APIKey,
		rateLimitRPS:   cfg.APIRateLimitRPS,
		rateLimitBurst: cfg.APIRateLimitBurst,
		maxInFlight:    cfg.APIMaxInFlight,
		inFlightWait:   cfg.APIInFlightWait,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.json", rt.openAPIDocument)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("POST /v1/invoices/analyze", rt.analyzeInvoices)
	mux.HandleFunc("POST /v1/batches", rt.submitBatch)
	mux.HandleFunc("GET /v1/batches/{batch_id}", rt.getBatch)
	mux.HandleFunc("GET /v1/invoices", rt.listInvoices)
	mux.HandleFunc("GET /v1/invoices/export", rt.exportInvoices)
	mux.HandleFunc("GET /v1/invoices/{invoice_id}", rt.getInvoice)
	mux.HandleFunc("POST /v1/rag/query", rt.queryInvoices)
	mux.HandleFunc("POST /v1/chat", rt.chat)
	mux.HandleFunc("DELETE /v1/chat/{session_id}", rt.resetChat)

	var h http.Handler = mux
	h = authMiddleware(h, rt.apiKey)
	h = backpressureMiddleware(h, rt.maxInFlight, rt.inFlightWait)
	h = rateLimitMiddleware(h, rt.rateLimitRPS, rt.rateLimitBurst)
	if rt.metrics != nil {
		h = rt.metrics.Middleware(serviceName, h)
	}
	h = recoverMiddleware(h)
	h = accessLogMiddleware(h)
	return requestIDMiddleware(h)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPIDocument(w http.ResponseWriter, _ *http.Request) {
	if len(rt.openAPI) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "openapi document not loaded"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rt.openAPI)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func notImplemented(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "not configured"})
}
