package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

type filterRequest struct {
	EmployeeName  string `json:"employee_name"`
	Status        string `json:"status"`
	InvoiceType   string `json:"invoice_type"`
	FraudDetected *bool  `json:"fraud_detected"`
	BatchID       string `json:"batch_id"`
}

func (f filterRequest) toDomain() (domain.InvoiceFilter, error) {
	status, err := parseStatus(f.Status)
	if err != nil {
		return domain.InvoiceFilter{}, err
	}
	category, err := parseCategory(f.InvoiceType)
	if err != nil {
		return domain.InvoiceFilter{}, err
	}
	return domain.InvoiceFilter{
		EmployeeName:  strings.TrimSpace(f.EmployeeName),
		Status:        status,
		Category:      category,
		FraudDetected: f.FraudDetected,
		BatchID:       strings.TrimSpace(f.BatchID),
	}, nil
}

func (rt *Router) queryInvoices(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Query == nil {
		notImplemented(w)
		return
	}
	var req struct {
		Question string        `json:"question"`
		Limit    int           `json:"limit"`
		Filters  filterRequest `json:"filters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	filter, err := req.Filters.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = rt.queryTopK
	}

	start := time.Now()
	answer, err := rt.svc.Query.Answer(r.Context(), req.Question, limit, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.observeAnswer("rag_query", answer, start)
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Chat == nil {
		notImplemented(w)
		return
	}
	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	start := time.Now()
	answer, err := rt.svc.Chat.Chat(r.Context(), strings.TrimSpace(req.SessionID), req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.observeAnswer("chat", answer, start)
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) resetChat(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Chat == nil {
		notImplemented(w)
		return
	}
	if err := rt.svc.Chat.Reset(r.Context(), r.PathValue("session_id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) observeAnswer(endpoint string, answer *domain.Answer, start time.Time) {
	if rt.metrics == nil || answer == nil {
		return
	}
	rt.metrics.RecordQueryObservation(serviceName, endpoint, len(answer.Sources), time.Since(start))
}
