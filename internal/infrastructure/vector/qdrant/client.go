package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
	"github.com/kirillkom/invoice-reimbursement/internal/infrastructure/resilience"
)

const defaultSearchLimit = 5

// Point ids are derived from invoice ids so re-recording overwrites the same point.
var invoicePointNamespace = uuid.MustParse("8f1c2a4e-5b7d-4c3e-9a61-2f0d8e7b4c19")

// Client is the Qdrant-backed invoice index.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func PointID(invoiceID string) string {
	return uuid.NewSHA1(invoicePointNamespace, []byte(invoiceID)).String()
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Upsert(ctx context.Context, record domain.InvoiceRecord, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("qdrant upsert %s: empty vector", record.InvoiceID)
	}
	if err := c.ensureCollection(ctx, len(vector)); err != nil {
		return err
	}

	payload, err := recordPayload(record)
	if err != nil {
		return err
	}
	body := map[string]any{"points": []point{{ID: PointID(record.InvoiceID), Vector: vector, Payload: payload}}}
	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	err = c.executor.Execute(ctx, "qdrant.upsert", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPut, path, body, nil, "upsert")
	}, classifyQdrantError)
	return wrapTemporaryIfNeeded("qdrant upsert", err)
}

func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.InvoiceFilter,
) ([]domain.RetrievedInvoice, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if must := buildFilter(filter); len(must) > 0 {
		reqBody["filter"] = map[string]any{"must": must}
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	err := c.executor.Execute(ctx, "qdrant.search", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, path, reqBody, &searchResp, "search")
	}, classifyQdrantError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("qdrant search", err)
	}

	out := make([]domain.RetrievedInvoice, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		record, err := payloadRecord(r.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.RetrievedInvoice{Record: record, Score: r.Score})
	}
	return out, nil
}

// Flat payload keys back the filters; the full record rides along under "record".
func recordPayload(record domain.InvoiceRecord) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal invoice payload: %w", err)
	}
	var full map[string]any
	if err := json.Unmarshal(raw, &full); err != nil {
		return nil, fmt.Errorf("encode invoice payload: %w", err)
	}
	return map[string]any{
		"invoice_id":     record.InvoiceID,
		"batch_id":       record.BatchID,
		"employee_key":   strings.ToLower(record.Fields.EmployeeName),
		"status":         string(record.Policy.Status),
		"invoice_type":   string(record.Category),
		"fraud_detected": record.Fraud.IsFraud,
		"record":         full,
	}, nil
}

func payloadRecord(payload map[string]any) (domain.InvoiceRecord, error) {
	var record domain.InvoiceRecord
	raw, err := json.Marshal(payload["record"])
	if err != nil {
		return record, fmt.Errorf("read invoice payload: %w", err)
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		return record, fmt.Errorf("decode invoice payload %s: %w", getStringPayload(payload, "invoice_id"), err)
	}
	return record, nil
}

func buildFilter(filter domain.InvoiceFilter) []map[string]any {
	var must []map[string]any
	match := func(key string, value any) {
		must = append(must, map[string]any{"key": key, "match": map[string]any{"value": value}})
	}
	if filter.EmployeeName != "" {
		match("employee_key", strings.ToLower(strings.TrimSpace(filter.EmployeeName)))
	}
	if filter.Status != "" {
		match("status", string(filter.Status))
	}
	if filter.Category != "" {
		match("invoice_type", string(filter.Category))
	}
	if filter.FraudDetected != nil {
		match("fraud_detected", *filter.FraudDetected)
	}
	if filter.BatchID != "" {
		match("batch_id", filter.BatchID)
	}
	return must
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.executor.Execute(ctx, "qdrant.ensure_collection", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPut, "/collections/"+c.collection, body, nil, "ensure collection")
	}, classifyQdrantError)
	// 409 means the collection already exists.
	if err != nil && !isStatus(err, http.StatusConflict) {
		return wrapTemporaryIfNeeded("qdrant ensure collection", err)
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
