package qdrant

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

// MemoryIndex is an in-process invoice index with the same filter semantics
// as Client. It backs QDRANT_URL=memory and adapter tests.
type MemoryIndex struct {
	mu     sync.RWMutex
	points map[string]memoryPoint
}

type memoryPoint struct {
	record domain.InvoiceRecord
	vector []float32
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[string]memoryPoint)}
}

func (m *MemoryIndex) Upsert(_ context.Context, record domain.InvoiceRecord, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[PointID(record.InvoiceID)] = memoryPoint{record: record, vector: append([]float32(nil), vector...)}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, queryVector []float32, limit int, filter domain.InvoiceFilter) ([]domain.RetrievedInvoice, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	m.mu.RLock()
	hits := make([]domain.RetrievedInvoice, 0, len(m.points))
	for _, p := range m.points {
		if !matches(p.record, filter) {
			continue
		}
		hits = append(hits, domain.RetrievedInvoice{Record: p.record, Score: cosine(queryVector, p.vector)})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Record.InvoiceID < hits[j].Record.InvoiceID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func matches(r domain.InvoiceRecord, f domain.InvoiceFilter) bool {
	if f.EmployeeName != "" && !strings.EqualFold(r.Fields.EmployeeName, strings.TrimSpace(f.EmployeeName)) {
		return false
	}
	if f.Status != "" && r.Policy.Status != f.Status {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.FraudDetected != nil && r.Fraud.IsFraud != *f.FraudDetected {
		return false
	}
	if f.BatchID != "" && r.BatchID != f.BatchID {
		return false
	}
	return true
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
