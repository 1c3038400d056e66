package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
	"github.com/kirillkom/invoice-reimbursement/internal/core/extract"
	"github.com/kirillkom/invoice-reimbursement/internal/core/fraud"
	"github.com/kirillkom/invoice-reimbursement/internal/core/policy"
	"github.com/kirillkom/invoice-reimbursement/internal/core/ports"
	"github.com/kirillkom/invoice-reimbursement/internal/infrastructure/extractor/plaintext"
)

var processingDay = time.Date(2024, 9, 1, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return processingDay }

func newTestProcessor(pdf ports.PDFTextExtractor, sink *RecordSink, concurrency int) *BatchProcessUseCase {
	return NewBatchProcessUseCase(
		pdf,
		plaintext.NewDecoder(),
		extract.New(extract.Options{Now: fixedClock}),
		fraud.New(fraud.DefaultThresholds(), fixedClock),
		policy.NewEngine(policy.DefaultConfig(), nil, nil),
		sink,
		nil,
		ProcessOptions{Concurrency: concurrency, Now: fixedClock},
	)
}

// pdfFake maps content to text. onCall runs before the lookup.
type pdfFake struct {
	mu     sync.Mutex
	texts  map[string]string
	calls  int
	onCall func(call int, content []byte)
}

func (f *pdfFake) ExtractText(_ context.Context, content []byte) string {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(call, content)
	}
	return f.texts[string(content)]
}

type invoiceRepoFake struct {
	mu        sync.Mutex
	records   map[string]domain.InvoiceRecord
	upsertErr error
	listErr   error
	lastList  domain.InvoiceFilter
}

func newInvoiceRepoFake() *invoiceRepoFake {
	return &invoiceRepoFake{records: map[string]domain.InvoiceRecord{}}
}

func (f *invoiceRepoFake) Upsert(_ context.Context, record domain.InvoiceRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[record.InvoiceID] = record
	return nil
}

func (f *invoiceRepoFake) GetByID(_ context.Context, id string) (*domain.InvoiceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return nil, domain.ErrInvoiceNotFound
	}
	return &record, nil
}

func (f *invoiceRepoFake) List(_ context.Context, filter domain.InvoiceFilter) ([]domain.InvoiceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastList = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sorted(""), nil
}

func (f *invoiceRepoFake) ListByBatch(_ context.Context, batchID string) ([]domain.InvoiceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(batchID), nil
}

func (f *invoiceRepoFake) sorted(batchID string) []domain.InvoiceRecord {
	out := make([]domain.InvoiceRecord, 0, len(f.records))
	for _, r := range f.records {
		if batchID == "" || r.BatchID == batchID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceID < out[j].InvoiceID })
	return out
}

type embedderFake struct {
	err   error
	texts []string
	mu    sync.Mutex
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.texts = append(f.texts, texts...)
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

type indexFake struct {
	mu         sync.Mutex
	upserted   []string
	results    []domain.RetrievedInvoice
	lastFilter domain.InvoiceFilter
	lastLimit  int
}

func (f *indexFake) Upsert(_ context.Context, record domain.InvoiceRecord, _ []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, record.InvoiceID)
	return nil
}

func (f *indexFake) Search(_ context.Context, _ []float32, limit int, filter domain.InvoiceFilter) ([]domain.RetrievedInvoice, error) {
	f.lastFilter = filter
	f.lastLimit = limit
	return f.results, nil
}

type batchRepoFake struct {
	mu       sync.Mutex
	batches  map[string]domain.Batch
	statuses []domain.BatchStatus
	progress domain.BatchProgress
}

func newBatchRepoFake() *batchRepoFake {
	return &batchRepoFake{batches: map[string]domain.Batch{}}
}

func (f *batchRepoFake) Create(_ context.Context, batch *domain.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches[batch.ID] = *batch
	return nil
}

func (f *batchRepoFake) GetByID(_ context.Context, id string) (*domain.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch, ok := f.batches[id]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	return &batch, nil
}

func (f *batchRepoFake) UpdateStatus(_ context.Context, id string, status domain.BatchStatus, progress domain.BatchProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch, ok := f.batches[id]
	if !ok {
		return domain.ErrBatchNotFound
	}
	batch.Status = status
	batch.Error = progress.Error
	f.batches[id] = batch
	f.statuses = append(f.statuses, status)
	f.progress = progress
	return nil
}

type storageFake struct {
	objects map[string][]byte
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type queueFake struct {
	published  []string
	publishErr error
}

func (f *queueFake) PublishBatchSubmitted(_ context.Context, batchID string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, batchID)
	return nil
}

func (f *queueFake) SubscribeBatchSubmitted(context.Context, func(context.Context, string) error) error {
	return nil
}

// archiveFake treats every upload as a bundle of the configured documents.
type archiveFake struct {
	documents []domain.RawDocument
	err       error
}

func (f *archiveFake) Expand(archiveName string, _ []byte) ([]domain.RawDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.RawDocument, len(f.documents))
	for i, doc := range f.documents {
		doc.ArchiveName = archiveName
		out[i] = doc
	}
	return out, nil
}

type generatorFake struct {
	answer   string
	question string
	history  []domain.ConversationMessage
	invoices []domain.RetrievedInvoice
	calls    int
}

func (f *generatorFake) GenerateAnswer(_ context.Context, question string, history []domain.ConversationMessage, invoices []domain.RetrievedInvoice) (string, error) {
	f.calls++
	f.question = question
	f.history = history
	f.invoices = invoices
	return f.answer, nil
}

type conversationFake struct {
	messages map[string][]domain.ConversationMessage
	cleared  []string
}

func newConversationFake() *conversationFake {
	return &conversationFake{messages: map[string][]domain.ConversationMessage{}}
}

func (f *conversationFake) AppendMessage(_ context.Context, message domain.ConversationMessage) error {
	f.messages[message.SessionID] = append(f.messages[message.SessionID], message)
	return nil
}

func (f *conversationFake) ListRecentMessages(_ context.Context, sessionID string, limit int) ([]domain.ConversationMessage, error) {
	all := f.messages[sessionID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]domain.ConversationMessage(nil), all...), nil
}

func (f *conversationFake) ClearSession(_ context.Context, sessionID string) error {
	delete(f.messages, sessionID)
	f.cleared = append(f.cleared, sessionID)
	return nil
}

type observerFake struct {
	mu        sync.Mutex
	inFlight  int
	maxFlight int
	processed int
	skipped   map[domain.SkipReason]int
	batches   []domain.BatchStatus
}

func (f *observerFake) DocumentStarted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
}

func (f *observerFake) DocumentStopped() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
}

func (f *observerFake) DocumentProcessed(domain.InvoiceRecord, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed++
}

func (f *observerFake) DocumentSkipped(reason domain.SkipReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.skipped == nil {
		f.skipped = map[domain.SkipReason]int{}
	}
	f.skipped[reason]++
}

func (f *observerFake) NarrativeFallback(string) {}

func (f *observerFake) BatchFinished(status domain.BatchStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, status)
}
