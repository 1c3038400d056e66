package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/invoice-reimbursement/api"
	"github.com/kirillkom/invoice-reimbursement/internal/config"
	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
	"github.com/kirillkom/invoice-reimbursement/internal/core/extract"
	"github.com/kirillkom/invoice-reimbursement/internal/core/fraud"
	"github.com/kirillkom/invoice-reimbursement/internal/core/policy"
	"github.com/kirillkom/invoice-reimbursement/internal/core/ports"
	"github.com/kirillkom/invoice-reimbursement/internal/core/usecase"
	"github.com/kirillkom/invoice-reimbursement/internal/infrastructure/archive/zipfile"
	"github.com/kirillkom/invoice-reimbursement/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/invoice-reimbursement/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/invoice-reimbursement/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/invoice-reimbursement/internal/infrastructure/llm/offline"
	"github.com/kirillkom/invoice-reimbursement/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/invoice-reimbursement/internal/infrastructure/queue/nats"
	"github.com/kirillkom/invoice-reimbursement/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/invoice-reimbursement/internal/infrastructure/resilience"
	"github.com/kirillkom/invoice-reimbursement/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/invoice-reimbursement/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/invoice-reimbursement/internal/observability/metrics"
)

// memoryIndexURL selects the in-process vector index instead of Qdrant.
const memoryIndexURL = "memory"

type App struct {
	Config config.Config

	Queue       ports.MessageQueue
	Invoices    ports.InvoiceReader
	Metrics     *metrics.PipelineMetrics
	HTTPMetrics *metrics.HTTPServerMetrics
	OpenAPI     []byte

	AnalyzeUC *usecase.AnalyzeUseCase
	SubmitUC  *usecase.SubmitBatchUseCase
	RunUC     *usecase.RunBatchUseCase
	BatchUC   *usecase.BatchQueryUseCase
	QueryUC   *usecase.InvoiceQueryUseCase
	ChatUC    *usecase.ChatUseCase
	ExportUC  *usecase.ExportUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	rules, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	invoiceRepo := postgres.NewInvoiceRepository(db)
	batchRepo := postgres.NewBatchRepository(db)
	conversationRepo := postgres.NewConversationRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	rcfg := resilience.DefaultConfig()
	rcfg.RetryMaxAttempts = cfg.ResilienceRetryAttempts
	rcfg.BreakerEnabled = cfg.ResilienceBreakerEnabled
	executor := resilience.NewExecutor(rcfg)

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: executor})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	pipelineMetrics := metrics.NewPipelineMetrics(service)
	httpMetrics := metrics.NewHTTPServerMetrics(service, pipelineMetrics.Registry())

	var (
		completer ports.TextCompleter
		embedder  ports.Embedder
		generator ports.AnswerGenerator
	)
	if cfg.LLMEnabled() {
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
			Timeout:       cfg.LLMTimeout,
			RatePerSecond: cfg.LLMRatePerSecond,
			Burst:         cfg.LLMBurst,
			Executor:      executor,
		})
		completer = ollama.NewCompleter(client)
		embedder = ollama.NewEmbedder(client)
		generator = ollama.NewGenerator(client)
	} else {
		embedder = offline.NewEmbedder(offline.DefaultDimensions)
		generator = offline.NewGenerator()
	}

	var index ports.InvoiceIndex
	if strings.EqualFold(strings.TrimSpace(cfg.QdrantURL), memoryIndexURL) {
		index = qdrant.NewMemoryIndex()
	} else {
		index = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor)
	}

	pdf := pdftext.NewExtractor(cfg.PDFTimeout, 0)
	archives := zipfile.NewReader(0, 0)
	extractor := extract.New(extract.Options{
		MinAmount: rules.Extraction.MinAmount,
		MaxAmount: rules.Extraction.MaxAmount,
	})
	detector := fraud.New(fraudThresholds(rules.Fraud), time.Now)
	engine := policy.NewEngine(policy.Config{
		Limits:               categoryAmounts(rules.Limits),
		RestrictedCategories: categories(rules.RestrictedItems.Categories),
		RestrictedVocabulary: rules.RestrictedItems.Vocabulary,
		NarrativeTimeout:     cfg.LLMTimeout,
	}, completer, pipelineMetrics)

	sink := usecase.NewRecordSink(invoiceRepo, embedder, index)
	processor := usecase.NewBatchProcessUseCase(pdf, plaintext.NewDecoder(), extractor, detector, engine, sink, pipelineMetrics, usecase.ProcessOptions{
		Concurrency:    cfg.BatchConcurrency,
		DefaultAmounts: categoryAmounts(rules.DefaultAmounts),
	})
	queryUC := usecase.NewInvoiceQueryUseCase(embedder, index, generator)

	openAPI, err := api.JSON(ctx)
	if err != nil {
		slog.Warn("openapi_load_failed", "error", err)
	}

	slog.Info("bootstrap_ready",
		"service", service,
		"llm_provider", cfg.LLMProvider,
		"vector_index", cfg.QdrantURL,
		"policy_file", cfg.PolicyFile,
	)

	return &App{
		Config:      cfg,
		Queue:       queue,
		Invoices:    invoiceRepo,
		Metrics:     pipelineMetrics,
		HTTPMetrics: httpMetrics,
		OpenAPI:     openAPI,

		AnalyzeUC: usecase.NewAnalyzeUseCase(archives, pdf, processor, batchRepo, pipelineMetrics),
		SubmitUC:  usecase.NewSubmitBatchUseCase(batchRepo, storage, queue),
		RunUC:     usecase.NewRunBatchUseCase(batchRepo, storage, archives, pdf, processor, pipelineMetrics),
		BatchUC:   usecase.NewBatchQueryUseCase(batchRepo, invoiceRepo),
		QueryUC:   queryUC,
		ChatUC: usecase.NewChatUseCase(queryUC, conversationRepo, usecase.ChatOptions{
			HistoryLimit: cfg.ChatHistoryLimit,
			ContextTurns: cfg.ChatContextTurns,
			TopK:         cfg.RAGTopK,
		}),
		ExportUC: usecase.NewExportUseCase(invoiceRepo, xlsx.NewExporter()),

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func fraudThresholds(p config.FraudPolicy) fraud.Thresholds {
	return fraud.Thresholds{
		MaxJourneyDays:      p.MaxJourneyDays,
		MaxAgeDays:          p.MaxAgeDays,
		MaxFutureDays:       p.MaxFutureDays,
		Ceilings:            categoryAmounts(p.Ceilings),
		RoundMultiple:       p.RoundMultiple,
		RoundFloor:          p.RoundFloor,
		RoundCategories:     categories(p.RoundCategories),
		DuplicateLineRatio:  p.DuplicateLineRatio,
		DuplicateMinLines:   p.DuplicateMinLines,
		MaxMissingFields:    p.MaxMissingFields,
		ConfidencePerSignal: p.ConfidencePerSignal,
	}
}

// Unknown category keys are dropped with a warning.
func categoryAmounts(in map[string]float64) map[domain.Category]float64 {
	out := make(map[domain.Category]float64, len(in))
	for key, value := range in {
		category, ok := domain.ParseCategory(key)
		if !ok {
			slog.Warn("policy_unknown_category", "category", key)
			continue
		}
		out[category] = value
	}
	return out
}

func categories(in []string) []domain.Category {
	out := make([]domain.Category, 0, len(in))
	for _, key := range in {
		category, ok := domain.ParseCategory(key)
		if !ok {
			slog.Warn("policy_unknown_category", "category", key)
			continue
		}
		out = append(out, category)
	}
	return out
}
