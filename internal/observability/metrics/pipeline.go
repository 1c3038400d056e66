package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

const namespace = "invoice"

// PipelineMetrics implements ports.PipelineObserver on a private registry.
type PipelineMetrics struct {
	registry *prometheus.Registry
	service  string

	processedTotal     *prometheus.CounterVec
	fraudFlagsTotal    *prometheus.CounterVec
	skippedTotal       *prometheus.CounterVec
	processDuration    *prometheus.HistogramVec
	inFlight           prometheus.Gauge
	batchesTotal       *prometheus.CounterVec
	narrativeFallbacks *prometheus.CounterVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	processedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "documents_processed_total",
			Help:      "Documents that produced a record, by invoice type and reimbursement status.",
		},
		[]string{"service", "invoice_type", "status"},
	)
	fraudFlagsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "fraud_flags_total",
			Help:      "Fired fraud indicators.",
		},
		[]string{"service", "indicator"},
	)
	skippedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "documents_skipped_total",
			Help:      "Documents dropped before producing a record, by reason.",
		},
		[]string{"service", "reason"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "document_duration_seconds",
			Help:      "Per-document processing duration in seconds by final stage.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "stage"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "documents_in_flight",
			Help:      "Documents currently being processed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	batchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "batches_total",
			Help:      "Finished batches by outcome.",
		},
		[]string{"service", "status"},
	)
	narrativeFallbacks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "narrative_fallback_total",
			Help:      "Policy decisions that kept the deterministic reason, by cause.",
		},
		[]string{"service", "reason"},
	)

	registry.MustRegister(processedTotal, fraudFlagsTotal, skippedTotal, processDuration, inFlight, batchesTotal, narrativeFallbacks)

	return &PipelineMetrics{
		registry:           registry,
		service:            service,
		processedTotal:     processedTotal,
		fraudFlagsTotal:    fraudFlagsTotal,
		skippedTotal:       skippedTotal,
		processDuration:    processDuration,
		inFlight:           inFlight,
		batchesTotal:       batchesTotal,
		narrativeFallbacks: narrativeFallbacks,
	}
}

// Registry lets the api expose pipeline and http metrics on one endpoint.
func (m *PipelineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) DocumentStarted() {
	m.inFlight.Inc()
}

func (m *PipelineMetrics) DocumentStopped() {
	m.inFlight.Dec()
}

func (m *PipelineMetrics) DocumentProcessed(record domain.InvoiceRecord, duration time.Duration) {
	status := string(record.Policy.Status)
	if status == "" {
		status = "unknown"
	}
	m.processedTotal.WithLabelValues(m.service, string(record.Category), status).Inc()
	for _, indicator := range record.Fraud.Indicators {
		m.fraudFlagsTotal.WithLabelValues(m.service, indicator).Inc()
	}
	stage := string(record.Stage)
	if record.Error != "" {
		stage = "error"
	}
	m.processDuration.WithLabelValues(m.service, stage).Observe(duration.Seconds())
}

func (m *PipelineMetrics) DocumentSkipped(reason domain.SkipReason) {
	m.skippedTotal.WithLabelValues(m.service, string(reason)).Inc()
}

func (m *PipelineMetrics) NarrativeFallback(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.narrativeFallbacks.WithLabelValues(m.service, reason).Inc()
}

func (m *PipelineMetrics) BatchFinished(status domain.BatchStatus) {
	m.batchesTotal.WithLabelValues(m.service, string(status)).Inc()
}
