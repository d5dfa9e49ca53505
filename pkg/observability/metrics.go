package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider manages OpenTelemetry metrics and Prometheus integration
// for the order execution engine.
type MetricsProvider struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	registry      *prometheus.Registry

	quotesCollectedTotal  metric.Int64Counter
	quoteCollectionTime   metric.Float64Histogram
	venueJobsTotal        metric.Int64Counter
	venueJobDuration      metric.Float64Histogram
	strategySelections    metric.Int64Counter
	ordersTerminal        metric.Int64Counter
	swapRetries           metric.Int64Counter
	activeOrders          metric.Int64UpDownCounter
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	ServiceName    string
	ServiceVersion string
	Namespace      string
	Port           int
	Enabled        bool
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg MetricsConfig) (*MetricsProvider, error) {
	if !cfg.Enabled {
		return &MetricsProvider{}, nil
	}

	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithNamespace(cfg.Namespace),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(cfg.ServiceName)

	mp := &MetricsProvider{
		meterProvider: meterProvider,
		meter:         meter,
		registry:      registry,
	}

	if err := mp.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return mp, nil
}

// initializeMetrics creates all engine metrics
func (mp *MetricsProvider) initializeMetrics() error {
	var err error

	mp.quotesCollectedTotal, err = mp.meter.Int64Counter(
		"quotes_collected_total",
		metric.WithDescription("Total number of quotes collected per venue and outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create quotes_collected_total counter: %w", err)
	}

	mp.quoteCollectionTime, err = mp.meter.Float64Histogram(
		"quote_collection_duration_seconds",
		metric.WithDescription("Time spent in the quote collection phase per order"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2, 5, 10, 15, 30),
	)
	if err != nil {
		return fmt.Errorf("failed to create quote_collection_duration histogram: %w", err)
	}

	mp.venueJobsTotal, err = mp.meter.Int64Counter(
		"venue_jobs_total",
		metric.WithDescription("Total number of venue jobs run, by venue, job type and outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create venue_jobs_total counter: %w", err)
	}

	mp.venueJobDuration, err = mp.meter.Float64Histogram(
		"venue_job_duration_seconds",
		metric.WithDescription("Venue job latency, by venue and job type"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return fmt.Errorf("failed to create venue_job_duration histogram: %w", err)
	}

	mp.strategySelections, err = mp.meter.Int64Counter(
		"strategy_selections_total",
		metric.WithDescription("Number of times each routing strategy selected a venue"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create strategy_selections_total counter: %w", err)
	}

	mp.ordersTerminal, err = mp.meter.Int64Counter(
		"orders_terminal_total",
		metric.WithDescription("Orders that reached a terminal status, by status and error kind"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create orders_terminal_total counter: %w", err)
	}

	mp.swapRetries, err = mp.meter.Int64Counter(
		"swap_retries_total",
		metric.WithDescription("Swap job retry attempts consumed, by venue"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create swap_retries_total counter: %w", err)
	}

	mp.activeOrders, err = mp.meter.Int64UpDownCounter(
		"active_orders",
		metric.WithDescription("Orders currently in a non-terminal status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create active_orders gauge: %w", err)
	}

	return nil
}

// RecordQuote records a quote arrival (success or failure) for a venue.
func (mp *MetricsProvider) RecordQuote(ctx context.Context, venue, outcome string) {
	if mp.quotesCollectedTotal == nil {
		return
	}
	mp.quotesCollectedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("venue", venue),
		attribute.String("outcome", outcome),
	))
}

// RecordQuoteCollection records how long an order spent collecting quotes.
func (mp *MetricsProvider) RecordQuoteCollection(ctx context.Context, duration time.Duration) {
	if mp.quoteCollectionTime == nil {
		return
	}
	mp.quoteCollectionTime.Record(ctx, duration.Seconds())
}

// RecordVenueJob records a completed venue job (quote or swap).
func (mp *MetricsProvider) RecordVenueJob(ctx context.Context, venue, jobType, outcome string, duration time.Duration) {
	if mp.venueJobsTotal == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("venue", venue),
		attribute.String("job_type", jobType),
		attribute.String("outcome", outcome),
	}
	mp.venueJobsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mp.venueJobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordStrategySelection records a strategy choosing a winning venue.
func (mp *MetricsProvider) RecordStrategySelection(ctx context.Context, strategy string) {
	if mp.strategySelections == nil {
		return
	}
	mp.strategySelections.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
}

// RecordOrderTerminal records an order reaching confirmed/failed.
func (mp *MetricsProvider) RecordOrderTerminal(ctx context.Context, status, errorKind string) {
	if mp.ordersTerminal == nil {
		return
	}
	mp.ordersTerminal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("error_kind", errorKind),
	))
	mp.activeOrders.Add(ctx, -1)
}

// RecordOrderStarted marks a new order entering the active set.
func (mp *MetricsProvider) RecordOrderStarted(ctx context.Context) {
	if mp.activeOrders == nil {
		return
	}
	mp.activeOrders.Add(ctx, 1)
}

// RecordSwapRetry records a swap job consuming a retry attempt.
func (mp *MetricsProvider) RecordSwapRetry(ctx context.Context, venue string) {
	if mp.swapRetries == nil {
		return
	}
	mp.swapRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("venue", venue)))
}

// StartMetricsServer starts the Prometheus metrics HTTP server
func (mp *MetricsProvider) StartMetricsServer(port int) error {
	if mp.registry == nil {
		return fmt.Errorf("metrics not enabled")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(mp.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	return server.ListenAndServe()
}

// Shutdown gracefully shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	if mp.meterProvider == nil {
		return nil
	}
	return mp.meterProvider.Shutdown(ctx)
}
