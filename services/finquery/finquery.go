// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package finquery provides the financial question answering service.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the query compilation pipeline, the warehouse
// pool, LLM clients, and observability infrastructure.
//
// # Usage
//
//	cfg := finquery.Config{Port: 12310, DatabaseDSN: dsn}
//	svc, err := finquery.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package finquery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianFinance/services/finquery/allowlist"
	"github.com/AleutianAI/AleutianFinance/services/finquery/catalog"
	"github.com/AleutianAI/AleutianFinance/services/finquery/citations"
	"github.com/AleutianAI/AleutianFinance/services/finquery/observability"
	"github.com/AleutianAI/AleutianFinance/services/finquery/pipeline"
	"github.com/AleutianAI/AleutianFinance/services/finquery/resolve"
	"github.com/AleutianAI/AleutianFinance/services/finquery/routes"
	"github.com/AleutianAI/AleutianFinance/services/finquery/session"
	"github.com/AleutianAI/AleutianFinance/services/finquery/warehouse"
	"github.com/AleutianAI/AleutianFinance/services/llm"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the finquery service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds finquery configuration options. Zero values take the
// defaults applied by New(); only DatabaseDSN is required.
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// DatabaseDSN is the warehouse connection string. Required.
	DatabaseDSN string

	// CatalogPath overrides the embedded template catalog when set.
	CatalogPath string

	// LLMBackend selects the generative SQL provider.
	// Valid values: "none", "openai", "ollama". Default: "none"
	// (generative path disabled).
	LLMBackend string

	// InfluxURL, InfluxToken, InfluxOrg, InfluxBucket configure the
	// stock price bucket used for stock provenance. All optional; when
	// unset, stock citations are absent.
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "aleutian-otel-collector:4317"
	OTelEndpoint string

	// StatementTimeout bounds a single warehouse statement. Default: 5s.
	StatementTimeout time.Duration

	// HITLEnabled turns the approval gate on service-wide. Individual
	// requests may still opt in when this is off. Default: false.
	HITLEnabled bool

	// PromptForTemplates routes template plans through the approval
	// prompt when the gate is on. Default: false (template plans are
	// approved silently; only generative SQL prompts).
	PromptForTemplates bool

	// MaxSessionTickers is the session ticker window size. Default: 3.
	MaxSessionTickers int

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string

	// DisableMetrics turns off the pipeline's Prometheus
	// instrumentation. Default: false.
	DisableMetrics bool
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use. All fields are
// read-only after New() returns.
type service struct {
	config        Config
	router        *gin.Engine
	pool          *warehouse.PgPool
	influxClient  influxdb2.Client
	llmClient     llm.LLMClient
	engine        *pipeline.Engine
	sessions      *session.Store
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a finquery Service: defaults are applied, tracing and
// metrics come up, the catalog and allowlist load (a failure there
// aborts startup), the warehouse pool connects, and the pipeline is
// assembled with every collaborator injected.
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if err := s.initPipeline(); err != nil {
		s.cleanup()
		return nil, err
	}

	s.initRouter()
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
// Cleanup is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting finquery server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing. Callers must
// not modify routes after construction.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "none"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "aleutian-otel-collector:4317"
	}
	if cfg.StatementTimeout == 0 {
		cfg.StatementTimeout = pipeline.DefaultStatementTimeout
	}
	if cfg.MaxSessionTickers == 0 {
		cfg.MaxSessionTickers = session.DefaultTickerWindow
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing over an
// insecure gRPC connection, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("finquery-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initPipeline loads the catalog and allowlist, connects the warehouse
// pool, and wires the pipeline engine.
func (s *service) initPipeline() error {
	var (
		cat *catalog.Catalog
		err error
	)
	if s.config.CatalogPath != "" {
		cat, err = catalog.LoadFile(s.config.CatalogPath)
	} else {
		cat, err = catalog.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load template catalog: %w", err)
	}

	validator, err := allowlist.New()
	if err != nil {
		return fmt.Errorf("failed to load allowlist: %w", err)
	}

	s.pool, err = warehouse.NewPgPool(context.Background(), s.config.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}

	if err := s.initLLMClient(); err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	logger := slog.Default()
	s.sessions = session.NewStore(s.config.MaxSessionTickers)

	var metrics *observability.PipelineMetrics
	if !s.config.DisableMetrics {
		metrics = observability.NewPipelineMetrics(s.sessions.Len)
		slog.Info("Initialized Prometheus metrics for the query pipeline")
	}

	var generative *pipeline.GenerativeBuilder
	if s.llmClient != nil {
		generative = pipeline.NewGenerativeBuilder(s.llmClient, validator, logger)
	}

	var stock citations.StockProvenance
	if s.config.InfluxURL != "" {
		s.influxClient = influxdb2.NewClient(s.config.InfluxURL, s.config.InfluxToken)
		stock = &citations.InfluxStockProvenance{
			Client: s.influxClient,
			Org:    s.config.InfluxOrg,
			Bucket: s.config.InfluxBucket,
		}
		slog.Info("Stock provenance enabled", "bucket", s.config.InfluxBucket)
	}

	resolver := resolve.NewWarehouseResolver(s.pool)
	gate := pipeline.NewGate(pipeline.GateConfig{
		Enabled:                s.config.HITLEnabled,
		AlwaysApproveTemplates: !s.config.PromptForTemplates,
	}, pipeline.LoggingApprover{Logger: logger}, logger)

	s.engine = pipeline.NewEngine(pipeline.EngineConfig{
		Decomposer:      pipeline.NewDecomposer(),
		Router:          pipeline.NewRouter(cat, logger),
		Planner:         pipeline.NewPlanner(resolver, validator.MaxLimit(), logger),
		Builder:         pipeline.NewBuilder(validator, generative, logger),
		Executor:        pipeline.NewExecutor(s.pool, validator, s.config.StatementTimeout, logger),
		Gate:            gate,
		Sessions:        s.sessions,
		Citations:       citations.NewFetcher(s.pool, stock, metrics, logger),
		Metrics:         metrics,
		AllowGenerative: s.llmClient != nil,
		Logger:          logger,
	})
	return nil
}

// initLLMClient initializes the generative SQL provider. The "none"
// backend is valid: the service then answers from templates only.
func (s *service) initLLMClient() error {
	var err error

	switch s.config.LLMBackend {
	case "none":
		slog.Info("Generative SQL disabled, templates only")
	case "openai":
		s.llmClient, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		s.llmClient, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	default:
		slog.Warn("Unknown LLM backend, generative SQL disabled", "backend", s.config.LLMBackend)
	}

	return err
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("finquery-service"))

	routes.SetupRoutes(s.router, s.engine, s.sessions)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.influxClient != nil {
		s.influxClient.Close()
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
