// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lodestar-ai/lodestar/services/chatcore/analytics"
	"github.com/lodestar-ai/lodestar/services/chatcore/auth"
	"github.com/lodestar-ai/lodestar/services/chatcore/config"
	"github.com/lodestar-ai/lodestar/services/chatcore/observability"
	"github.com/lodestar-ai/lodestar/services/chatcore/routes"
	"github.com/lodestar-ai/lodestar/services/chatcore/services"
	"github.com/lodestar-ai/lodestar/services/llm"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "lodestar-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("chatcore-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("FATAL: invalid configuration: %v", err)
	}

	metrics := observability.InitMetrics()

	log.Println("Configuring the LLM client")
	llmClient, err := llm.NewOpenRouterClient(cfg.ProviderAPIKey, cfg.ProviderBaseURL, cfg.PrimaryModelID)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	retriever := services.NewRetrievalClient(cfg.RetrievalURL, cfg.RetrievalTimeout)
	reformulator := services.NewReformulator(llmClient, cfg.ReformulateTimeout, cfg.EnableReformulation)

	phrases := services.NewPhraseStore(cfg.InsufficientPhrases)
	if cfg.ModelsFile != "" {
		// Hot reload of the insufficient-info phrase list alongside
		// the models file.
		go func() {
			if err := phrases.Watch(context.Background(), cfg.ModelsFile); err != nil {
				slog.Warn("Phrase file watch stopped", "error", err)
			}
		}()
	}
	guard := services.NewGuard(phrases)

	pipeline := services.NewAnswerPipeline(llmClient, guard, cfg.Temperature,
		cfg.MaxOutputTokens, cfg.CallTimeout)
	comparison := services.NewComparisonOrchestrator(pipeline, cfg.ComparisonModels)
	prompts := services.PromptBuilder{
		TokenBudget:  cfg.ContextTokenBudget,
		ChunkCharCap: cfg.ChunkCharCap,
	}

	var emitter analytics.Emitter = analytics.NopEmitter{}
	if cfg.EventSinkURL != "" {
		sink := analytics.NewHTTPEventSink(cfg.EventSinkURL, 5*time.Second)
		emitter = analytics.NewAsyncEmitter(sink, metrics)
	} else {
		slog.Info("EVENT_SINK_URL not set, analytics disabled")
	}

	var validator auth.SessionValidator = auth.NopSessionValidator{}
	if cfg.AuthServiceURL != "" {
		validator = auth.NewHTTPSessionValidator(cfg.AuthServiceURL, 10*time.Second)
	} else {
		slog.Warn("AUTH_SERVICE_URL not set, running without session validation")
	}

	service := services.NewChatService(cfg, retriever, reformulator, pipeline,
		comparison, prompts, emitter, metrics)

	router := gin.Default()
	router.Use(otelgin.Middleware("chatcore-service"))
	routes.SetupRoutes(router, cfg, service, validator, metrics)

	log.Println("Starting the chatcore server on port ", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
