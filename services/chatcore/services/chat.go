// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"errors"
	"time"

	"github.com/lodestar-ai/lodestar/services/chatcore/analytics"
	"github.com/lodestar-ai/lodestar/services/chatcore/auth"
	"github.com/lodestar-ai/lodestar/services/chatcore/config"
	"github.com/lodestar-ai/lodestar/services/chatcore/datatypes"
	"github.com/lodestar-ai/lodestar/services/chatcore/observability"
	"github.com/lodestar-ai/lodestar/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var chatTracer = otel.Tracer("lodestar.chatcore.services.chat")

// ErrUnknownModel is returned when a selection names a model outside
// the configured comparison set.
var ErrUnknownModel = errors.New("unknown comparison model")

// ChatService orchestrates the grounded chat pipeline.
//
// # Description
//
// ChatService owns the full request flow: optional query reformulation,
// retrieval, token-budgeted context assembly, generation (single model
// or parallel comparison), citation processing, and fire-and-forget
// analytics. It is the only type handlers talk to.
//
// # Thread Safety
//
// Safe for concurrent use. All fields are set at construction and never
// mutated; per-request state lives on the stack.
type ChatService struct {
	cfg          *config.Config
	retriever    Retriever
	reformulator *Reformulator
	pipeline     *AnswerPipeline
	comparison   *ComparisonOrchestrator
	prompts      PromptBuilder
	emitter      analytics.Emitter
	metrics      *observability.ChatMetrics
}

// NewChatService wires the pipeline stages into a service.
func NewChatService(
	cfg *config.Config,
	retriever Retriever,
	reformulator *Reformulator,
	pipeline *AnswerPipeline,
	comparison *ComparisonOrchestrator,
	prompts PromptBuilder,
	emitter analytics.Emitter,
	metrics *observability.ChatMetrics,
) *ChatService {
	if emitter == nil {
		emitter = analytics.NopEmitter{}
	}
	return &ChatService{
		cfg:          cfg,
		retriever:    retriever,
		reformulator: reformulator,
		pipeline:     pipeline,
		comparison:   comparison,
		prompts:      prompts,
		emitter:      emitter,
		metrics:      metrics,
	}
}

// Ask answers a query with the primary model (or the request's model
// override).
//
// # Description
//
// Runs reformulation, retrieval, prompt assembly, one generation, and
// citation processing. Zero retrieval results short-circuit before any
// generation call: the response carries a fixed no-results message and
// an empty citation list.
//
// # Errors
//
//   - ErrRetrievalUnavailable (wrapped): the retrieval backend failed.
//   - llm taxonomy errors: the generation call failed.
//   - ctx.Err(): the caller canceled.
func (s *ChatService) Ask(ctx context.Context, req *datatypes.ChatRequest,
	session *auth.SessionInfo) (*datatypes.ChatResponse, error) {

	ctx, span := chatTracer.Start(ctx, "ChatService.Ask")
	defer span.End()
	start := time.Now()

	correlationID := datatypes.GenerateID()
	span.SetAttributes(
		attribute.String("chat.correlation_id", correlationID),
		attribute.Int("chat.top_k", req.TopK),
	)

	effective := s.reformulator.Reformulate(ctx, req.Query)
	reformulated := effective != req.Query
	s.emitter.Emit(analytics.NewQuerySubmitted(
		correlationID, req.Query, req.SessionID, session.UserID, reformulated))

	chunks, err := s.retriever.Search(ctx, effective, req.TopK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("chat.retrieved", len(chunks)))

	modelID := req.ModelID
	if modelID == "" {
		modelID = s.cfg.PrimaryModelID
	}

	if len(chunks) == 0 {
		s.emitter.Emit(analytics.NewResponseGenerated(
			correlationID, modelID, req.SessionID, session.UserID,
			time.Since(start).Milliseconds(), 0, 0, true))
		return &datatypes.ChatResponse{
			Query:     req.Query,
			Answer:    NoResultsMessage,
			Citations: []datatypes.Citation{},
		}, nil
	}

	pctx := s.prompts.BuildContext(chunks)
	// Prompt carries the user's original wording; reformulation only
	// steers retrieval.
	prompt := s.prompts.Render(req.Query, pctx)

	answer, err := s.pipeline.Run(ctx, prompt, pctx, modelID)
	s.recordGeneration(modelID, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return nil, err
	}
	s.recordGuardOutcomes(answer)

	s.emitter.Emit(analytics.NewResponseGenerated(
		correlationID, modelID, req.SessionID, session.UserID,
		time.Since(start).Milliseconds(), len(answer.Citations),
		answer.RetrievalCount, answer.Fallback))

	return &datatypes.ChatResponse{
		Query:     req.Query,
		Answer:    answer.Answer,
		Citations: answer.Citations,
	}, nil
}

// Compare answers a query with every configured comparison model in
// parallel over one shared retrieval pass.
//
// # Description
//
// Retrieval and prompt assembly run once; each model generates against
// the identical context, so the comparison measures the models and
// nothing else. Zero retrieval results still produce a full slot set,
// one no-results answer per model, without calling any provider.
//
// # Errors
//
//   - ErrRetrievalUnavailable (wrapped): the retrieval backend failed.
//   - ErrAllModelsFailed: every generation branch failed.
//   - ctx.Err(): the caller canceled.
func (s *ChatService) Compare(ctx context.Context, req *datatypes.ChatRequest,
	session *auth.SessionInfo) (*datatypes.ComparisonResponse, error) {

	ctx, span := chatTracer.Start(ctx, "ChatService.Compare")
	defer span.End()
	start := time.Now()

	if s.metrics != nil {
		s.metrics.ActiveComparisons.Inc()
		defer s.metrics.ActiveComparisons.Dec()
	}

	correlationID := datatypes.GenerateID()
	span.SetAttributes(attribute.String("chat.correlation_id", correlationID))

	effective := s.reformulator.Reformulate(ctx, req.Query)
	reformulated := effective != req.Query
	s.emitter.Emit(analytics.NewQuerySubmitted(
		correlationID, req.Query, req.SessionID, session.UserID, reformulated))

	chunks, err := s.retriever.Search(ctx, effective, req.TopK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("chat.retrieved", len(chunks)))

	models := s.comparison.Models()
	modelIDs := make([]string, len(models))
	for i, m := range models {
		modelIDs[i] = m.ID
	}

	var results []datatypes.ModelComparisonResult
	if len(chunks) == 0 {
		results = make([]datatypes.ModelComparisonResult, len(models))
		for i, m := range models {
			results[i] = datatypes.ModelComparisonResult{
				ModelID:   m.ID,
				ModelName: m.Name,
				Answer:    NoResultsMessage,
				Citations: []datatypes.Citation{},
			}
		}
	} else {
		pctx := s.prompts.BuildContext(chunks)
		prompt := s.prompts.Render(req.Query, pctx)
		results, err = s.comparison.Compare(ctx, prompt, pctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "comparison failed")
			return nil, err
		}
	}

	succeeded := 0
	for _, r := range results {
		if r.Error == "" {
			succeeded++
		}
	}
	latencyMs := time.Since(start).Milliseconds()
	s.emitter.Emit(analytics.NewModelComparisonTriggered(
		correlationID, req.SessionID, session.UserID,
		modelIDs, latencyMs, len(chunks), succeeded))

	resp := &datatypes.ComparisonResponse{
		Query:          req.Query,
		Results:        results,
		LatencyMs:      float64(latencyMs),
		RetrievalCount: len(chunks),
	}
	if reformulated {
		resp.ReformulatedQuery = effective
	}
	return resp, nil
}

// RecordSelection registers which comparison answer the user picked.
//
// # Description
//
// No generation happens here. The selection is replayed into analytics
// as a response_generated event for the chosen model, so downstream
// dashboards see picked comparison answers alongside single-model ones.
//
// # Errors
//
//   - ErrUnknownModel: the named model is not in the comparison set.
func (s *ChatService) RecordSelection(ctx context.Context,
	req *datatypes.SelectionRequest, session *auth.SessionInfo) error {

	_, span := chatTracer.Start(ctx, "ChatService.RecordSelection")
	defer span.End()

	if !s.comparison.HasModel(req.ModelID) {
		span.SetStatus(codes.Error, "unknown model")
		return ErrUnknownModel
	}

	correlationID := datatypes.GenerateID()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = datatypes.GenerateID()
	}
	s.emitter.Emit(analytics.NewQuerySubmitted(
		correlationID, req.Query, sessionID, session.UserID, false))
	s.emitter.Emit(analytics.NewResponseGenerated(
		correlationID, req.ModelID, sessionID, session.UserID,
		int64(req.LatencyMs), req.CitationCount, req.RetrievalCount, false))
	return nil
}

// recordGeneration classifies one generation outcome into the per-model
// counter.
func (s *ChatService) recordGeneration(modelID string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, llm.ErrGenerationTimeout), errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case errors.Is(err, llm.ErrRateLimited):
		outcome = "rate_limited"
	default:
		outcome = "error"
	}
	s.metrics.GenerationsTotal.WithLabelValues(modelID, outcome).Inc()
}

func (s *ChatService) recordGuardOutcomes(answer *datatypes.GroundedAnswer) {
	if s.metrics == nil {
		return
	}
	if answer.Fallback {
		s.metrics.GuardFallbacksTotal.Inc()
	}
	if answer.CorruptedCitation {
		s.metrics.CorruptedCitationsTotal.Inc()
	}
}
