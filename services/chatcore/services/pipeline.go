// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"time"

	"github.com/lodestar-ai/lodestar/services/chatcore/datatypes"
	"github.com/lodestar-ai/lodestar/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var pipelineTracer = otel.Tracer("lodestar.chatcore.services.pipeline")

// AnswerPipeline runs one model through generation and the citation
// integrity stages: generate → extract references → guard → deduplicate
// and renumber.
//
// # Description
//
// The pipeline is stateless per call and safe for concurrent use; the
// comparison orchestrator runs one call per model against the same
// instance. Each call is bounded by the configured per-call timeout and
// makes exactly one generation attempt.
type AnswerPipeline struct {
	llmClient   llm.LLMClient
	guard       *Guard
	temperature float32
	maxTokens   int
	callTimeout time.Duration
}

// NewAnswerPipeline wires the pipeline. llmClient and guard must not be
// nil.
func NewAnswerPipeline(llmClient llm.LLMClient, guard *Guard, temperature float32,
	maxTokens int, callTimeout time.Duration) *AnswerPipeline {

	return &AnswerPipeline{
		llmClient:   llmClient,
		guard:       guard,
		temperature: temperature,
		maxTokens:   maxTokens,
		callTimeout: callTimeout,
	}
}

// Run generates and grounds one answer for the given model.
//
// # Inputs
//
//   - ctx: request context. A per-call timeout is layered on top.
//   - prompt: the rendered grounding prompt (see PromptBuilder.Render).
//   - pctx: the prompt context the prompt was rendered from. Markers in
//     the generated text are validated against it.
//   - modelID: provider model identifier for this run.
//
// # Outputs
//
//   - *datatypes.GroundedAnswer: on success, including the Fallback
//     case, which is a valid grounded outcome with the neutral message
//     and an empty citation list.
//   - error: one of the llm taxonomy errors when generation itself
//     failed. Fatal for the single-model path; captured per-slot by the
//     comparison path.
//
// # Invariants
//
// Every citation in a non-fallback result corresponds to a pctx entry,
// and citation display indices are exactly 1..K with no gaps.
func (p *AnswerPipeline) Run(ctx context.Context, prompt string, pctx PromptContext,
	modelID string) (*datatypes.GroundedAnswer, error) {

	ctx, span := pipelineTracer.Start(ctx, "AnswerPipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", modelID))

	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	temp := p.temperature
	maxTokens := p.maxTokens
	raw, err := p.llmClient.Generate(callCtx, prompt, llm.GenerationParams{
		Temperature:   &temp,
		MaxTokens:     &maxTokens,
		ModelOverride: modelID,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return nil, err
	}

	answer := &datatypes.GroundedAnswer{
		ModelID:        modelID,
		LatencyMs:      float64(time.Since(start).Milliseconds()),
		RetrievalCount: pctx.Size(),
	}

	refs := ExtractReferences(raw, pctx.Size())
	answer.CorruptedCitation = refs.Corrupted
	if refs.Corrupted {
		span.SetAttributes(attribute.Bool("citations.corrupted_index", true))
	}

	if p.guard.Evaluate(raw, refs.Ordered) == StateFallback {
		answer.Fallback = true
		answer.Answer = FallbackMessage
		answer.Citations = []datatypes.Citation{}
		span.SetAttributes(attribute.Bool("answer.fallback", true))
		return answer, nil
	}

	text, citations := RenumberCitations(raw, refs.Ordered, pctx)
	answer.Answer = text
	answer.Citations = citations
	answer.LatencyMs = float64(time.Since(start).Milliseconds())

	span.SetAttributes(
		attribute.Int("citations.count", len(citations)),
		attribute.Float64("answer.latency_ms", answer.LatencyMs),
	)
	return answer, nil
}
