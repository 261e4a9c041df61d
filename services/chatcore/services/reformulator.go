// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/lodestar-ai/lodestar/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var reformulatorTracer = otel.Tracer("lodestar.chatcore.services.reformulator")

// Reformulation call tuning. Low temperature keeps the cleanup
// deterministic; queries are short, so the token cap is tight.
const (
	reformulateTemperature float32 = 0.3
	reformulateMaxTokens           = 100
)

const reformulatePromptTemplate = `You are a query reformulation assistant for a document search system.

Your task: Clean up and reformulate the user's query to make it clearer and more effective for semantic search.

Instructions:
1. Fix any spelling errors or typos
2. Rephrase if needed for clarity
3. Keep the core intent and meaning
4. Make it concise and specific
5. Return ONLY the reformulated query, nothing else

User query: "%s"

Reformulated query:`

// Reformulator is the optional typo/clarity cleanup step that runs
// before retrieval.
//
// # Description
//
// Reformulate never fails the pipeline: on timeout, provider error, or
// empty output it returns the original query unchanged and logs the
// fallback at info level. Disabled reformulators are valid and simply
// pass queries through.
type Reformulator struct {
	llmClient llm.LLMClient
	timeout   time.Duration
	enabled   bool
}

// NewReformulator wires the cleanup step. A nil llmClient disables it
// regardless of the enabled flag.
func NewReformulator(llmClient llm.LLMClient, timeout time.Duration, enabled bool) *Reformulator {
	if llmClient == nil {
		enabled = false
	}
	return &Reformulator{llmClient: llmClient, timeout: timeout, enabled: enabled}
}

// Reformulate returns a cleaned-up version of the query, or the query
// unchanged when the step is disabled or the provider misbehaves.
func (r *Reformulator) Reformulate(ctx context.Context, query string) string {
	if !r.enabled {
		return query
	}

	ctx, span := reformulatorTracer.Start(ctx, "Reformulator.Reformulate")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	temp := reformulateTemperature
	maxTokens := reformulateMaxTokens
	prompt := strings.Replace(reformulatePromptTemplate, "%s", query, 1)

	out, err := r.llmClient.Generate(callCtx, prompt, llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		// Best effort only; never an error for the caller.
		slog.Info("Query reformulation failed, using original query", "error", err)
		span.SetAttributes(attribute.Bool("reformulation.fallback", true))
		return query
	}

	// Models occasionally wrap the result in quotes.
	cleaned := strings.Trim(strings.TrimSpace(out), `"'`)
	if cleaned == "" {
		slog.Info("Query reformulation returned empty output, using original query")
		span.SetAttributes(attribute.Bool("reformulation.fallback", true))
		return query
	}

	span.SetAttributes(attribute.Bool("reformulation.changed", cleaned != query))
	return cleaned
}
